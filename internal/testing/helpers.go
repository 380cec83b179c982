// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

// SetupTestStore creates an in-memory SQLite store for testing.
// The store is automatically closed when the test finishes.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.SetupTestStore(t)
//	    testing.InsertTestRoute(t, store, "acme", "GET", "/users", "src/users.ts", 3, 8)
//	}
func SetupTestStore(t *testing.T) *storage.SQLStore {
	t.Helper()

	store, err := storage.Open(context.Background(), storage.Config{
		Driver: storage.DriverSQLite,
		DSN:    ":memory:",
	})
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

// WriteFixtureRepo writes files (relative slash paths to contents) into a
// temporary directory and returns it.
func WriteFixtureRepo(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, body := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("failed to create fixture dir: %v", err)
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatalf("failed to write fixture %s: %v", rel, err)
		}
	}
	return root
}

// InsertTestConnection records an active local_path connection for repoID.
func InsertTestConnection(t *testing.T, store *storage.SQLStore, repoID, dir string) {
	t.Helper()

	err := store.PutConnection(context.Background(), archive.Connection{
		RepoID: repoID,
		Source: archive.Source{Type: archive.SourceLocalPath, Value: dir},
		Active: true,
	})
	if err != nil {
		t.Fatalf("failed to insert test connection: %v", err)
	}
}

// InsertTestRoute adds a route node and returns its id.
func InsertTestRoute(t *testing.T, store *storage.SQLStore, repoID, method, path, file string, startLine, endLine int) string {
	t.Helper()

	title := strings.ToUpper(method) + " " + path
	node := ingestion.DocumentationNode{
		ID:        ingestion.GenerateDocID(repoID, ingestion.KindRoute, title, path),
		RepoID:    repoID,
		Kind:      ingestion.KindRoute,
		Path:      path,
		Title:     title,
		Citations: []ingestion.Citation{{FilePath: file, StartLine: startLine, EndLine: endLine}},
		Metadata:  map[string]any{"method": strings.ToLower(method), "framework": "express"},
	}
	if err := store.SaveDocNodes(context.Background(), []ingestion.DocumentationNode{node}); err != nil {
		t.Fatalf("failed to insert test route: %v", err)
	}
	return node.ID
}

// InsertTestScan adds a scan record started at startedAt.
func InsertTestScan(t *testing.T, store *storage.SQLStore, id, repoID string, status ingestion.ScanStatus, startedAt time.Time) {
	t.Helper()

	err := store.SaveScan(context.Background(), &ingestion.ScanRecord{
		ID:        id,
		RepoID:    repoID,
		Status:    status,
		StartedAt: startedAt,
	})
	if err != nil {
		t.Fatalf("failed to insert test scan: %v", err)
	}
}

// QueryNodes returns every node of repoID.
func QueryNodes(t *testing.T, store *storage.SQLStore, repoID string) []ingestion.DocumentationNode {
	t.Helper()

	nodes, _, err := store.ListDocNodes(context.Background(), storage.DocFilter{RepoID: repoID})
	if err != nil {
		t.Fatalf("failed to query nodes: %v", err)
	}
	return nodes
}

// QueryScans returns up to 100 scans of repoID, newest first.
func QueryScans(t *testing.T, store *storage.SQLStore, repoID string) []*ingestion.ScanRecord {
	t.Helper()

	scans, err := store.ListScans(context.Background(), repoID, 100)
	if err != nil {
		t.Fatalf("failed to query scans: %v", err)
	}
	return scans
}
