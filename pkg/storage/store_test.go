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

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

func openTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := Open(context.Background(), Config{Driver: DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func routeNode(repo, method, path string) ingestion.DocumentationNode {
	title := method + " " + path
	return ingestion.DocumentationNode{
		ID:        ingestion.GenerateDocID(repo, ingestion.KindRoute, title, path),
		RepoID:    repo,
		ScanID:    "scan-1",
		Kind:      ingestion.KindRoute,
		Path:      path,
		Title:     title,
		Citations: []ingestion.Citation{{FilePath: "src/app.ts", StartLine: 3, EndLine: 5}},
		Metadata:  map[string]any{"method": method, "framework": "express"},
	}
}

func TestOpen_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(ctx, Config{Driver: DriverSQLite})
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "postgres dsn is required")
}

func TestOpen_FileDatabase(t *testing.T) {
	path := DefaultSQLitePath(t.TempDir() + "/nested")
	s, err := Open(context.Background(), Config{DSN: path})
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, s.Driver())

	// Migrate is idempotent.
	require.NoError(t, s.Migrate(context.Background()))
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y IN ($2, $3)",
		pg.rebind("SELECT a FROM t WHERE x = ? AND y IN (?, ?)"))

	lite := &SQLStore{driver: DriverSQLite}
	assert.Equal(t, "WHERE x = ?", lite.rebind("WHERE x = ?"))
	assert.Equal(t, "", placeholders(0))
	assert.Equal(t, "?, ?, ?", placeholders(3))
}

func TestConnections(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.GetConnection(ctx, "acme")
	assert.ErrorIs(t, err, ErrConnectionNotFound)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutConnection(ctx, archive.Connection{
		RepoID: "acme",
		Source: archive.Source{Type: archive.SourceGitHub, Value: "acme/api"},
		Token:  "secret",
		Active: true,
	}))
	require.NoError(t, s.PutConnection(ctx, archive.Connection{
		RepoID: "local",
		Source: archive.Source{Type: archive.SourceLocalPath, Value: "/src/app"},
		Branch: "dev",
		Active: true,
	}))

	c, err := s.GetConnection(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, archive.SourceGitHub, c.Source.Type)
	assert.Equal(t, "acme/api", c.Source.Value)
	assert.Equal(t, "secret", c.Token)
	assert.True(t, c.Active)
	assert.False(t, c.CreatedAt.IsZero())

	require.NoError(t, s.SetConnectionActive(ctx, "acme", false))
	c, err = s.GetConnection(ctx, "acme")
	require.NoError(t, err)
	assert.False(t, c.Active)
	assert.ErrorIs(t, s.SetConnectionActive(ctx, "nope", true), ErrConnectionNotFound)

	all, err := s.ListConnections(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "acme", all[0].RepoID)
	assert.Equal(t, "dev", all[1].Branch)
}

func TestScans_SaveAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	start := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := &ingestion.ScanRecord{
		ID:        "scan-1",
		RepoID:    "acme",
		Branch:    "main",
		Status:    ingestion.StatusQueued,
		StartedAt: start,
		Files:     []string{"a.ts"},
	}
	require.NoError(t, s.SaveScan(ctx, rec))

	got, err := s.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusQueued, got.Status)
	assert.Nil(t, got.CompletedAt)
	assert.Nil(t, got.Files)
	assert.Nil(t, got.Errors)
	assert.True(t, start.Equal(got.StartedAt))

	done := start.Add(5 * time.Second)
	rec.Status = ingestion.StatusError
	rec.CompletedAt = &done
	rec.Metrics = ingestion.ScanMetrics{FilesParsed: 12, EndpointsDetected: 3, TokensUsed: 900}
	rec.Errors = []ingestion.ScanError{{Stage: "cancel", Message: "scan canceled"}}
	require.NoError(t, s.SaveScan(ctx, rec))

	got, err = s.GetScan(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusError, got.Status)
	require.NotNil(t, got.CompletedAt)
	assert.True(t, done.Equal(*got.CompletedAt))
	assert.Equal(t, 12, got.Metrics.FilesParsed)
	assert.Equal(t, int64(900), got.Metrics.TokensUsed)
	assert.True(t, got.HasErrorStage("cancel"))

	_, err = s.GetScan(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestScans_ListActiveLatest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	statuses := []ingestion.ScanStatus{ingestion.StatusCompleted, ingestion.StatusParsing, ingestion.StatusQueued}
	for i, st := range statuses {
		require.NoError(t, s.SaveScan(ctx, &ingestion.ScanRecord{
			ID:        "scan-" + string(rune('a'+i)),
			RepoID:    "acme",
			Status:    st,
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}
	require.NoError(t, s.SaveScan(ctx, &ingestion.ScanRecord{
		ID: "other", RepoID: "other", Status: ingestion.StatusCompleted, StartedAt: base,
	}))

	list, err := s.ListScans(ctx, "acme", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "scan-c", list[0].ID)
	assert.Equal(t, "scan-b", list[1].ID)

	active, err := s.ActiveScans(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "scan-b", active[0].ID)

	latest, err := s.LatestScan(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "scan-c", latest.ID)

	_, err = s.LatestScan(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocNodes_UpsertAndGet(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	n := routeNode("acme", "GET", "/users")
	require.NoError(t, s.SaveDocNodes(ctx, []ingestion.DocumentationNode{n}))

	got, err := s.GetDocNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.KindRoute, got.Kind)
	assert.Equal(t, "GET /users", got.Title)
	assert.Equal(t, "get", got.Method())
	assert.Equal(t, "express", got.Framework())
	cite, ok := got.PrimaryCitation()
	require.True(t, ok)
	assert.Equal(t, 3, cite.StartLine)

	// A rescan upserts the same id.
	n.ScanID = "scan-2"
	n.Summary = "List users"
	require.NoError(t, s.SaveDocNodes(ctx, []ingestion.DocumentationNode{n}))
	_, total, err := s.ListDocNodes(ctx, DocFilter{RepoID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	got, err = s.GetDocNode(ctx, n.ID)
	require.NoError(t, err)
	assert.Equal(t, "scan-2", got.ScanID)
	assert.Equal(t, "List users", got.Summary)

	_, err = s.GetDocNode(ctx, "doc:missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDocNodes_BatchIsAtomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	good := routeNode("acme", "GET", "/a")
	dup := routeNode("acme", "GET", "/b")
	// Same natural key as good under a different id violates the unique index.
	dup.ID = "doc:other"
	dup.Title, dup.Path = good.Title, good.Path

	err := s.SaveDocNodes(ctx, []ingestion.DocumentationNode{good, dup})
	require.Error(t, err)

	_, total, err := s.ListDocNodes(ctx, DocFilter{RepoID: "acme"})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestDocNodes_List(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	nodes := []ingestion.DocumentationNode{
		routeNode("acme", "GET", "/a"),
		routeNode("acme", "POST", "/b"),
		routeNode("acme", "PUT", "/c"),
		{RepoID: "acme", Kind: ingestion.KindEvent, Title: "user.created", Path: "src/events.ts"},
		routeNode("other", "GET", "/z"),
	}
	require.NoError(t, s.SaveDocNodes(ctx, nodes))
	assert.NotEmpty(t, nodes[3].ID, "missing ids are generated")

	items, total, err := s.ListDocNodes(ctx, DocFilter{RepoID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, items, 4)

	items, total, err = s.ListDocNodes(ctx, DocFilter{RepoID: "acme", Kinds: []string{"route"}, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 1)
	assert.Equal(t, "POST /b", items[0].Title)

	ids := []string{nodes[2].ID, nodes[0].ID, nodes[4].ID}
	items, total, err = s.ListDocNodes(ctx, DocFilter{RepoID: "acme", IDs: ids})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, nodes[2].ID, items[0].ID)
	assert.Equal(t, nodes[0].ID, items[1].ID)

	items, total, err = s.ListDocNodes(ctx, DocFilter{RepoID: "acme", IDs: []string{}})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, items)

	counts, err := s.CountDocNodes(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, counts[ingestion.KindRoute])
	assert.Equal(t, 1, counts[ingestion.KindEvent])
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, size         int
		wantPage, wantSize int
	}{
		{0, 0, 1, DefaultPageSize},
		{-3, 10, 1, 10},
		{2, 500, 2, MaxPageSize},
		{4, 1, 4, 1},
	}
	for _, tt := range tests {
		p, sz := NormalizePage(tt.page, tt.size)
		assert.Equal(t, tt.wantPage, p)
		assert.Equal(t, tt.wantSize, sz)
	}
}

func TestSchemaVersions(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	v1 := &docgen.SchemaVersion{DocID: "doc:1", Schema: docgen.Fallback(), Source: docgen.OutcomeFallback}
	require.NoError(t, s.SaveSchemaVersion(ctx, v1))
	assert.Equal(t, 1, v1.Version)

	v2 := &docgen.SchemaVersion{DocID: "doc:1", Schema: docgen.Fallback(), Source: docgen.OutcomeOK, Model: "gpt-4o-mini"}
	require.NoError(t, s.SaveSchemaVersion(ctx, v2))
	assert.Equal(t, 2, v2.Version)

	other := &docgen.SchemaVersion{DocID: "doc:2", Schema: docgen.Fallback(), Source: docgen.OutcomeOK}
	require.NoError(t, s.SaveSchemaVersion(ctx, other))
	assert.Equal(t, 1, other.Version)

	versions, err := s.ListSchemaVersions(ctx, "doc:1")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.Equal(t, docgen.OutcomeOK, versions[0].Source)
	assert.Equal(t, "gpt-4o-mini", versions[0].Model)
	require.NotNil(t, versions[0].Schema)
	assert.True(t, versions[0].Schema.HasResponse("200"))

	latest, err := s.LatestSchemaVersion(ctx, "doc:1")
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)

	_, err = s.LatestSchemaVersion(ctx, "doc:none")
	assert.ErrorIs(t, err, ErrNotFound)
}

// SQLStore satisfies the generation service's store.
var _ docgen.Store = (*SQLStore)(nil)
