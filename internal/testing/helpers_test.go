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
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// TestSetupTestStore verifies the store starts empty with the schema applied.
func TestSetupTestStore(t *testing.T) {
	store := SetupTestStore(t)
	require.NotNil(t, store)
	assert.Empty(t, QueryNodes(t, store, "acme"))
	assert.Empty(t, QueryScans(t, store, "acme"))
}

// TestWriteFixtureRepo verifies nested files are written.
func TestWriteFixtureRepo(t *testing.T) {
	dir := WriteFixtureRepo(t, map[string]string{"src/a/b.ts": "x"})
	data, err := os.ReadFile(filepath.Join(dir, "src", "a", "b.ts"))
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

// TestInsertHelpers verifies the seeding helpers.
func TestInsertHelpers(t *testing.T) {
	store := SetupTestStore(t)

	InsertTestConnection(t, store, "acme", t.TempDir())
	id := InsertTestRoute(t, store, "acme", "GET", "/users", "src/users.ts", 3, 8)
	InsertTestScan(t, store, "scan-1", "acme", ingestion.StatusCompleted, time.Now())

	nodes := QueryNodes(t, store, "acme")
	require.Len(t, nodes, 1)
	assert.Equal(t, id, nodes[0].ID)
	assert.Equal(t, "get", nodes[0].Method())

	scans := QueryScans(t, store, "acme")
	require.Len(t, scans, 1)
	assert.Equal(t, ingestion.StatusCompleted, scans[0].Status)
}
