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

// Package testing provides test helpers for Codaxi packages.
//
// Helpers build the fixtures most tests need: an in-memory store with the
// schema applied, a repository connection pointing at a fixture directory,
// and seeded documentation nodes.
//
// # Quick Start
//
//	import cxtest "github.com/zeelapatel/codaxi/internal/testing"
//
//	func TestMyFeature(t *testing.T) {
//	    store := cxtest.SetupTestStore(t)
//	    dir := cxtest.WriteFixtureRepo(t, map[string]string{
//	        "src/app.ts": "app.get('/health', h)\n",
//	    })
//	    cxtest.InsertTestConnection(t, store, "acme", dir)
//
//	    // Run a scan against the store...
//	}
//
// # Seeding Test Data
//
//   - InsertTestConnection: a local_path connection for a repository
//   - InsertTestRoute: a route node with a primary citation
//   - InsertTestScan: a scan record in a given state
//
// # Querying Test Data
//
//   - QueryNodes: every node of a repository
//   - QueryScans: the latest scans of a repository
package testing
