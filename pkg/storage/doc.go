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

// Package storage persists connections, scans, documentation nodes and
// schema versions in a SQL database.
//
// Two drivers are supported through database/sql:
//
//   - sqlite3 (github.com/mattn/go-sqlite3), the default, a single file
//     under the project data directory
//   - pgx (github.com/jackc/pgx/v5/stdlib), for a shared PostgreSQL server
//
// Queries are written with "?" placeholders and rebound to "$n" for
// PostgreSQL. The schema is created by Migrate and is idempotent.
//
// # Quick Start
//
//	store, err := storage.Open(ctx, storage.Config{Driver: "sqlite3", DSN: path})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	_ = store.SaveScan(ctx, rec)
//	nodes, total, err := store.ListDocNodes(ctx, storage.DocFilter{RepoID: "acme"})
package storage
