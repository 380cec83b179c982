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

// Package bootstrap initializes a Codaxi data directory and wires the
// engine's components together.
//
// # Initialization Workflow
//
//	info, err := bootstrap.InitProject(ctx, bootstrap.ProjectConfig{
//	    DataDir: "/var/lib/codaxi",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Database: %s\n", info.Database)
//
//	app, err := bootstrap.OpenApp(ctx, cfg, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer app.Close()
//	rec, err := app.Scans.Start(ctx, scan.StartRequest{RepoID: "acme-api"})
//
// # Idempotency
//
// InitProject can be called any number of times on the same data directory.
// Migrations only create missing tables and the search index is reopened
// when present.
//
// # Layout
//
// A data directory holds:
//
//   - codaxi.db: the SQLite database (unless a Postgres DSN is configured)
//   - index.bleve: the documentation search index
//   - archives/: cached repository snapshots and their manifests
package bootstrap
