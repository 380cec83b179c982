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

// Package mcp exposes the scan engine and the documentation catalog as
// Model Context Protocol tools.
//
// The server runs over stdio (codaxi --mcp) or is mounted on the HTTP API
// through the streamable transport (codaxi serve). Tools:
//
//   - start_scan: start a scan of a registered repository
//   - scan_status: current state of a scan
//   - list_scans: recent scans of a repository
//   - list_docs: search the documentation nodes of a repository
//   - get_doc: one documentation node with its citations
//   - generate_schema: generate a request/response schema for a node
//   - list_versions: stored schema versions of a node
package mcp
