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

// Package ingestion turns a checked-out source tree into documentation nodes.
//
// The package owns three things: the shared record types (ScanRecord,
// DocumentationNode, Citation), the repository walker that enumerates
// candidate files, and the structural detectors that recognize web framework
// conventions in JavaScript/TypeScript and Java sources.
//
// # Detectors
//
// A Detector is a pure function of a relative path and file content. It never
// returns an error: an unparsable file yields no nodes. Detectors are grouped
// into families keyed by file extension:
//
//   - jsts (.ts, .tsx, .js, .jsx): call routing (express/koa), fastify route
//     objects, Nest controllers, Next filesystem routes, react-router
//     elements, event emitters, and a structural extractor
//   - java (.java): Spring controllers and a structural extractor
//
// Parsing uses Tree-sitter. Every node carries a citation whose line range is
// exactly the syntax node reported by the parser, 1-based and inclusive.
//
// # Quick Start
//
//	nodes := ingestion.DetectFile("src/routes/orders.ts", src)
//	for _, n := range nodes {
//	    fmt.Println(n.Kind, n.Title, n.Citations[0].StartLine)
//	}
//
// # Walking a Repository
//
//	loader := ingestion.NewRepoLoader(logger)
//	res, err := loader.LoadRepository(ingestion.RepoSource{Type: "local_path", Value: dir},
//	    ingestion.DefaultExcludeGlobs(), 0)
//
// The walker applies exclude globs, the extension allow-list and a size limit,
// and reports why files were skipped.
package ingestion
