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

// Package contextpack resolves a documentation node back to the minimal
// source context a model needs to document it.
//
// Resolution starts at the node's primary citation. The resolver parses the
// cited file, picks the smallest function-like syntax node whose line range
// contains the citation, and prefixes the file's first 20 lines as a header.
// Capitalized type names in the handler signature are looked up in the
// file's imports; relative imports are resolved on disk and the matching
// declaration is cut out with a balanced-delimiter line scan. Regex facts
// (multipart bodies, auth guards) are collected from the raw file text.
//
// The result is passed through Allocate, which splits the character budget
// 50/30/20 between handler, dto and other contexts.
//
//	r := contextpack.NewResolver(logger)
//	pack, err := r.Build(ctx, repoRoot, node, contextpack.Options{})
package contextpack
