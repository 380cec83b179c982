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

package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// GenerateDocID generates a deterministic documentation node ID.
// Strategy: hash(repo_id + kind + title + path), the same key used for
// deduplication, so a rescan of the same repository upserts its nodes.
func GenerateDocID(repoID string, kind NodeKind, title, path string) string {
	idStr := fmt.Sprintf("%s|%s|%s|%s", repoID, kind, title, path)
	hash := sha256.Sum256([]byte(idStr))
	return fmt.Sprintf("doc:%s", hex.EncodeToString(hash[:16]))
}

// AssignIDs fills ID, RepoID and ScanID on every node.
func AssignIDs(nodes []DocumentationNode, repoID, scanID string) {
	for i := range nodes {
		nodes[i].RepoID = repoID
		nodes[i].ScanID = scanID
		nodes[i].ID = GenerateDocID(repoID, nodes[i].Kind, nodes[i].Title, nodes[i].Path)
	}
}

// NormalizePath normalizes a relative file path for citations and IDs:
// forward slashes, no leading "./" or "/", cleaned.
func NormalizePath(path string) string {
	path = strings.TrimPrefix(path, "./")
	path = filepath.ToSlash(filepath.Clean(path))
	path = strings.TrimPrefix(path, "/")
	if path == "." {
		return ""
	}
	return path
}
