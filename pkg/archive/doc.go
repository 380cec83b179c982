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

// Package archive acquires repository snapshots for scanning and generation.
//
// A snapshot is a directory holding a checked-out tree. Local path
// connections use the directory itself. GitHub connections download a
// tarball of the requested branch (the repository's default branch when
// none is given), extract it into the cache and record a manifest:
//
//	<root>/<repoID>/<branch>/manifest.json
//	<root>/<repoID>/<branch>/tree/...
//
// A cached snapshot is always preferred over a remote fetch. When an S3
// mirror is configured, fresh tarballs are uploaded to it and a cache miss
// consults the mirror before GitHub.
package archive
