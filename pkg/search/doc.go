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

// Package search provides full-text lookup over documentation nodes.
//
// Nodes are indexed in a Bleve index keyed by node id. Title, path and
// summary are analyzed with the standard analyzer; repository and kind are
// keyword fields used as filters. The index only returns ids: the Catalog
// loads the nodes themselves from storage, so the store stays the source of
// truth and the index can be rebuilt from it at any time.
package search
