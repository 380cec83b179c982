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

// Package docgen turns a context pack into a structured endpoint schema
// with a language model.
//
// Generator.Generate never fails because of the model. An unusable answer gets one repair round trip, after which a minimal
// fallback schema is returned.
//
//	gen := docgen.NewGenerator(provider, logger)
//	schema, err := gen.Generate(ctx, pack) // err only on caller cancellation
//
// Service ties generation to persisted documentation nodes: it loads the
// node, resolves the repository snapshot, builds the pack and stores the
// result as a new schema version.
package docgen
