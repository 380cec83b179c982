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

// Package scan runs repository scans and tracks their progress.
//
// A scan moves through queued, parsing, embedding, generating and completed,
// or ends in error from any non-terminal state. Each scan runs in its own
// goroutine and processes files sequentially. Every accepted transition is
// stored in the Registry, published on the Bus and mirrored to the Store.
//
// Cancellation is cooperative. Cancel flags the scan id; from then on every
// update is rejected except the terminal error update, which always carries
// the stage "cancel".
//
//	orch := scan.NewOrchestrator(store, archives, logger)
//	rec, err := orch.Start(ctx, scan.StartRequest{RepoID: "acme"})
//	events, stop := orch.Subscribe(rec.ID)
//	defer stop()
//	for ev := range events {
//	    fmt.Println(ev.Scan.Status)
//	}
package scan
