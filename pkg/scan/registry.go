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

package scan

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// Registry holds the live state of scans and their cancel flags.
// Implementations must be safe for concurrent use.
type Registry interface {
	Get(id string) (*ingestion.ScanRecord, bool)
	Put(rec *ingestion.ScanRecord)
	CancelFlag(id string)
	IsCanceled(id string) bool
}

// DefaultRegistrySize bounds the scans kept in memory.
const DefaultRegistrySize = 1024

// MemoryRegistry is a bounded in-process Registry. The least recently used
// scans are evicted first; evicted scans are still readable from the store.
type MemoryRegistry struct {
	scans    *lru.Cache[string, *ingestion.ScanRecord]
	canceled *lru.Cache[string, struct{}]
}

// NewMemoryRegistry creates a registry holding up to size scans.
func NewMemoryRegistry(size int) *MemoryRegistry {
	if size <= 0 {
		size = DefaultRegistrySize
	}
	// lru.New only fails for a non-positive size.
	scans, _ := lru.New[string, *ingestion.ScanRecord](size)
	canceled, _ := lru.New[string, struct{}](size)
	return &MemoryRegistry{scans: scans, canceled: canceled}
}

// Get returns a copy of the scan.
func (r *MemoryRegistry) Get(id string) (*ingestion.ScanRecord, bool) {
	rec, ok := r.scans.Get(id)
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// Put stores a copy of rec.
func (r *MemoryRegistry) Put(rec *ingestion.ScanRecord) {
	r.scans.Add(rec.ID, rec.Clone())
}

// CancelFlag marks id as canceled.
func (r *MemoryRegistry) CancelFlag(id string) {
	r.canceled.Add(id, struct{}{})
}

// IsCanceled reports whether id was flagged.
func (r *MemoryRegistry) IsCanceled(id string) bool {
	return r.canceled.Contains(id)
}

// Len returns the number of scans held.
func (r *MemoryRegistry) Len() int {
	return r.scans.Len()
}
