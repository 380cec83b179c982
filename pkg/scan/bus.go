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
	"sync"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// ProgressEvent is published on every accepted transition.
type ProgressEvent struct {
	ScanID string                `json:"scanId"`
	Scan   *ingestion.ScanRecord `json:"scan"`
}

// DefaultBusBuffer is the per-subscriber channel capacity.
const DefaultBusBuffer = 64

// Bus fans progress events out to per-subscriber buffered channels keyed by
// scan id. Publish never blocks: when a subscriber's buffer is full its
// oldest buffered event is evicted, so the latest state, and in particular
// the terminal one, always reaches the subscriber.
type Bus struct {
	mu     sync.Mutex
	buffer int
	nextID int
	subs   map[string]map[int]chan ProgressEvent
}

// NewBus creates a bus. A non-positive buffer uses DefaultBusBuffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBusBuffer
	}
	return &Bus{buffer: buffer, subs: make(map[string]map[int]chan ProgressEvent)}
}

// Subscribe registers a subscriber for scanID. initial events are queued on
// the new channel before any published event. The returned function
// unsubscribes and closes the channel; it is safe to call more than once.
func (b *Bus) Subscribe(scanID string, initial ...ProgressEvent) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, max(b.buffer, len(initial)))
	for _, ev := range initial {
		ch <- ev
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[scanID] == nil {
		b.subs[scanID] = make(map[int]chan ProgressEvent)
	}
	b.subs[scanID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[scanID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(b.subs, scanID)
				}
			}
			close(ch)
		})
	}
}

// Publish delivers ev to every subscriber of ev.ScanID and returns the
// number of older events evicted to make room for it.
func (b *Bus) Publish(ev ProgressEvent) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for _, ch := range b.subs[ev.ScanID] {
		dropped += deliver(ch, ev)
	}
	if dropped > 0 {
		recordDropped(dropped)
	}
	return dropped
}

// deliver sends ev on ch, evicting buffered events until it fits. The
// subscriber may drain concurrently, so an eviction can find nothing.
func deliver(ch chan ProgressEvent, ev ProgressEvent) int {
	evicted := 0
	for {
		select {
		case ch <- ev:
			return evicted
		default:
		}
		select {
		case <-ch:
			evicted++
		default:
		}
	}
}

// Subscribers returns the number of subscribers of scanID.
func (b *Bus) Subscribers(scanID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[scanID])
}
