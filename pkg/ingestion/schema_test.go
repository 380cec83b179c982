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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to ScanStatus
		want     bool
	}{
		{StatusQueued, StatusParsing, true},
		{StatusParsing, StatusParsing, true},
		{StatusParsing, StatusGenerating, true},
		{StatusGenerating, StatusParsing, false},
		{StatusEmbedding, StatusError, true},
		{StatusCompleted, StatusError, false},
		{StatusError, StatusCompleted, false},
		{StatusQueued, ScanStatus("bogus"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransition(tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestScanStatus_Active(t *testing.T) {
	for _, s := range ActiveStatuses() {
		assert.True(t, s.Active(), s)
		assert.False(t, s.Terminal(), s)
	}
	assert.False(t, StatusCompleted.Active())
	assert.False(t, StatusError.Active())
}

func TestScanRecord_Clone(t *testing.T) {
	done := time.Now()
	rec := &ScanRecord{
		ID:          "s1",
		CompletedAt: &done,
		Errors:      []ScanError{{Stage: "parsing", Message: "boom"}},
		Files:       []string{"a.ts"},
	}
	c := rec.Clone()
	c.Errors[0].Message = "changed"
	c.Files[0] = "b.ts"
	*c.CompletedAt = done.Add(time.Hour)

	assert.Equal(t, "boom", rec.Errors[0].Message)
	assert.Equal(t, "a.ts", rec.Files[0])
	assert.Equal(t, done, *rec.CompletedAt)
	assert.True(t, rec.HasErrorStage("parsing"))
	assert.False(t, rec.HasErrorStage("cancel"))

	var nilRec *ScanRecord
	assert.Nil(t, nilRec.Clone())
}

func TestValidKind(t *testing.T) {
	assert.True(t, ValidKind("route"))
	assert.True(t, ValidKind("module"))
	assert.False(t, ValidKind("endpoint"))
}
