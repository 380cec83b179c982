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

package ui

import (
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

func withoutColor(t *testing.T) {
	t.Helper()
	original := color.NoColor
	color.NoColor = true
	t.Cleanup(func() { color.NoColor = original })
}

func TestInitColors(t *testing.T) {
	original := color.NoColor
	defer func() { color.NoColor = original }()

	tests := []struct {
		name     string
		noColor  bool
		expected bool
	}{
		{name: "colors enabled when noColor is false", noColor: false, expected: false},
		{name: "colors disabled when noColor is true", noColor: true, expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			InitColors(tt.noColor)
			if color.NoColor != tt.expected {
				t.Errorf("InitColors(%v): color.NoColor = %v, expected %v",
					tt.noColor, color.NoColor, tt.expected)
			}
		})
	}
}

func TestInlineHelpers(t *testing.T) {
	withoutColor(t)

	if got := Label("Status:"); got != "Status:" {
		t.Errorf("Label() = %q", got)
	}
	if got := DimText("abc-123"); got != "abc-123" {
		t.Errorf("DimText() = %q", got)
	}
	if got := CountText(42); got != "42" {
		t.Errorf("CountText() = %q", got)
	}
}

func TestStatusText(t *testing.T) {
	withoutColor(t)

	for _, s := range []ingestion.ScanStatus{
		ingestion.StatusQueued, ingestion.StatusParsing, ingestion.StatusEmbedding,
		ingestion.StatusGenerating, ingestion.StatusCompleted, ingestion.StatusError,
	} {
		if got := StatusText(s); got != string(s) {
			t.Errorf("StatusText(%s) = %q", s, got)
		}
	}
}

func TestScanLine(t *testing.T) {
	withoutColor(t)

	rec := &ingestion.ScanRecord{
		ID:        "scan-1",
		RepoID:    "acme/api",
		Branch:    "main",
		Status:    ingestion.StatusCompleted,
		StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Metrics:   ingestion.ScanMetrics{FilesParsed: 12, EndpointsDetected: 3, EventsDetected: 1, TypesDetected: 4},
	}
	line := ScanLine(rec)
	for _, want := range []string{"scan-1", "completed", "files=12", "endpoints=3", "events=1", "types=4", "@main"} {
		if !strings.Contains(line, want) {
			t.Errorf("ScanLine() = %q, missing %q", line, want)
		}
	}

	rec.Branch = ""
	if strings.Contains(ScanLine(rec), "@") {
		t.Error("ScanLine() should omit branch when empty")
	}
}

func TestScanDetails(t *testing.T) {
	withoutColor(t)

	done := time.Date(2026, 1, 2, 3, 5, 5, 0, time.UTC)
	rec := &ingestion.ScanRecord{
		ID:          "scan-2",
		RepoID:      "acme/api",
		Status:      ingestion.StatusError,
		StartedAt:   done.Add(-time.Minute),
		CompletedAt: &done,
		Metrics:     ingestion.ScanMetrics{FilesParsed: 2, DurationSec: 60, TokensUsed: 99},
		Errors:      []ingestion.ScanError{{Stage: "parsing", Message: "archive download failed"}},
	}
	out := ScanDetails(rec)
	for _, want := range []string{"Scan: scan-2", "Repository: acme/api", "Status: error", "(60s)", "99", "[parsing] archive download failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("ScanDetails() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Branch:") {
		t.Error("ScanDetails() should omit empty branch")
	}
}

func TestDocLine(t *testing.T) {
	withoutColor(t)

	n := ingestion.DocumentationNode{
		ID:        "node-1",
		Kind:      ingestion.KindRoute,
		Title:     "GET /users",
		Citations: []ingestion.Citation{{FilePath: "src/app.js", StartLine: 7, EndLine: 9}},
	}
	line := DocLine(n)
	for _, want := range []string{"route", "GET /users", "src/app.js:7", "node-1"} {
		if !strings.Contains(line, want) {
			t.Errorf("DocLine() = %q, missing %q", line, want)
		}
	}

	n.Citations = nil
	if strings.Contains(DocLine(n), ":7") {
		t.Error("DocLine() should omit location without citations")
	}
}

func TestMessageFunctions(t *testing.T) {
	withoutColor(t)

	// Printing helpers must not panic with any input.
	Success("done")
	Successf("scanned %d files", 3)
	Warning("careful")
	Warningf("skipped %s", "x")
	Error("failed")
	Info("note")
	Infof("%s", "")
	Header("")
	Header("Scans")
}
