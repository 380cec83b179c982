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

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/zeelapatel/codaxi/internal/ui"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/scan"
)

// ProgressConfig determines if and how progress should be displayed.
type ProgressConfig struct {
	// Enabled indicates whether progress bars should be shown.
	// Disabled when --json or -q are used, or when stderr is not a TTY.
	Enabled bool

	// Writer is where progress output goes (always os.Stderr).
	Writer io.Writer

	// NoColor disables colored output in progress bars.
	NoColor bool
}

// NewProgressConfig creates a progress configuration based on global flags and TTY detection.
func NewProgressConfig(globals GlobalFlags) ProgressConfig {
	enabled := !globals.Quiet && isatty.IsTerminal(os.Stderr.Fd())

	return ProgressConfig{
		Enabled: enabled,
		Writer:  os.Stderr,
		NoColor: globals.NoColor,
	}
}

// NewSpinner creates an indeterminate progress spinner. A scan's file count
// is fixed once parsing starts, so phases are shown instead of a ratio.
// Returns nil if progress is disabled.
func NewSpinner(cfg ProgressConfig, description string) *progressbar.ProgressBar {
	if !cfg.Enabled {
		return nil
	}

	return progressbar.NewOptions(-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(cfg.Writer),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionEnableColorCodes(!cfg.NoColor),
	)
}

// scanProgress renders scan events on a spinner, or as one line per phase
// change when no spinner is available.
type scanProgress struct {
	cfg     ProgressConfig
	bar     *progressbar.ProgressBar
	quiet   bool
	last    ingestion.ScanStatus
	printed bool
}

func newScanProgress(cfg ProgressConfig, quiet bool) *scanProgress {
	return &scanProgress{cfg: cfg, bar: NewSpinner(cfg, "queued"), quiet: quiet}
}

// describe is the one-line progress text for rec.
func describe(rec *ingestion.ScanRecord) string {
	m := rec.Metrics
	return fmt.Sprintf("%-10s files=%d endpoints=%d client=%d events=%d types=%d",
		rec.Status, m.FilesParsed, m.EndpointsDetected, m.ClientRoutesDetected, m.EventsDetected, m.TypesDetected)
}

// Update renders one progress event.
func (p *scanProgress) Update(ev scan.ProgressEvent) {
	if ev.Scan == nil {
		return
	}
	if p.bar != nil {
		p.bar.Describe(describe(ev.Scan))
		_ = p.bar.Add(1)
		return
	}
	if p.quiet || (p.printed && ev.Scan.Status == p.last) {
		return
	}
	p.last = ev.Scan.Status
	p.printed = true
	fmt.Fprintf(p.cfg.Writer, "%s %s\n", ui.DimText(time.Now().Format(time.TimeOnly)), describe(ev.Scan))
}

// Finish clears the spinner.
func (p *scanProgress) Finish() {
	if p.bar != nil {
		_ = p.bar.Finish()
	}
}
