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

// Package ui provides terminal output helpers for the Codaxi CLI.
//
// Colors respect the --no-color flag and the NO_COLOR environment variable.
//
// Color usage guidelines:
//   - Red: errors, failed scans
//   - Yellow: warnings, scans still running
//   - Green: success, completed scans
//   - Cyan: info, counts
//   - Bold: headers and labels
//   - Dim: ids, paths, timestamps
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// Pre-configured color instances for consistent CLI output.
var (
	Red    = color.New(color.FgRed)
	Yellow = color.New(color.FgYellow)
	Green  = color.New(color.FgGreen)
	Cyan   = color.New(color.FgCyan)
	Bold   = color.New(color.Bold)
	Dim    = color.New(color.Faint)
)

// InitColors configures global color output based on the noColor flag.
// Call it early in main() after parsing flags.
func InitColors(noColor bool) {
	color.NoColor = noColor
}

// Success prints a green message with a checkmark prefix.
func Success(msg string) {
	_, _ = Green.Println("✓ " + msg)
}

// Successf prints a formatted Success message.
func Successf(format string, args ...any) {
	_, _ = Green.Printf("✓ "+format+"\n", args...)
}

// Warning prints a yellow message with a warning prefix.
func Warning(msg string) {
	_, _ = Yellow.Println("⚠ " + msg)
}

// Warningf prints a formatted Warning message.
func Warningf(format string, args ...any) {
	_, _ = Yellow.Printf("⚠ "+format+"\n", args...)
}

// Error prints a red message with an X prefix.
func Error(msg string) {
	_, _ = Red.Println("✗ " + msg)
}

// Info prints a cyan message with an info prefix.
func Info(msg string) {
	_, _ = Cyan.Println("ℹ " + msg)
}

// Infof prints a formatted Info message.
func Infof(format string, args ...any) {
	_, _ = Cyan.Printf("ℹ "+format+"\n", args...)
}

// Header prints a bold header with an underline separator.
func Header(text string) {
	_, _ = Bold.Println(text)
	fmt.Println(strings.Repeat("=", len(text)))
}

// Label returns a bold label for inline use.
func Label(text string) string {
	return Bold.Sprint(text)
}

// DimText returns dim text for ids and paths.
func DimText(text string) string {
	return Dim.Sprint(text)
}

// CountText returns a cyan count.
func CountText(count int) string {
	return Cyan.Sprint(count)
}

// StatusText colors a scan status: green when completed, red on error,
// yellow while running.
func StatusText(s ingestion.ScanStatus) string {
	switch s {
	case ingestion.StatusCompleted:
		return Green.Sprint(string(s))
	case ingestion.StatusError:
		return Red.Sprint(string(s))
	default:
		return Yellow.Sprint(string(s))
	}
}

// ScanLine renders a one-line summary of a scan for listings.
func ScanLine(rec *ingestion.ScanRecord) string {
	m := rec.Metrics
	line := fmt.Sprintf("%s  %-10s  %s  files=%d endpoints=%d events=%d types=%d",
		DimText(rec.ID), StatusText(rec.Status), rec.StartedAt.Local().Format(time.DateTime),
		m.FilesParsed, m.EndpointsDetected, m.EventsDetected, m.TypesDetected)
	if rec.Branch != "" {
		line += " " + DimText("@"+rec.Branch)
	}
	return line
}

// ScanDetails renders a multi-line report of a scan.
func ScanDetails(rec *ingestion.ScanRecord) string {
	var b strings.Builder
	m := rec.Metrics
	fmt.Fprintf(&b, "%s %s\n", Label("Scan:"), rec.ID)
	fmt.Fprintf(&b, "%s %s\n", Label("Repository:"), rec.RepoID)
	if rec.Branch != "" {
		fmt.Fprintf(&b, "%s %s\n", Label("Branch:"), rec.Branch)
	}
	fmt.Fprintf(&b, "%s %s\n", Label("Status:"), StatusText(rec.Status))
	fmt.Fprintf(&b, "%s %s\n", Label("Started:"), rec.StartedAt.Local().Format(time.DateTime))
	if rec.CompletedAt != nil {
		fmt.Fprintf(&b, "%s %s (%ds)\n", Label("Finished:"), rec.CompletedAt.Local().Format(time.DateTime), m.DurationSec)
	}
	fmt.Fprintf(&b, "  Files:         %s\n", CountText(m.FilesParsed))
	fmt.Fprintf(&b, "  Endpoints:     %s\n", CountText(m.EndpointsDetected))
	fmt.Fprintf(&b, "  Client routes: %s\n", CountText(m.ClientRoutesDetected))
	fmt.Fprintf(&b, "  Events:        %s\n", CountText(m.EventsDetected))
	fmt.Fprintf(&b, "  Types:         %s\n", CountText(m.TypesDetected))
	fmt.Fprintf(&b, "  Tokens:        %s\n", Cyan.Sprint(m.TokensUsed))
	for _, e := range rec.Errors {
		fmt.Fprintf(&b, "%s [%s] %s\n", Red.Sprint("✗"), e.Stage, e.Message)
	}
	return b.String()
}

// DocLine renders a documentation node for listings.
func DocLine(n ingestion.DocumentationNode) string {
	loc := ""
	if c, ok := n.PrimaryCitation(); ok {
		loc = fmt.Sprintf("%s:%d", c.FilePath, c.StartLine)
	}
	return fmt.Sprintf("%-8s %s  %s  %s", string(n.Kind), Bold.Sprint(n.Title), DimText(loc), DimText(n.ID))
}
