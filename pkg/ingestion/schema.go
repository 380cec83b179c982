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
	"strings"
	"time"
)

// =============================================================================
// DOCUMENTATION NODES
// =============================================================================

// NodeKind classifies a documentation node.
type NodeKind string

const (
	KindRoute    NodeKind = "route"
	KindEvent    NodeKind = "event"
	KindType     NodeKind = "type"
	KindModule   NodeKind = "module"
	KindFunction NodeKind = "function"
	KindClass    NodeKind = "class"
)

// ValidKind reports whether k is one of the known node kinds.
func ValidKind(k string) bool {
	switch NodeKind(k) {
	case KindRoute, KindEvent, KindType, KindModule, KindFunction, KindClass:
		return true
	}
	return false
}

// Citation anchors a node to a line range in the scanned tree.
// Lines are 1-based and inclusive.
type Citation struct {
	FilePath  string `json:"filePath"`
	StartLine int    `json:"startLine"`
	EndLine   int    `json:"endLine"`
	SHA       string `json:"sha,omitempty"`
}

// DocumentationNode is a single documentation fact produced by a detector.
// Citations[0] is the primary citation used for context resolution.
type DocumentationNode struct {
	ID        string         `json:"id,omitempty"`
	RepoID    string         `json:"repoId,omitempty"`
	ScanID    string         `json:"scanId,omitempty"`
	Kind      NodeKind       `json:"kind"`
	Path      string         `json:"path"`
	Title     string         `json:"title"`
	Summary   string         `json:"summary,omitempty"`
	HTML      string         `json:"html,omitempty"`
	Citations []Citation     `json:"citations"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	UpdatedAt time.Time      `json:"updatedAt,omitempty"`
}

// DedupKey is the (kind, title, path) key used to discard repeated detections.
func (n DocumentationNode) DedupKey() string {
	return string(n.Kind) + "|" + n.Title + "|" + n.Path
}

// Method returns the lower-cased HTTP method stored in metadata, or "".
func (n DocumentationNode) Method() string {
	return strings.ToLower(n.metaString("method"))
}

// Framework returns the framework stored in metadata, or "".
func (n DocumentationNode) Framework() string {
	return n.metaString("framework")
}

// PrimaryCitation returns Citations[0] and whether it exists.
func (n DocumentationNode) PrimaryCitation() (Citation, bool) {
	if len(n.Citations) == 0 {
		return Citation{}, false
	}
	return n.Citations[0], true
}

func (n DocumentationNode) metaString(key string) string {
	if n.Metadata == nil {
		return ""
	}
	s, _ := n.Metadata[key].(string)
	return s
}

// ClientFrameworks lists frameworks whose routes live in the browser.
// Their detections are tracked but never counted as server endpoints.
var ClientFrameworks = map[string]bool{
	"react-router": true,
}

// =============================================================================
// SCANS
// =============================================================================

// ScanStatus is a state of the scan state machine.
type ScanStatus string

const (
	StatusQueued     ScanStatus = "queued"
	StatusParsing    ScanStatus = "parsing"
	StatusEmbedding  ScanStatus = "embedding"
	StatusGenerating ScanStatus = "generating"
	StatusCompleted  ScanStatus = "completed"
	StatusError      ScanStatus = "error"
)

// statusOrder gives the forward position of each non-error state.
var statusOrder = map[ScanStatus]int{
	StatusQueued:     0,
	StatusParsing:    1,
	StatusEmbedding:  2,
	StatusGenerating: 3,
	StatusCompleted:  4,
}

// Terminal reports whether no further transitions are allowed.
func (s ScanStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Active reports whether a scan in this state is still running.
func (s ScanStatus) Active() bool {
	_, ok := statusOrder[s]
	return ok && !s.Terminal()
}

// CanTransition reports whether moving from s to next respects the forward
// order. Staying in the same state is allowed so metrics can be merged.
func (s ScanStatus) CanTransition(next ScanStatus) bool {
	if s.Terminal() {
		return false
	}
	if next == StatusError {
		return true
	}
	from, ok1 := statusOrder[s]
	to, ok2 := statusOrder[next]
	return ok1 && ok2 && to >= from
}

// ActiveStatuses lists the states of scans that have not finished.
func ActiveStatuses() []ScanStatus {
	return []ScanStatus{StatusQueued, StatusParsing, StatusEmbedding, StatusGenerating}
}

// ScanMetrics are the counters reported while a scan runs.
type ScanMetrics struct {
	FilesParsed          int   `json:"filesParsed"`
	EndpointsDetected    int   `json:"endpointsDetected"`
	ClientRoutesDetected int   `json:"clientRoutesDetected"`
	EventsDetected       int   `json:"eventsDetected"`
	TypesDetected        int   `json:"typesDetected"`
	TokensUsed           int64 `json:"tokensUsed"`
	DurationSec          int64 `json:"durationSec"`
}

// ScanError is one entry of a scan's error list.
type ScanError struct {
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// ScanRecord is the state of a single scan invocation.
type ScanRecord struct {
	ID          string      `json:"id"`
	RepoID      string      `json:"repoId"`
	Branch      string      `json:"branch"`
	Status      ScanStatus  `json:"status"`
	StartedAt   time.Time   `json:"startedAt"`
	CompletedAt *time.Time  `json:"completedAt,omitempty"`
	UpdatedAt   time.Time   `json:"updatedAt"`
	Metrics     ScanMetrics `json:"metrics"`
	Errors      []ScanError `json:"errors,omitempty"`

	// Files holds the relative paths walked. It is never persisted.
	Files []string `json:"-"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (r *ScanRecord) Clone() *ScanRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		c.CompletedAt = &t
	}
	if r.Errors != nil {
		c.Errors = append([]ScanError(nil), r.Errors...)
	}
	if r.Files != nil {
		c.Files = append([]string(nil), r.Files...)
	}
	return &c
}

// HasErrorStage reports whether an error with the given stage was recorded.
func (r *ScanRecord) HasErrorStage(stage string) bool {
	for _, e := range r.Errors {
		if e.Stage == stage {
			return true
		}
	}
	return false
}
