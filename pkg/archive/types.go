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

package archive

import (
	"errors"
	"fmt"
	"time"
)

// SourceType identifies where a repository lives.
type SourceType string

const (
	SourceGitHub    SourceType = "github"
	SourceLocalPath SourceType = "local_path"
)

// Source locates a repository: "owner/name" (or a github.com URL) for
// GitHub, a directory for local paths.
type Source struct {
	Type  SourceType `json:"type" yaml:"type"`
	Value string     `json:"value" yaml:"value"`
}

// Connection is an operator-supplied repository identity with its access
// credential.
type Connection struct {
	RepoID    string    `json:"repoId"`
	Source    Source    `json:"source"`
	Branch    string    `json:"branch,omitempty"`
	Token     string    `json:"-"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is a locally available tree of a repository.
type Snapshot struct {
	RepoID    string    `json:"repoId"`
	Dir       string    `json:"dir"`
	Branch    string    `json:"branch"`
	Ref       string    `json:"ref,omitempty"`
	Cached    bool      `json:"cached"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// LocalBranch labels snapshots of local directories with no branch set.
const LocalBranch = "main"

var (
	// ErrConnectionInactive is returned for a connection that was disabled.
	ErrConnectionInactive = errors.New("archive: repository connection is inactive")

	// ErrNoSnapshot means no cached snapshot exists for a repository.
	ErrNoSnapshot = errors.New("archive: no cached snapshot")

	// ErrUnsupportedSource is returned for an unknown source type.
	ErrUnsupportedSource = errors.New("archive: unsupported source type")

	// ErrArchiveTooLarge is returned when extraction exceeds its limits.
	ErrArchiveTooLarge = errors.New("archive: extracted size exceeds limit")
)

// RateLimitError represents a GitHub rate limit with its reset time.
type RateLimitError struct {
	ResetAt   time.Time
	Remaining int
	Limit     int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github: rate limit exceeded, resets at %s", e.ResetAt.Format(time.RFC3339))
}

// APIError represents a GitHub API error response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsRateLimited reports whether err is a rate limit error.
func IsRateLimited(err error) bool {
	var rateLimitErr *RateLimitError
	return errors.As(err, &rateLimitErr)
}
