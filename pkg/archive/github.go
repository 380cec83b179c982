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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v80/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultGitHubTimeout bounds API calls. Tarball downloads use the
	// caller's context only.
	DefaultGitHubTimeout = 30 * time.Second

	// proactiveRate keeps well under the authenticated 5000 requests/hour.
	proactiveRate = 1.2

	maxArchiveRedirects = 3
)

// Tarball is a streamed repository archive.
type Tarball struct {
	Body   io.ReadCloser
	Branch string
	Ref    string
}

// Fetcher downloads repository archives from a remote.
type Fetcher interface {
	Fetch(ctx context.Context, conn Connection, branch string) (*Tarball, error)
}

// GitHubFetcher downloads tarballs through the GitHub REST API.
type GitHubFetcher struct {
	baseURL    *url.URL
	httpClient *http.Client
	limiter    *rate.Limiter
}

// GitHubOption configures a GitHubFetcher.
type GitHubOption func(*GitHubFetcher)

// WithBaseURL points the fetcher at a GitHub Enterprise or test server.
func WithBaseURL(u string) GitHubOption {
	return func(f *GitHubFetcher) {
		if !strings.HasSuffix(u, "/") {
			u += "/"
		}
		if parsed, err := url.Parse(u); err == nil {
			f.baseURL = parsed
		}
	}
}

// WithHTTPClient sets the client used for tarball downloads.
func WithHTTPClient(c *http.Client) GitHubOption {
	return func(f *GitHubFetcher) { f.httpClient = c }
}

// WithRateLimit overrides the proactive request rate.
func WithRateLimit(l *rate.Limiter) GitHubOption {
	return func(f *GitHubFetcher) { f.limiter = l }
}

// NewGitHubFetcher creates a fetcher.
func NewGitHubFetcher(opts ...GitHubOption) *GitHubFetcher {
	f := &GitHubFetcher{
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(proactiveRate), 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// client builds an API client for one connection. Tokens are per
// connection, so clients are not shared.
func (f *GitHubFetcher) client(ctx context.Context, token string) *gh.Client {
	var hc *http.Client
	if token != "" {
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	} else {
		hc = &http.Client{}
	}
	hc.Timeout = DefaultGitHubTimeout
	c := gh.NewClient(hc)
	if f.baseURL != nil {
		c.BaseURL = f.baseURL
	}
	return c
}

// Fetch resolves branch (the default branch when empty) to a commit and
// streams its tarball. The caller closes Tarball.Body.
func (f *GitHubFetcher) Fetch(ctx context.Context, conn Connection, branch string) (*Tarball, error) {
	owner, repo, err := ParseRepoSlug(conn.Source.Value)
	if err != nil {
		return nil, err
	}
	c := f.client(ctx, conn.Token)

	if branch == "" {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
		r, _, err := c.Repositories.Get(ctx, owner, repo)
		if err != nil {
			return nil, wrapGitHubError(err, "get repo")
		}
		branch = r.GetDefaultBranch()
		if branch == "" {
			return nil, fmt.Errorf("github: %s/%s has no default branch", owner, repo)
		}
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	sha, _, err := c.Repositories.GetCommitSHA1(ctx, owner, repo, branch, "")
	if err != nil {
		return nil, wrapGitHubError(err, "resolve branch "+branch)
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	link, _, err := c.Repositories.GetArchiveLink(ctx, owner, repo, gh.Tarball,
		&gh.RepositoryContentGetOptions{Ref: sha}, maxArchiveRedirects)
	if err != nil {
		return nil, wrapGitHubError(err, "get archive link")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download tarball: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "tarball download failed", URL: link.String()}
	}
	return &Tarball{Body: resp.Body, Branch: branch, Ref: sha}, nil
}

// ParseRepoSlug accepts "owner/repo", "github.com/owner/repo" or a full
// https/ssh URL with an optional .git suffix.
func ParseRepoSlug(s string) (owner, repo string, err error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "git@github.com:")
	if u, perr := url.Parse(s); perr == nil && u.Host != "" {
		s = u.Path
	}
	s = strings.TrimPrefix(s, "github.com/")
	s = strings.Trim(strings.TrimSuffix(s, ".git"), "/")

	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GitHub repository %q (want owner/repo)", s)
	}
	return parts[0], parts[1], nil
}

// wrapGitHubError converts go-github errors to typed errors.
func wrapGitHubError(err error, operation string) error {
	var rateLimitErr *gh.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return &RateLimitError{
			ResetAt:   rateLimitErr.Rate.Reset.Time,
			Remaining: rateLimitErr.Rate.Remaining,
			Limit:     rateLimitErr.Rate.Limit,
		}
	}
	var ghErr *gh.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		apiErr := &APIError{StatusCode: ghErr.Response.StatusCode, Message: ghErr.Message}
		if ghErr.Response.Request != nil {
			apiErr.URL = ghErr.Response.Request.URL.String()
		}
		return apiErr
	}
	return fmt.Errorf("%s: %w", operation, err)
}
