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
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"
)

// Provider acquires snapshots, preferring the local cache.
type Provider struct {
	cache   *Cache
	fetcher Fetcher
	mirror  Mirror
	limits  Limits
	logger  *slog.Logger

	// flights collapses concurrent acquisitions of one repository branch.
	flights singleflight.Group
}

// Option configures a Provider.
type Option func(*Provider)

// WithMirror enables an S3 mirror.
func WithMirror(m Mirror) Option { return func(p *Provider) { p.mirror = m } }

// WithLimits overrides extraction limits.
func WithLimits(l Limits) Option { return func(p *Provider) { p.limits = l } }

// NewProvider creates a provider. fetcher may be nil when only local
// sources are used. A nil logger uses slog.Default().
func NewProvider(cache *Cache, fetcher Fetcher, logger *slog.Logger, opts ...Option) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Provider{cache: cache, fetcher: fetcher, limits: DefaultLimits, logger: logger}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns a snapshot of conn at branch. An empty branch uses the
// connection's branch, then any cached branch, then the remote default.
func (p *Provider) Acquire(ctx context.Context, conn Connection, branch string) (*Snapshot, error) {
	if !conn.Active {
		return nil, ErrConnectionInactive
	}
	if branch == "" {
		branch = conn.Branch
	}

	switch conn.Source.Type {
	case SourceLocalPath:
		return p.acquireLocal(conn, branch)
	case SourceGitHub:
		v, err, _ := p.flights.Do(conn.RepoID+"\x00"+branch, func() (any, error) {
			return p.acquireRemote(ctx, conn, branch)
		})
		if err != nil {
			return nil, err
		}
		snap := *v.(*Snapshot)
		return &snap, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedSource, conn.Source.Type)
	}
}

func (p *Provider) acquireLocal(conn Connection, branch string) (*Snapshot, error) {
	dir, err := filepath.Abs(conn.Source.Value)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("local repository: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("local repository %s is not a directory", dir)
	}
	if branch == "" {
		branch = LocalBranch
	}

	m := &Manifest{RepoID: conn.RepoID, Branch: branch, Source: SourceLocalPath, Dir: dir, FetchedAt: time.Now().UTC()}
	if err := p.cache.Record(m); err != nil {
		p.logger.Warn("archive.manifest.error", "repo_id", conn.RepoID, "err", err)
	}
	return m.snapshot(true), nil
}

func (p *Provider) acquireRemote(ctx context.Context, conn Connection, branch string) (*Snapshot, error) {
	if branch != "" {
		if m, ok := p.cache.Lookup(conn.RepoID, branch); ok {
			p.logger.Debug("archive.cache.hit", "repo_id", conn.RepoID, "branch", branch, "ref", m.Ref)
			return m.snapshot(true), nil
		}
	} else if m, ok := p.cache.Latest(conn.RepoID); ok {
		p.logger.Debug("archive.cache.hit", "repo_id", conn.RepoID, "branch", m.Branch, "ref", m.Ref)
		return m.snapshot(true), nil
	}

	if p.mirror != nil && branch != "" {
		snap, err := p.fromMirror(ctx, conn, branch)
		if err == nil {
			return snap, nil
		}
		p.logger.Debug("archive.mirror.miss", "repo_id", conn.RepoID, "branch", branch, "err", err)
	}

	if p.fetcher == nil {
		return nil, fmt.Errorf("no remote fetcher configured for %s", conn.RepoID)
	}

	start := time.Now()
	p.logger.Info("archive.fetch.start", "repo_id", conn.RepoID, "source", conn.Source.Value, "branch", branch)
	tb, err := p.fetcher.Fetch(ctx, conn, branch)
	if err != nil {
		return nil, err
	}
	defer tb.Body.Close()

	spool, err := os.CreateTemp("", "codaxi-tarball-*.tar.gz")
	if err != nil {
		return nil, err
	}
	defer os.Remove(spool.Name())
	defer spool.Close()

	if _, err := io.Copy(spool, tb.Body); err != nil {
		return nil, fmt.Errorf("download tarball: %w", err)
	}
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	snap, err := p.install(conn.RepoID, tb.Branch, tb.Ref, spool)
	if err != nil {
		return nil, err
	}
	p.logger.Info("archive.fetch.done",
		"repo_id", conn.RepoID,
		"branch", snap.Branch,
		"ref", snap.Ref,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if p.mirror != nil {
		if err := p.mirror.Put(ctx, conn.RepoID, tb.Branch, tb.Ref, spool.Name()); err != nil {
			p.logger.Warn("archive.mirror.put.error", "repo_id", conn.RepoID, "err", err)
		}
	}
	return snap, nil
}

func (p *Provider) fromMirror(ctx context.Context, conn Connection, branch string) (*Snapshot, error) {
	body, ref, err := p.mirror.Latest(ctx, conn.RepoID, branch)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	p.logger.Info("archive.mirror.hit", "repo_id", conn.RepoID, "branch", branch, "ref", ref)
	return p.install(conn.RepoID, branch, ref, body)
}

// install extracts a tarball beside the current tree and swaps it in, so
// a reader never sees a half-written tree.
func (p *Provider) install(repoID, branch, ref string, r io.Reader) (*Snapshot, error) {
	dir := p.cache.TreeDir(repoID, branch)
	parent := filepath.Dir(dir)
	if err := os.MkdirAll(parent, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	staging, err := os.MkdirTemp(parent, "tree-*")
	if err != nil {
		return nil, err
	}
	n, err := ExtractTarGz(r, staging, p.limits)
	if err != nil {
		_ = os.RemoveAll(staging)
		return nil, fmt.Errorf("extract archive: %w", err)
	}
	if err := swapDir(staging, dir); err != nil {
		_ = os.RemoveAll(staging)
		return nil, err
	}
	p.logger.Debug("archive.extract.done", "repo_id", repoID, "files", n)

	m := &Manifest{RepoID: repoID, Branch: branch, Ref: ref, Source: SourceGitHub, Dir: dir, FetchedAt: time.Now().UTC()}
	if err := p.cache.Record(m); err != nil {
		return nil, err
	}
	return m.snapshot(false), nil
}

// swapDir replaces dst with src. A rename onto a directory another install
// just created fails, so the removal is retried once.
func swapDir(src, dst string) error {
	var err error
	for range 2 {
		if err = os.RemoveAll(dst); err != nil {
			return err
		}
		if err = os.Rename(src, dst); err == nil {
			return nil
		}
	}
	return fmt.Errorf("install tree: %w", err)
}

// Snapshot returns the most recent cached snapshot of repoID.
func (p *Provider) Snapshot(_ context.Context, repoID string) (*Snapshot, error) {
	m, ok := p.cache.Latest(repoID)
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoSnapshot, repoID)
	}
	return m.snapshot(true), nil
}
