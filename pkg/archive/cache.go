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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const manifestFile = "manifest.json"

// Manifest describes one cached snapshot.
type Manifest struct {
	RepoID    string     `json:"repoId"`
	Branch    string     `json:"branch"`
	Ref       string     `json:"ref,omitempty"`
	Source    SourceType `json:"source"`
	Dir       string     `json:"dir"`
	FetchedAt time.Time  `json:"fetchedAt"`
}

func (m *Manifest) snapshot(cached bool) *Snapshot {
	return &Snapshot{RepoID: m.RepoID, Dir: m.Dir, Branch: m.Branch, Ref: m.Ref, Cached: cached, FetchedAt: m.FetchedAt}
}

// Cache stores extracted trees and their manifests under a root directory.
type Cache struct {
	root string
}

// NewCache creates a cache rooted at root (typically <data>/archives).
func NewCache(root string) *Cache {
	return &Cache{root: root}
}

// Root returns the cache root.
func (c *Cache) Root() string { return c.root }

// entryDir returns <root>/<repoID>/<branch>. Branch names may contain
// slashes, so they are path-escaped.
func (c *Cache) entryDir(repoID, branch string) string {
	return filepath.Join(c.root, url.PathEscape(repoID), url.PathEscape(branch))
}

// TreeDir returns where a fetched tree for repoID/branch is extracted.
func (c *Cache) TreeDir(repoID, branch string) string {
	return filepath.Join(c.entryDir(repoID, branch), "tree")
}

// Lookup returns the manifest for repoID/branch if it exists and its tree
// is still present.
func (c *Cache) Lookup(repoID, branch string) (*Manifest, bool) {
	m, err := readManifest(filepath.Join(c.entryDir(repoID, branch), manifestFile))
	if err != nil {
		return nil, false
	}
	if info, err := os.Stat(m.Dir); err != nil || !info.IsDir() {
		return nil, false
	}
	return m, true
}

// Latest returns the most recently fetched manifest of repoID on any branch.
func (c *Cache) Latest(repoID string) (*Manifest, bool) {
	entries, err := os.ReadDir(filepath.Join(c.root, url.PathEscape(repoID)))
	if err != nil {
		return nil, false
	}
	var best *Manifest
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		branch, err := url.PathUnescape(e.Name())
		if err != nil {
			continue
		}
		m, ok := c.Lookup(repoID, branch)
		if !ok {
			continue
		}
		if best == nil || m.FetchedAt.After(best.FetchedAt) {
			best = m
		}
	}
	return best, best != nil
}

// Record writes m's manifest atomically (temp file + rename).
func (c *Cache) Record(m *Manifest) error {
	dir := c.entryDir(m.RepoID, m.Branch)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, manifestFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, manifestFile)); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("rename manifest: %w", err)
	}
	return nil
}

// Evict removes a cached entry. Evicting a missing entry is not an error.
func (c *Cache) Evict(repoID, branch string) error {
	err := os.RemoveAll(c.entryDir(repoID, branch))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}
