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

package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

// NodeStore is the storage the catalog reads from.
type NodeStore interface {
	ListDocNodes(ctx context.Context, f storage.DocFilter) ([]ingestion.DocumentationNode, int, error)
	GetDocNode(ctx context.Context, id string) (*ingestion.DocumentationNode, error)
}

// DocQuery is a doc listing request.
type DocQuery struct {
	RepoID   string
	Q        string
	Kinds    []string
	Page     int
	PageSize int
}

// DocPage is one page of a listing.
type DocPage struct {
	Items    []ingestion.DocumentationNode `json:"items"`
	Total    int                           `json:"total"`
	Page     int                           `json:"page"`
	PageSize int                           `json:"pageSize"`
}

// Catalog answers doc listings from the store, using the index for text
// queries.
type Catalog struct {
	store  NodeStore
	index  *Index
	logger *slog.Logger
}

// NewCatalog creates a catalog. index may be nil, in which case text
// queries fall back to a substring match over title and path.
func NewCatalog(store NodeStore, index *Index, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{store: store, index: index, logger: logger}
}

// ParseKinds splits a comma separated kind list, dropping unknown kinds.
func ParseKinds(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		k = strings.ToLower(strings.TrimSpace(k))
		if ingestion.ValidKind(k) {
			out = append(out, k)
		}
	}
	return out
}

// List returns one page of nodes of q.RepoID.
func (c *Catalog) List(ctx context.Context, q DocQuery) (*DocPage, error) {
	page, size := storage.NormalizePage(q.Page, q.PageSize)
	f := storage.DocFilter{
		RepoID: q.RepoID,
		Kinds:  q.Kinds,
		Offset: (page - 1) * size,
		Limit:  size,
	}

	text := strings.TrimSpace(q.Q)
	if text != "" {
		if c.index == nil {
			return c.listBySubstring(ctx, q, text, page, size)
		}
		if err := c.ensureIndexed(ctx, q.RepoID); err != nil {
			return nil, err
		}
		ids, err := c.index.Search(ctx, Query{RepoID: q.RepoID, Text: text, Kinds: q.Kinds})
		if err != nil {
			return nil, err
		}
		f.IDs = ids
	}

	items, total, err := c.store.ListDocNodes(ctx, f)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []ingestion.DocumentationNode{}
	}
	return &DocPage{Items: items, Total: total, Page: page, PageSize: size}, nil
}

// Get returns a node, checking it belongs to repoID.
func (c *Catalog) Get(ctx context.Context, repoID, docID string) (*ingestion.DocumentationNode, error) {
	n, err := c.store.GetDocNode(ctx, docID)
	if err != nil {
		return nil, err
	}
	if repoID != "" && n.RepoID != repoID {
		return nil, fmt.Errorf("doc node %s in %s: %w", docID, repoID, storage.ErrNotFound)
	}
	return n, nil
}

// Index adds nodes to the search index. It is a no-op without an index.
func (c *Catalog) Index(nodes []ingestion.DocumentationNode) error {
	if c.index == nil || len(nodes) == 0 {
		return nil
	}
	n, err := c.index.IndexNodes(nodes)
	if err != nil {
		return err
	}
	c.logger.Debug("search.index.updated", "nodes", n)
	return nil
}

// Reindex loads every node of repoID from the store into the index.
func (c *Catalog) Reindex(ctx context.Context, repoID string) (int, error) {
	if c.index == nil {
		return 0, nil
	}
	nodes, _, err := c.store.ListDocNodes(ctx, storage.DocFilter{RepoID: repoID})
	if err != nil {
		return 0, err
	}
	n, err := c.index.IndexNodes(nodes)
	if err != nil {
		return n, err
	}
	c.logger.Info("search.reindex", "repo_id", repoID, "nodes", n)
	return n, nil
}

// ensureIndexed rebuilds the index of a repository that has no entries,
// which happens when the index file was created after the last scan.
func (c *Catalog) ensureIndexed(ctx context.Context, repoID string) error {
	count, err := c.index.CountRepo(ctx, repoID)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	_, err = c.Reindex(ctx, repoID)
	return err
}

func (c *Catalog) listBySubstring(ctx context.Context, q DocQuery, text string, page, size int) (*DocPage, error) {
	all, _, err := c.store.ListDocNodes(ctx, storage.DocFilter{RepoID: q.RepoID, Kinds: q.Kinds})
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(text)
	var matched []ingestion.DocumentationNode
	for _, n := range all {
		if strings.Contains(strings.ToLower(n.Title), needle) || strings.Contains(strings.ToLower(n.Path), needle) {
			matched = append(matched, n)
		}
	}
	items := []ingestion.DocumentationNode{}
	if start := (page - 1) * size; start < len(matched) {
		items = matched[start:min(start+size, len(matched))]
	}
	return &DocPage{Items: items, Total: len(matched), Page: page, PageSize: size}, nil
}
