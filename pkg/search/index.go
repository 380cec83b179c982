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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// Indexed field names.
const (
	FieldRepo      = "repo"
	FieldKind      = "kind"
	FieldTitle     = "title"
	FieldPath      = "path"
	FieldSummary   = "summary"
	FieldFramework = "framework"
)

// Index batches are flushed at this many documents.
const maxBatchSize = 500

// MaxHits bounds the ids returned by one search.
const MaxHits = 1000

// Index is a Bleve index of documentation nodes.
type Index struct {
	idx bleve.Index
}

// NewIndexMapping builds the mapping used for documentation nodes.
func NewIndexMapping() mapping.IndexMapping {
	doc := bleve.NewDocumentMapping()

	for _, f := range []string{FieldTitle, FieldPath, FieldSummary} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.Store = false
		doc.AddFieldMappingsAt(f, fm)
	}
	for _, f := range []string{FieldRepo, FieldKind, FieldFramework} {
		fm := bleve.NewTextFieldMapping()
		fm.Analyzer = keyword.Name
		fm.Store = true
		doc.AddFieldMappingsAt(f, fm)
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	return im
}

// Open opens the index at path, creating it when missing. An empty path
// gives an in-memory index.
func Open(path string) (*Index, error) {
	if path == "" {
		idx, err := bleve.NewMemOnly(NewIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create memory index: %w", err)
		}
		return &Index{idx: idx}, nil
	}

	idx, err := bleve.Open(path)
	if err == nil {
		return &Index{idx: idx}, nil
	}
	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		return nil, fmt.Errorf("open index %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create index directory: %w", err)
	}
	idx, err = bleve.New(path, NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create index %s: %w", path, err)
	}
	return &Index{idx: idx}, nil
}

// Close closes the index.
func (i *Index) Close() error {
	return i.idx.Close()
}

func document(n ingestion.DocumentationNode) map[string]any {
	return map[string]any{
		FieldRepo:      n.RepoID,
		FieldKind:      string(n.Kind),
		FieldTitle:     n.Title,
		FieldPath:      n.Path,
		FieldSummary:   n.Summary,
		FieldFramework: n.Framework(),
	}
}

// IndexNodes adds or replaces nodes by id. Nodes without an id are skipped.
func (i *Index) IndexNodes(nodes []ingestion.DocumentationNode) (int, error) {
	batch := i.idx.NewBatch()
	indexed := 0
	for _, n := range nodes {
		if n.ID == "" {
			continue
		}
		if err := batch.Index(n.ID, document(n)); err != nil {
			return indexed, fmt.Errorf("index %s: %w", n.ID, err)
		}
		if batch.Size() >= maxBatchSize {
			if err := i.idx.Batch(batch); err != nil {
				return indexed, fmt.Errorf("batch index failed: %w", err)
			}
			indexed += batch.Size()
			batch = i.idx.NewBatch()
		}
	}
	if batch.Size() > 0 {
		if err := i.idx.Batch(batch); err != nil {
			return indexed, fmt.Errorf("final batch index failed: %w", err)
		}
		indexed += batch.Size()
	}
	return indexed, nil
}

// Query is a full-text search restricted to one repository.
type Query struct {
	RepoID string
	Text   string
	Kinds  []string
	Limit  int
}

// Search returns matching node ids, best match first.
func (i *Index) Search(ctx context.Context, q Query) ([]string, error) {
	limit := q.Limit
	if limit <= 0 || limit > MaxHits {
		limit = MaxHits
	}
	req := bleve.NewSearchRequestOptions(buildQuery(q), limit, 0, false)
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	ids := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

// CountRepo returns the number of indexed nodes of repoID.
func (i *Index) CountRepo(ctx context.Context, repoID string) (uint64, error) {
	req := bleve.NewSearchRequestOptions(repoTerm(repoID), 0, 0, false)
	res, err := i.idx.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return res.Total, nil
}

func repoTerm(repoID string) query.Query {
	t := bleve.NewTermQuery(repoID)
	t.SetField(FieldRepo)
	return t
}

func buildQuery(q Query) query.Query {
	must := []query.Query{repoTerm(q.RepoID)}

	text := strings.TrimSpace(q.Text)
	if text != "" {
		title := bleve.NewMatchQuery(text)
		title.SetField(FieldTitle)
		title.SetBoost(3.0)

		path := bleve.NewMatchQuery(text)
		path.SetField(FieldPath)
		path.SetBoost(2.0)

		summary := bleve.NewMatchQuery(text)
		summary.SetField(FieldSummary)

		should := []query.Query{title, path, summary}
		// Single words also match as a prefix ("user" finds "users").
		if !strings.ContainsAny(text, " \t") {
			prefix := bleve.NewPrefixQuery(strings.ToLower(text))
			prefix.SetField(FieldTitle)
			should = append(should, prefix)
		}
		must = append(must, bleve.NewDisjunctionQuery(should...))
	}

	if len(q.Kinds) > 0 {
		kinds := make([]query.Query, 0, len(q.Kinds))
		for _, k := range q.Kinds {
			t := bleve.NewTermQuery(k)
			t.SetField(FieldKind)
			kinds = append(kinds, t)
		}
		must = append(must, bleve.NewDisjunctionQuery(kinds...))
	}

	return bleve.NewConjunctionQuery(must...)
}
