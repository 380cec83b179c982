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

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

const nodeColumns = `id, repo_id, scan_id, kind, path, title, summary, html, citations, metadata, updated_at`

// Paging defaults for doc listings.
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// NormalizePage clamps page to >= 1 and pageSize to 1..MaxPageSize,
// defaulting pageSize to DefaultPageSize.
func NormalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// DocFilter selects documentation nodes of one repository.
type DocFilter struct {
	RepoID string
	Kinds  []string
	// IDs restricts the result to these ids, in this order. A nil slice
	// means no restriction; an empty one matches nothing.
	IDs []string
	// Offset and Limit page the result. Limit <= 0 returns everything.
	Offset int
	Limit  int
}

// SaveDocNodes upserts nodes in a single transaction. Either every node is
// written or none is.
func (s *SQLStore) SaveDocNodes(ctx context.Context, nodes []ingestion.DocumentationNode) error {
	if len(nodes) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO doc_nodes (`+nodeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			scan_id = excluded.scan_id,
			summary = excluded.summary,
			html = excluded.html,
			citations = excluded.citations,
			metadata = excluded.metadata,
			updated_at = excluded.updated_at`))
	if err != nil {
		return fmt.Errorf("prepare node upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for i := range nodes {
		n := &nodes[i]
		if n.ID == "" {
			n.ID = ingestion.GenerateDocID(n.RepoID, n.Kind, n.Title, n.Path)
		}
		cites := n.Citations
		if cites == nil {
			cites = []ingestion.Citation{}
		}
		citeJSON, err := json.Marshal(cites)
		if err != nil {
			return fmt.Errorf("encode citations of %s: %w", n.ID, err)
		}
		meta := n.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("encode metadata of %s: %w", n.ID, err)
		}
		n.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, n.ID, n.RepoID, n.ScanID, string(n.Kind), n.Path, n.Title,
			n.Summary, n.HTML, string(citeJSON), string(metaJSON), now); err != nil {
			return fmt.Errorf("save node %s: %w", n.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit nodes: %w", err)
	}
	return nil
}

// GetDocNode returns the node with id or ErrNotFound.
func (s *SQLStore) GetDocNode(ctx context.Context, id string) (*ingestion.DocumentationNode, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+nodeColumns+` FROM doc_nodes WHERE id = ?`), id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("doc node %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get doc node %s: %w", id, err)
	}
	return n, nil
}

// ListDocNodes returns one page of nodes matching f and the total number of
// matches. Without IDs nodes are ordered by kind, title and path.
func (s *SQLStore) ListDocNodes(ctx context.Context, f DocFilter) ([]ingestion.DocumentationNode, int, error) {
	if f.IDs != nil && len(f.IDs) == 0 {
		return nil, 0, nil
	}

	where := []string{"repo_id = ?"}
	args := []any{f.RepoID}
	if len(f.Kinds) > 0 {
		where = append(where, "kind IN ("+placeholders(len(f.Kinds))+")")
		for _, k := range f.Kinds {
			args = append(args, k)
		}
	}
	if f.IDs != nil {
		where = append(where, "id IN ("+placeholders(len(f.IDs))+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	cond := strings.Join(where, " AND ")

	if f.IDs != nil {
		// Search order is kept, so paging happens after the fetch.
		nodes, err := s.queryNodes(ctx, `SELECT `+nodeColumns+` FROM doc_nodes WHERE `+cond, args...)
		if err != nil {
			return nil, 0, err
		}
		rank := make(map[string]int, len(f.IDs))
		for i, id := range f.IDs {
			if _, ok := rank[id]; !ok {
				rank[id] = i
			}
		}
		sort.SliceStable(nodes, func(i, j int) bool { return rank[nodes[i].ID] < rank[nodes[j].ID] })
		return page(nodes, f.Offset, f.Limit), len(nodes), nil
	}

	var total int
	if err := s.db.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM doc_nodes WHERE `+cond), args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count doc nodes: %w", err)
	}
	q := `SELECT ` + nodeColumns + ` FROM doc_nodes WHERE ` + cond + ` ORDER BY kind, title, path`
	if f.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, f.Limit, max(f.Offset, 0))
	}
	nodes, err := s.queryNodes(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	return nodes, total, nil
}

// CountDocNodes returns the number of nodes per kind for repoID.
func (s *SQLStore) CountDocNodes(ctx context.Context, repoID string) (map[ingestion.NodeKind]int, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT kind, COUNT(*) FROM doc_nodes WHERE repo_id = ? GROUP BY kind`), repoID)
	if err != nil {
		return nil, fmt.Errorf("count doc nodes: %w", err)
	}
	defer rows.Close()
	out := make(map[ingestion.NodeKind]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("count doc nodes: %w", err)
		}
		out[ingestion.NodeKind(kind)] = n
	}
	return out, rows.Err()
}

func page(nodes []ingestion.DocumentationNode, offset, limit int) []ingestion.DocumentationNode {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(nodes) {
		return nil
	}
	nodes = nodes[offset:]
	if limit > 0 && limit < len(nodes) {
		nodes = nodes[:limit]
	}
	return nodes
}

func (s *SQLStore) queryNodes(ctx context.Context, query string, args ...any) ([]ingestion.DocumentationNode, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query doc nodes: %w", err)
	}
	defer rows.Close()

	var out []ingestion.DocumentationNode
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("read doc node: %w", err)
		}
		out = append(out, *n)
	}
	return out, rows.Err()
}

func scanNode(r rowScanner) (*ingestion.DocumentationNode, error) {
	var n ingestion.DocumentationNode
	var kind, cites, meta string
	if err := r.Scan(&n.ID, &n.RepoID, &n.ScanID, &kind, &n.Path, &n.Title, &n.Summary, &n.HTML,
		&cites, &meta, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Kind = ingestion.NodeKind(kind)
	if err := json.Unmarshal([]byte(cites), &n.Citations); err != nil {
		return nil, fmt.Errorf("decode citations of %s: %w", n.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &n.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of %s: %w", n.ID, err)
	}
	if len(n.Metadata) == 0 {
		n.Metadata = nil
	}
	return &n, nil
}
