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
	"errors"
	"fmt"
	"time"

	"github.com/zeelapatel/codaxi/pkg/archive"
)

const connectionColumns = `repo_id, source_type, source_value, branch, token, active, created_at`

// PutConnection inserts or replaces a repository connection.
func (s *SQLStore) PutConnection(ctx context.Context, c archive.Connection) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	q := s.rebind(`INSERT INTO repo_connections (` + connectionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (repo_id) DO UPDATE SET
			source_type = excluded.source_type,
			source_value = excluded.source_value,
			branch = excluded.branch,
			token = excluded.token,
			active = excluded.active`)
	_, err := s.db.ExecContext(ctx, q,
		c.RepoID, string(c.Source.Type), c.Source.Value, c.Branch, c.Token, c.Active, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save connection %s: %w", c.RepoID, err)
	}
	return nil
}

// GetConnection returns the connection for repoID or ErrConnectionNotFound.
func (s *SQLStore) GetConnection(ctx context.Context, repoID string) (*archive.Connection, error) {
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+connectionColumns+` FROM repo_connections WHERE repo_id = ?`), repoID)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", repoID, ErrConnectionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get connection %s: %w", repoID, err)
	}
	return c, nil
}

// ListConnections returns all connections ordered by repository id.
func (s *SQLStore) ListConnections(ctx context.Context) ([]archive.Connection, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+connectionColumns+` FROM repo_connections ORDER BY repo_id`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []archive.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("list connections: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetConnectionActive enables or disables a connection.
func (s *SQLStore) SetConnectionActive(ctx context.Context, repoID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		s.rebind(`UPDATE repo_connections SET active = ? WHERE repo_id = ?`), active, repoID)
	if err != nil {
		return fmt.Errorf("update connection %s: %w", repoID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", repoID, ErrConnectionNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConnection(r rowScanner) (*archive.Connection, error) {
	var c archive.Connection
	var srcType string
	if err := r.Scan(&c.RepoID, &srcType, &c.Source.Value, &c.Branch, &c.Token, &c.Active, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Source.Type = archive.SourceType(srcType)
	return &c, nil
}
