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
	"fmt"
	"time"

	"github.com/zeelapatel/codaxi/pkg/docgen"
)

// SaveSchemaVersion assigns v.Version as the current maximum for v.DocID
// plus one and inserts v. Both steps run in one transaction.
func (s *SQLStore) SaveSchemaVersion(ctx context.Context, v *docgen.SchemaVersion) error {
	body, err := json.Marshal(v.Schema)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		s.rebind(`SELECT MAX(version) FROM schema_versions WHERE doc_id = ?`), v.DocID).Scan(&current); err != nil {
		return fmt.Errorf("read schema version of %s: %w", v.DocID, err)
	}
	next := int(current.Int64) + 1

	if _, err := tx.ExecContext(ctx,
		s.rebind(`INSERT INTO schema_versions (doc_id, version, schema, source, model, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`),
		v.DocID, next, string(body), string(v.Source), v.Model, v.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("save schema version of %s: %w", v.DocID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema version: %w", err)
	}
	v.Version = next
	return nil
}

// ListSchemaVersions returns every version of docID, newest first.
func (s *SQLStore) ListSchemaVersions(ctx context.Context, docID string) ([]*docgen.SchemaVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		s.rebind(`SELECT doc_id, version, schema, source, model, created_at
			FROM schema_versions WHERE doc_id = ? ORDER BY version DESC`), docID)
	if err != nil {
		return nil, fmt.Errorf("list schema versions: %w", err)
	}
	defer rows.Close()

	var out []*docgen.SchemaVersion
	for rows.Next() {
		var v docgen.SchemaVersion
		var body, source string
		if err := rows.Scan(&v.DocID, &v.Version, &body, &source, &v.Model, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("read schema version: %w", err)
		}
		v.Source = docgen.Outcome(source)
		if err := json.Unmarshal([]byte(body), &v.Schema); err != nil {
			return nil, fmt.Errorf("decode schema %s v%d: %w", v.DocID, v.Version, err)
		}
		out = append(out, &v)
	}
	return out, rows.Err()
}

// LatestSchemaVersion returns the newest version of docID or ErrNotFound.
func (s *SQLStore) LatestSchemaVersion(ctx context.Context, docID string) (*docgen.SchemaVersion, error) {
	versions, err := s.ListSchemaVersions(ctx, docID)
	if err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("schema of %s: %w", docID, ErrNotFound)
	}
	return versions[0], nil
}
