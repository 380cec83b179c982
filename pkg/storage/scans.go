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
	"time"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

const scanColumns = `id, repo_id, branch, status, started_at, completed_at, updated_at, metrics, errors`

// SaveScan inserts or replaces a scan record. Files are not persisted.
func (s *SQLStore) SaveScan(ctx context.Context, rec *ingestion.ScanRecord) error {
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("encode scan metrics: %w", err)
	}
	scanErrs := rec.Errors
	if scanErrs == nil {
		scanErrs = []ingestion.ScanError{}
	}
	errs, err := json.Marshal(scanErrs)
	if err != nil {
		return fmt.Errorf("encode scan errors: %w", err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	var completed sql.NullTime
	if rec.CompletedAt != nil {
		completed = sql.NullTime{Time: rec.CompletedAt.UTC(), Valid: true}
	}

	q := s.rebind(`INSERT INTO scans (` + scanColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status = excluded.status,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at,
			metrics = excluded.metrics,
			errors = excluded.errors`)
	_, err = s.db.ExecContext(ctx, q,
		rec.ID, rec.RepoID, rec.Branch, string(rec.Status), rec.StartedAt.UTC(), completed,
		updated.UTC(), string(metrics), string(errs))
	if err != nil {
		return fmt.Errorf("save scan %s: %w", rec.ID, err)
	}
	return nil
}

// GetScan returns the scan with id or ErrNotFound.
func (s *SQLStore) GetScan(ctx context.Context, id string) (*ingestion.ScanRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+scanColumns+` FROM scans WHERE id = ?`), id)
	rec, err := scanScan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get scan %s: %w", id, err)
	}
	return rec, nil
}

// ListScans returns up to limit scans of repoID, newest first.
func (s *SQLStore) ListScans(ctx context.Context, repoID string, limit int) ([]*ingestion.ScanRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.queryScans(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE repo_id = ? ORDER BY started_at DESC, id LIMIT ?`,
		repoID, limit)
}

// ActiveScans returns scans in a non-terminal state, oldest first.
func (s *SQLStore) ActiveScans(ctx context.Context) ([]*ingestion.ScanRecord, error) {
	statuses := ingestion.ActiveStatuses()
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	return s.queryScans(ctx,
		`SELECT `+scanColumns+` FROM scans WHERE status IN (`+placeholders(len(args))+`) ORDER BY started_at`,
		args...)
}

// LatestScan returns the most recently started scan of repoID or ErrNotFound.
func (s *SQLStore) LatestScan(ctx context.Context, repoID string) (*ingestion.ScanRecord, error) {
	recs, err := s.ListScans(ctx, repoID, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("latest scan of %s: %w", repoID, ErrNotFound)
	}
	return recs[0], nil
}

func (s *SQLStore) queryScans(ctx context.Context, query string, args ...any) ([]*ingestion.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []*ingestion.ScanRecord
	for rows.Next() {
		rec, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("read scan: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanScan(r rowScanner) (*ingestion.ScanRecord, error) {
	var rec ingestion.ScanRecord
	var status, metrics, errs string
	var completed sql.NullTime
	if err := r.Scan(&rec.ID, &rec.RepoID, &rec.Branch, &status, &rec.StartedAt, &completed,
		&rec.UpdatedAt, &metrics, &errs); err != nil {
		return nil, err
	}
	rec.Status = ingestion.ScanStatus(status)
	if completed.Valid {
		t := completed.Time
		rec.CompletedAt = &t
	}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics of %s: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(errs), &rec.Errors); err != nil {
		return nil, fmt.Errorf("decode errors of %s: %w", rec.ID, err)
	}
	if len(rec.Errors) == 0 {
		rec.Errors = nil
	}
	return &rec, nil
}
