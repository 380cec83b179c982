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
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "github.com/mattn/go-sqlite3"    // registers the "sqlite3" driver
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("storage: not found")
	// ErrConnectionNotFound is returned for an unknown repository id.
	ErrConnectionNotFound = fmt.Errorf("repository connection not found: %w", ErrNotFound)
)

// Config selects the database. An empty Driver means sqlite3.
type Config struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// DefaultSQLitePath returns the database file used when no DSN is given.
func DefaultSQLitePath(dataDir string) string {
	return filepath.Join(dataDir, "codaxi.db")
}

// SQLStore implements persistence on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string

	mu     sync.Mutex
	closed bool
}

// Open connects, pings and migrates the database.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	dsn := strings.TrimSpace(cfg.DSN)

	var db *sql.DB
	var err error
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0750); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		db, err = sql.Open(DriverSQLite, sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// One writer avoids SQLITE_BUSY and keeps :memory: on a single
		// connection.
		db.SetMaxOpenConns(1)
	case DriverPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("postgres dsn is required")
		}
		db, err = sql.Open(DriverPostgres, dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := &SQLStore{db: db, driver: driver}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func sqliteDSN(dsn string) string {
	if dsn == ":memory:" || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
}

// Driver returns the database/sql driver name in use.
func (s *SQLStore) Driver() string { return s.driver }

// Close closes the database. Safe to call more than once.
func (s *SQLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// schemaDDL is applied statement by statement; pgx does not accept several
// statements in one prepared Exec.
var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS repo_connections (
		repo_id      TEXT PRIMARY KEY,
		source_type  TEXT NOT NULL,
		source_value TEXT NOT NULL,
		branch       TEXT NOT NULL DEFAULT '',
		token        TEXT NOT NULL DEFAULT '',
		active       BOOLEAN NOT NULL DEFAULT TRUE,
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scans (
		id           TEXT PRIMARY KEY,
		repo_id      TEXT NOT NULL,
		branch       TEXT NOT NULL DEFAULT '',
		status       TEXT NOT NULL,
		started_at   TIMESTAMP NOT NULL,
		completed_at TIMESTAMP NULL,
		updated_at   TIMESTAMP NOT NULL,
		metrics      TEXT NOT NULL DEFAULT '{}',
		errors       TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_repo ON scans (repo_id, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_scans_status ON scans (status)`,
	`CREATE TABLE IF NOT EXISTS doc_nodes (
		id         TEXT PRIMARY KEY,
		repo_id    TEXT NOT NULL,
		scan_id    TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		path       TEXT NOT NULL,
		title      TEXT NOT NULL,
		summary    TEXT NOT NULL DEFAULT '',
		html       TEXT NOT NULL DEFAULT '',
		citations  TEXT NOT NULL DEFAULT '[]',
		metadata   TEXT NOT NULL DEFAULT '{}',
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (repo_id, kind, title, path)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_doc_nodes_repo ON doc_nodes (repo_id, kind)`,
	`CREATE TABLE IF NOT EXISTS schema_versions (
		doc_id     TEXT NOT NULL,
		version    INTEGER NOT NULL,
		schema     TEXT NOT NULL,
		source     TEXT NOT NULL,
		model      TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		PRIMARY KEY (doc_id, version)
	)`,
}

// Migrate creates the tables if they don't exist.
// This is idempotent and safe to call multiple times.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaDDL {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// rebind rewrites "?" placeholders to "$n" for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres || !strings.Contains(query, "?") {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// placeholders returns "?, ?, ..." with n entries.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
