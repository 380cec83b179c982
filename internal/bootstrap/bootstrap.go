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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/contextpack"
	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/llm"
	"github.com/zeelapatel/codaxi/pkg/scan"
	"github.com/zeelapatel/codaxi/pkg/search"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

const (
	indexDirName   = "index.bleve"
	archiveDirName = "archives"
)

// ProjectConfig holds everything needed to open a Codaxi engine.
type ProjectConfig struct {
	// DataDir holds the SQLite database, the search index and the archive
	// cache. Defaults to ~/.codaxi/data.
	DataDir string

	// Database selects the store. An empty DSN uses <DataDir>/codaxi.db.
	Database storage.Config

	// S3 enables the archive mirror when endpoint and bucket are set.
	S3 archive.S3Config

	// LLM configures the model provider. An empty Type reads the
	// environment (see llm.ConfigFromEnv).
	LLM llm.ProviderConfig

	// GitHubBaseURL points remote fetches at GitHub Enterprise.
	GitHubBaseURL string

	// BudgetChars caps the snippet characters sent per generation.
	BudgetChars int

	// Pipeline overrides scan limits. Zero values use defaults.
	Pipeline ingestion.PipelineConfig
}

// ProjectInfo describes an initialized data directory.
type ProjectInfo struct {
	DataDir    string `json:"dataDir"`
	Driver     string `json:"driver"`
	Database   string `json:"database"`
	IndexPath  string `json:"indexPath"`
	ArchiveDir string `json:"archiveDir"`
}

// DefaultDataDir returns ~/.codaxi/data.
func DefaultDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".codaxi", "data"), nil
}

// withDefaults fills the data directory and the SQLite DSN.
func (c ProjectConfig) withDefaults() (ProjectConfig, error) {
	if c.DataDir == "" {
		dir, err := DefaultDataDir()
		if err != nil {
			return c, err
		}
		c.DataDir = dir
	}
	if c.Database.Driver == "" {
		c.Database.Driver = storage.DriverSQLite
	}
	if c.Database.Driver == storage.DriverSQLite && c.Database.DSN == "" {
		c.Database.DSN = storage.DefaultSQLitePath(c.DataDir)
	}
	return c, nil
}

// IndexPath is the location of the search index.
func (c ProjectConfig) IndexPath() string { return filepath.Join(c.DataDir, indexDirName) }

// ArchiveDir is the root of the snapshot cache.
func (c ProjectConfig) ArchiveDir() string { return filepath.Join(c.DataDir, archiveDirName) }

// InitProject creates the data directory, migrates the database and
// creates the search index.
//
// After successful initialization:
//   - all tables exist in the configured database
//   - the search index exists at <DataDir>/index.bleve
//   - the archive cache directory exists
func InitProject(ctx context.Context, config ProjectConfig, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}

	logger.Info("bootstrap.project.init.start",
		"data_dir", config.DataDir,
		"driver", config.Database.Driver,
	)

	if err := os.MkdirAll(config.ArchiveDir(), 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	idx, err := search.Open(config.IndexPath())
	if err != nil {
		return nil, fmt.Errorf("create search index: %w", err)
	}
	if err := idx.Close(); err != nil {
		logger.Warn("bootstrap.index.close.error", "err", err)
	}

	logger.Info("bootstrap.project.init.success", "data_dir", config.DataDir)

	return &ProjectInfo{
		DataDir:    config.DataDir,
		Driver:     config.Database.Driver,
		Database:   displayDSN(config.Database),
		IndexPath:  config.IndexPath(),
		ArchiveDir: config.ArchiveDir(),
	}, nil
}

// displayDSN hides Postgres credentials.
func displayDSN(cfg storage.Config) string {
	if cfg.Driver == storage.DriverPostgres {
		return "postgres"
	}
	return cfg.DSN
}

// App is a fully wired engine.
type App struct {
	Config   ProjectConfig
	Store    *storage.SQLStore
	Index    *search.Index
	Catalog  *search.Catalog
	Archives *archive.Provider
	Scans    *scan.Orchestrator
	Docs     *docgen.Service
	Provider llm.Provider

	logger *slog.Logger
}

// OpenApp opens the store and index and wires the orchestrator and the
// generation service. Close releases everything.
func OpenApp(ctx context.Context, config ProjectConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(config.ArchiveDir(), 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.Open(ctx, config.Database)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	idx, err := search.Open(config.IndexPath())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open search index: %w", err)
	}

	var opts []archive.Option
	if config.S3.Enabled() {
		mirror, err := archive.NewS3Mirror(config.S3)
		if err != nil {
			_ = idx.Close()
			_ = store.Close()
			return nil, fmt.Errorf("configure s3 mirror: %w", err)
		}
		opts = append(opts, archive.WithMirror(mirror))
		logger.Info("bootstrap.mirror.enabled", "endpoint", config.S3.Endpoint, "bucket", config.S3.Bucket)
	}
	var ghOpts []archive.GitHubOption
	if config.GitHubBaseURL != "" {
		ghOpts = append(ghOpts, archive.WithBaseURL(config.GitHubBaseURL))
	}
	archives := archive.NewProvider(archive.NewCache(config.ArchiveDir()), archive.NewGitHubFetcher(ghOpts...), logger, opts...)

	llmCfg := config.LLM
	if llmCfg.Type == "" {
		llmCfg = llm.ConfigFromEnv()
	}
	provider, err := llm.NewProvider(llmCfg)
	if err != nil {
		_ = idx.Close()
		_ = store.Close()
		return nil, fmt.Errorf("configure llm provider: %w", err)
	}

	catalog := search.NewCatalog(store, idx, logger)
	scans := scan.NewOrchestrator(store, archives, logger,
		scan.WithIndexer(catalog),
		scan.WithPipelineConfig(config.Pipeline),
	)
	docs := docgen.NewService(store, archives, docgen.NewGenerator(provider, logger),
		contextpack.Options{BudgetChars: config.BudgetChars}, logger)

	logger.Debug("bootstrap.app.open",
		"data_dir", config.DataDir,
		"driver", store.Driver(),
		"llm", provider.Name(),
	)

	return &App{
		Config:   config,
		Store:    store,
		Index:    idx,
		Catalog:  catalog,
		Archives: archives,
		Scans:    scans,
		Docs:     docs,
		Provider: provider,
		logger:   logger,
	}, nil
}

// Close stops running scans, then closes the index and the store.
func (a *App) Close() error {
	a.Scans.Close()
	return errors.Join(a.Index.Close(), a.Store.Close())
}
