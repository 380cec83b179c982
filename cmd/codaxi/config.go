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

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zeelapatel/codaxi/internal/bootstrap"
	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/llm"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

const (
	configDirName  = ".codaxi"
	configFileName = "project.yaml"
	configVersion  = "1"
)

// Config is the content of .codaxi/project.yaml.
type Config struct {
	Version  string           `yaml:"version"`
	DataDir  string           `yaml:"data_dir,omitempty"`
	Database storage.Config   `yaml:"database"`
	GitHub   GitHubConfig     `yaml:"github,omitempty"`
	S3       archive.S3Config `yaml:"s3,omitempty"`
	LLM      LLMConfig        `yaml:"llm,omitempty"`
	Context  ContextConfig    `yaml:"context,omitempty"`
	Scan     ScanConfig       `yaml:"scan,omitempty"`
	Server   ServerConfig     `yaml:"server,omitempty"`
}

// GitHubConfig configures remote fetches.
type GitHubConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
	// Token is the default credential for new github connections.
	Token string `yaml:"token,omitempty"`
}

// LLMConfig selects the model provider. An empty provider is resolved
// from the environment.
type LLMConfig struct {
	Provider   string `yaml:"provider,omitempty"`
	BaseURL    string `yaml:"base_url,omitempty"`
	Model      string `yaml:"model,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	TimeoutMS  int    `yaml:"timeout_ms,omitempty"`
	MaxRetries int    `yaml:"max_retries,omitempty"`
}

// ContextConfig tunes context packs.
type ContextConfig struct {
	BudgetChars int `yaml:"budget_chars,omitempty"`
}

// ScanConfig tunes the file walk.
type ScanConfig struct {
	MaxFiles         int      `yaml:"max_files,omitempty"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes,omitempty"`
	Exclude          []string `yaml:"exclude,omitempty"`
}

// ServerConfig configures `codaxi serve`.
type ServerConfig struct {
	Addr string `yaml:"addr,omitempty"`
}

// DefaultServerAddr is the listen address of `codaxi serve`.
const DefaultServerAddr = ":8080"

// ConfigDir returns <dir>/.codaxi.
func ConfigDir(dir string) string { return filepath.Join(dir, configDirName) }

// ConfigPath returns <dir>/.codaxi/project.yaml.
func ConfigPath(dir string) string { return filepath.Join(ConfigDir(dir), configFileName) }

// DefaultConfig returns a configuration storing everything under
// <dir>/.codaxi/data with SQLite.
func DefaultConfig(dir string) *Config {
	return &Config{
		Version:  configVersion,
		DataDir:  filepath.Join(ConfigDir(dir), "data"),
		Database: storage.Config{Driver: storage.DriverSQLite},
		Server:   ServerConfig{Addr: DefaultServerAddr},
	}
}

// LoadConfig reads the configuration at path, or ./.codaxi/project.yaml
// when path is empty. A missing default file yields DefaultConfig so the
// binary also runs from environment variables alone. Environment
// overrides are applied last.
func LoadConfig(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("get working directory: %w", err)
		}
		path = ConfigPath(cwd)
	}

	cfg, err := readConfig(path)
	switch {
	case err == nil:
	case errors.Is(err, os.ErrNotExist) && !explicit:
		cwd, _ := os.Getwd()
		cfg = DefaultConfig(cwd)
	default:
		return nil, err
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is the operator's config file
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		// Relative data dirs are relative to the project root, not the
		// .codaxi directory.
		cfg.DataDir = filepath.Join(filepath.Dir(filepath.Dir(path)), cfg.DataDir)
	}
	return &cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyEnvOverrides lets the environment win over the file.
func applyEnvOverrides(cfg *Config) error {
	setString(&cfg.DataDir, "CODAXI_DATA_DIR")
	setString(&cfg.Database.Driver, "CODAXI_DB_DRIVER")
	setString(&cfg.Database.DSN, "CODAXI_DB_DSN")
	setString(&cfg.GitHub.Token, "GITHUB_TOKEN")
	setString(&cfg.GitHub.BaseURL, "GITHUB_API_URL")
	setString(&cfg.Server.Addr, "CODAXI_ADDR")

	setString(&cfg.S3.Endpoint, "CODAXI_S3_ENDPOINT")
	setString(&cfg.S3.Region, "CODAXI_S3_REGION")
	setString(&cfg.S3.AccessKey, "CODAXI_S3_ACCESS_KEY")
	setString(&cfg.S3.SecretKey, "CODAXI_S3_SECRET_KEY")
	setString(&cfg.S3.Bucket, "CODAXI_S3_BUCKET")
	if v := strings.TrimSpace(os.Getenv("CODAXI_S3_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CODAXI_S3_USE_SSL: %w", err)
		}
		cfg.S3.UseSSL = b
	}

	setString(&cfg.LLM.Provider, "LLM_PROVIDER")
	for key, dst := range map[string]*int{
		"CONTEXT_BUDGET_CHARS": &cfg.Context.BudgetChars,
		"LLM_TIMEOUT_MS":       &cfg.LLM.TimeoutMS,
		"LLM_MAX_RETRIES":      &cfg.LLM.MaxRetries,
		"CODAXI_MAX_FILES":     &cfg.Scan.MaxFiles,
	} {
		if err := setInt(dst, key); err != nil {
			return err
		}
	}
	return nil
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fmt.Errorf("%s must be a non-negative integer, got %q", key, v)
	}
	*dst = n
	return nil
}

// ProviderConfig resolves the LLM section. Without an explicit provider
// the environment decides (see llm.ConfigFromEnv).
func (c LLMConfig) ProviderConfig() llm.ProviderConfig {
	var pc llm.ProviderConfig
	if c.Provider == "" {
		pc = llm.ConfigFromEnv()
	} else {
		pc.Type = strings.ToLower(c.Provider)
	}
	if c.BaseURL != "" {
		pc.BaseURL = c.BaseURL
	}
	if c.Model != "" {
		pc.DefaultModel = c.Model
	}
	if c.APIKey != "" {
		pc.APIKey = c.APIKey
	}
	if c.TimeoutMS > 0 {
		pc.Timeout = time.Duration(c.TimeoutMS) * time.Millisecond
	}
	if c.MaxRetries > 0 {
		pc.MaxRetries = c.MaxRetries
	}
	return pc
}

// ProjectConfig converts the file into engine configuration.
func (c *Config) ProjectConfig() bootstrap.ProjectConfig {
	pipeline := ingestion.PipelineConfig{
		MaxFiles:         c.Scan.MaxFiles,
		MaxFileSizeBytes: c.Scan.MaxFileSizeBytes,
	}
	if len(c.Scan.Exclude) > 0 {
		pipeline.ExcludeGlobs = append(ingestion.DefaultExcludeGlobs(), c.Scan.Exclude...)
	}
	return bootstrap.ProjectConfig{
		DataDir:       c.DataDir,
		Database:      c.Database,
		S3:            c.S3,
		LLM:           c.LLM.ProviderConfig(),
		GitHubBaseURL: c.GitHub.BaseURL,
		BudgetChars:   c.Context.BudgetChars,
		Pipeline:      pipeline,
	}
}
