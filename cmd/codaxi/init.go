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
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/zeelapatel/codaxi/internal/bootstrap"
	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/output"
	"github.com/zeelapatel/codaxi/internal/ui"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

// initFlags holds parsed flags for the init command.
type initFlags struct {
	force, nonInteractive       bool
	dataDir, dbDriver, dbDSN    string
	llmProvider, llmModel, addr string
}

// runInit creates .codaxi/project.yaml, the data directory, the database
// schema and the search index.
//
// Examples:
//
//	codaxi init                          Interactive setup
//	codaxi init -y                       Use all defaults
//	codaxi init -y --db-driver pgx --db-dsn postgres://...
func runInit(args []string, globals GlobalFlags) {
	flags := parseInitFlags(args)

	cwd, err := os.Getwd()
	if err != nil {
		cxerrors.FatalError(cxerrors.NewInternalError("Cannot get current directory", err.Error(), "", err), globals.JSON)
	}

	configPath := ConfigPath(cwd)
	if _, err := os.Stat(configPath); err == nil && !flags.force {
		cxerrors.FatalError(cxerrors.NewInputError(
			"Configuration already exists",
			configPath+" already exists",
			"Use --force to overwrite",
		), globals.JSON)
	}

	cfg := createInitConfig(flags)
	if !flags.nonInteractive && !globals.JSON {
		runInteractiveConfig(bufio.NewReader(os.Stdin), cfg)
	}

	if err := SaveConfig(cfg, configPath); err != nil {
		cxerrors.FatalError(cxerrors.NewPermissionError("Cannot save configuration", err.Error(), "Check permissions of the current directory", err), globals.JSON)
	}
	ignored := addToGitignore(cwd)

	// Reload so relative paths and the environment are applied.
	loaded, err := LoadConfig(configPath)
	if err != nil {
		cxerrors.FatalError(cxerrors.NewConfigError("Cannot load configuration", err.Error(), "Check "+configPath, err), globals.JSON)
	}
	info, err := bootstrap.InitProject(context.Background(), loaded.ProjectConfig(), slog.Default())
	if err != nil {
		cxerrors.FatalError(cxerrors.NewDatabaseError("Cannot initialize data directory", err.Error(), "Check the database settings in "+configPath, err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(info)
		return
	}
	ui.Successf("Created %s", configPath)
	if ignored {
		fmt.Println("Added .codaxi/ to .gitignore")
	}
	fmt.Printf("%s %s\n", ui.Label("Data dir:"), info.DataDir)
	fmt.Printf("%s %s (%s)\n", ui.Label("Database:"), info.Database, info.Driver)
	fmt.Printf("%s %s\n", ui.Label("Search index:"), info.IndexPath)
	printNextSteps()
}

func parseInitFlags(args []string) initFlags {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	var f initFlags
	fs.BoolVar(&f.force, "force", false, "Overwrite existing configuration")
	fs.BoolVar(&f.nonInteractive, "y", false, "Non-interactive mode (use defaults)")
	fs.StringVar(&f.dataDir, "data-dir", "", "Data directory (default: .codaxi/data)")
	fs.StringVar(&f.dbDriver, "db-driver", "", "Database driver: sqlite3 or pgx")
	fs.StringVar(&f.dbDSN, "db-dsn", "", "Database DSN (default: <data-dir>/codaxi.db)")
	fs.StringVar(&f.llmProvider, "llm-provider", "", "LLM provider: openai, gemini, anthropic, ollama, mock")
	fs.StringVar(&f.llmModel, "llm-model", "", "LLM model name")
	fs.StringVar(&f.addr, "addr", "", "Listen address for 'codaxi serve'")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codaxi init [options]

Creates .codaxi/project.yaml and initializes the data directory.

Examples:
  codaxi init -y
  codaxi init -y --db-driver pgx --db-dsn postgres://codaxi@localhost/codaxi
  codaxi init --llm-provider openai --llm-model gpt-4o-mini

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	return f
}

// createInitConfig builds the configuration to save. The data directory
// is stored relative to the project so the file can be committed.
func createInitConfig(f initFlags) *Config {
	cfg := DefaultConfig("")
	cfg.DataDir = filepath.Join(configDirName, "data")
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.dbDriver != "" {
		cfg.Database.Driver = f.dbDriver
	}
	if f.dbDSN != "" {
		cfg.Database.DSN = f.dbDSN
	}
	if f.llmProvider != "" {
		cfg.LLM.Provider = f.llmProvider
	}
	if f.llmModel != "" {
		cfg.LLM.Model = f.llmModel
	}
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	return cfg
}

func runInteractiveConfig(reader *bufio.Reader, cfg *Config) {
	ui.Header("Codaxi Project Configuration")
	fmt.Println()

	cfg.DataDir = prompt(reader, "Data directory", cfg.DataDir)
	cfg.Database.Driver = prompt(reader, "Database driver (sqlite3, pgx)", cfg.Database.Driver)
	if cfg.Database.Driver == storage.DriverPostgres {
		cfg.Database.DSN = prompt(reader, "Postgres DSN", cfg.Database.DSN)
	}

	fmt.Println()
	fmt.Println("LLM Configuration (for endpoint schemas)")
	fmt.Println("Leave empty to pick the provider from OPENAI_API_KEY / GEMINI_API_KEY at runtime.")
	cfg.LLM.Provider = prompt(reader, "LLM provider", cfg.LLM.Provider)
	if cfg.LLM.Provider != "" && cfg.LLM.Provider != "mock" {
		cfg.LLM.Model = prompt(reader, "LLM model", cfg.LLM.Model)
	}
	fmt.Println()
}

func printNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Register a repository:  codaxi repo add <id> <owner/repo|path>")
	fmt.Println("  2. Scan it:                codaxi scan <id>")
	fmt.Println("  3. Browse endpoints:       codaxi docs --repo <id> --kind route")
}

// prompt displays an interactive prompt and reads a line from reader.
// An empty answer returns defaultValue.
func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

// addToGitignore adds .codaxi/ to the project's .gitignore if the file
// exists and does not list it yet. It reports whether the file changed.
func addToGitignore(dir string) bool {
	gitignorePath := filepath.Join(dir, ".gitignore")

	content, err := os.ReadFile(gitignorePath) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return false
	}

	for _, line := range strings.Split(string(content), "\n") {
		switch strings.TrimSpace(line) {
		case ".codaxi/", ".codaxi", "/.codaxi/", "/.codaxi":
			return false
		}
	}

	f, err := os.OpenFile(gitignorePath, os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // G304: gitignorePath built from repo dir
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	if len(content) > 0 && content[len(content)-1] != '\n' {
		_, _ = f.WriteString("\n")
	}
	_, err = f.WriteString("\n# Codaxi data\n.codaxi/\n")
	return err == nil
}
