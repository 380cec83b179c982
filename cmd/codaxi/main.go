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

// Package main implements the Codaxi CLI for scanning repositories and
// generating endpoint documentation.
//
// Usage:
//
//	codaxi init                          Create .codaxi/project.yaml
//	codaxi repo add <id> <source>        Register a repository
//	codaxi scan <repo-id>                Scan a repository in the foreground
//	codaxi docs --repo <id> [--q text]   List documentation nodes
//	codaxi generate <doc-id>             Generate a schema for an endpoint
//	codaxi serve                         Start the HTTP API
//	codaxi --mcp                         Start as MCP server (JSON-RPC over stdio)
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zeelapatel/codaxi/internal/bootstrap"
	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags are the flags accepted before the command name.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Debug   bool
	Config  string
}

// main parses global flags and dispatches to command handlers, or starts
// the MCP server.
func main() {
	var (
		showVersion = flag.Bool("version", false, "Show version and exit")
		mcpMode     = flag.Bool("mcp", false, "Start as MCP server (JSON-RPC over stdio)")
		configPath  = flag.String("config", "", "Path to .codaxi/project.yaml (default: ./.codaxi/project.yaml)")
		debug       = flag.Bool("debug", false, "Enable debug logging")
		jsonOutput  = flag.Bool("json", false, "Output as JSON where supported")
		quiet       = flag.Bool("q", false, "Suppress progress output")
		noColor     = flag.Bool("no-color", false, "Disable colored output")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Codaxi - repository scanner and endpoint documentation engine

Codaxi walks a repository, detects HTTP endpoints, client routes, events
and types, and generates request/response schemas for endpoints with an
LLM from the code around them.

Usage:
  codaxi [global options] <command> [options]

Commands:
  init          Create .codaxi/project.yaml and the data directory
  repo          Manage repository connections (add, list, disable)
  scan          Scan a repository and wait for it to finish
  status        Show a scan
  scans         List scans of a repository, or active scans
  cancel        Cancel a running scan
  docs          List documentation nodes of a repository
  generate      Generate a schema for a documentation node
  versions      List generated schema versions of a node
  serve         Start the HTTP API

Global Options:
  --mcp           Start as MCP server (JSON-RPC over stdio)
  --config        Path to .codaxi/project.yaml
  --json          Output as JSON
  -q              Suppress progress output
  --no-color      Disable colored output
  --debug         Enable debug logging
  --metrics-addr  Serve Prometheus metrics on this address
  --version       Show version and exit

Examples:
  codaxi init
  codaxi repo add acme-api github:acme/api
  codaxi repo add local-app ./services/app
  codaxi scan acme-api --branch main
  codaxi docs --repo acme-api --kind route --q users
  codaxi generate 3f2a...
  codaxi serve --addr :8080

Environment Variables:
  CODAXI_DB_DRIVER, CODAXI_DB_DSN   Database (sqlite3 or pgx)
  GITHUB_TOKEN                     Token for private repositories
  OPENAI_API_KEY, OPENAI_MODEL     OpenAI-compatible model
  GEMINI_API_KEY                   Gemini model
  LLM_TIMEOUT_MS, LLM_MAX_RETRIES  Model call limits
  CONTEXT_BUDGET_CHARS             Snippet budget per generation
  CODAXI_S3_ENDPOINT, CODAXI_S3_BUCKET  Optional archive mirror

For detailed command help: codaxi <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("codaxi version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	// A missing .env is normal.
	_ = godotenv.Load()

	globals := GlobalFlags{
		JSON:    *jsonOutput,
		Quiet:   *quiet || *jsonOutput,
		NoColor: *noColor || os.Getenv("NO_COLOR") != "",
		Debug:   *debug,
		Config:  *configPath,
	}
	ui.InitColors(globals.NoColor)

	args := flag.Args()
	command := ""
	if len(args) > 0 {
		command = args[0]
	}
	setupLogger(globals, command == "serve" || *mcpMode)

	if *metricsAddr != "" {
		startMetricsServer(*metricsAddr)
	}

	// MCP mode takes precedence
	if *mcpMode {
		runMCPServer(globals)
		return
	}

	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "repo":
		runRepo(cmdArgs, globals)
	case "scan":
		runScan(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "scans":
		runScans(cmdArgs, globals)
	case "cancel":
		runCancel(cmdArgs, globals)
	case "docs":
		runDocs(cmdArgs, globals)
	case "generate":
		runGenerate(cmdArgs, globals)
	case "versions":
		runVersions(cmdArgs, globals)
	case "serve":
		runServe(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// setupLogger installs the default slog logger. Logs go to stderr so
// stdout stays clean for --json output and the MCP transport. Long-running
// modes log at Info, one-shot commands only at Warn.
func setupLogger(globals GlobalFlags, longRunning bool) {
	level := slog.LevelWarn
	if longRunning {
		level = slog.LevelInfo
	}
	if globals.Debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// startMetricsServer exposes /metrics on addr in the background.
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics.server.error", "addr", addr, "err", err)
		}
	}()
	slog.Info("metrics.server.start", "addr", addr)
}

// openApp loads the configuration and wires the engine, exiting on failure.
func openApp(ctx context.Context, globals GlobalFlags) (*Config, *bootstrap.App) {
	cfg, err := LoadConfig(globals.Config)
	if err != nil {
		cxerrors.FatalError(cxerrors.NewConfigError(
			"Cannot load configuration",
			err.Error(),
			"Check .codaxi/project.yaml or run 'codaxi init'",
			err,
		), globals.JSON)
	}
	app, err := bootstrap.OpenApp(ctx, cfg.ProjectConfig(), slog.Default())
	if err != nil {
		cxerrors.FatalError(cxerrors.NewDatabaseError(
			"Cannot open Codaxi data",
			err.Error(),
			"Run 'codaxi init' or check CODAXI_DB_DRIVER / CODAXI_DB_DSN",
			err,
		), globals.JSON)
	}
	return cfg, app
}

// fatal classifies err and exits. app is closed first when non-nil.
func fatal(app *bootstrap.App, err error, msg string, globals GlobalFlags) {
	if app != nil {
		_ = app.Close()
	}
	cxerrors.FatalError(cxerrors.Classify(err, msg), globals.JSON)
}
