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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/server"
	"github.com/zeelapatel/codaxi/internal/ui"
)

// runServe starts the HTTP API, and the MCP streamable transport under
// --mcp-path, until SIGINT or SIGTERM.
func runServe(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.StringP("addr", "a", "", "Listen address (default: server.addr from config, or :8080)")
	shutdownTimeout := fs.Duration("shutdown-timeout", 15*time.Second, "Time allowed for in-flight requests on shutdown")
	mcpPath := fs.String("mcp-path", "/mcp", "Mount the MCP streamable transport here (empty disables it)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codaxi serve [options]

Starts the HTTP API. Scans started through the API run inside this
process; stopping the server cancels them.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Endpoints:
  POST /api/scans                                 Start a scan
  GET  /api/scans/active                          Active scans
  GET  /api/scans/{id}                            Scan status
  POST /api/scans/{id}/cancel                     Cancel a scan
  GET  /api/scans/{id}/stream                     Progress over WebSocket
  GET  /api/repos/{repoId}/scans                  Recent scans
  GET  /api/repos/{repoId}/docs                   Documentation nodes
  POST /api/repos/{repoId}/docs/{docId}/generate  Generate a schema
  GET  /metrics                                   Prometheus metrics
`)
	}
	if err := fs.Parse(args); err != nil {
		cxerrors.FatalError(cxerrors.NewInputError("Invalid arguments", err.Error(), "Run 'codaxi serve --help'"), globals.JSON)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	listen := *addr
	if listen == "" {
		listen = cfg.Server.Addr
	}
	if listen == "" {
		listen = DefaultServerAddr
	}

	api := server.New(app.Scans, app.Catalog, app.Docs, app.Store, slog.Default())
	mux := http.NewServeMux()
	mux.Handle("/", api)
	if path := strings.TrimSuffix(*mcpPath, "/"); path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		mcpSrv, err := newMCPServer(app)
		if err != nil {
			fatal(app, err, "Cannot start MCP server", globals)
		}
		mux.Handle(path, mcpSrv.Handler())
		slog.Info("server.mcp.mounted", "path", path)
	}

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server.start", "addr", listen, "version", version)
		errCh <- httpServer.ListenAndServe()
	}()
	if !globals.Quiet {
		ui.Successf("Codaxi API listening on %s", listen)
	}

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(app, cxerrors.NewNetworkError("Cannot start server", err.Error(), "Choose another address with --addr", err), "Cannot start server", globals)
		}
	case <-ctx.Done():
		slog.Info("server.shutdown", "timeout", shutdownTimeout.String())
		shutdownCtx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server.shutdown.error", "err", err)
		}
	}
	slog.Info("server.stop")
}
