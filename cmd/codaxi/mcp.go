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
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/zeelapatel/codaxi/internal/bootstrap"
	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	codaximcp "github.com/zeelapatel/codaxi/internal/mcp"
)

// newMCPServer exposes app through the MCP tools.
func newMCPServer(app *bootstrap.App) (*codaximcp.Server, error) {
	return codaximcp.NewServer(&codaximcp.Ports{
		Scans:     app.Scans,
		Docs:      app.Catalog,
		Generator: app.Docs,
		Versions:  app.Store,
	}, version, slog.Default())
}

// runMCPServer serves the MCP tools over stdio until stdin closes or the
// process is interrupted. Scans started by a client run inside this process.
func runMCPServer(globals GlobalFlags) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	srv, err := newMCPServer(app)
	if err != nil {
		fatal(app, err, "Cannot start MCP server", globals)
	}
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		_ = app.Close()
		cxerrors.FatalError(cxerrors.NewInternalError("MCP server stopped", err.Error(), "", err), globals.JSON)
	}
	slog.Info("mcp.stdio.stop")
}
