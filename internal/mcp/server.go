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

package mcp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/scan"
	"github.com/zeelapatel/codaxi/pkg/search"
)

// ErrMissingPorts is returned when a required dependency is nil.
var ErrMissingPorts = errors.New("mcp: scans, docs, generator and versions are required")

// Scans is the scan surface the tools use.
type Scans interface {
	Start(ctx context.Context, req scan.StartRequest) (*ingestion.ScanRecord, error)
	Get(ctx context.Context, id string) (*ingestion.ScanRecord, error)
	List(ctx context.Context, repoID string, limit int) ([]*ingestion.ScanRecord, error)
}

// Docs lists documentation nodes.
type Docs interface {
	List(ctx context.Context, q search.DocQuery) (*search.DocPage, error)
	Get(ctx context.Context, repoID, docID string) (*ingestion.DocumentationNode, error)
}

// Generator produces schema versions.
type Generator interface {
	GenerateForNode(ctx context.Context, docID string) (*docgen.SchemaVersion, error)
}

// Versions reads stored schema versions.
type Versions interface {
	ListSchemaVersions(ctx context.Context, docID string) ([]*docgen.SchemaVersion, error)
}

// Ports bundles the engine services behind the tools.
type Ports struct {
	Scans     Scans
	Docs      Docs
	Generator Generator
	Versions  Versions
}

func (p *Ports) validate() error {
	if p == nil || p.Scans == nil || p.Docs == nil || p.Generator == nil || p.Versions == nil {
		return ErrMissingPorts
	}
	return nil
}

// Server is the Codaxi MCP server.
type Server struct {
	ports  *Ports
	server *mcp.Server
	logger *slog.Logger
}

// NewServer registers all tools on a fresh MCP server.
func NewServer(ports *Ports, version string, logger *slog.Logger) (*Server, error) {
	if err := ports.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	s := &Server{
		ports:  ports,
		server: mcp.NewServer(&mcp.Implementation{Name: "codaxi", Version: version}, nil),
		logger: logger,
	}
	s.registerTools()
	return s, nil
}

// Run serves over stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp.stdio.start")
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// Handler returns the streamable HTTP transport for this server.
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(_ *http.Request) *mcp.Server {
		return s.server
	}, nil)
}
