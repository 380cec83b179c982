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

package docgen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/contextpack"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

// Store is the persistence the service needs.
type Store interface {
	GetDocNode(ctx context.Context, id string) (*ingestion.DocumentationNode, error)
	// SaveSchemaVersion assigns v.Version (previous maximum + 1) and
	// persists v.
	SaveSchemaVersion(ctx context.Context, v *SchemaVersion) error
}

// Snapshots resolves the local copy of a repository.
type Snapshots interface {
	Snapshot(ctx context.Context, repoID string) (*archive.Snapshot, error)
}

// Service generates and versions schemas for persisted nodes.
type Service struct {
	store     Store
	snapshots Snapshots
	resolver  *contextpack.Resolver
	gen       *Generator
	opts      contextpack.Options
	logger    *slog.Logger
}

// NewService wires a service. A nil logger uses slog.Default().
func NewService(store Store, snapshots Snapshots, gen *Generator, opts contextpack.Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		snapshots: snapshots,
		resolver:  contextpack.NewResolver(logger),
		gen:       gen,
		opts:      opts,
		logger:    logger,
	}
}

// GenerateForNode builds the context pack for docID against the cached
// repository snapshot, runs the generator and stores a new version.
func (s *Service) GenerateForNode(ctx context.Context, docID string) (*SchemaVersion, error) {
	node, err := s.store.GetDocNode(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("load doc node %s: %w", docID, err)
	}
	snap, err := s.snapshots.Snapshot(ctx, node.RepoID)
	if err != nil {
		return nil, fmt.Errorf("resolve snapshot for %s: %w", node.RepoID, err)
	}

	pack, err := s.resolver.Build(ctx, snap.Dir, *node, s.opts)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("docgen.pack.built",
		"doc_id", docID,
		"contexts", len(pack.Contexts),
		"chars", pack.TotalChars(),
		"facts", len(pack.Facts),
	)

	res, err := s.gen.Run(ctx, pack)
	if err != nil {
		return nil, err
	}

	v := &SchemaVersion{
		DocID:     docID,
		Schema:    res.Schema,
		Source:    res.Outcome,
		Model:     res.Model,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.SaveSchemaVersion(ctx, v); err != nil {
		return nil, fmt.Errorf("save schema version: %w", err)
	}
	s.logger.Info("docgen.version.saved", "doc_id", docID, "version", v.Version, "source", v.Source)
	return v, nil
}
