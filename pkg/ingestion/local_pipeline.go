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

package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"
)

// Walk limits of a scan.
const (
	DefaultMaxScanFiles = 400
	DefaultFlushEvery   = 50
)

// PipelineConfig configures a LocalPipeline.
type PipelineConfig struct {
	ExcludeGlobs     []string `yaml:"exclude_globs"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes"`
	// MaxFiles caps the candidates walked. Files past the cap are skipped.
	MaxFiles int `yaml:"max_files"`
	// FlushEvery reports progress after file i when i%FlushEvery == 0.
	FlushEvery int `yaml:"flush_every"`
}

// DefaultPipelineConfig returns the limits used by scans.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ExcludeGlobs:     DefaultExcludeGlobs(),
		MaxFileSizeBytes: DefaultMaxFileSize,
		MaxFiles:         DefaultMaxScanFiles,
		FlushEvery:       DefaultFlushEvery,
	}
}

// LocalPipeline enumerates and walks a checked-out tree, running the
// detectors on every walked file.
type LocalPipeline struct {
	config     PipelineConfig
	repoLoader *RepoLoader
	logger     *slog.Logger
}

// NewLocalPipeline creates a pipeline. Zero limits take their defaults.
func NewLocalPipeline(config PipelineConfig, logger *slog.Logger) *LocalPipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if config.MaxFiles <= 0 {
		config.MaxFiles = DefaultMaxScanFiles
	}
	if config.FlushEvery <= 0 {
		config.FlushEvery = DefaultFlushEvery
	}
	if config.MaxFileSizeBytes <= 0 {
		config.MaxFileSizeBytes = DefaultMaxFileSize
	}
	if config.ExcludeGlobs == nil {
		config.ExcludeGlobs = DefaultExcludeGlobs()
	}
	return &LocalPipeline{
		config:     config,
		repoLoader: NewRepoLoader(logger),
		logger:     logger,
	}
}

// Enumerate lists the candidate files under root, sorted by path.
func (p *LocalPipeline) Enumerate(root string) (*LoadResult, error) {
	res, err := p.repoLoader.LoadRepository(
		RepoSource{Type: "local_path", Value: root},
		p.config.ExcludeGlobs,
		p.config.MaxFileSizeBytes,
	)
	if err != nil {
		return nil, fmt.Errorf("load repository: %w", err)
	}
	sort.Slice(res.Files, func(i, j int) bool { return res.Files[i].Path < res.Files[j].Path })
	return res, nil
}

// WalkLimit returns how many of n candidates a walk visits.
func (p *LocalPipeline) WalkLimit(n int) int {
	return min(n, p.config.MaxFiles)
}

// Tally holds the detection counters of a walk.
type Tally struct {
	Endpoints    int
	ClientRoutes int
	Events       int
	Types        int
	Tokens       int64
}

// Apply copies the counters into m. FilesParsed is left to the caller.
func (t Tally) Apply(m *ScanMetrics) {
	m.EndpointsDetected = t.Endpoints
	m.ClientRoutesDetected = t.ClientRoutes
	m.EventsDetected = t.Events
	m.TypesDetected = t.Types
	m.TokensUsed = t.Tokens
}

// WalkProgress is reported every FlushEvery files.
type WalkProgress struct {
	Walked int
	Tally  Tally
}

// WalkResult is the outcome of a completed walk.
type WalkResult struct {
	Files      []string
	Nodes      []DocumentationNode
	Tally      Tally
	ReadErrors int
	Skipped    int
	Duration   time.Duration
}

// Walk reads files in order up to the cap. Each file's tokens are counted
// as ceil(len/4), its detections enriched and deduplicated. progress is
// called after file i when i%FlushEvery == 0; an error from progress or a
// done ctx stops the walk and is returned.
func (p *LocalPipeline) Walk(ctx context.Context, files []FileInfo, progress func(WalkProgress) error) (*WalkResult, error) {
	start := time.Now()
	limit := p.WalkLimit(len(files))
	acc := NewAccumulator()
	res := &WalkResult{
		Files:   make([]string, 0, limit),
		Skipped: len(files) - limit,
	}

	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		f := files[i]
		res.Files = append(res.Files, f.Path)

		src, err := os.ReadFile(f.FullPath)
		if err != nil {
			res.ReadErrors++
			p.logger.Debug("scan.walk.read_error", "path", f.Path, "err", err)
		} else {
			acc.AddTokens(len(src))
			nodes := DetectFile(f.Path, src)
			Enrich(nodes, src)
			acc.Add(nodes)
		}

		if progress != nil && i%p.config.FlushEvery == 0 {
			if err := progress(WalkProgress{Walked: i + 1, Tally: acc.Tally()}); err != nil {
				return nil, err
			}
		}
	}

	res.Nodes = acc.Nodes()
	res.Tally = acc.Tally()
	res.Duration = time.Since(start)

	p.logger.Info("scan.walk.complete",
		"walked", len(res.Files),
		"skipped_over_cap", res.Skipped,
		"read_errors", res.ReadErrors,
		"nodes", len(res.Nodes),
		"endpoints", res.Tally.Endpoints,
		"duration_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

// Accumulator collects detections across files. Nodes are deduplicated by
// (kind, title, path) with the first detection kept; endpoints are unique
// by (method, path, framework).
type Accumulator struct {
	seen      map[string]bool
	nodes     []DocumentationNode
	endpoints map[string]bool
	// serverPaths and clientPaths back the client route count.
	serverPaths map[string]bool
	clientPaths map[string]bool
	events      int
	types       int
	tokens      int64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		seen:        make(map[string]bool),
		endpoints:   make(map[string]bool),
		serverPaths: make(map[string]bool),
		clientPaths: make(map[string]bool),
	}
}

// AddTokens counts a file of n bytes as ceil(n/4) tokens.
func (a *Accumulator) AddTokens(n int) {
	a.tokens += int64((n + 3) / 4)
}

// Add records nodes, dropping repeats.
func (a *Accumulator) Add(nodes []DocumentationNode) {
	for _, n := range nodes {
		key := n.DedupKey()
		if a.seen[key] {
			continue
		}
		a.seen[key] = true
		a.nodes = append(a.nodes, n)

		switch n.Kind {
		case KindRoute:
			if ClientFrameworks[n.Framework()] {
				if n.Path != ReactRouterPresencePath {
					a.clientPaths[n.Path] = true
				}
				continue
			}
			a.endpoints[n.Method()+"|"+n.Path+"|"+n.Framework()] = true
			a.serverPaths[n.Path] = true
		case KindEvent:
			a.events++
		case KindType, KindClass:
			a.types++
		}
	}
}

// Nodes returns the deduplicated nodes in detection order.
func (a *Accumulator) Nodes() []DocumentationNode {
	return a.nodes
}

// Tally returns the current counters.
func (a *Accumulator) Tally() Tally {
	client := 0
	for p := range a.clientPaths {
		if !a.serverPaths[p] {
			client++
		}
	}
	return Tally{
		Endpoints:    len(a.endpoints),
		ClientRoutes: client,
		Events:       a.events,
		Types:        a.types,
		Tokens:       a.tokens,
	}
}
