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

package scan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zeelapatel/codaxi/internal/contract"
	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

var (
	// ErrMissingRepoID is returned by Start when no repository id is given.
	ErrMissingRepoID = errors.New("repoId is required")
	// ErrInvalidRepoID is returned by Start for a malformed repository id.
	ErrInvalidRepoID = errors.New("invalid repoId")
	// ErrScanNotFound is returned for an unknown scan id.
	ErrScanNotFound = errors.New("scan not found")
)

// Error stages recorded on failed scans.
const (
	StageParsing    = "parsing"
	StageGenerating = "generating"
	StageCancel     = "cancel"
	StageInternal   = "internal"
)

// List limits.
const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Store is the persistence the orchestrator mirrors scans to.
type Store interface {
	SaveScan(ctx context.Context, rec *ingestion.ScanRecord) error
	GetScan(ctx context.Context, id string) (*ingestion.ScanRecord, error)
	ListScans(ctx context.Context, repoID string, limit int) ([]*ingestion.ScanRecord, error)
	ActiveScans(ctx context.Context) ([]*ingestion.ScanRecord, error)
	LatestScan(ctx context.Context, repoID string) (*ingestion.ScanRecord, error)
	SaveDocNodes(ctx context.Context, nodes []ingestion.DocumentationNode) error
	GetConnection(ctx context.Context, repoID string) (*archive.Connection, error)
}

// Archives provides local snapshots of repositories.
type Archives interface {
	Acquire(ctx context.Context, conn archive.Connection, branch string) (*archive.Snapshot, error)
}

// Indexer receives persisted nodes, typically a search catalog.
type Indexer interface {
	Index(nodes []ingestion.DocumentationNode) error
}

// StartRequest starts a scan. An empty Branch means the repository default.
type StartRequest struct {
	RepoID string `json:"repoId"`
	Branch string `json:"branch,omitempty"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRegistry replaces the default MemoryRegistry.
func WithRegistry(r Registry) Option { return func(o *Orchestrator) { o.registry = r } }

// WithBus replaces the default Bus.
func WithBus(b *Bus) Option { return func(o *Orchestrator) { o.bus = b } }

// WithIndexer sends persisted nodes to idx.
func WithIndexer(idx Indexer) Option { return func(o *Orchestrator) { o.indexer = idx } }

// WithPipelineConfig sets the walk limits.
func WithPipelineConfig(cfg ingestion.PipelineConfig) Option {
	return func(o *Orchestrator) { o.pipelineConfig = cfg }
}

// Orchestrator starts scans and answers queries about them.
type Orchestrator struct {
	store          Store
	archives       Archives
	registry       Registry
	bus            *Bus
	indexer        Indexer
	pipelineConfig ingestion.PipelineConfig
	logger         *slog.Logger

	// mu serializes updates so that a transition and its publication are
	// observed in the same order by every subscriber.
	mu sync.Mutex

	runMu   sync.Mutex
	running map[string]*run
	latest  map[string]string // repo id -> last scan id started here
	base    context.Context
	stopAll context.CancelFunc
	wg      sync.WaitGroup
}

type run struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// NewOrchestrator creates an orchestrator. store and archives are required.
func NewOrchestrator(store Store, archives Archives, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	base, stop := context.WithCancel(context.Background())
	o := &Orchestrator{
		store:          store,
		archives:       archives,
		pipelineConfig: ingestion.DefaultPipelineConfig(),
		logger:         logger,
		running:        make(map[string]*run),
		latest:         make(map[string]string),
		base:           base,
		stopAll:        stop,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.registry == nil {
		o.registry = NewMemoryRegistry(DefaultRegistrySize)
	}
	if o.bus == nil {
		o.bus = NewBus(DefaultBusBuffer)
	}
	return o
}

// Start creates a queued scan and runs it in the background. The scan
// outlives ctx; use Cancel or Close to stop it.
func (o *Orchestrator) Start(ctx context.Context, req StartRequest) (*ingestion.ScanRecord, error) {
	repoID := strings.TrimSpace(req.RepoID)
	if repoID == "" {
		return nil, ErrMissingRepoID
	}
	if v := contract.ValidateRepoID(repoID); !v.OK {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRepoID, v.Message)
	}

	now := time.Now().UTC()
	rec := &ingestion.ScanRecord{
		ID:        uuid.NewString(),
		RepoID:    repoID,
		Branch:    strings.TrimSpace(req.Branch),
		Status:    ingestion.StatusQueued,
		StartedAt: now,
		UpdatedAt: now,
	}
	o.registry.Put(rec)
	o.persist(ctx, rec)
	o.bus.Publish(ProgressEvent{ScanID: rec.ID, Scan: rec.Clone()})
	recordStarted()

	runCtx, cancel := context.WithCancel(o.base)
	r := &run{cancel: cancel, done: make(chan struct{})}
	o.runMu.Lock()
	o.running[rec.ID] = r
	o.latest[repoID] = rec.ID
	o.runMu.Unlock()

	o.logger.Info("scan.start", "scan_id", rec.ID, "repo_id", repoID, "branch", rec.Branch)

	o.wg.Add(1)
	go o.run(runCtx, rec.ID, r)
	return rec.Clone(), nil
}

// Get returns a scan from memory, then from the store.
func (o *Orchestrator) Get(ctx context.Context, id string) (*ingestion.ScanRecord, error) {
	if rec, ok := o.registry.Get(id); ok {
		return rec, nil
	}
	rec, err := o.store.GetScan(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", id, ErrScanNotFound)
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Cancel flags a scan for cancellation and returns immediately. The scan
// ends in error with stage "cancel" once its goroutine observes the flag.
// A pending archive fetch is interrupted; store writes are not. Canceling a
// finished scan has no effect.
func (o *Orchestrator) Cancel(ctx context.Context, id string) error {
	if _, err := o.Get(ctx, id); err != nil {
		return err
	}
	o.registry.CancelFlag(id)

	o.runMu.Lock()
	r := o.running[id]
	o.runMu.Unlock()
	if r != nil {
		r.cancel()
	}
	o.logger.Info("scan.cancel.requested", "scan_id", id)
	return nil
}

// Subscribe returns a channel of progress events for id. The current state,
// if known, is delivered first. Call the returned function to unsubscribe.
func (o *Orchestrator) Subscribe(id string) (<-chan ProgressEvent, func()) {
	// Holding mu keeps the current state ahead of the next transition.
	o.mu.Lock()
	defer o.mu.Unlock()
	if rec, ok := o.registry.Get(id); ok {
		return o.bus.Subscribe(id, ProgressEvent{ScanID: id, Scan: rec})
	}
	return o.bus.Subscribe(id)
}

// ClampListLimit applies the list bounds: 1..MaxListLimit, default
// DefaultListLimit.
func ClampListLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

// List returns the latest scans of repoID, newest first.
func (o *Orchestrator) List(ctx context.Context, repoID string, limit int) ([]*ingestion.ScanRecord, error) {
	recs, err := o.store.ListScans(ctx, repoID, ClampListLimit(limit))
	if err != nil {
		return nil, err
	}
	for i, rec := range recs {
		if live, ok := o.registry.Get(rec.ID); ok {
			recs[i] = live
		}
	}
	return recs, nil
}

// Active returns scans that have not finished, oldest first.
func (o *Orchestrator) Active(ctx context.Context) ([]*ingestion.ScanRecord, error) {
	stored, err := o.store.ActiveScans(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*ingestion.ScanRecord, len(stored))
	for _, rec := range stored {
		byID[rec.ID] = rec
	}

	o.runMu.Lock()
	ids := make([]string, 0, len(o.running))
	for id := range o.running {
		ids = append(ids, id)
	}
	o.runMu.Unlock()
	for _, id := range ids {
		if rec, ok := o.registry.Get(id); ok {
			byID[id] = rec
		}
	}

	out := make([]*ingestion.ScanRecord, 0, len(byID))
	for _, rec := range byID {
		// Memory is fresher than the store.
		if live, ok := o.registry.Get(rec.ID); ok {
			rec = live
		}
		if rec.Status.Active() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Latest returns the most recently started scan of repoID.
func (o *Orchestrator) Latest(ctx context.Context, repoID string) (*ingestion.ScanRecord, error) {
	o.runMu.Lock()
	id, ok := o.latest[repoID]
	o.runMu.Unlock()
	if ok {
		if rec, ok := o.registry.Get(id); ok {
			return rec, nil
		}
	}
	rec, err := o.store.LatestScan(ctx, repoID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("latest scan of %s: %w", repoID, ErrScanNotFound)
	}
	return rec, err
}

// Wait blocks until the scan finishes or ctx is done and returns its final
// state. Scans not running in this process are returned as stored.
func (o *Orchestrator) Wait(ctx context.Context, id string) (*ingestion.ScanRecord, error) {
	o.runMu.Lock()
	r := o.running[id]
	o.runMu.Unlock()
	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return o.Get(ctx, id)
}

// Close cancels every running scan and waits for them to finish.
func (o *Orchestrator) Close() {
	o.runMu.Lock()
	for id := range o.running {
		o.registry.CancelFlag(id)
	}
	o.runMu.Unlock()
	o.stopAll()
	o.wg.Wait()
}

// =============================================================================
// STATE UPDATES
// =============================================================================

// update applies mutate to the current record and publishes it. Updates are
// rejected once the scan is terminal, when the transition goes backwards,
// and while the scan is flagged canceled unless terminal is set.
func (o *Orchestrator) update(id string, terminal bool, mutate func(*ingestion.ScanRecord)) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	cur, ok := o.registry.Get(id)
	if !ok {
		return false
	}
	if cur.Status.Terminal() {
		return false
	}
	if !terminal && o.registry.IsCanceled(id) {
		return false
	}

	next := cur.Clone()
	mutate(next)
	if !cur.Status.CanTransition(next.Status) {
		o.logger.Warn("scan.transition.rejected", "scan_id", id, "from", cur.Status, "to", next.Status)
		return false
	}
	// FilesParsed never decreases.
	next.Metrics.FilesParsed = max(next.Metrics.FilesParsed, cur.Metrics.FilesParsed)

	now := time.Now().UTC()
	next.UpdatedAt = now
	if next.Status.Terminal() {
		next.CompletedAt = &now
		next.Metrics.DurationSec = int64(now.Sub(next.StartedAt).Seconds())
	}

	o.registry.Put(next)
	o.bus.Publish(ProgressEvent{ScanID: id, Scan: next.Clone()})
	// Progress is mirrored best-effort: write, log failure, continue.
	o.persist(context.Background(), next)

	if cur.Status != next.Status {
		o.logger.Info("scan.phase."+string(next.Status), "scan_id", id)
	}
	return true
}

func (o *Orchestrator) persist(ctx context.Context, rec *ingestion.ScanRecord) {
	if err := o.store.SaveScan(ctx, rec); err != nil {
		o.logger.Warn("scan.persist.error", "scan_id", rec.ID, "status", rec.Status, "err", err)
	}
}

func (o *Orchestrator) setStatus(id string, status ingestion.ScanStatus) bool {
	return o.update(id, false, func(r *ingestion.ScanRecord) { r.Status = status })
}

// fail ends the scan in error with a single entry for stage.
func (o *Orchestrator) fail(id, stage, msg string) {
	ok := o.update(id, true, func(r *ingestion.ScanRecord) {
		r.Status = ingestion.StatusError
		r.Errors = append(r.Errors, ingestion.ScanError{Stage: stage, Message: msg})
	})
	if !ok {
		return
	}
	outcome := "failed"
	if stage == StageCancel {
		outcome = "canceled"
	}
	recordFinished(outcome)
	o.logger.Warn("scan.failed", "scan_id", id, "stage", stage, "err", msg)
}

// =============================================================================
// SCAN EXECUTION
// =============================================================================

// stageError tags an error with the stage recorded on the scan.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }
func (e *stageError) Unwrap() error { return e.err }

var errCanceled = errors.New("scan canceled")

func (o *Orchestrator) run(ctx context.Context, id string, r *run) {
	defer o.wg.Done()
	defer func() {
		o.runMu.Lock()
		delete(o.running, id)
		o.runMu.Unlock()
		r.cancel()
		close(r.done)
	}()
	defer func() {
		if p := recover(); p != nil {
			o.logger.Error("scan.panic", "scan_id", id, "panic", p)
			if o.registry.IsCanceled(id) {
				o.fail(id, StageCancel, errCanceled.Error())
				return
			}
			o.fail(id, StageInternal, fmt.Sprintf("internal error: %v", p))
		}
	}()

	err := o.execute(ctx, id)
	// Cancellation always wins over whatever error it caused. A flag raised
	// after the last check leaves the scan non-terminal; fail is a no-op
	// once the scan completed.
	if o.registry.IsCanceled(id) || errors.Is(err, errCanceled) {
		o.fail(id, StageCancel, errCanceled.Error())
		return
	}
	if err == nil {
		return
	}
	stage := StageParsing
	var se *stageError
	if errors.As(err, &se) {
		stage = se.stage
	}
	o.fail(id, stage, err.Error())
}

func (o *Orchestrator) checkCanceled(id string) error {
	if o.registry.IsCanceled(id) {
		return errCanceled
	}
	return nil
}

func (o *Orchestrator) execute(ctx context.Context, id string) error {
	rec, ok := o.registry.Get(id)
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrScanNotFound)
	}
	if err := o.checkCanceled(id); err != nil {
		return err
	}
	// Store calls finish even when the run is interrupted; the cancel flag
	// decides the outcome.
	storeCtx := context.WithoutCancel(ctx)

	// parsing: fetch, extract and enumerate.
	phaseStart := time.Now()
	o.setStatus(id, ingestion.StatusParsing)

	conn, err := o.store.GetConnection(storeCtx, rec.RepoID)
	if err != nil {
		return &stageError{StageParsing, fmt.Errorf("repository connection: %w", err)}
	}
	if !conn.Active {
		return &stageError{StageParsing, archive.ErrConnectionInactive}
	}
	snap, err := o.archives.Acquire(ctx, *conn, rec.Branch)
	if err != nil {
		return &stageError{StageParsing, fmt.Errorf("acquire archive: %w", err)}
	}
	o.logger.Info("scan.archive.ready", "scan_id", id, "dir", snap.Dir, "branch", snap.Branch, "cached", snap.Cached)

	pipeline := ingestion.NewLocalPipeline(o.pipelineConfig, o.logger)
	load, err := pipeline.Enumerate(snap.Dir)
	if err != nil {
		return &stageError{StageParsing, err}
	}
	limit := pipeline.WalkLimit(load.FileCount)
	o.update(id, false, func(r *ingestion.ScanRecord) {
		if r.Branch == "" {
			r.Branch = snap.Branch
		}
		r.Metrics.FilesParsed = limit
	})
	recordPhase(string(ingestion.StatusParsing), time.Since(phaseStart))
	if err := o.checkCanceled(id); err != nil {
		return err
	}

	// embedding: sequential walk with periodic flushes.
	phaseStart = time.Now()
	o.setStatus(id, ingestion.StatusEmbedding)
	res, err := pipeline.Walk(ctx, load.Files, func(p ingestion.WalkProgress) error {
		if err := o.checkCanceled(id); err != nil {
			return err
		}
		o.update(id, false, func(r *ingestion.ScanRecord) { p.Tally.Apply(&r.Metrics) })
		return nil
	})
	if err != nil {
		return &stageError{StageParsing, err}
	}
	recordWalked(len(res.Files))
	recordPhase(string(ingestion.StatusEmbedding), time.Since(phaseStart))
	if err := o.checkCanceled(id); err != nil {
		return err
	}

	// generating: persist the deduplicated nodes in one batch.
	phaseStart = time.Now()
	o.update(id, false, func(r *ingestion.ScanRecord) {
		r.Status = ingestion.StatusGenerating
		r.Metrics.FilesParsed = len(res.Files)
		r.Files = res.Files
		res.Tally.Apply(&r.Metrics)
	})
	ingestion.AssignIDs(res.Nodes, rec.RepoID, id)
	if err := o.store.SaveDocNodes(storeCtx, res.Nodes); err != nil {
		o.logger.Error("scan.persist.nodes.error", "scan_id", id, "nodes", len(res.Nodes), "err", err)
		return &stageError{StageGenerating, fmt.Errorf("persist documentation nodes: %w", err)}
	}
	if o.indexer != nil {
		if err := o.indexer.Index(res.Nodes); err != nil {
			o.logger.Warn("scan.index.error", "scan_id", id, "err", err)
		}
	}
	recordPhase(string(ingestion.StatusGenerating), time.Since(phaseStart))
	if err := o.checkCanceled(id); err != nil {
		return err
	}

	if !o.setStatus(id, ingestion.StatusCompleted) {
		return errCanceled
	}
	recordFinished("completed")
	o.logger.Info("scan.complete", "scan_id", id, "files", len(res.Files), "nodes", len(res.Nodes),
		"endpoints", res.Tally.Endpoints)
	return nil
}
