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
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cxtest "github.com/zeelapatel/codaxi/internal/testing"
	"github.com/zeelapatel/codaxi/pkg/archive"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

const fixtureRoutes = `import express from 'express'
const app = express()
app.get('/users', list)
app.post('/users', create)
bus.emit('user.created', user)
export interface User { id: string }
`

func localArchives(t *testing.T) *archive.Provider {
	t.Helper()
	return archive.NewProvider(archive.NewCache(t.TempDir()), nil, nil)
}

// archivesFunc adapts a function to Archives.
type archivesFunc func(ctx context.Context, conn archive.Connection, branch string) (*archive.Snapshot, error)

func (f archivesFunc) Acquire(ctx context.Context, conn archive.Connection, branch string) (*archive.Snapshot, error) {
	return f(ctx, conn, branch)
}

// failingNodes fails the final batch write.
type failingNodes struct {
	*storage.SQLStore
}

func (failingNodes) SaveDocNodes(context.Context, []ingestion.DocumentationNode) error {
	return errors.New("disk full")
}

type recordingIndexer struct {
	mu    sync.Mutex
	nodes []ingestion.DocumentationNode
}

func (r *recordingIndexer) Index(nodes []ingestion.DocumentationNode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes = append(r.nodes, nodes...)
	return nil
}

func waitDone(t *testing.T, o *Orchestrator, id string) *ingestion.ScanRecord {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	rec, err := o.Wait(ctx, id)
	require.NoError(t, err)
	require.True(t, rec.Status.Terminal(), "status %s", rec.Status)
	return rec
}

func TestStart_Validation(t *testing.T) {
	o := NewOrchestrator(cxtest.SetupTestStore(t), localArchives(t), nil)
	defer o.Close()

	_, err := o.Start(context.Background(), StartRequest{RepoID: "  "})
	assert.ErrorIs(t, err, ErrMissingRepoID)

	_, err = o.Start(context.Background(), StartRequest{RepoID: "../etc"})
	assert.ErrorIs(t, err, ErrInvalidRepoID)
}

func TestScan_Completes(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	dir := cxtest.WriteFixtureRepo(t, map[string]string{
		"src/users.ts": fixtureRoutes,
		"web/App.tsx":  `export const App = () => <Route path="/settings" element={<S />} />` + "\n",
		"lib/util.py":  "def f():\n    return 1\n",
	})
	cxtest.InsertTestConnection(t, store, "acme", dir)

	idx := &recordingIndexer{}
	o := NewOrchestrator(store, localArchives(t), nil, WithIndexer(idx))
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusQueued, rec.Status)
	assert.Len(t, rec.ID, 36)

	final := waitDone(t, o, rec.ID)
	require.Equal(t, ingestion.StatusCompleted, final.Status, "errors: %v", final.Errors)
	assert.Equal(t, archive.LocalBranch, final.Branch)
	assert.Equal(t, 3, final.Metrics.FilesParsed)
	assert.Len(t, final.Files, final.Metrics.FilesParsed)
	assert.Contains(t, final.Files, "src/users.ts")
	assert.Equal(t, 2, final.Metrics.EndpointsDetected)
	assert.Equal(t, 1, final.Metrics.ClientRoutesDetected)
	assert.Equal(t, 1, final.Metrics.EventsDetected)
	assert.Equal(t, 1, final.Metrics.TypesDetected)
	assert.Positive(t, final.Metrics.TokensUsed)
	require.NotNil(t, final.CompletedAt)
	assert.Empty(t, final.Errors)

	nodes := cxtest.QueryNodes(t, store, "acme")
	assert.NotEmpty(t, nodes)
	for _, n := range nodes {
		assert.Equal(t, rec.ID, n.ScanID)
	}
	assert.Len(t, idx.nodes, len(nodes))

	stored, err := store.GetScan(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusCompleted, stored.Status)

	latest, err := o.Latest(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, latest.ID)

	list, err := o.List(context.Background(), "acme", 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	active, err := o.Active(context.Background())
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestScan_ProgressIsMonotonic(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	files := map[string]string{}
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		files["src/"+name+".ts"] = fixtureRoutes
	}
	dir := cxtest.WriteFixtureRepo(t, files)
	cxtest.InsertTestConnection(t, store, "acme", dir)

	gate := make(chan struct{})
	archives := localArchives(t)
	gated := archivesFunc(func(ctx context.Context, conn archive.Connection, branch string) (*archive.Snapshot, error) {
		<-gate
		return archives.Acquire(ctx, conn, branch)
	})
	o := NewOrchestrator(store, gated, nil,
		WithPipelineConfig(ingestion.PipelineConfig{MaxFiles: 4, FlushEvery: 2}))
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	events, stop := o.Subscribe(rec.ID)
	defer stop()
	close(gate)

	order := map[ingestion.ScanStatus]int{
		ingestion.StatusQueued: 0, ingestion.StatusParsing: 1, ingestion.StatusEmbedding: 2,
		ingestion.StatusGenerating: 3, ingestion.StatusCompleted: 4,
	}
	lastStatus, lastFiles := -1, 0
	timeout := time.After(10 * time.Second)
	for {
		select {
		case ev := <-events:
			require.Equal(t, rec.ID, ev.ScanID)
			pos := order[ev.Scan.Status]
			assert.GreaterOrEqual(t, pos, lastStatus)
			assert.GreaterOrEqual(t, ev.Scan.Metrics.FilesParsed, lastFiles)
			lastStatus, lastFiles = pos, ev.Scan.Metrics.FilesParsed
			if ev.Scan.Status == ingestion.StatusCompleted {
				assert.Equal(t, 4, ev.Scan.Metrics.FilesParsed, "walk is capped")
				return
			}
		case <-timeout:
			t.Fatal("scan did not complete")
		}
	}
}

func TestScan_Cancel(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	cxtest.InsertTestConnection(t, store, "acme", t.TempDir())

	entered := make(chan struct{})
	blocking := archivesFunc(func(ctx context.Context, _ archive.Connection, _ string) (*archive.Snapshot, error) {
		close(entered)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := NewOrchestrator(store, blocking, nil)
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	<-entered

	require.NoError(t, o.Cancel(context.Background(), rec.ID))
	final := waitDone(t, o, rec.ID)
	assert.Equal(t, ingestion.StatusError, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, StageCancel, final.Errors[0].Stage)

	// Canceling again is acknowledged and changes nothing.
	require.NoError(t, o.Cancel(context.Background(), rec.ID))
	again, err := o.Get(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Len(t, again.Errors, 1)

	assert.ErrorIs(t, o.Cancel(context.Background(), "missing"), ErrScanNotFound)
}

// lateCancelRegistry raises the cancel flag from inside the next
// IsCanceled call once armed, while still answering false to that call.
type lateCancelRegistry struct {
	*MemoryRegistry
	armed atomic.Bool
}

func (r *lateCancelRegistry) IsCanceled(id string) bool {
	if r.armed.CompareAndSwap(true, false) {
		r.MemoryRegistry.CancelFlag(id)
		return false
	}
	return r.MemoryRegistry.IsCanceled(id)
}

type armingIndexer struct {
	reg *lateCancelRegistry
}

func (a armingIndexer) Index([]ingestion.DocumentationNode) error {
	a.reg.armed.Store(true)
	return nil
}

func TestScan_CancelBeforeCompletionStillEndsInError(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	dir := cxtest.WriteFixtureRepo(t, map[string]string{"src/users.ts": fixtureRoutes})
	cxtest.InsertTestConnection(t, store, "acme", dir)

	reg := &lateCancelRegistry{MemoryRegistry: NewMemoryRegistry(0)}
	o := NewOrchestrator(store, localArchives(t), nil, WithRegistry(reg), WithIndexer(armingIndexer{reg}))
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	final := waitDone(t, o, rec.ID)
	assert.Equal(t, ingestion.StatusError, final.Status)
	require.Len(t, final.Errors, 1)
	assert.Equal(t, StageCancel, final.Errors[0].Stage)
}

// cancelingNodes cancels the scan while its batch write is in flight.
type cancelingNodes struct {
	*storage.SQLStore
	orch  func() *Orchestrator
	scan  func() string
	ctxOK atomic.Bool
}

func (c *cancelingNodes) SaveDocNodes(ctx context.Context, nodes []ingestion.DocumentationNode) error {
	if err := c.orch().Cancel(context.Background(), c.scan()); err != nil {
		return err
	}
	c.ctxOK.Store(ctx.Err() == nil)
	return c.SQLStore.SaveDocNodes(ctx, nodes)
}

func TestScan_CancelDoesNotInterruptBatchWrite(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	dir := cxtest.WriteFixtureRepo(t, map[string]string{"src/users.ts": fixtureRoutes})
	cxtest.InsertTestConnection(t, store, "acme", dir)

	var (
		o      *Orchestrator
		scanID atomic.Value
	)
	nodes := &cancelingNodes{
		SQLStore: store,
		orch:     func() *Orchestrator { return o },
		scan:     func() string { return scanID.Load().(string) },
	}
	// Hold the archive until the scan id is known to the store wrapper.
	gate := make(chan struct{})
	archives := localArchives(t)
	gated := archivesFunc(func(ctx context.Context, conn archive.Connection, branch string) (*archive.Snapshot, error) {
		<-gate
		return archives.Acquire(ctx, conn, branch)
	})
	o = NewOrchestrator(nodes, gated, nil)
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	scanID.Store(rec.ID)
	close(gate)

	final := waitDone(t, o, rec.ID)
	assert.True(t, nodes.ctxOK.Load(), "batch write saw a canceled context")
	assert.True(t, final.HasErrorStage(StageCancel))

	// The store is still usable after the cancel.
	assert.NotEmpty(t, cxtest.QueryNodes(t, store, "acme"))
	stored, err := store.GetScan(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusError, stored.Status)
}

func TestScan_ArchiveFailure(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	o := NewOrchestrator(store, localArchives(t), nil)
	defer o.Close()

	// No connection for this repository.
	rec, err := o.Start(context.Background(), StartRequest{RepoID: "ghost"})
	require.NoError(t, err)
	final := waitDone(t, o, rec.ID)
	assert.Equal(t, ingestion.StatusError, final.Status)
	assert.True(t, final.HasErrorStage(StageParsing))
}

func TestScan_PersistFailure(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	dir := cxtest.WriteFixtureRepo(t, map[string]string{"src/users.ts": fixtureRoutes})
	cxtest.InsertTestConnection(t, store, "acme", dir)

	o := NewOrchestrator(failingNodes{store}, localArchives(t), nil)
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	final := waitDone(t, o, rec.ID)
	assert.Equal(t, ingestion.StatusError, final.Status)
	require.True(t, final.HasErrorStage(StageGenerating))
	assert.Contains(t, final.Errors[0].Message, "disk full")
	assert.Positive(t, final.Metrics.EndpointsDetected)
}

func TestScan_PanicIsRecorded(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	cxtest.InsertTestConnection(t, store, "acme", t.TempDir())
	boom := archivesFunc(func(context.Context, archive.Connection, string) (*archive.Snapshot, error) {
		panic("boom")
	})
	o := NewOrchestrator(store, boom, nil)
	defer o.Close()

	rec, err := o.Start(context.Background(), StartRequest{RepoID: "acme"})
	require.NoError(t, err)
	final := waitDone(t, o, rec.ID)
	assert.True(t, final.HasErrorStage(StageInternal))
}

func TestOrchestrator_QueriesFallBackToStore(t *testing.T) {
	store := cxtest.SetupTestStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cxtest.InsertTestScan(t, store, "old", "acme", ingestion.StatusCompleted, base)
	cxtest.InsertTestScan(t, store, "stuck", "acme", ingestion.StatusParsing, base.Add(time.Hour))

	o := NewOrchestrator(store, localArchives(t), nil)
	defer o.Close()
	ctx := context.Background()

	rec, err := o.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, ingestion.StatusCompleted, rec.Status)

	_, err = o.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrScanNotFound)

	latest, err := o.Latest(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "stuck", latest.ID)

	_, err = o.Latest(ctx, "other")
	assert.ErrorIs(t, err, ErrScanNotFound)

	active, err := o.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "stuck", active[0].ID)

	// Wait on a scan not running here returns it as stored.
	got, err := o.Wait(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, "old", got.ID)
}

func TestClampListLimit(t *testing.T) {
	assert.Equal(t, DefaultListLimit, ClampListLimit(0))
	assert.Equal(t, DefaultListLimit, ClampListLimit(-5))
	assert.Equal(t, 1, ClampListLimit(1))
	assert.Equal(t, MaxListLimit, ClampListLimit(1000))
}
