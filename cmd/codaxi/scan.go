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
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/output"
	"github.com/zeelapatel/codaxi/internal/ui"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/scan"
)

// runScan executes the 'scan' CLI command: it starts a scan and follows
// its progress until it finishes. Ctrl-C cancels the scan.
//
// With --server the scan is started on a running `codaxi serve` instead
// and the command returns immediately.
//
// Examples:
//
//	codaxi scan acme-api
//	codaxi scan acme-api --branch develop --json
//	codaxi scan acme-api --server :8080
func runScan(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	branch := fs.String("branch", "", "Branch to scan (default: connection branch, then repository default)")
	server := fs.String("server", "", "Start the scan on a running server instead (URL or :port)")
	jsonOut := fs.Bool("json", globals.JSON, "Output the final scan as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codaxi scan <repo-id> [options]

Scans a registered repository and prints the detected counts.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	globals.JSON = *jsonOut
	if globals.JSON {
		globals.Quiet = true
	}
	req := scan.StartRequest{RepoID: fs.Arg(0), Branch: *branch}

	if *server != "" {
		var rec ingestion.ScanRecord
		if err := newAPIClient(*server).do(context.Background(), http.MethodPost, "/api/scans", map[string]string{"repoId": req.RepoID, "branch": req.Branch}, &rec); err != nil {
			cxerrors.FatalError(err, globals.JSON)
		}
		printScan(&rec, globals)
		return
	}

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	rec, err := app.Scans.Start(ctx, req)
	if err != nil {
		fatal(app, err, "Cannot start scan", globals)
	}
	if !globals.JSON {
		ui.Infof("Scan %s started for %s", rec.ID, rec.RepoID)
	}

	final := followScan(ctx, app.Scans, rec.ID, NewProgressConfig(globals), globals.Quiet)
	printScan(final, globals)
	if final.Status == ingestion.StatusError {
		_ = app.Close()
		os.Exit(cxerrors.ExitInternal)
	}
}

// followScan renders progress until the scan is terminal. The first
// interrupt requests cancellation; the scan still reports its final state.
func followScan(ctx context.Context, scans *scan.Orchestrator, id string, cfg ProgressConfig, quiet bool) *ingestion.ScanRecord {
	events, unsubscribe := scans.Subscribe(id)
	defer unsubscribe()

	type result struct {
		rec *ingestion.ScanRecord
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := scans.Wait(ctx, id)
		done <- result{rec, err}
	}()

	interrupt, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	sig := interrupt.Done()

	progress := newScanProgress(cfg, quiet)
	defer progress.Finish()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			progress.Update(ev)
		case <-sig:
			sig = nil
			if !quiet {
				ui.Warning("Canceling scan...")
			}
			_ = scans.Cancel(context.Background(), id)
		case r := <-done:
			if r.err != nil {
				cxerrors.FatalError(r.err, false)
			}
			progress.Update(scan.ProgressEvent{ScanID: id, Scan: r.rec})
			return r.rec
		}
	}
}

func printScan(rec *ingestion.ScanRecord, globals GlobalFlags) {
	if globals.JSON {
		_ = output.JSON(rec)
		return
	}
	fmt.Print(ui.ScanDetails(rec))
}

// runStatus shows one scan from the store.
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	jsonOut := fs.Bool("json", globals.JSON, "Output as JSON")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: codaxi status <scan-id> [--json]\n\nOptions:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	globals.JSON = *jsonOut

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	rec, err := app.Scans.Get(ctx, fs.Arg(0))
	if err != nil {
		fatal(app, err, "Cannot load scan", globals)
	}
	printScan(rec, globals)
}

// runScans lists scans of a repository, or active scans with --active.
func runScans(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("scans", flag.ExitOnError)
	repo := fs.String("repo", "", "Repository id")
	limit := fs.Int("limit", scan.DefaultListLimit, fmt.Sprintf("Maximum scans to list (1-%d)", scan.MaxListLimit))
	active := fs.Bool("active", false, "List scans that have not finished")
	jsonOut := fs.Bool("json", globals.JSON, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.JSON = *jsonOut
	if !*active && *repo == "" {
		cxerrors.FatalError(cxerrors.NewInputError("Missing repository", "--repo is required unless --active is set", "codaxi scans --repo acme-api"), globals.JSON)
	}

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	var (
		recs []*ingestion.ScanRecord
		err  error
	)
	if *active {
		recs, err = app.Scans.Active(ctx)
		if err == nil && *repo != "" {
			recs = filterRepo(recs, *repo)
		}
	} else {
		recs, err = app.Scans.List(ctx, *repo, scan.ClampListLimit(*limit))
	}
	if err != nil {
		fatal(app, err, "Cannot list scans", globals)
	}

	if globals.JSON {
		if recs == nil {
			recs = []*ingestion.ScanRecord{}
		}
		_ = output.JSON(recs)
		return
	}
	if len(recs) == 0 {
		ui.Info("No scans found.")
		return
	}
	for _, r := range recs {
		fmt.Println(ui.ScanLine(r))
	}
}

func filterRepo(recs []*ingestion.ScanRecord, repoID string) []*ingestion.ScanRecord {
	out := recs[:0]
	for _, r := range recs {
		if r.RepoID == repoID {
			out = append(out, r)
		}
	}
	return out
}

// runCancel asks a running server to cancel a scan. Scans only run inside
// the process that started them, so cancellation goes through the API.
func runCancel(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	server := fs.String("server", "", "Server running the scan (default: server.addr from the configuration)")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: codaxi cancel <scan-id> [--server URL]")
		os.Exit(1)
	}
	addr := *server
	if addr == "" {
		cfg, err := LoadConfig(globals.Config)
		if err != nil {
			cxerrors.FatalError(err, globals.JSON)
		}
		addr = cfg.Server.Addr
		if addr == "" {
			addr = DefaultServerAddr
		}
	}

	id := fs.Arg(0)
	if err := newAPIClient(addr).do(context.Background(), http.MethodPost, "/api/scans/"+id+"/cancel", nil, nil); err != nil {
		cxerrors.FatalError(err, globals.JSON)
	}
	if globals.JSON {
		_ = output.JSON(output.OK(map[string]string{"id": id}, "cancellation requested"))
		return
	}
	ui.Successf("Cancellation requested for %s", id)
}
