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
	"os"
	"strings"
	"time"

	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/output"
	"github.com/zeelapatel/codaxi/internal/ui"
	"github.com/zeelapatel/codaxi/pkg/docgen"
	"github.com/zeelapatel/codaxi/pkg/ingestion"
	"github.com/zeelapatel/codaxi/pkg/search"
	"github.com/zeelapatel/codaxi/pkg/storage"
)

// runDocs lists documentation nodes of a repository.
//
// Examples:
//
//	codaxi docs --repo acme-api
//	codaxi docs --repo acme-api --kind route,event --q users --page 2
func runDocs(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("docs", flag.ExitOnError)
	repo := fs.String("repo", "", "Repository id (required)")
	kinds := fs.String("kind", "", "Comma-separated kinds: route, event, type, class, function, module")
	q := fs.String("q", "", "Full-text query over titles, paths and summaries")
	page := fs.Int("page", 1, "Page number (starting at 1)")
	pageSize := fs.Int("page-size", storage.DefaultPageSize, fmt.Sprintf("Items per page (1-%d)", storage.MaxPageSize))
	reindex := fs.Bool("reindex", false, "Rebuild the search index of the repository first")
	jsonOut := fs.Bool("json", globals.JSON, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	globals.JSON = *jsonOut
	if *repo == "" {
		cxerrors.FatalError(cxerrors.NewInputError("Missing repository", "--repo is required", "codaxi docs --repo acme-api"), globals.JSON)
	}
	kindList := search.ParseKinds(*kinds)
	for _, k := range kindList {
		if !ingestion.ValidKind(k) {
			cxerrors.FatalError(cxerrors.NewInputError("Unknown kind", fmt.Sprintf("%q is not a documentation kind", k), "Use route, event, type, class, function or module"), globals.JSON)
		}
	}

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	if *reindex {
		n, err := app.Catalog.Reindex(ctx, *repo)
		if err != nil {
			fatal(app, err, "Cannot rebuild search index", globals)
		}
		if !globals.JSON {
			ui.Infof("Indexed %d nodes", n)
		}
	}

	res, err := app.Catalog.List(ctx, search.DocQuery{
		RepoID:   *repo,
		Q:        *q,
		Kinds:    kindList,
		Page:     *page,
		PageSize: *pageSize,
	})
	if err != nil {
		fatal(app, err, "Cannot list documentation", globals)
	}

	if globals.JSON {
		_ = output.JSON(res)
		return
	}
	if res.Total == 0 {
		ui.Info("No documentation nodes found. Run 'codaxi scan " + *repo + "' first.")
		return
	}
	for _, n := range res.Items {
		fmt.Println(ui.DocLine(n))
	}
	pages := (res.Total + res.PageSize - 1) / res.PageSize
	fmt.Println(ui.DimText(fmt.Sprintf("page %d/%d, %d total", res.Page, pages, res.Total)))
}

// runGenerate builds a schema for one documentation node and stores it as
// a new version.
func runGenerate(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	jsonOut := fs.Bool("json", globals.JSON, "Output the stored version as JSON")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: codaxi generate <doc-id> [--json]")
		os.Exit(1)
	}
	globals.JSON = *jsonOut

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	spinner := NewSpinner(NewProgressConfig(globals), "generating with "+app.Provider.Name())
	start := time.Now()
	v, err := app.Docs.GenerateForNode(ctx, fs.Arg(0))
	if spinner != nil {
		_ = spinner.Finish()
	}
	if err != nil {
		fatal(app, err, "Cannot generate schema", globals)
	}

	if globals.JSON {
		_ = output.JSON(v)
		return
	}
	printVersion(v)
	ui.Successf("Stored version %d in %s", v.Version, time.Since(start).Round(time.Millisecond))
}

// runVersions lists the stored schema versions of a node, newest first.
func runVersions(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("versions", flag.ExitOnError)
	latest := fs.Bool("latest", false, "Show only the latest version with its schema")
	jsonOut := fs.Bool("json", globals.JSON, "Output as JSON")
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: codaxi versions <doc-id> [--latest] [--json]")
		os.Exit(1)
	}
	globals.JSON = *jsonOut

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	if *latest {
		v, err := app.Store.LatestSchemaVersion(ctx, fs.Arg(0))
		if err != nil {
			fatal(app, err, "Cannot load schema version", globals)
		}
		if globals.JSON {
			_ = output.JSON(v)
		} else {
			printVersion(v)
		}
		return
	}

	versions, err := app.Store.ListSchemaVersions(ctx, fs.Arg(0))
	if err != nil {
		fatal(app, err, "Cannot list schema versions", globals)
	}
	if globals.JSON {
		if versions == nil {
			versions = []*docgen.SchemaVersion{}
		}
		_ = output.JSON(versions)
		return
	}
	if len(versions) == 0 {
		ui.Info("No versions yet. Run 'codaxi generate " + fs.Arg(0) + "'.")
		return
	}
	for _, v := range versions {
		fmt.Printf("v%-4d %-9s %-20s %s\n", v.Version, sourceText(v.Source), v.Model, ui.DimText(v.CreatedAt.Local().Format(time.DateTime)))
	}
}

func sourceText(o docgen.Outcome) string {
	switch o {
	case docgen.OutcomeOK:
		return ui.Green.Sprint(string(o))
	case docgen.OutcomeRepaired:
		return ui.Yellow.Sprint(string(o))
	default:
		return ui.Red.Sprint(string(o))
	}
}

func printVersion(v *docgen.SchemaVersion) {
	model := v.Model
	if model == "" {
		model = "-"
	}
	fmt.Printf("%s %s  %s %d  %s %s  %s %s\n",
		ui.Label("Doc:"), v.DocID,
		ui.Label("Version:"), v.Version,
		ui.Label("Source:"), sourceText(v.Source),
		ui.Label("Model:"), strings.TrimSpace(model),
	)
	_ = output.JSONTo(os.Stdout, v.Schema)
}
