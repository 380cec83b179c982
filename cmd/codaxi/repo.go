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
	"path/filepath"
	"strings"
	"time"

	"github.com/zeelapatel/codaxi/internal/contract"
	cxerrors "github.com/zeelapatel/codaxi/internal/errors"
	"github.com/zeelapatel/codaxi/internal/output"
	"github.com/zeelapatel/codaxi/internal/ui"
	"github.com/zeelapatel/codaxi/pkg/archive"
)

// runRepo dispatches `codaxi repo add|list|enable|disable`.
func runRepo(args []string, globals GlobalFlags) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "Usage: codaxi repo <add|list|enable|disable> [options]")
		os.Exit(1)
	}
	switch args[0] {
	case "add":
		runRepoAdd(args[1:], globals)
	case "list", "ls":
		runRepoList(args[1:], globals)
	case "enable":
		runRepoSetActive(args[1:], true, globals)
	case "disable":
		runRepoSetActive(args[1:], false, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown repo command: %s\n", args[0])
		os.Exit(1)
	}
}

func runRepoAdd(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("repo add", flag.ExitOnError)
	branch := fs.String("branch", "", "Branch to scan by default (default: repository default branch)")
	token := fs.String("token", "", "GitHub token for this repository (default: GITHUB_TOKEN)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: codaxi repo add <repo-id> <source> [options]

Registers a repository. <source> is a GitHub slug (owner/name,
github:owner/name or a github.com URL) or a local directory.

Examples:
  codaxi repo add acme-api github:acme/api --branch main
  codaxi repo add acme-web https://github.com/acme/web
  codaxi repo add local-app ./services/app

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(reorderFlags(args)); err != nil {
		os.Exit(1)
	}
	if fs.NArg() != 2 {
		fs.Usage()
		os.Exit(1)
	}

	repoID := strings.TrimSpace(fs.Arg(0))
	if res := contract.ValidateRepoID(repoID); !res.OK {
		cxerrors.FatalError(cxerrors.NewInputError("Invalid repository id", res.Message, "Use letters, digits, dashes or dots, e.g. acme-api"), globals.JSON)
	}
	src, err := parseSource(fs.Arg(1))
	if err != nil {
		cxerrors.FatalError(cxerrors.NewInputError("Invalid repository source", err.Error(), "Pass owner/name for GitHub or an existing directory"), globals.JSON)
	}

	ctx := context.Background()
	cfg, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	conn := archive.Connection{
		RepoID:    repoID,
		Source:    src,
		Branch:    *branch,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if src.Type == archive.SourceGitHub {
		conn.Token = *token
		if conn.Token == "" {
			conn.Token = cfg.GitHub.Token
		}
	}
	if err := app.Store.PutConnection(ctx, conn); err != nil {
		fatal(app, err, "Cannot save repository connection", globals)
	}

	if globals.JSON {
		_ = output.JSON(conn)
		return
	}
	ui.Successf("Registered %s (%s %s)", repoID, src.Type, src.Value)
}

// parseSource interprets a repository source argument. Existing
// directories win over slugs so "./owner/name" stays local.
func parseSource(raw string) (archive.Source, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return archive.Source{}, fmt.Errorf("source is empty")
	}
	if rest, ok := strings.CutPrefix(s, "github:"); ok {
		if _, _, err := archive.ParseRepoSlug(rest); err != nil {
			return archive.Source{}, err
		}
		return archive.Source{Type: archive.SourceGitHub, Value: rest}, nil
	}
	if info, err := os.Stat(s); err == nil {
		if !info.IsDir() {
			return archive.Source{}, fmt.Errorf("%s is not a directory", s)
		}
		abs, err := filepath.Abs(s)
		if err != nil {
			return archive.Source{}, err
		}
		return archive.Source{Type: archive.SourceLocalPath, Value: abs}, nil
	}
	if _, _, err := archive.ParseRepoSlug(s); err != nil {
		return archive.Source{}, fmt.Errorf("%q is neither a directory nor a GitHub repository", s)
	}
	return archive.Source{Type: archive.SourceGitHub, Value: s}, nil
}

func runRepoList(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("repo list", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	conns, err := app.Store.ListConnections(ctx)
	if err != nil {
		fatal(app, err, "Cannot list repositories", globals)
	}
	if globals.JSON {
		if conns == nil {
			conns = []archive.Connection{}
		}
		_ = output.JSON(conns)
		return
	}
	if len(conns) == 0 {
		ui.Info("No repositories registered. Run 'codaxi repo add <id> <source>'.")
		return
	}
	for _, c := range conns {
		state := ui.Green.Sprint("active")
		if !c.Active {
			state = ui.Red.Sprint("disabled")
		}
		branch := c.Branch
		if branch == "" {
			branch = "(default)"
		}
		fmt.Printf("%-24s %-10s %-9s %s %s\n", ui.Bold.Sprint(c.RepoID), c.Source.Type, state, c.Source.Value, ui.DimText(branch))
	}
}

func runRepoSetActive(args []string, active bool, globals GlobalFlags) {
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "Usage: codaxi repo enable|disable <repo-id>")
		os.Exit(1)
	}
	ctx := context.Background()
	_, app := openApp(ctx, globals)
	defer func() { _ = app.Close() }()

	if err := app.Store.SetConnectionActive(ctx, args[0], active); err != nil {
		fatal(app, err, "Cannot update repository", globals)
	}
	if globals.JSON {
		_ = output.JSON(map[string]any{"repoId": args[0], "active": active})
		return
	}
	if active {
		ui.Successf("Enabled %s", args[0])
	} else {
		ui.Warningf("Disabled %s; scans will be rejected until it is enabled", args[0])
	}
}

// reorderFlags moves flags ahead of positional arguments so
// `repo add id src --branch x` parses like `repo add --branch x id src`.
func reorderFlags(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if strings.HasPrefix(a, "-") && len(a) > 1 {
			flags = append(flags, a)
			if !strings.Contains(a, "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") && !isBoolFlag(a) {
				flags = append(flags, args[i+1])
				i++
			}
			continue
		}
		positional = append(positional, a)
	}
	return append(flags, positional...)
}

// boolFlags lists the boolean flags of all subcommands; they take no value.
var boolFlags = map[string]bool{
	"json": true, "active": true, "reindex": true, "latest": true, "force": true, "y": true,
}

func isBoolFlag(a string) bool {
	return boolFlags[strings.TrimLeft(a, "-")]
}
