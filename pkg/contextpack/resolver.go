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

package contextpack

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/zeelapatel/codaxi/pkg/ingestion"
)

const (
	// DefaultMaxFiles bounds the number of resolved dto contexts.
	DefaultMaxFiles = 8

	// fallbackWindow is the number of lines kept on each side of a citation
	// when no enclosing function is found.
	fallbackWindow = 10
)

// importProbes is the suffix probe order for relative import specifiers.
var importProbes = []string{
	"",
	".ts", ".tsx", ".js", ".jsx",
	"/index.ts", "/index.tsx", "/index.js", "/index.jsx",
}

var functionNodeTypes = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,

	// Java
	"method_declaration":              true,
	"constructor_declaration":         true,
	"compact_constructor_declaration": true,
	"lambda_expression":               true,
}

// Options tunes a single Build.
type Options struct {
	BudgetChars int // <= 0 uses DefaultBudgetChars
	MaxFiles    int // <= 0 uses DefaultMaxFiles
}

func (o Options) withDefaults() Options {
	if o.BudgetChars <= 0 {
		o.BudgetChars = DefaultBudgetChars
	}
	if o.MaxFiles <= 0 {
		o.MaxFiles = DefaultMaxFiles
	}
	return o
}

// Resolver builds context packs from a checked-out repository.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Build resolves node against the repository at repoRoot. A node without a
// readable primary citation yields a pack with no contexts, not an error.
func (r *Resolver) Build(ctx context.Context, repoRoot string, node ingestion.DocumentationNode, opts Options) (*ContextPack, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	method := strings.ToUpper(node.Method())
	if method == "" {
		method = "GET"
	}
	pack := &ContextPack{
		Endpoint: Endpoint{Method: method, Path: node.Path, Produces: "application/json"},
		Contexts: []CodeContext{},
		Facts:    []string{},
	}

	cite, ok := node.PrimaryCitation()
	if !ok {
		return pack, nil
	}
	rel := ingestion.NormalizePath(cite.FilePath)
	abs, ok := withinRoot(repoRoot, rel)
	if !ok {
		r.logger.Warn("contextpack.citation.outside_root", "file", cite.FilePath)
		return pack, nil
	}
	src, err := os.ReadFile(abs)
	if err != nil {
		r.logger.Debug("contextpack.citation.unreadable", "file", rel, "err", err)
		return pack, nil
	}
	lines := splitLines(string(src))

	st, err := ingestion.ParseSource(ctx, rel, src)
	if err != nil {
		st = nil
	}
	defer st.Close()

	var contexts []CodeContext
	if start, end, found := enclosingFunction(st, cite.StartLine, cite.EndLine); found {
		contexts = append(contexts, CodeContext{
			FilePath:  rel,
			Snippet:   sliceWithHeader(lines, start, end),
			Kind:      KindHandler,
			StartLine: start,
			EndLine:   end,
		})
		contexts = append(contexts, r.resolveTypes(st, repoRoot, rel, signatureTypeNames(lines, start), opts.MaxFiles)...)
	} else {
		start := max(1, cite.StartLine-fallbackWindow)
		end := min(len(lines), cite.EndLine+fallbackWindow)
		r.logger.Debug("contextpack.handler.fallback", "file", rel, "start", start, "end", end)
		contexts = append(contexts, CodeContext{
			FilePath:  rel,
			Snippet:   sliceWithHeader(lines, start, end),
			Kind:      KindHandler,
			StartLine: start,
			EndLine:   end,
		})
	}

	pack.Facts = CollectFacts(string(src))
	applyFacts(&pack.Endpoint, pack.Facts)
	pack.Contexts = Allocate(dedupeContexts(contexts), opts.BudgetChars)
	return pack, nil
}

// enclosingFunction returns the line span of the smallest function-like node
// containing start..end.
func enclosingFunction(st *ingestion.SourceTree, start, end int) (int, int, bool) {
	if st == nil {
		return 0, 0, false
	}
	bestStart, bestEnd, found := 0, 0, false
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		s, e := int(n.StartPoint().Row)+1, int(n.EndPoint().Row)+1
		if s > start || e < end {
			return
		}
		if functionNodeTypes[n.Type()] && (!found || e-s < bestEnd-bestStart) {
			bestStart, bestEnd, found = s, e, true
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			visit(n.Child(i))
		}
	}
	visit(st.Root)
	return bestStart, bestEnd, found
}

// importRef is a name imported by the handler's file.
type importRef struct {
	name string // name declared in the imported module
	from string // module specifier
}

// resolveTypes turns signature type names into dto contexts.
func (r *Resolver) resolveTypes(st *ingestion.SourceTree, repoRoot, importer string, names []string, maxFiles int) []CodeContext {
	if st == nil || len(names) == 0 || st.Grammar == "java" {
		return nil
	}
	var out []CodeContext
	for _, im := range importsFor(st, names) {
		if len(out) >= maxFiles {
			break
		}
		resolved, ok := resolveImport(repoRoot, importer, im.from)
		if !ok {
			continue
		}
		abs, _ := withinRoot(repoRoot, resolved)
		code, err := os.ReadFile(abs)
		if err != nil {
			continue
		}
		snippet, start, end, ok := extractDeclaration(string(code), im.name)
		if !ok {
			continue
		}
		out = append(out, CodeContext{
			FilePath:  resolved,
			Snippet:   snippet,
			Kind:      KindDTO,
			StartLine: start,
			EndLine:   end,
		})
	}
	return out
}

// importsFor finds import declarations binding any of names, in source
// order. Named imports with aliases resolve to the exported name.
func importsFor(st *ingestion.SourceTree, names []string) []importRef {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []importRef
	for i := 0; i < int(st.Root.NamedChildCount()); i++ {
		stmt := st.Root.NamedChild(i)
		if stmt.Type() != "import_statement" {
			continue
		}
		source := stmt.ChildByFieldName("source")
		if source == nil {
			continue
		}
		from := strings.Trim(st.Text(source), "'\"`")

		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			clause := stmt.NamedChild(j)
			if clause.Type() != "import_clause" {
				continue
			}
			for k := 0; k < int(clause.NamedChildCount()); k++ {
				part := clause.NamedChild(k)
				switch part.Type() {
				case "identifier":
					if local := st.Text(part); want[local] {
						out = append(out, importRef{name: local, from: from})
					}
				case "named_imports":
					for m := 0; m < int(part.NamedChildCount()); m++ {
						spec := part.NamedChild(m)
						if spec.Type() != "import_specifier" {
							continue
						}
						imported := st.Text(spec.ChildByFieldName("name"))
						local := imported
						if alias := spec.ChildByFieldName("alias"); alias != nil {
							local = st.Text(alias)
						}
						if want[local] {
							out = append(out, importRef{name: imported, from: from})
						}
					}
				}
			}
		}
	}
	return out
}

// resolveImport maps a relative or root-absolute specifier to a file path
// relative to repoRoot. Candidates relative to the importer are probed
// before candidates relative to the repository root. Bare package
// specifiers are not resolved.
func resolveImport(repoRoot, importer, spec string) (string, bool) {
	if !strings.HasPrefix(spec, ".") && !strings.HasPrefix(spec, "/") {
		return "", false
	}
	bases := []string{
		path.Join(path.Dir(importer), spec),
		path.Clean(strings.TrimPrefix(spec, "/")),
	}
	for _, base := range bases {
		for _, probe := range importProbes {
			candidate := path.Clean(base + probe)
			abs, ok := withinRoot(repoRoot, candidate)
			if !ok {
				continue
			}
			if info, err := os.Stat(abs); err == nil && info.Mode().IsRegular() {
				return candidate, true
			}
		}
	}
	return "", false
}

// withinRoot joins a slash-separated relative path to root and reports
// whether the result stays inside root.
func withinRoot(root, rel string) (string, bool) {
	if rel == "" || rel == "." {
		return "", false
	}
	abs := filepath.Join(root, filepath.FromSlash(rel))
	r, err := filepath.Rel(root, abs)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", false
	}
	return abs, true
}

// dedupeContexts keeps the first context per (filePath, kind).
func dedupeContexts(in []CodeContext) []CodeContext {
	seen := make(map[string]bool, len(in))
	out := make([]CodeContext, 0, len(in))
	for _, c := range in {
		key := fmt.Sprintf("%s|%s", c.FilePath, c.Kind)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, c)
	}
	return out
}
