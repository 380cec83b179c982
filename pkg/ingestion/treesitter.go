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
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// =============================================================================
// GRAMMARS
// =============================================================================

// extToGrammar maps file extensions to grammar names. JavaScript files use the
// javascript grammar, which accepts JSX.
var extToGrammar = map[string]string{
	".ts":   "typescript",
	".tsx":  "tsx",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".java": "java",
}

var (
	grammars     map[string]*sitter.Language
	grammarsOnce sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		grammars = map[string]*sitter.Language{
			"typescript": typescript.GetLanguage(),
			"tsx":        tsx.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"java":       java.GetLanguage(),
		}
	})
}

// GrammarForPath returns the grammar name for a file, or "" if unsupported.
func GrammarForPath(path string) string {
	return extToGrammar[strings.ToLower(filepath.Ext(path))]
}

// =============================================================================
// SOURCE TREES
// =============================================================================

// SourceTree is a parsed file. Close releases the underlying C tree.
type SourceTree struct {
	Grammar string
	Src     []byte
	Root    *sitter.Node

	tree *sitter.Tree
}

// ParseSource parses src with the grammar selected by path's extension.
// A new parser is created per call so concurrent scans never share one.
func ParseSource(ctx context.Context, path string, src []byte) (st *SourceTree, err error) {
	grammar := GrammarForPath(path)
	if grammar == "" {
		return nil, fmt.Errorf("no grammar for %s", path)
	}
	initGrammars()

	defer func() {
		if r := recover(); r != nil {
			st, err = nil, fmt.Errorf("tree-sitter panic: %v", r)
		}
	}()

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(grammars[grammar])

	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	root := tree.RootNode()
	if root == nil {
		tree.Close()
		return nil, fmt.Errorf("tree-sitter returned nil root node")
	}
	return &SourceTree{Grammar: grammar, Src: src, Root: root, tree: tree}, nil
}

// Close releases the tree. Safe on nil.
func (st *SourceTree) Close() {
	if st != nil && st.tree != nil {
		st.tree.Close()
		st.tree = nil
	}
}

// Text returns the source text covered by n.
func (st *SourceTree) Text(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	return string(st.Src[n.StartByte():n.EndByte()])
}

// =============================================================================
// NODE HELPERS
// =============================================================================

// startLine returns the 1-based first line of n.
func startLine(n *sitter.Node) int { return int(n.StartPoint().Row) + 1 }

// endLine returns the 1-based last line of n.
func endLine(n *sitter.Node) int { return int(n.EndPoint().Row) + 1 }

// citationFor builds a citation spanning n exactly.
func citationFor(path string, n *sitter.Node) Citation {
	return Citation{FilePath: path, StartLine: startLine(n), EndLine: endLine(n)}
}

// walkTree visits n and its descendants depth first. Returning false from
// visit skips the node's children.
func walkTree(n *sitter.Node, visit func(*sitter.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		walkTree(n.Child(i), visit)
	}
}

// stringValue returns the literal value of a string node. Template strings
// with substitutions are not static and yield false.
func stringValue(st *SourceTree, n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	switch n.Type() {
	case "string", "string_literal":
	case "template_string":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if n.NamedChild(i).Type() == "template_substitution" {
				return "", false
			}
		}
	default:
		return "", false
	}
	raw := st.Text(n)
	if len(raw) < 2 {
		return "", false
	}
	return raw[1 : len(raw)-1], true
}

// firstArgument returns the first named child of a call's argument list.
func firstArgument(call *sitter.Node) *sitter.Node {
	args := call.ChildByFieldName("arguments")
	if args == nil || args.NamedChildCount() == 0 {
		return nil
	}
	return args.NamedChild(0)
}

// lineCount returns the number of lines in src (a trailing newline does not
// start a new line).
func lineCount(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	n := strings.Count(string(src), "\n")
	if src[len(src)-1] != '\n' {
		n++
	}
	return n
}
