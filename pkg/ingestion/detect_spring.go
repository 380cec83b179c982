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
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// ANNOTATION CONTROLLERS (Spring)
// =============================================================================

var springVerbs = map[string]string{
	"GetMapping":    "get",
	"PostMapping":   "post",
	"PutMapping":    "put",
	"DeleteMapping": "delete",
	"PatchMapping":  "patch",
}

// javaAnnotation is a parsed @Name or @Name(args) annotation.
type javaAnnotation struct {
	name       string
	positional *sitter.Node
	pairs      map[string]*sitter.Node
}

// detectSpringControllers finds mapping annotations on methods and joins
// them with the class-level @RequestMapping base path.
func detectSpringControllers(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	walkTree(st.Root, func(n *sitter.Node) bool {
		if n.Type() != "class_declaration" {
			return true
		}
		className := st.Text(n.ChildByFieldName("name"))

		var base string
		for _, a := range javaAnnotations(st, n) {
			if a.name == "RequestMapping" {
				base = a.path(st)
				break
			}
		}

		body := n.ChildByFieldName("body")
		if body == nil {
			return false
		}
		for _, m := range childrenOfType(body, "method_declaration") {
			for _, a := range javaAnnotations(st, m) {
				verb, ok := springVerbs[a.name]
				if !ok && a.name == "RequestMapping" {
					verb, ok = a.requestMethod(st), true
				}
				if !ok {
					continue
				}
				path := joinRoutePath(base, a.path(st))
				nodes = append(nodes, routeNode(f.Path, m, verb, path, map[string]any{
					"method":     verb,
					"framework":  "spring",
					"controller": className,
					"handler":    st.Text(m.ChildByFieldName("name")),
					"language":   "java",
				}))
			}
		}
		// Nested classes are visited with their own base path.
		return true
	})
	return nodes
}

// javaAnnotations returns the annotations in a declaration's modifiers.
func javaAnnotations(st *SourceTree, decl *sitter.Node) []javaAnnotation {
	var out []javaAnnotation
	for _, mods := range childrenOfType(decl, "modifiers") {
		for i := 0; i < int(mods.NamedChildCount()); i++ {
			a := mods.NamedChild(i)
			if a.Type() != "annotation" && a.Type() != "marker_annotation" {
				continue
			}
			name := st.Text(a.ChildByFieldName("name"))
			if idx := strings.LastIndex(name, "."); idx >= 0 {
				name = name[idx+1:]
			}
			ja := javaAnnotation{name: name, pairs: make(map[string]*sitter.Node)}
			if args := a.ChildByFieldName("arguments"); args != nil {
				for j := 0; j < int(args.NamedChildCount()); j++ {
					arg := args.NamedChild(j)
					if arg.Type() == "element_value_pair" {
						ja.pairs[st.Text(arg.ChildByFieldName("key"))] = arg.ChildByFieldName("value")
					} else if ja.positional == nil {
						ja.positional = arg
					}
				}
			}
			out = append(out, ja)
		}
	}
	return out
}

// path returns the positional, value= or path= string of a mapping.
func (a javaAnnotation) path(st *SourceTree) string {
	for _, n := range []*sitter.Node{a.positional, a.pairs["value"], a.pairs["path"]} {
		if s, ok := firstStringOf(st, n); ok {
			return s
		}
	}
	return ""
}

// requestMethod reads method = RequestMethod.X (or an array of them).
// A mapping without a method defaults to get.
func (a javaAnnotation) requestMethod(st *SourceTree) string {
	m := a.pairs["method"]
	if m != nil && m.Type() == "element_value_array_initializer" {
		m = firstNamed(m)
	}
	if m == nil {
		return "get"
	}
	text := st.Text(m)
	if idx := strings.LastIndex(text, "."); idx >= 0 {
		text = text[idx+1:]
	}
	verb := strings.ToLower(strings.TrimSpace(text))
	if !routeVerbs[verb] {
		return "get"
	}
	return verb
}
