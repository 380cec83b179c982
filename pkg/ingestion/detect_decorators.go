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
// DECORATOR CONTROLLERS (Nest)
// =============================================================================

var nestVerbs = map[string]string{
	"Get":    "get",
	"Post":   "post",
	"Put":    "put",
	"Delete": "delete",
	"Patch":  "patch",
}

// decoratorCall is a parsed @Name(args...) decorator.
type decoratorCall struct {
	name string
	args *sitter.Node
}

// detectNestControllers finds @Controller classes and their @Get/@Post/...
// methods.
func detectNestControllers(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	walkTree(st.Root, func(n *sitter.Node) bool {
		if n.Type() != "class_declaration" && n.Type() != "abstract_class_declaration" {
			return true
		}
		prefix, ok := controllerPrefix(st, n)
		if !ok {
			return true
		}
		className := st.Text(n.ChildByFieldName("name"))
		body := n.ChildByFieldName("body")
		if body == nil {
			return false
		}

		var pending []*sitter.Node
		for i := 0; i < int(body.ChildCount()); i++ {
			child := body.Child(i)
			switch child.Type() {
			case "decorator":
				pending = append(pending, child)
				continue
			case "method_definition":
				decs := append(pending, childrenOfType(child, "decorator")...)
				nodes = append(nodes, nestRoutes(f, child, className, prefix, decs)...)
			}
			if child.IsNamed() {
				pending = nil
			}
		}
		return false
	})
	return nodes
}

// controllerPrefix returns the @Controller prefix of a class. Decorators of
// an exported class are attached to the export statement.
func controllerPrefix(st *SourceTree, class *sitter.Node) (string, bool) {
	decs := childrenOfType(class, "decorator")
	if parent := class.Parent(); parent != nil && parent.Type() == "export_statement" {
		decs = append(childrenOfType(parent, "decorator"), decs...)
	}
	for _, d := range decs {
		dc := parseDecorator(st, d)
		if dc.name != "Controller" {
			continue
		}
		arg := firstNamed(dc.args)
		if arg != nil && arg.Type() == "object" {
			arg = objectPairs(st, arg)["path"]
		}
		prefix, _ := firstStringOf(st, arg)
		return prefix, true
	}
	return "", false
}

func nestRoutes(f *SourceFile, method *sitter.Node, className, prefix string, decs []*sitter.Node) []DocumentationNode {
	st := f.Tree()
	var nodes []DocumentationNode
	for _, d := range decs {
		dc := parseDecorator(st, d)
		verb, ok := nestVerbs[dc.name]
		if !ok {
			continue
		}
		sub, _ := firstStringOf(st, firstNamed(dc.args))
		path := joinRoutePath(prefix, sub)
		nodes = append(nodes, routeNode(f.Path, method, verb, path, map[string]any{
			"method":     verb,
			"framework":  "nest",
			"controller": className,
			"handler":    st.Text(method.ChildByFieldName("name")),
			"language":   f.Language(),
		}))
	}
	return nodes
}

// parseDecorator reads @Name, @Name(...) and @ns.Name(...).
func parseDecorator(st *SourceTree, d *sitter.Node) decoratorCall {
	expr := firstNamed(d)
	if expr == nil {
		return decoratorCall{}
	}
	var dc decoratorCall
	if expr.Type() == "call_expression" {
		dc.args = expr.ChildByFieldName("arguments")
		expr = expr.ChildByFieldName("function")
	}
	if expr == nil {
		return decoratorCall{}
	}
	if expr.Type() == "member_expression" {
		expr = expr.ChildByFieldName("property")
	}
	dc.name = st.Text(expr)
	return dc
}

// firstStringOf returns n's value when it is a static string, or the first
// static string of an array literal.
func firstStringOf(st *SourceTree, n *sitter.Node) (string, bool) {
	if n == nil {
		return "", false
	}
	if s, ok := stringValue(st, n); ok {
		return s, true
	}
	if n.Type() == "array" || n.Type() == "element_value_array_initializer" {
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if s, ok := stringValue(st, n.NamedChild(i)); ok {
				return s, true
			}
		}
	}
	return "", false
}

// joinRoutePath joins path segments with single slashes and a leading slash.
// Empty segments are dropped; joinRoutePath() is "/".
func joinRoutePath(parts ...string) string {
	var segs []string
	for _, p := range parts {
		p = strings.Trim(p, "/")
		if p != "" {
			segs = append(segs, p)
		}
	}
	out := "/" + strings.Join(segs, "/")
	for strings.Contains(out, "//") {
		out = strings.ReplaceAll(out, "//", "/")
	}
	return out
}

func childrenOfType(n *sitter.Node, typ string) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.ChildCount()); i++ {
		if c := n.Child(i); c.Type() == typ {
			out = append(out, c)
		}
	}
	return out
}

func firstNamed(n *sitter.Node) *sitter.Node {
	if n == nil || n.NamedChildCount() == 0 {
		return nil
	}
	return n.NamedChild(0)
}
