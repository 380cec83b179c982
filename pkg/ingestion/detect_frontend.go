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
	"regexp"

	sitter "github.com/smacker/go-tree-sitter"
)

// =============================================================================
// FILESYSTEM ROUTES (Next)
// =============================================================================

var (
	nextPagesAPI = regexp.MustCompile(`(?:^|/)pages/api/(.+)\.(?:t|j)sx?$`)
	nextAppRoute = regexp.MustCompile(`(?:^|/)app/(.+)/route\.(?:t|j)s$`)
)

// nextHeaderLines is the number of leading lines cited for a filesystem route.
const nextHeaderLines = 20

// detectNextRoutes infers a route from the file location alone.
func detectNextRoutes(f *SourceFile) []DocumentationNode {
	var route string
	if m := nextPagesAPI.FindStringSubmatch(f.Path); m != nil {
		route = "/" + m[1]
	} else if m := nextAppRoute.FindStringSubmatch(f.Path); m != nil {
		route = "/" + m[1]
	} else {
		return nil
	}

	end := min(nextHeaderLines, max(1, lineCount(f.Src)))
	return []DocumentationNode{{
		Kind:      KindRoute,
		Path:      route,
		Title:     "GET " + route,
		Citations: []Citation{{FilePath: f.Path, StartLine: 1, EndLine: end}},
		Metadata: map[string]any{
			"method":    "get",
			"framework": "next",
			"language":  f.Language(),
		},
	}}
}

// =============================================================================
// DECLARATIVE ROUTE COMPONENTS (react-router)
// =============================================================================

// ReactRouterPresencePath is the path of the node recorded for a
// createBrowserRouter call with no static paths.
const ReactRouterPresencePath = "(react-router)"

// detectReactRoutes finds <Route path="..."> elements and
// createBrowserRouter([...]) route objects.
func detectReactRoutes(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	walkTree(st.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "jsx_opening_element", "jsx_self_closing_element":
			if st.Text(n.ChildByFieldName("name")) != "Route" {
				return true
			}
			if path, ok := jsxStringAttr(st, n, "path"); ok && path != "" {
				node := clientRouteNode(f, n, path)
				// The leading "<" token carries the preceding whitespace, so
				// the element starts at its name.
				node.Citations[0].StartLine = startLine(n.ChildByFieldName("name"))
				nodes = append(nodes, node)
			}
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn == nil || fn.Type() != "identifier" || st.Text(fn) != "createBrowserRouter" {
				return true
			}
			paths := routeObjectPaths(st, n.ChildByFieldName("arguments"))
			if len(paths) == 0 {
				nodes = append(nodes, clientRouteNode(f, n, ReactRouterPresencePath))
			}
			for _, p := range paths {
				nodes = append(nodes, clientRouteNode(f, p.node, p.path))
			}
			return false
		}
		return true
	})
	return nodes
}

func clientRouteNode(f *SourceFile, n *sitter.Node, path string) DocumentationNode {
	return DocumentationNode{
		Kind:      KindRoute,
		Path:      path,
		Title:     "ROUTE " + path,
		Citations: []Citation{citationFor(f.Path, n)},
		Metadata: map[string]any{
			"framework": "react-router",
			"client":    true,
			"language":  f.Language(),
		},
	}
}

// jsxStringAttr returns the static value of a JSX attribute, accepting
// path="x" and path={'x'}.
func jsxStringAttr(st *SourceTree, el *sitter.Node, name string) (string, bool) {
	for _, attr := range childrenOfType(el, "jsx_attribute") {
		if attr.NamedChildCount() < 2 || st.Text(attr.NamedChild(0)) != name {
			continue
		}
		value := attr.NamedChild(1)
		if value.Type() == "jsx_expression" {
			value = firstNamed(value)
		}
		return stringValue(st, value)
	}
	return "", false
}

type routeObjectPath struct {
	path string
	node *sitter.Node
}

// routeObjectPaths collects {path: '...'} objects nested anywhere in n,
// including children arrays.
func routeObjectPaths(st *SourceTree, n *sitter.Node) []routeObjectPath {
	var out []routeObjectPath
	walkTree(n, func(c *sitter.Node) bool {
		if c.Type() != "object" {
			return true
		}
		if p, ok := stringValue(st, objectPairs(st, c)["path"]); ok && p != "" {
			out = append(out, routeObjectPath{path: p, node: c})
		}
		return true
	})
	return out
}
