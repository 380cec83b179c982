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
// CALL-BASED ROUTING (express, koa, fastify)
// =============================================================================

var routeVerbs = map[string]bool{
	"get": true, "post": true, "put": true, "delete": true,
	"patch": true, "options": true, "head": true,
}

// detectCallRoutes finds obj.<verb>('/path', ...) calls, fastify
// obj.route({method, url}) objects and router factory bindings.
func detectCallRoutes(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}

	bindings := make(map[string]bool)
	var nodes []DocumentationNode

	for _, b := range routerBindings(st) {
		name := st.Text(b.ChildByFieldName("name"))
		bindings[name] = true
		nodes = append(nodes, DocumentationNode{
			Kind:      KindModule,
			Path:      f.Path,
			Title:     "router " + name,
			Citations: []Citation{citationFor(f.Path, b)},
			Metadata: map[string]any{
				"binding":   name,
				"framework": callFramework(f, name),
				"language":  f.Language(),
			},
		})
	}

	walkTree(st.Root, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		receiver, prop, ok := memberCall(st, n)
		if !ok {
			return true
		}

		if routeVerbs[prop] {
			path, ok := stringValue(st, firstArgument(n))
			if !ok || !(routeReceivers[receiver] || bindings[receiver] || looksLikeRoutePath(path)) {
				return true
			}
			meta := map[string]any{
				"method":    prop,
				"framework": callFramework(f, receiver),
				"language":  f.Language(),
			}
			if bindings[receiver] {
				meta["router"] = receiver
			}
			nodes = append(nodes, routeNode(f.Path, n, prop, path, meta))
			return true
		}

		if prop == "route" {
			nodes = append(nodes, fastifyRouteObject(f, n)...)
		}
		return true
	})
	return nodes
}

// fastifyRouteObject handles fastify.route({method: 'GET', url: '/x'}).
// method may be a string or an array of strings.
func fastifyRouteObject(f *SourceFile, call *sitter.Node) []DocumentationNode {
	st := f.Tree()
	arg := firstArgument(call)
	if arg == nil || arg.Type() != "object" {
		return nil
	}
	pairs := objectPairs(st, arg)
	url, ok := stringValue(st, pairs["url"])
	if !ok {
		if url, ok = stringValue(st, pairs["path"]); !ok {
			return nil
		}
	}

	var methods []string
	if m := pairs["method"]; m != nil {
		if s, ok := stringValue(st, m); ok {
			methods = append(methods, s)
		} else if m.Type() == "array" {
			for i := 0; i < int(m.NamedChildCount()); i++ {
				if s, ok := stringValue(st, m.NamedChild(i)); ok {
					methods = append(methods, s)
				}
			}
		}
	}

	var nodes []DocumentationNode
	for _, m := range methods {
		m = strings.ToLower(m)
		if !routeVerbs[m] {
			continue
		}
		nodes = append(nodes, routeNode(f.Path, call, m, url, map[string]any{
			"method":    m,
			"framework": "fastify",
			"language":  f.Language(),
		}))
	}
	return nodes
}

// routerBindings returns the declarators binding an identifier to Router(),
// express.Router() or new Router(), in source order.
func routerBindings(st *SourceTree) []*sitter.Node {
	var out []*sitter.Node
	walkTree(st.Root, func(n *sitter.Node) bool {
		if n.Type() != "variable_declarator" {
			return true
		}
		name := n.ChildByFieldName("name")
		value := n.ChildByFieldName("value")
		if name == nil || value == nil || name.Type() != "identifier" {
			return true
		}
		if isRouterFactory(st, value) {
			out = append(out, n)
		}
		return true
	})
	return out
}

func isRouterFactory(st *SourceTree, n *sitter.Node) bool {
	var callee *sitter.Node
	switch n.Type() {
	case "call_expression":
		callee = n.ChildByFieldName("function")
	case "new_expression":
		callee = n.ChildByFieldName("constructor")
	default:
		return false
	}
	if callee == nil {
		return false
	}
	switch callee.Type() {
	case "identifier":
		return st.Text(callee) == "Router"
	case "member_expression":
		return st.Text(callee.ChildByFieldName("property")) == "Router"
	}
	return false
}

// callFramework attributes a routing call to a framework from the receiver
// name and the modules the file imports.
func callFramework(f *SourceFile, receiver string) string {
	imports := f.Imports()
	switch {
	case receiver == "fastify" || imports["fastify"]:
		return "fastify"
	case receiver == "koa" || imports["koa"] || imports["koa-router"] || imports["@koa/router"]:
		return "koa"
	}
	return "express"
}

// routeReceivers are receiver names taken to be routers whatever their path
// literal looks like, so router.get('users') and an empty path count.
var routeReceivers = map[string]bool{
	"app": true, "router": true, "server": true, "fastify": true, "koa": true,
}

// looksLikeRoutePath filters out map.get('key') style calls on other
// receivers.
func looksLikeRoutePath(p string) bool {
	return strings.HasPrefix(p, "/") || p == "*"
}

// =============================================================================
// EVENT EMITTERS
// =============================================================================

// detectEvents finds x.emit('name') and x.on('name') calls.
func detectEvents(f *SourceFile) []DocumentationNode {
	st := f.Tree()
	if st == nil {
		return nil
	}
	var nodes []DocumentationNode
	walkTree(st.Root, func(n *sitter.Node) bool {
		if n.Type() != "call_expression" {
			return true
		}
		_, prop, ok := memberCall(st, n)
		if !ok || (prop != "emit" && prop != "on") {
			return true
		}
		name, ok := stringValue(st, firstArgument(n))
		if !ok || name == "" {
			return true
		}
		nodes = append(nodes, DocumentationNode{
			Kind:      KindEvent,
			Path:      name,
			Title:     prop + " " + name,
			Citations: []Citation{citationFor(f.Path, n)},
			Metadata: map[string]any{
				"direction": prop,
				"language":  f.Language(),
			},
		})
		return true
	})
	return nodes
}

// =============================================================================
// HELPERS
// =============================================================================

// routeNode builds a route node cited at n.
func routeNode(file string, n *sitter.Node, method, path string, meta map[string]any) DocumentationNode {
	return DocumentationNode{
		Kind:      KindRoute,
		Path:      path,
		Title:     strings.ToUpper(method) + " " + path,
		Citations: []Citation{citationFor(file, n)},
		Metadata:  meta,
	}
}

// memberCall splits a call of the form a.b.c(...) into receiver "b" and
// property "c".
func memberCall(st *SourceTree, call *sitter.Node) (receiver, prop string, ok bool) {
	fn := call.ChildByFieldName("function")
	if fn == nil || fn.Type() != "member_expression" {
		return "", "", false
	}
	obj := fn.ChildByFieldName("object")
	property := fn.ChildByFieldName("property")
	if obj == nil || property == nil {
		return "", "", false
	}
	switch obj.Type() {
	case "member_expression":
		receiver = st.Text(obj.ChildByFieldName("property"))
	default:
		receiver = st.Text(obj)
	}
	return receiver, st.Text(property), true
}

// objectPairs maps the static keys of an object literal to their values.
func objectPairs(st *SourceTree, obj *sitter.Node) map[string]*sitter.Node {
	out := make(map[string]*sitter.Node)
	for i := 0; i < int(obj.NamedChildCount()); i++ {
		pair := obj.NamedChild(i)
		if pair.Type() != "pair" {
			continue
		}
		key := pair.ChildByFieldName("key")
		if key == nil {
			continue
		}
		name := st.Text(key)
		if s, ok := stringValue(st, key); ok {
			name = s
		}
		out[name] = pair.ChildByFieldName("value")
	}
	return out
}

// Imports returns the module specifiers imported or required by the file.
func (f *SourceFile) Imports() map[string]bool {
	if f.imports != nil {
		return f.imports
	}
	f.imports = make(map[string]bool)
	st := f.Tree()
	if st == nil {
		return f.imports
	}
	walkTree(st.Root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			if s, ok := stringValue(st, n.ChildByFieldName("source")); ok {
				f.imports[s] = true
			}
			return false
		case "call_expression":
			fn := n.ChildByFieldName("function")
			if fn != nil && fn.Type() == "identifier" && st.Text(fn) == "require" {
				if s, ok := stringValue(st, firstArgument(n)); ok {
					f.imports[s] = true
				}
			}
		}
		return true
	})
	return f.imports
}
