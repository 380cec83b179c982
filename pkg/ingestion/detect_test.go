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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// findNode returns the first node with the given kind and title.
func findNode(t *testing.T, nodes []DocumentationNode, kind NodeKind, title string) DocumentationNode {
	t.Helper()
	for _, n := range nodes {
		if n.Kind == kind && n.Title == title {
			return n
		}
	}
	var got []string
	for _, n := range nodes {
		got = append(got, string(n.Kind)+":"+n.Title)
	}
	require.Failf(t, "node not found", "want %s %q, got %v", kind, title, got)
	return DocumentationNode{}
}

func countKind(nodes []DocumentationNode, kind NodeKind) int {
	c := 0
	for _, n := range nodes {
		if n.Kind == kind {
			c++
		}
	}
	return c
}

func TestDetectFile_ExpressRouter(t *testing.T) {
	src := `import express from 'express'
const router = express.Router()
router.post('/orders', async (req, res) => {
  res.status(201).json(req.body)
})
export default router
`
	nodes := DetectFile("src/routes/orders.ts", []byte(src))

	route := findNode(t, nodes, KindRoute, "POST /orders")
	assert.Equal(t, "/orders", route.Path)
	assert.Equal(t, "post", route.Method())
	assert.Equal(t, "express", route.Framework())
	assert.Equal(t, "router", route.Metadata["router"])
	assert.Equal(t, "typescript", route.Metadata["language"])

	c, ok := route.PrimaryCitation()
	require.True(t, ok)
	assert.Equal(t, "src/routes/orders.ts", c.FilePath)
	assert.Equal(t, 3, c.StartLine)
	assert.Equal(t, 5, c.EndLine)

	binding := findNode(t, nodes, KindModule, "router router")
	assert.Equal(t, "src/routes/orders.ts", binding.Path)
}

func TestDetectFile_CallRoutesIgnoreNonPaths(t *testing.T) {
	src := `const cache = new Map()
cache.get('user')
params.delete('token')
app.get(` + "`/users/${id}`" + `, handler)
app.get('*', fallback)
`
	nodes := DetectFile("server.js", []byte(src))

	assert.Equal(t, 1, countKind(nodes, KindRoute))
	findNode(t, nodes, KindRoute, "GET *")
}

func TestDetectFile_RouterAcceptsRelativePaths(t *testing.T) {
	src := `const express = require('express')
const users = express.Router()
users.get('', list)
users.post('invite', invite)
router.get('users', index)
lookup.get('users')
`
	nodes := DetectFile("src/users.js", []byte(src))

	assert.Equal(t, 3, countKind(nodes, KindRoute))
	root := findNode(t, nodes, KindRoute, "GET ")
	assert.Equal(t, "", root.Path)
	assert.Equal(t, "users", root.Metadata["router"])
	findNode(t, nodes, KindRoute, "POST invite")
	findNode(t, nodes, KindRoute, "GET users")
}

func TestDetectFile_KoaAttribution(t *testing.T) {
	src := `import Router from '@koa/router'
const items = new Router()
items.get('/items', async (ctx) => {
  ctx.body = []
})
`
	nodes := DetectFile("src/items.js", []byte(src))
	route := findNode(t, nodes, KindRoute, "GET /items")
	assert.Equal(t, "koa", route.Framework())
	assert.Equal(t, "javascript", route.Metadata["language"])
}

func TestDetectFile_FastifyRouteObject(t *testing.T) {
	src := `const fastify = require('fastify')()
fastify.route({
  method: ['GET', 'HEAD'],
  url: '/health',
  handler: async () => ({ ok: true }),
})
fastify.post('/login', login)
`
	nodes := DetectFile("server.js", []byte(src))

	get := findNode(t, nodes, KindRoute, "GET /health")
	assert.Equal(t, "fastify", get.Framework())
	findNode(t, nodes, KindRoute, "HEAD /health")

	login := findNode(t, nodes, KindRoute, "POST /login")
	assert.Equal(t, "fastify", login.Framework())
}

func TestDetectFile_NestController(t *testing.T) {
	src := `import { Controller, Get, Post } from '@nestjs/common'

@Controller('users')
export class UsersController {
  @Get(':id')
  findOne() {
    return {}
  }

  @Post()
  create() {}
}
`
	nodes := DetectFile("src/users/users.controller.ts", []byte(src))

	get := findNode(t, nodes, KindRoute, "GET /users/:id")
	assert.Equal(t, "nest", get.Framework())
	assert.Equal(t, "UsersController", get.Metadata["controller"])
	assert.Equal(t, "findOne", get.Metadata["handler"])
	c, _ := get.PrimaryCitation()
	assert.GreaterOrEqual(t, c.StartLine, 5)
	assert.LessOrEqual(t, c.StartLine, 6)
	assert.Equal(t, 8, c.EndLine)

	post := findNode(t, nodes, KindRoute, "POST /users")
	assert.Equal(t, "create", post.Metadata["handler"])

	findNode(t, nodes, KindClass, "UsersController")
}

func TestDetectFile_NestControllerWithoutPrefix(t *testing.T) {
	src := `@Controller()
class HealthController {
  @Get('/status/')
  status() {}
}
`
	nodes := DetectFile("health.controller.ts", []byte(src))
	findNode(t, nodes, KindRoute, "GET /status")
}

func TestDetectFile_NextFilesystemRoutes(t *testing.T) {
	long := strings.Repeat("// line\n", 30)

	nodes := DetectFile("pages/api/users.ts", []byte(long))
	route := findNode(t, nodes, KindRoute, "GET /users")
	assert.Equal(t, "next", route.Framework())
	c, _ := route.PrimaryCitation()
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 20, c.EndLine)

	nodes = DetectFile("web/app/orders/[id]/route.ts", []byte("export async function GET() {}\n"))
	route = findNode(t, nodes, KindRoute, "GET /orders/[id]")
	c, _ = route.PrimaryCitation()
	assert.Equal(t, 1, c.EndLine)

	nodes = DetectFile("src/app/orders/page.tsx", []byte("export default function Page() { return null }\n"))
	assert.Zero(t, countKind(nodes, KindRoute))
}

func TestDetectFile_ReactRouter(t *testing.T) {
	src := `export function App() {
  return (
    <Routes>
      <Route path="/dashboard" element={<Dashboard />} />
      <Route path="/settings" element={<Settings />}></Route>
      <Route element={<Layout />} />
    </Routes>
  )
}
`
	nodes := DetectFile("src/App.tsx", []byte(src))

	dash := findNode(t, nodes, KindRoute, "ROUTE /dashboard")
	assert.Equal(t, "react-router", dash.Framework())
	assert.Equal(t, true, dash.Metadata["client"])
	c, _ := dash.PrimaryCitation()
	assert.Equal(t, 4, c.StartLine)
	assert.Equal(t, 4, c.EndLine)

	settings := findNode(t, nodes, KindRoute, "ROUTE /settings")
	c, _ = settings.PrimaryCitation()
	assert.Equal(t, 5, c.StartLine)
	assert.Equal(t, 2, countKind(nodes, KindRoute))
	findNode(t, nodes, KindFunction, "App")
}

func TestDetectFile_CreateBrowserRouter(t *testing.T) {
	withPaths := `const router = createBrowserRouter([
  { path: '/', element: <Home /> },
  { path: '/about', element: <About /> },
])
`
	nodes := DetectFile("src/router.jsx", []byte(withPaths))
	findNode(t, nodes, KindRoute, "ROUTE /")
	findNode(t, nodes, KindRoute, "ROUTE /about")

	presence := `import routes from './routes'
const router = createBrowserRouter(routes)
`
	nodes = DetectFile("src/router.jsx", []byte(presence))
	route := findNode(t, nodes, KindRoute, "ROUTE "+ReactRouterPresencePath)
	assert.Equal(t, ReactRouterPresencePath, route.Path)
}

func TestDetectFile_Events(t *testing.T) {
	src := `bus.emit('order.created', order)
socket.on('disconnect', () => cleanup())
bus.emit(name)
`
	nodes := DetectFile("src/events.ts", []byte(src))

	emit := findNode(t, nodes, KindEvent, "emit order.created")
	assert.Equal(t, "order.created", emit.Path)
	assert.Equal(t, "emit", emit.Metadata["direction"])
	findNode(t, nodes, KindEvent, "on disconnect")
	assert.Equal(t, 2, countKind(nodes, KindEvent))
}

func TestDetectFile_StructuralTS(t *testing.T) {
	src := `export interface User {
  id: string
}
type Role = 'admin' | 'user'
export class UserService {}
function helper() {}
export const handler = async (req: Request) => {}
const limit = 10
`
	nodes := DetectFile("src/user.ts", []byte(src))

	user := findNode(t, nodes, KindType, "User")
	assert.Equal(t, "src/user.ts", user.Path)
	assert.Equal(t, true, user.Metadata["exported"])
	c, _ := user.PrimaryCitation()
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 3, c.EndLine)

	findNode(t, nodes, KindType, "Role")
	findNode(t, nodes, KindClass, "UserService")
	findNode(t, nodes, KindFunction, "helper")
	findNode(t, nodes, KindFunction, "handler")
	assert.Equal(t, 2, countKind(nodes, KindFunction))
}

func TestDetectFile_SpringController(t *testing.T) {
	src := `package com.example;

@RestController
@RequestMapping("/api/users")
public class UserController {

    @GetMapping("/{id}")
    public User get(@PathVariable String id) {
        return null;
    }

    @PostMapping
    public User create(@RequestBody User user) {
        return user;
    }

    @RequestMapping(value = "/search", method = RequestMethod.PUT)
    public void search() {}
}
`
	nodes := DetectFile("src/main/java/com/example/UserController.java", []byte(src))

	get := findNode(t, nodes, KindRoute, "GET /api/users/{id}")
	assert.Equal(t, "spring", get.Framework())
	assert.Equal(t, "get", get.Metadata["handler"])
	c, _ := get.PrimaryCitation()
	assert.Equal(t, 7, c.StartLine)
	assert.Equal(t, 10, c.EndLine)

	findNode(t, nodes, KindRoute, "POST /api/users")
	findNode(t, nodes, KindRoute, "PUT /api/users/search")
	assert.Equal(t, 3, countKind(nodes, KindRoute))

	cls := findNode(t, nodes, KindClass, "UserController")
	assert.Equal(t, "java", cls.Metadata["language"])
}

func TestDetectFile_SpringPathAttribute(t *testing.T) {
	src := `@Controller
@RequestMapping(path = "orders/")
class OrderController {
    @DeleteMapping(value = {"/{id}", "/remove/{id}"})
    void remove() {}
}
interface OrderRepository {}
`
	nodes := DetectFile("OrderController.java", []byte(src))
	findNode(t, nodes, KindRoute, "DELETE /orders/{id}")
	findNode(t, nodes, KindType, "OrderRepository")
}

func TestDetectFile_UnsupportedAndBroken(t *testing.T) {
	assert.Nil(t, DetectFile("README.md", []byte("# hi")))
	assert.Nil(t, DetectFile("main.py", []byte("def main(): pass")))

	assert.NotPanics(t, func() {
		DetectFile("broken.ts", []byte("router.get('/x', (req, res => { {{{ ]"))
		DetectFile("empty.ts", nil)
		DetectFile("Broken.java", []byte("@GetMapping(\"/x\" class {"))
	})
}

func TestDetector_Standalone(t *testing.T) {
	src := []byte(`app.delete('/items/:id', remove)`)
	nodes := CallRouteDetector.Detect("app.js", src)
	require.Len(t, nodes, 1)
	assert.Equal(t, "DELETE /items/:id", nodes[0].Title)
	assert.Equal(t, "call-routes", CallRouteDetector.Name())
}

func TestFamilyFor(t *testing.T) {
	fam, ok := FamilyFor("src/App.TSX")
	require.True(t, ok)
	assert.Equal(t, "jsts", fam.Name)

	fam, ok = FamilyFor("A.java")
	require.True(t, ok)
	assert.Equal(t, "java", fam.Name)

	_, ok = FamilyFor("main.go")
	assert.False(t, ok)
}

func TestJoinRoutePath(t *testing.T) {
	assert.Equal(t, "/", joinRoutePath())
	assert.Equal(t, "/", joinRoutePath("", "/"))
	assert.Equal(t, "/users/:id", joinRoutePath("/users/", "/:id"))
	assert.Equal(t, "/a/b", joinRoutePath("a//b"))
}
