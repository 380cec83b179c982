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
)

func TestEnrich_RouteSummaryAndPreview(t *testing.T) {
	src := []byte(`import express from 'express'
const app = express()
app.get('/a', (req, res) => res.send('<b>hi</b>'))
`)
	nodes := DetectFile("index.js", src)
	Enrich(nodes, src)

	route := findNode(t, nodes, KindRoute, "GET /a")
	assert.Equal(t, "GET /a (express)", route.Summary)
	assert.Equal(t, "<pre><code>app.get(&#39;/a&#39;, (req, res) =&gt; res.send(&#39;&lt;b&gt;hi&lt;/b&gt;&#39;))</code></pre>", route.HTML)
}

func TestEnrich_PreviewIsCapped(t *testing.T) {
	var b strings.Builder
	b.WriteString("export function big() {\n")
	for i := 0; i < 100; i++ {
		b.WriteString("  step()\n")
	}
	b.WriteString("}\n")
	src := []byte(b.String())

	nodes := DetectFile("big.ts", src)
	Enrich(nodes, src)

	fn := findNode(t, nodes, KindFunction, "big")
	assert.Equal(t, "function big", fn.Summary)
	body := strings.TrimSuffix(strings.TrimPrefix(fn.HTML, "<pre><code>"), "</code></pre>")
	assert.Equal(t, previewMaxLines, strings.Count(body, "\n")+1)
}

func TestSummarize(t *testing.T) {
	client := DocumentationNode{Kind: KindRoute, Path: "/home", Metadata: map[string]any{"framework": "react-router"}}
	assert.Equal(t, "ROUTE /home (react-router)", Summarize(client))

	bare := DocumentationNode{Kind: KindRoute, Path: "/x", Metadata: map[string]any{"method": "PATCH"}}
	assert.Equal(t, "PATCH /x", Summarize(bare))

	event := DocumentationNode{Kind: KindEvent, Title: "emit a"}
	assert.Equal(t, "event emit a", Summarize(event))
}
