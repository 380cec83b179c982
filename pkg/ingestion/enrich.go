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
	"fmt"
	"html"
	"strings"
)

// previewMaxLines caps the HTML preview of a node.
const previewMaxLines = 40

// Enrich fills Summary and HTML on nodes detected in src. Every node's
// primary citation must point into src.
func Enrich(nodes []DocumentationNode, src []byte) {
	lines := strings.Split(string(src), "\n")
	for i := range nodes {
		nodes[i].Summary = Summarize(nodes[i])
		if c, ok := nodes[i].PrimaryCitation(); ok {
			nodes[i].HTML = previewHTML(lines, c.StartLine, c.EndLine)
		}
	}
}

// Summarize returns the one-line summary of a node.
func Summarize(n DocumentationNode) string {
	if n.Kind != KindRoute {
		return fmt.Sprintf("%s %s", n.Kind, n.Title)
	}
	method := strings.ToUpper(n.Method())
	if method == "" {
		method = "ROUTE"
	}
	if fw := n.Framework(); fw != "" {
		return fmt.Sprintf("%s %s (%s)", method, n.Path, fw)
	}
	return fmt.Sprintf("%s %s", method, n.Path)
}

func previewHTML(lines []string, start, end int) string {
	if start < 1 {
		start = 1
	}
	end = min(end, len(lines), start+previewMaxLines-1)
	if end < start {
		return ""
	}
	body := strings.Join(lines[start-1:end], "\n")
	return "<pre><code>" + html.EscapeString(body) + "</code></pre>"
}
