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

package docgen

import (
	"fmt"
	"strings"

	"github.com/zeelapatel/codaxi/pkg/contextpack"
)

const systemPrompt = `You are an API documentation assistant. Given an endpoint, heuristic facts and related code snippets, infer request parameters, a request body schema with an example, possible responses with examples, and common error codes.
Return ONLY a JSON object with exactly these keys:
{
  "params": {"path": {}, "query": {}, "headers": {}},
  "requestSchema": {},
  "requestExample": {},
  "responses": {"<status>": {"contentType": "application/json", "schema": {}, "example": {}}},
  "errors": [{"status": 400, "code": "BadRequest", "message": "...", "example": {}}]
}
Response keys are 3-digit HTTP status codes. Do not add commentary.`

const repairPrompt = `Your previous answer could not be parsed. Return only a single JSON object with the keys params, requestSchema, requestExample, responses, errors. No commentary and no code fences.`

// userMessage renders the endpoint, facts and labeled contexts.
func userMessage(pack *contextpack.ContextPack) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Endpoint: %s %s\n", pack.Endpoint.Method, pack.Endpoint.Path)
	if pack.Endpoint.Consumes != "" {
		fmt.Fprintf(&sb, "Consumes: %s\n", pack.Endpoint.Consumes)
	}

	sb.WriteString("\nFacts:\n")
	if len(pack.Facts) == 0 {
		sb.WriteString("- none\n")
	}
	for _, f := range pack.Facts {
		fmt.Fprintf(&sb, "- %s\n", f)
	}

	if len(pack.Contexts) > 0 {
		sb.WriteString("\nContexts:\n")
		for i, c := range pack.Contexts {
			if i > 0 {
				sb.WriteString("\n")
			}
			fmt.Fprintf(&sb, "// [%s] %s\n%s\n", c.Kind, c.FilePath, strings.TrimRight(c.Snippet, "\n"))
		}
	}
	return sb.String()
}
