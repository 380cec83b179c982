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
	"encoding/json"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/zeelapatel/codaxi/internal/contract"
	"github.com/zeelapatel/codaxi/pkg/contextpack"
)

var (
	statusKeyRe = regexp.MustCompile(`^[1-5][0-9]{2}$`)
	pathParamRe = regexp.MustCompile(`\{(\w+)\}|(?:^|/):(\w+)`)
)

// shapeKeys are the top-level keys of a usable answer.
var shapeKeys = []string{"params", "requestSchema", "requestExample", "responses", "errors"}

// parseAnswer decodes a model answer into a JSON object. Code fences and
// prose around the outermost braces are tolerated. The object must carry at
// least one of the expected top-level keys.
func parseAnswer(text string) (map[string]any, bool) {
	text = stripFences(text)
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		i, j := strings.Index(text, "{"), strings.LastIndex(text, "}")
		if i < 0 || j <= i {
			return nil, false
		}
		if err := json.Unmarshal([]byte(text[i:j+1]), &obj); err != nil {
			return nil, false
		}
	}
	for _, k := range shapeKeys {
		if _, ok := obj[k]; ok {
			return obj, true
		}
	}
	return nil, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

// normalize coerces a decoded answer into a DocSchema. Oversized values
// are replaced by the truncation placeholder.
func normalize(raw map[string]any, limit int) *DocSchema {
	clamp := func(v any) any { return contract.ClampJSON(v, limit) }

	s := &DocSchema{Responses: map[string]Response{}, Errors: []ErrorEntry{}}

	if p, ok := raw["params"].(map[string]any); ok {
		s.Params.Path = clampMap(asMap(p["path"]), clamp)
		s.Params.Query = clampMap(asMap(p["query"]), clamp)
		s.Params.Headers = clampMap(asMap(p["headers"]), clamp)
	}
	s.RequestSchema = clamp(raw["requestSchema"])
	s.RequestExample = clamp(raw["requestExample"])

	if resp, ok := raw["responses"].(map[string]any); ok {
		if isStatusMap(resp) {
			for code, v := range resp {
				if !statusKeyRe.MatchString(code) {
					continue
				}
				s.Responses[code] = toResponse(v, clamp)
			}
		} else if len(resp) > 0 {
			// A flat object is a parameter map the model misplaced.
			if s.Params.Query == nil {
				s.Params.Query = map[string]any{}
			}
			for k, v := range resp {
				if _, exists := s.Params.Query[k]; !exists {
					s.Params.Query[k] = clamp(v)
				}
			}
		}
	}

	switch errs := raw["errors"].(type) {
	case []any:
		for _, e := range errs {
			if entry, ok := toErrorEntry(e, 0, clamp); ok {
				s.Errors = append(s.Errors, entry)
			}
		}
	case map[string]any:
		codes := make([]string, 0, len(errs))
		for code := range errs {
			if statusKeyRe.MatchString(code) {
				codes = append(codes, code)
			}
		}
		sort.Strings(codes)
		for _, code := range codes {
			status, _ := strconv.Atoi(code)
			if entry, ok := toErrorEntry(errs[code], status, clamp); ok {
				s.Errors = append(s.Errors, entry)
			}
		}
	}
	return s
}

func isStatusMap(m map[string]any) bool {
	for k := range m {
		if statusKeyRe.MatchString(k) {
			return true
		}
	}
	return false
}

func toResponse(v any, clamp func(any) any) Response {
	m, ok := v.(map[string]any)
	if !ok {
		return Response{ContentType: "application/json", Example: clamp(v)}
	}
	r := Response{ContentType: "application/json", Schema: clamp(m["schema"]), Example: clamp(m["example"])}
	if ct, ok := m["contentType"].(string); ok && ct != "" {
		r.ContentType = ct
	}
	return r
}

// toErrorEntry converts one error value. status is the key it was found
// under, or 0 when it must come from the value itself.
func toErrorEntry(v any, status int, clamp func(any) any) (ErrorEntry, bool) {
	e := ErrorEntry{Status: status}
	switch x := v.(type) {
	case map[string]any:
		if e.Status == 0 {
			e.Status = statusOf(x["status"])
		}
		e.Code, _ = x["code"].(string)
		e.Message, _ = x["message"].(string)
		e.Example = clamp(x["example"])
	case string:
		e.Message = x
	}
	if e.Status < 100 || e.Status > 599 {
		return ErrorEntry{}, false
	}
	return e, true
}

func statusOf(v any) int {
	switch x := v.(type) {
	case float64:
		return int(x)
	case string:
		if statusKeyRe.MatchString(x) {
			n, _ := strconv.Atoi(x)
			return n
		}
	}
	return 0
}

func asMap(v any) map[string]any {
	m, _ := v.(map[string]any)
	return m
}

func clampMap(m map[string]any, clamp func(any) any) map[string]any {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = clamp(v)
	}
	return out
}

// applyDefaults injects conventions the model is not trusted to include.
func applyDefaults(s *DocSchema, pack *contextpack.ContextPack) {
	if s.Responses == nil {
		s.Responses = map[string]Response{}
	}
	ok := Response{ContentType: "application/json", Example: map[string]any{}}

	switch strings.ToUpper(pack.Endpoint.Method) {
	case "PUT", "PATCH":
		if !s.HasResponse("200", "204") {
			s.Responses["200"] = ok
		}
	case "POST":
		if !s.HasResponse("201", "200") {
			s.Responses["201"] = ok
		}
	default:
		if len(s.Responses) == 0 {
			s.Responses["200"] = ok
		}
	}

	if (pack.Endpoint.Auth != "" || contextpack.HasAuthFact(pack.Facts)) && !s.HasError(403) {
		s.Errors = append(s.Errors, ErrorEntry{Status: 403, Code: "Forbidden", Message: "Insufficient permissions"})
	}

	for _, name := range PathParams(pack.Endpoint.Path) {
		if s.Params.Path == nil {
			s.Params.Path = map[string]any{}
		}
		if _, exists := s.Params.Path[name]; !exists {
			s.Params.Path[name] = map[string]any{"type": "string"}
		}
	}
}

// PathParams returns the parameter names of a route path, for both {id}
// and :id segments, in order of appearance.
func PathParams(path string) []string {
	var names []string
	for _, m := range pathParamRe.FindAllStringSubmatch(path, -1) {
		if m[1] != "" {
			names = append(names, m[1])
		} else {
			names = append(names, m[2])
		}
	}
	return names
}
