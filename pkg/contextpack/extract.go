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

package contextpack

import (
	"regexp"
	"strings"
)

// headerLines is the number of leading file lines prefixed to a handler.
const headerLines = 20

var (
	typeAnnotationRe = regexp.MustCompile(`:\s*([A-Z][A-Za-z0-9_]*)`)
	typeArgumentRe   = regexp.MustCompile(`<\s*([A-Z][A-Za-z0-9_]*)\s*>`)
)

func splitLines(s string) []string {
	return strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
}

// sliceWithHeader returns the file header, a blank line, then lines
// start..end (1-based, inclusive).
func sliceWithHeader(lines []string, start, end int) string {
	header := strings.Join(lines[:min(len(lines), headerLines)], "\n")
	start = max(1, start)
	end = min(len(lines), end)
	var body string
	if start <= end {
		body = strings.Join(lines[start-1:end], "\n")
	}
	return header + "\n\n" + body
}

// signatureTypeNames returns capitalized names annotated near a handler's
// first line, as in "(req: CreateOrder)" or "Promise<Order>".
func signatureTypeNames(lines []string, startLine int) []string {
	from := max(0, startLine-2)
	to := min(len(lines), startLine+3)
	if from >= to {
		return nil
	}
	sig := strings.Join(lines[from:to], "\n")

	var names []string
	seen := make(map[string]bool)
	for _, re := range []*regexp.Regexp{typeAnnotationRe, typeArgumentRe} {
		for _, m := range re.FindAllStringSubmatch(sig, -1) {
			if !seen[m[1]] {
				seen[m[1]] = true
				names = append(names, m[1])
			}
		}
	}
	return names
}

// extractDeclaration cuts the declaration of name out of code. It accepts
// interface, type, class and enum declarations (brace scan) and schema
// builder constants such as "const Name = z.object(" (paren scan). The
// returned lines are 1-based and include one line of context on each side.
func extractDeclaration(code, name string) (snippet string, start, end int, ok bool) {
	lines := splitLines(code)
	quoted := regexp.QuoteMeta(name)

	declRe := regexp.MustCompile(`^\s*(?:export\s+)?(?:default\s+)?(?:declare\s+)?(?:abstract\s+)?(?:interface|type|class|enum)\s+` + quoted + `\b`)
	if i := firstMatch(lines, declRe); i >= 0 {
		return capture(lines, i, scanBalanced(lines, i, '{', '}'))
	}

	schemaRe := regexp.MustCompile(`^\s*(?:export\s+)?const\s+` + quoted + `\s*=\s*z\.(?:object|array|union|string|number|boolean)\b`)
	if i := firstMatch(lines, schemaRe); i >= 0 {
		return capture(lines, i, scanBalanced(lines, i, '(', ')'))
	}
	return "", 0, 0, false
}

func firstMatch(lines []string, re *regexp.Regexp) int {
	for i, l := range lines {
		if re.MatchString(l) {
			return i
		}
	}
	return -1
}

// scanBalanced returns the index of the line where the nesting depth of
// open/close returns to zero, starting at line from. A declaration that
// never opens ends on the line after it starts.
func scanBalanced(lines []string, from int, open, close byte) int {
	depth := 0
	opened := false
	end := from
	for i := from; i < len(lines); i++ {
		o := strings.Count(lines[i], string(open))
		depth += o - strings.Count(lines[i], string(close))
		opened = opened || o > 0
		end = i
		if depth <= 0 && (opened || i > from) {
			break
		}
	}
	return end
}

func capture(lines []string, startIdx, endIdx int) (string, int, int, bool) {
	from := max(0, startIdx-1)
	to := min(len(lines), endIdx+2)
	return strings.Join(lines[from:to], "\n"), from + 1, to, true
}
