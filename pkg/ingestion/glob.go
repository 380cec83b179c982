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
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// globCache holds compiled exclude patterns keyed by glob.
var globCache sync.Map

// matchesGlob reports whether a slash-separated relative path matches an
// exclude glob. Supported syntax:
//   - * matches within one path segment
//   - ** matches across segments
//   - ? matches one non-separator character
//   - [abc], [a-z] and [!abc] match character classes
//
// Patterns match at any depth (an implicit leading **/), and "dir/**" also
// matches the directory itself.
func matchesGlob(path, pattern string) bool {
	if pattern == "" {
		return false
	}
	re := compileGlob(filepath.ToSlash(pattern))
	return re != nil && re.MatchString(path)
}

func compileGlob(pattern string) *regexp.Regexp {
	if v, ok := globCache.Load(pattern); ok {
		return v.(*regexp.Regexp)
	}

	p := strings.TrimPrefix(pattern, "**/")
	tail := "$"
	if strings.HasSuffix(p, "/**") {
		p = strings.TrimSuffix(p, "/**")
		tail = "(?:/.*)?$"
	}

	var b strings.Builder
	b.WriteString("^(?:.*/)?")
	for i := 0; i < len(p); i++ {
		switch c := p[i]; c {
		case '*':
			if i+1 < len(p) && p[i+1] == '*' {
				i++
				if i+1 < len(p) && p[i+1] == '/' {
					i++
					b.WriteString("(?:.*/)?")
				} else {
					b.WriteString(".*")
				}
				continue
			}
			b.WriteString("[^/]*")
		case '?':
			b.WriteString("[^/]")
		case '[':
			end := strings.IndexByte(p[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := p[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	b.WriteString(tail)

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil
	}
	globCache.Store(pattern, re)
	return re
}
