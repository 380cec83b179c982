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

const (
	FactMultipart  = "Consumes: multipart/form-data"
	FactURLEncoded = "Consumes: application/x-www-form-urlencoded"
	FactJSONBody   = "Consumes: application/json"
	FactAuth       = "Auth: role required"
)

// factRule adds fact when pattern matches anywhere in a file.
type factRule struct {
	pattern *regexp.Regexp
	fact    string
}

// factRules are lexical and approximate. Order determines which consumes
// fact wins.
var factRules = []factRule{
	{regexp.MustCompile(`(?i)multer|form-data`), FactMultipart},
	{regexp.MustCompile(`(?i)urlencoded`), FactURLEncoded},
	{regexp.MustCompile(`@PreAuthorize\(|@Secured\b|@UseGuards\(|passport\.authenticate\(|\brequireAuth\b`), FactAuth},
	{regexp.MustCompile(`@ModelAttribute\b`), FactMultipart},
	{regexp.MustCompile(`@RequestBody\b`), FactJSONBody},
}

// CollectFacts returns the distinct facts matched in text, in rule order.
func CollectFacts(text string) []string {
	facts := []string{}
	seen := make(map[string]bool)
	for _, r := range factRules {
		if seen[r.fact] || !r.pattern.MatchString(text) {
			continue
		}
		seen[r.fact] = true
		facts = append(facts, r.fact)
	}
	return facts
}

// applyFacts copies consumes and auth facts onto the endpoint.
func applyFacts(ep *Endpoint, facts []string) {
	for _, f := range facts {
		switch {
		case f == FactAuth:
			ep.Auth = "role required"
		case ep.Consumes == "" && strings.HasPrefix(f, "Consumes: "):
			ep.Consumes = strings.TrimPrefix(f, "Consumes: ")
		}
	}
}

// HasAuthFact reports whether facts include the auth-required fact.
func HasAuthFact(facts []string) bool {
	for _, f := range facts {
		if f == FactAuth {
			return true
		}
	}
	return false
}
