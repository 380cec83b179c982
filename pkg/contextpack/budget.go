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

import "unicode/utf8"

// DefaultBudgetChars is the character budget used when none is configured.
const DefaultBudgetChars = 12000

// truncateSlack is reserved when a snippet is cut to fit its allowance.
const truncateSlack = 200

// Allocate trims contexts to a character budget. Handler contexts share 50%
// of the budget, dto contexts 30% and everything else the remainder. Each
// group is processed in its original order: the first snippet that would
// exceed the group's remaining allowance is cut to (remaining - 200)
// characters and every later snippet of the group is dropped. Groups never
// borrow from each other. Output order is handler, dto, other.
func Allocate(contexts []CodeContext, budget int) []CodeContext {
	if budget <= 0 {
		return []CodeContext{}
	}
	handlerCap := budget * 50 / 100
	dtoCap := budget * 30 / 100
	restCap := budget - handlerCap - dtoCap

	var handler, dto, rest []CodeContext
	for _, c := range contexts {
		switch c.Kind {
		case KindHandler:
			handler = append(handler, c)
		case KindDTO:
			dto = append(dto, c)
		default:
			rest = append(rest, c)
		}
	}

	out := make([]CodeContext, 0, len(contexts))
	out = append(out, fitGroup(handler, handlerCap)...)
	out = append(out, fitGroup(dto, dtoCap)...)
	out = append(out, fitGroup(rest, restCap)...)
	return out
}

func fitGroup(items []CodeContext, allowance int) []CodeContext {
	var out []CodeContext
	used := 0
	for _, it := range items {
		remaining := allowance - used
		n := runeLen(it.Snippet)
		if n <= remaining {
			out = append(out, it)
			used += n
			continue
		}
		if keep := max(0, remaining-truncateSlack); keep > 0 {
			it.Snippet = truncateRunes(it.Snippet, keep)
			out = append(out, it)
		}
		break
	}
	return out
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
