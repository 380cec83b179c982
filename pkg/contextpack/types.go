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

// ContextKind labels a code context.
type ContextKind string

const (
	KindHandler    ContextKind = "handler"
	KindDTO        ContextKind = "dto"
	KindController ContextKind = "controller"
	KindException  ContextKind = "exception"
	KindMiddleware ContextKind = "middleware"
)

// CodeContext is one labeled snippet of source.
type CodeContext struct {
	FilePath string      `json:"filePath"`
	Snippet  string      `json:"snippet"`
	Kind     ContextKind `json:"kind"`

	// StartLine and EndLine give the resolved source span, excluding the
	// header. Zero when unknown.
	StartLine int `json:"startLine,omitempty"`
	EndLine   int `json:"endLine,omitempty"`
}

// Endpoint describes the HTTP surface being documented.
type Endpoint struct {
	Method   string `json:"method"`
	Path     string `json:"path"`
	Consumes string `json:"consumes,omitempty"`
	Produces string `json:"produces,omitempty"`
	Auth     string `json:"auth,omitempty"`
}

// ContextPack is the input of documentation generation.
type ContextPack struct {
	Endpoint Endpoint      `json:"endpoint"`
	Contexts []CodeContext `json:"contexts"`
	Facts    []string      `json:"facts"`
}

// TotalChars returns the combined snippet length in characters.
func (p *ContextPack) TotalChars() int {
	n := 0
	for _, c := range p.Contexts {
		n += runeLen(c.Snippet)
	}
	return n
}
