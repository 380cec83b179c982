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

import "time"

// DocSchema is the normalized documentation of one endpoint.
type DocSchema struct {
	Params         Params              `json:"params"`
	RequestSchema  any                 `json:"requestSchema,omitempty"`
	RequestExample any                 `json:"requestExample,omitempty"`
	Responses      map[string]Response `json:"responses"`
	Errors         []ErrorEntry        `json:"errors"`
}

// Params groups request parameters by location.
type Params struct {
	Path    map[string]any `json:"path,omitempty"`
	Query   map[string]any `json:"query,omitempty"`
	Headers map[string]any `json:"headers,omitempty"`
}

// Response documents one status code.
type Response struct {
	ContentType string `json:"contentType,omitempty"`
	Schema      any    `json:"schema,omitempty"`
	Example     any    `json:"example,omitempty"`
}

// ErrorEntry documents one error the endpoint can return.
type ErrorEntry struct {
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Example any    `json:"example,omitempty"`
}

// HasResponse reports whether any of the given status codes is documented.
func (s *DocSchema) HasResponse(codes ...string) bool {
	for _, c := range codes {
		if _, ok := s.Responses[c]; ok {
			return true
		}
	}
	return false
}

// HasError reports whether an error entry with status exists.
func (s *DocSchema) HasError(status int) bool {
	for _, e := range s.Errors {
		if e.Status == status {
			return true
		}
	}
	return false
}

// Outcome records how a schema was obtained.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRepaired Outcome = "repaired"
	OutcomeFallback Outcome = "fallback"
)

// SchemaVersion is one stored generation for a documentation node.
// Versions start at 1 and increase per node.
type SchemaVersion struct {
	DocID     string     `json:"docId"`
	Version   int        `json:"version"`
	Schema    *DocSchema `json:"schema"`
	Source    Outcome    `json:"source"`
	Model     string     `json:"model,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Fallback returns the minimal schema used when the model cannot deliver.
func Fallback() *DocSchema {
	return &DocSchema{
		Responses: map[string]Response{
			"200": {ContentType: "application/json", Example: map[string]any{}},
		},
		Errors: []ErrorEntry{
			{Status: 400, Code: "BadRequest", Message: "Invalid input"},
		},
	}
}
