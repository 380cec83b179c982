// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package ingestion

import (
	"strings"
	"testing"
)

func TestGenerateDocID_Deterministic(t *testing.T) {
	id1 := GenerateDocID("repo-1", KindRoute, "GET /users", "/users")
	id2 := GenerateDocID("repo-1", KindRoute, "GET /users", "/users")

	if id1 != id2 {
		t.Errorf("GenerateDocID should be deterministic: got %q and %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "doc:") {
		t.Errorf("GenerateDocID should start with 'doc:': got %q", id1)
	}
	if len(id1) != len("doc:")+32 {
		t.Errorf("GenerateDocID should carry 16 hex bytes: got %q", id1)
	}
}

func TestGenerateDocID_DistinguishesFields(t *testing.T) {
	base := GenerateDocID("repo-1", KindRoute, "GET /users", "/users")
	variants := []string{
		GenerateDocID("repo-2", KindRoute, "GET /users", "/users"),
		GenerateDocID("repo-1", KindEvent, "GET /users", "/users"),
		GenerateDocID("repo-1", KindRoute, "POST /users", "/users"),
		GenerateDocID("repo-1", KindRoute, "GET /users", "/users/:id"),
	}
	for i, v := range variants {
		if v == base {
			t.Errorf("variant %d should differ from base id %q", i, base)
		}
	}
}

func TestAssignIDs(t *testing.T) {
	nodes := []DocumentationNode{
		{Kind: KindRoute, Title: "GET /a", Path: "/a"},
		{Kind: KindType, Title: "User", Path: "src/user.ts"},
	}
	AssignIDs(nodes, "repo-1", "scan-1")

	for _, n := range nodes {
		if n.RepoID != "repo-1" || n.ScanID != "scan-1" {
			t.Errorf("AssignIDs should set repo and scan: got %q/%q", n.RepoID, n.ScanID)
		}
		if n.ID != GenerateDocID("repo-1", n.Kind, n.Title, n.Path) {
			t.Errorf("AssignIDs should derive the id from the dedup key: got %q", n.ID)
		}
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"./src/a.ts", "src/a.ts"},
		{"/src/a.ts", "src/a.ts"},
		{"src//b/../a.ts", "src/a.ts"},
		{".", ""},
	}
	for _, tt := range tests {
		if got := NormalizePath(tt.in); got != tt.want {
			t.Errorf("NormalizePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
