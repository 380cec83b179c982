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
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeelapatel/codaxi/pkg/contextpack"
	"github.com/zeelapatel/codaxi/pkg/llm"
)

// scripted returns a mock provider that answers with replies in order and
// records every request.
func scripted(replies ...string) (*llm.MockProvider, *[]llm.ChatRequest) {
	var seen []llm.ChatRequest
	p := &llm.MockProvider{ChatFunc: func(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
		seen = append(seen, req)
		i := len(seen) - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: replies[i]}, Model: "m", PromptTokens: 10, OutputTokens: 5}, nil
	}}
	return p, &seen
}

func getPack() *contextpack.ContextPack {
	return &contextpack.ContextPack{
		Endpoint: contextpack.Endpoint{Method: "GET", Path: "/users/{id}", Produces: "application/json"},
		Contexts: []contextpack.CodeContext{{FilePath: "src/users.ts", Kind: contextpack.KindHandler, Snippet: "router.get('/users/:id', h)\n"}},
		Facts:    []string{},
	}
}

func TestGenerate_ValidAnswer(t *testing.T) {
	p, seen := scripted(`{"params":{"query":{"verbose":{"type":"boolean"}}},"responses":{"200":{"example":{"id":"1"}}},"errors":[{"status":404,"code":"NotFound","message":"no user"}]}`)
	g := NewGenerator(p, nil)

	res, err := g.Run(context.Background(), getPack())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.Equal(t, 15, res.TokensUsed)
	require.Len(t, *seen, 1)

	req := (*seen)[0]
	assert.True(t, req.JSON)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "requestExample")
	assert.Contains(t, req.Messages[1].Content, "Endpoint: GET /users/{id}")
	assert.Contains(t, req.Messages[1].Content, "// [handler] src/users.ts")

	s := res.Schema
	assert.Equal(t, "application/json", s.Responses["200"].ContentType)
	assert.Equal(t, map[string]any{"id": "1"}, s.Responses["200"].Example)
	assert.Equal(t, []ErrorEntry{{Status: 404, Code: "NotFound", Message: "no user"}}, s.Errors)
	assert.Equal(t, map[string]any{"type": "string"}, s.Params.Path["id"])
	assert.Contains(t, s.Params.Query, "verbose")
}

func TestGenerate_CodeFencesStripped(t *testing.T) {
	p, _ := scripted("```json\n{\"responses\":{\"200\":{}}}\n```")
	res, err := NewGenerator(p, nil).Run(context.Background(), getPack())
	require.NoError(t, err)
	assert.Equal(t, OutcomeOK, res.Outcome)
	assert.True(t, res.Schema.HasResponse("200"))
}

func TestGenerate_RepairOnce(t *testing.T) {
	p, seen := scripted("Sure! Here is the documentation you asked for.", `{"responses":{"200":{"example":{}}},"errors":[]}`)
	res, err := NewGenerator(p, nil).Run(context.Background(), getPack())
	require.NoError(t, err)
	assert.Equal(t, OutcomeRepaired, res.Outcome)

	require.Len(t, *seen, 2)
	repair := (*seen)[1].Messages
	require.Len(t, repair, 4)
	assert.Equal(t, "assistant", repair[2].Role)
	assert.Equal(t, "Sure! Here is the documentation you asked for.", repair[2].Content)
	assert.Contains(t, repair[3].Content, "Return only a single JSON object")
}

func TestGenerate_FallbackAfterFailedRepair(t *testing.T) {
	p, seen := scripted("not json", "still not json")
	schema, err := NewGenerator(p, nil).Generate(context.Background(), getPack())
	require.NoError(t, err)
	assert.Len(t, *seen, 2, "exactly one repair call")
	assert.Equal(t, Fallback(), schema)
	assert.True(t, schema.HasResponse("200"))
	assert.NotEmpty(t, schema.Errors)
}

func TestGenerate_EmptyObjectIsNotAShape(t *testing.T) {
	p, seen := scripted("{}")
	res, err := NewGenerator(p, nil).Run(context.Background(), getPack())
	require.NoError(t, err)
	assert.Len(t, *seen, 2)
	assert.Equal(t, OutcomeFallback, res.Outcome)
}

func TestGenerate_ModelErrorFallsBack(t *testing.T) {
	calls := 0
	p := &llm.MockProvider{ChatFunc: func(context.Context, llm.ChatRequest) (*llm.ChatResponse, error) {
		calls++
		return nil, errors.New("dial tcp: connection refused")
	}}
	res, err := NewGenerator(p, nil).Run(context.Background(), getPack())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "network errors are retried inside the provider, not repaired")
	assert.Equal(t, OutcomeFallback, res.Outcome)
	assert.Equal(t, Fallback(), res.Schema)
}

func TestGenerate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewGenerator(&llm.MockProvider{}, nil).Generate(ctx, getPack())
	require.ErrorIs(t, err, context.Canceled)
}

func TestNormalize_FlatResponsesBecomeQuery(t *testing.T) {
	raw, ok := parseAnswer(`{"responses":{"page":{"type":"integer"},"limit":{"type":"integer"}}}`)
	require.True(t, ok)
	s := normalize(raw, 10_000)
	assert.Empty(t, s.Responses)
	assert.Equal(t, map[string]any{"page": map[string]any{"type": "integer"}, "limit": map[string]any{"type": "integer"}}, s.Params.Query)
}

func TestNormalize_ErrorsObjectToList(t *testing.T) {
	raw, ok := parseAnswer(`{"errors":{"404":{"code":"NotFound"},"400":"bad body","oops":{"code":"x"}}}`)
	require.True(t, ok)
	s := normalize(raw, 10_000)
	assert.Equal(t, []ErrorEntry{
		{Status: 400, Message: "bad body"},
		{Status: 404, Code: "NotFound"},
	}, s.Errors)
}

func TestNormalize_InvalidStatusesDropped(t *testing.T) {
	raw, ok := parseAnswer(`{"responses":{"200":{},"2xx":{},"default":{}},"errors":[{"status":"abc"},{"status":"409"},{"status":42}]}`)
	require.True(t, ok)
	s := normalize(raw, 10_000)
	assert.Len(t, s.Responses, 1)
	assert.Equal(t, []ErrorEntry{{Status: 409}}, s.Errors)
}

func TestNormalize_ClampsLargeValues(t *testing.T) {
	big := strings.Repeat("x", 500)
	raw, ok := parseAnswer(`{"requestExample":{"blob":"` + big + `"},"responses":{"200":{"example":"small"}}}`)
	require.True(t, ok)
	s := normalize(raw, 100)
	assert.Equal(t, map[string]any{"_truncated": true}, s.RequestExample)
	assert.Equal(t, "small", s.Responses["200"].Example)
}

func TestApplyDefaults(t *testing.T) {
	tests := []struct {
		name   string
		method string
		have   map[string]Response
		want   string
	}{
		{"put gets 200", "PUT", nil, "200"},
		{"patch keeps 204", "PATCH", map[string]Response{"204": {}}, "204"},
		{"post gets 201", "POST", nil, "201"},
		{"post keeps 200", "POST", map[string]Response{"200": {}}, "200"},
		{"get gets 200 when empty", "GET", nil, "200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &DocSchema{Responses: tt.have}
			pack := &contextpack.ContextPack{Endpoint: contextpack.Endpoint{Method: tt.method, Path: "/x"}}
			applyDefaults(s, pack)
			assert.Len(t, s.Responses, 1)
			assert.Contains(t, s.Responses, tt.want)
		})
	}
}

func TestApplyDefaults_AuthAddsForbidden(t *testing.T) {
	s := &DocSchema{Responses: map[string]Response{"200": {}}}
	pack := &contextpack.ContextPack{
		Endpoint: contextpack.Endpoint{Method: "DELETE", Path: "/orders/:orderId/items/{itemId}"},
		Facts:    []string{contextpack.FactAuth},
	}
	applyDefaults(s, pack)
	assert.True(t, s.HasError(403))

	applyDefaults(s, pack)
	count := 0
	for _, e := range s.Errors {
		if e.Status == 403 {
			count++
		}
	}
	assert.Equal(t, 1, count)
	assert.Contains(t, s.Params.Path, "orderId")
	assert.Contains(t, s.Params.Path, "itemId")
}

func TestPathParams(t *testing.T) {
	assert.Equal(t, []string{"id"}, PathParams("/users/{id}"))
	assert.Equal(t, []string{"org", "id"}, PathParams("/orgs/:org/users/:id"))
	assert.Nil(t, PathParams("/health"))
	assert.Nil(t, PathParams("/a:b"))
}

func TestUserMessage(t *testing.T) {
	pack := getPack()
	pack.Facts = []string{contextpack.FactMultipart}
	pack.Endpoint.Consumes = "multipart/form-data"
	msg := userMessage(pack)
	assert.True(t, strings.HasPrefix(msg, "Endpoint: GET /users/{id}\n"))
	assert.Contains(t, msg, "Facts:\n- "+contextpack.FactMultipart)
	assert.Contains(t, msg, "Consumes: multipart/form-data")

	pack.Facts = nil
	assert.Contains(t, userMessage(pack), "Facts:\n- none")
}
