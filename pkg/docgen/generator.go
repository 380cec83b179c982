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
	"log/slog"

	"github.com/zeelapatel/codaxi/internal/contract"
	"github.com/zeelapatel/codaxi/pkg/contextpack"
	"github.com/zeelapatel/codaxi/pkg/llm"
)

// DefaultTemperature keeps answers close to the code.
const DefaultTemperature = 0.2

// Generator runs the generation contract against a provider.
type Generator struct {
	provider     llm.Provider
	logger       *slog.Logger
	temperature  float64
	maxJSONChars int
}

// NewGenerator creates a generator. A nil logger uses slog.Default().
func NewGenerator(provider llm.Provider, logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		provider:     provider,
		logger:       logger,
		temperature:  DefaultTemperature,
		maxJSONChars: contract.MaxJSONChars(),
	}
}

// Generation is the result of one Run.
type Generation struct {
	Schema     *DocSchema
	Outcome    Outcome
	Model      string
	TokensUsed int
}

// Generate returns the normalized schema for pack. Model failures never
// surface as errors; only a context that is already done does.
func (g *Generator) Generate(ctx context.Context, pack *contextpack.ContextPack) (*DocSchema, error) {
	res, err := g.Run(ctx, pack)
	if err != nil {
		return nil, err
	}
	return res.Schema, nil
}

// Run is Generate with the outcome and usage attached.
func (g *Generator) Run(ctx context.Context, pack *contextpack.ContextPack) (*Generation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Generation{}
	messages := llm.BuildChatMessages(systemPrompt, userMessage(pack))

	answer, ok := g.ask(ctx, messages, res)
	if !ok {
		return g.fallback(pack, res, "model_error"), nil
	}
	if raw, parsed := parseAnswer(answer); parsed {
		return g.finish(raw, pack, res, OutcomeOK), nil
	}

	g.logger.Info("docgen.repair", "endpoint", pack.Endpoint.Method+" "+pack.Endpoint.Path, "answer_chars", len(answer))
	messages = append(messages,
		llm.Message{Role: "assistant", Content: answer},
		llm.Message{Role: "user", Content: repairPrompt},
	)
	answer, ok = g.ask(ctx, messages, res)
	if !ok {
		return g.fallback(pack, res, "model_error"), nil
	}
	if raw, parsed := parseAnswer(answer); parsed {
		return g.finish(raw, pack, res, OutcomeRepaired), nil
	}
	return g.fallback(pack, res, "unparseable"), nil
}

func (g *Generator) ask(ctx context.Context, messages []llm.Message, res *Generation) (string, bool) {
	resp, err := g.provider.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: g.temperature,
		JSON:        true,
	})
	if err != nil {
		g.logger.Warn("docgen.model.error", "provider", g.provider.Name(), "err", err)
		return "", false
	}
	res.Model = resp.Model
	res.TokensUsed += resp.PromptTokens + resp.OutputTokens
	return resp.Message.Content, true
}

func (g *Generator) finish(raw map[string]any, pack *contextpack.ContextPack, res *Generation, outcome Outcome) *Generation {
	schema := normalize(raw, g.maxJSONChars)
	applyDefaults(schema, pack)
	res.Schema = schema
	res.Outcome = outcome
	recordOutcome(outcome)
	return res
}

func (g *Generator) fallback(pack *contextpack.ContextPack, res *Generation, reason string) *Generation {
	g.logger.Warn("docgen.fallback", "endpoint", pack.Endpoint.Method+" "+pack.Endpoint.Path, "reason", reason)
	res.Schema = Fallback()
	res.Outcome = OutcomeFallback
	recordOutcome(OutcomeFallback)
	return res
}
