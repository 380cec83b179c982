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

// Package llm provides a unified chat interface over language model backends.
//
// It is used by the documentation generator to turn a context pack into a
// structured schema. Every backend supports a JSON mode (ChatRequest.JSON)
// that asks the model for a single JSON object.
//
// # Supported Providers
//
//   - OpenAI and OpenAI-compatible APIs (response_format json_object)
//   - Ollama: local models (format json)
//   - Anthropic: Claude models
//   - Gemini: through google.golang.org/genai (application/json response MIME type)
//   - Mock: canned replies for tests, with a ChatFunc hook
//
// # Quick Start
//
//	provider, err := llm.DefaultProvider()
//	if err != nil {
//	    return err
//	}
//	resp, err := provider.Chat(ctx, llm.ChatRequest{
//	    Messages:    llm.BuildChatMessages(system, user),
//	    Temperature: 0.2,
//	    JSON:        true,
//	})
//
// # Retries
//
// NewProvider wraps real backends with WithRetry. A failed call is retried
// LLM_MAX_RETRIES times (default 2), waiting min(2s*(attempt+1), 8s) between
// attempts. Client errors other than 408 and 429 are not retried. Request
// timeout comes from LLM_TIMEOUT_MS (default 15000).
package llm
