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

package llm

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ConfigFromEnv builds a ProviderConfig from the environment.
//
// LLM_PROVIDER selects the backend explicitly. Without it the first
// configured key wins, in order: OPENAI_API_KEY, GEMINI_API_KEY,
// ANTHROPIC_API_KEY, OLLAMA_HOST/OLLAMA_MODEL. Nothing configured selects
// the mock provider, which always takes the fallback path.
//
// LLM_TIMEOUT_MS (default 15000) and LLM_MAX_RETRIES (default 2) apply to
// every backend.
func ConfigFromEnv() ProviderConfig {
	cfg := ProviderConfig{
		Type:       strings.ToLower(os.Getenv("LLM_PROVIDER")),
		Timeout:    time.Duration(envInt("LLM_TIMEOUT_MS", int(DefaultTimeout/time.Millisecond))) * time.Millisecond,
		MaxRetries: envInt("LLM_MAX_RETRIES", DefaultMaxRetries),
	}
	if cfg.MaxRetries == 0 {
		// Zero in the environment means "no retries", not "default".
		cfg.MaxRetries = -1
	}
	if cfg.Type != "" {
		return cfg
	}
	switch {
	case os.Getenv("OPENAI_API_KEY") != "":
		cfg.Type = "openai"
	case os.Getenv("GEMINI_API_KEY") != "":
		cfg.Type = "gemini"
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		cfg.Type = "anthropic"
	case os.Getenv("OLLAMA_HOST") != "" || os.Getenv("OLLAMA_MODEL") != "":
		cfg.Type = "ollama"
	default:
		cfg.Type = "mock"
	}
	return cfg
}

// DefaultProvider creates a provider from environment variables.
func DefaultProvider() (Provider, error) {
	return NewProvider(ConfigFromEnv())
}

// BuildChatMessages creates a chat message array with system prompt.
func BuildChatMessages(systemPrompt, userPrompt string, history ...Message) []Message {
	messages := make([]Message, 0, len(history)+2)
	messages = append(messages, Message{Role: "system", Content: systemPrompt})
	messages = append(messages, history...)
	messages = append(messages, Message{Role: "user", Content: userPrompt})
	return messages
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
