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

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider defines the interface for chat-style model backends.
type Provider interface {
	// Chat sends a conversation and returns the assistant's reply.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// Name returns the provider identifier.
	Name() string
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"` // "system", "user", "assistant"
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request.
type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`

	// JSON asks the backend to constrain its output to a single JSON object
	// when it supports a structured output mode.
	JSON bool `json:"json,omitempty"`
}

// ChatResponse contains the chat completion response.
type ChatResponse struct {
	Message      Message       `json:"message"`
	Model        string        `json:"model"`
	PromptTokens int           `json:"prompt_tokens,omitempty"`
	OutputTokens int           `json:"output_tokens,omitempty"`
	Duration     time.Duration `json:"duration,omitempty"`
}

// ProviderConfig holds configuration for creating providers.
type ProviderConfig struct {
	// Provider type: "openai", "ollama", "anthropic", "gemini", "mock"
	Type string `json:"type" yaml:"type"`

	// BaseURL for the API endpoint
	BaseURL string `json:"base_url,omitempty" yaml:"base_url,omitempty"`

	// APIKey for authenticated providers
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// DefaultModel to use if not specified in requests
	DefaultModel string `json:"default_model,omitempty" yaml:"default_model,omitempty"`

	// Timeout for a single API request
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries for failed requests. Negative disables retries.
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

const (
	DefaultTimeout    = 15 * time.Second
	DefaultMaxRetries = 2
)

// NewProvider creates a Provider based on configuration. Every provider
// except mock is wrapped with linear capped retries (see WithRetry).
//
// Environment variables:
//   - OPENAI_API_KEY, OPENAI_API_URL (or OPENAI_BASE_URL), OPENAI_MODEL
//   - OLLAMA_HOST, OLLAMA_MODEL
//   - ANTHROPIC_API_KEY, ANTHROPIC_MODEL
//   - GEMINI_API_KEY, GEMINI_MODEL
func NewProvider(cfg ProviderConfig) (Provider, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	var (
		p   Provider
		err error
	)
	switch strings.ToLower(cfg.Type) {
	case "openai", "":
		p = newOpenAIProvider(cfg)
	case "ollama":
		p = newOllamaProvider(cfg)
	case "anthropic":
		p = newAnthropicProvider(cfg)
	case "gemini":
		p, err = newGeminiProvider(context.Background(), cfg)
	case "mock":
		return &MockProvider{}, nil
	default:
		return nil, fmt.Errorf("unknown LLM provider type: %s", cfg.Type)
	}
	if err != nil {
		return nil, err
	}
	return WithRetry(p, cfg.MaxRetries), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// postJSON sends payload to url and decodes a 200 response into out.
// Non-200 responses become *StatusError.
func postJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StatusError is returned when a backend answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.StatusCode, e.Body)
}

// =============================================================================
// OPENAI-COMPATIBLE PROVIDER
// =============================================================================

type openaiProvider struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func newOpenAIProvider(cfg ProviderConfig) *openaiProvider {
	baseURL := firstNonEmpty(cfg.BaseURL, os.Getenv("OPENAI_API_URL"), os.Getenv("OPENAI_BASE_URL"), "https://api.openai.com/v1")
	return &openaiProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       firstNonEmpty(cfg.APIKey, os.Getenv("OPENAI_API_KEY")),
		defaultModel: firstNonEmpty(cfg.DefaultModel, os.Getenv("OPENAI_MODEL"), "gpt-4o-mini"),
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := firstNonEmpty(req.Model, p.defaultModel)

	payload := map[string]any{
		"model":    model,
		"messages": req.Messages,
	}
	if req.MaxTokens > 0 {
		payload["max_tokens"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}
	if req.JSON {
		payload["response_format"] = map[string]string{"type": "json_object"}
	}

	headers := map[string]string{}
	if p.apiKey != "" {
		headers["Authorization"] = "Bearer " + p.apiKey
	}

	var result struct {
		Choices []struct {
			Message Message `json:"message"`
		} `json:"choices"`
		Model string `json:"model"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	start := time.Now()
	if err := postJSON(ctx, p.client, p.baseURL+"/chat/completions", headers, payload, &result); err != nil {
		return nil, fmt.Errorf("openai chat: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &ChatResponse{
		Message:      result.Choices[0].Message,
		Model:        firstNonEmpty(result.Model, model),
		PromptTokens: result.Usage.PromptTokens,
		OutputTokens: result.Usage.CompletionTokens,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// OLLAMA PROVIDER
// =============================================================================

type ollamaProvider struct {
	baseURL      string
	defaultModel string
	client       *http.Client
}

func newOllamaProvider(cfg ProviderConfig) *ollamaProvider {
	baseURL := firstNonEmpty(cfg.BaseURL, os.Getenv("OLLAMA_HOST"), "http://localhost:11434")
	return &ollamaProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		defaultModel: firstNonEmpty(cfg.DefaultModel, os.Getenv("OLLAMA_MODEL")),
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *ollamaProvider) Name() string { return "ollama" }

func (p *ollamaProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := firstNonEmpty(req.Model, p.defaultModel)
	if model == "" {
		return nil, fmt.Errorf("ollama: model not specified (set OLLAMA_MODEL or pass in request)")
	}

	payload := map[string]any{
		"model":    model,
		"messages": req.Messages,
		"stream":   false,
	}
	options := map[string]any{}
	if req.MaxTokens > 0 {
		options["num_predict"] = req.MaxTokens
	}
	if req.Temperature > 0 {
		options["temperature"] = req.Temperature
	}
	if len(options) > 0 {
		payload["options"] = options
	}
	if req.JSON {
		payload["format"] = "json"
	}

	var result struct {
		Message         Message `json:"message"`
		Model           string  `json:"model"`
		PromptEvalCount int     `json:"prompt_eval_count"`
		EvalCount       int     `json:"eval_count"`
	}
	start := time.Now()
	if err := postJSON(ctx, p.client, p.baseURL+"/api/chat", nil, payload, &result); err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}

	return &ChatResponse{
		Message:      result.Message,
		Model:        firstNonEmpty(result.Model, model),
		PromptTokens: result.PromptEvalCount,
		OutputTokens: result.EvalCount,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// ANTHROPIC PROVIDER
// =============================================================================

type anthropicProvider struct {
	baseURL      string
	apiKey       string
	defaultModel string
	client       *http.Client
}

func newAnthropicProvider(cfg ProviderConfig) *anthropicProvider {
	baseURL := firstNonEmpty(cfg.BaseURL, "https://api.anthropic.com/v1")
	return &anthropicProvider{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		apiKey:       firstNonEmpty(cfg.APIKey, os.Getenv("ANTHROPIC_API_KEY")),
		defaultModel: firstNonEmpty(cfg.DefaultModel, os.Getenv("ANTHROPIC_MODEL"), "claude-3-5-haiku-20241022"),
		client:       &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	model := firstNonEmpty(req.Model, p.defaultModel)

	// System messages go in a separate field.
	var system []string
	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		messages = append(messages, m)
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	payload := map[string]any{
		"model":      model,
		"messages":   messages,
		"max_tokens": maxTokens,
	}
	if len(system) > 0 {
		payload["system"] = strings.Join(system, "\n\n")
	}
	if req.Temperature > 0 {
		payload["temperature"] = req.Temperature
	}

	headers := map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": "2023-06-01",
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Model string `json:"model"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	start := time.Now()
	if err := postJSON(ctx, p.client, p.baseURL+"/messages", headers, payload, &result); err != nil {
		return nil, fmt.Errorf("anthropic chat: %w", err)
	}

	var content strings.Builder
	for _, c := range result.Content {
		if c.Type == "text" {
			content.WriteString(c.Text)
		}
	}

	return &ChatResponse{
		Message:      Message{Role: "assistant", Content: content.String()},
		Model:        firstNonEmpty(result.Model, model),
		PromptTokens: result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		Duration:     time.Since(start),
	}, nil
}

// =============================================================================
// MOCK PROVIDER (for testing)
// =============================================================================

// MockProvider is a test provider that returns predictable responses.
// ChatFunc overrides the canned reply.
type MockProvider struct {
	ChatFunc func(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

func (p *MockProvider) Name() string { return "mock" }

func (p *MockProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if p.ChatFunc != nil {
		return p.ChatFunc(ctx, req)
	}
	return &ChatResponse{
		Message:      Message{Role: "assistant", Content: "{}"},
		Model:        "mock-model",
		PromptTokens: 50,
		OutputTokens: 1,
		Duration:     time.Millisecond,
	}, nil
}
