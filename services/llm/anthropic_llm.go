// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

const (
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultBaseURL = "https://api.anthropic.com/v1/messages"
	anthropicDefaultModel   = "claude-3-5-haiku-20241022"
)

// =============================================================================
// Wire Types
// =============================================================================

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicSystemBlock struct {
	Type         string                 `json:"type"`
	Text         string                 `json:"text"`
	CacheControl *anthropicCacheControl `json:"cache_control,omitempty"`
}

type anthropicCacheControl struct {
	Type string `json:"type"` // always "ephemeral"
}

type anthropicToolDef struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

// anthropicToolMessage carries structured content blocks (tool_use and
// tool_result) instead of a plain string.
type anthropicToolMessage struct {
	Role    string `json:"role"`
	Content []any  `json:"content"`
}

type anthropicToolUseBlock struct {
	Type  string          `json:"type"`
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicToolResultBlock struct {
	Type      string `json:"type"`
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
}

type anthropicTextBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type anthropicRequest struct {
	Model     string                 `json:"model"`
	Messages  []any                  `json:"messages"`
	System    []anthropicSystemBlock `json:"system,omitempty"`
	MaxTokens int                    `json:"max_tokens"`
	Tools     []anthropicToolDef     `json:"tools,omitempty"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	StopSeqs    []string `json:"stop_sequences,omitempty"`
}

type anthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type anthropicResponse struct {
	ID         string            `json:"id"`
	Content    []json.RawMessage `json:"content"`
	Error      *anthropicError   `json:"error,omitempty"`
	StopReason string            `json:"stop_reason,omitempty"`
}

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text,omitempty"`
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`
}

// =============================================================================
// Client
// =============================================================================

// AnthropicClient implements Client against the Anthropic messages API.
//
// Thread Safety: Safe for concurrent use.
type AnthropicClient struct {
	httpClient *http.Client
	apiKey     string
	model      string
	baseURL    string
}

// NewAnthropicClientWithConfig creates a client with explicit configuration,
// bypassing environment variables. Used by tests with mock servers.
func NewAnthropicClientWithConfig(apiKey, model, baseURL string) *AnthropicClient {
	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
	}
}

// NewAnthropicClient creates a client from the environment.
//
// # Description
//
//	Reads ANTHROPIC_API_KEY (falling back to the container secret file)
//	and ANTHROPIC_MODEL. A missing key is an error: the caller decides
//	whether to run without a fallback tier.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		if content, err := os.ReadFile("/run/secrets/anthropic_api_key"); err == nil {
			apiKey = strings.TrimSpace(string(content))
			slog.Info("read Anthropic API key from container secret")
		}
	}
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: API key is missing (ANTHROPIC_API_KEY)")
	}

	model := os.Getenv("ANTHROPIC_MODEL")
	if model == "" {
		model = anthropicDefaultModel
		slog.Info("ANTHROPIC_MODEL not set, using default", slog.String("model", model))
	}

	return &AnthropicClient{
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     apiKey,
		model:      model,
		baseURL:    anthropicDefaultBaseURL,
	}, nil
}

// Generate implements Client.
func (a *AnthropicClient) Generate(ctx context.Context, prompt string, params GenerationParams) (string, error) {
	return a.Chat(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// Chat implements Client.
func (a *AnthropicClient) Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error) {
	var apiMessages []any
	var systemPrompt string
	for _, msg := range messages {
		if strings.EqualFold(msg.Role, "system") {
			systemPrompt = msg.Content
			continue
		}
		apiMessages = append(apiMessages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}

	resp, err := a.send(ctx, a.buildRequest(apiMessages, systemPrompt, nil, params))
	if err != nil {
		return "", err
	}

	var text strings.Builder
	for _, raw := range resp.Content {
		var block anthropicContentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			continue
		}
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic: response contained no text block")
	}
	return text.String(), nil
}

// ChatWithTools implements Client using Anthropic's native tool use.
//
// # Description
//
//	Converts generic ToolDef and ChatMessage values to the Anthropic wire
//	format, including structured content blocks for tool_use and
//	tool_result messages, and maps tool_use blocks in the response back to
//	ToolCallResponse values.
func (a *AnthropicClient) ChatWithTools(ctx context.Context, messages []ChatMessage,
	params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error) {

	slog.Debug("ChatWithTools via Anthropic",
		slog.String("model", a.model),
		slog.Int("messages", len(messages)),
		slog.Int("tools", len(tools)),
	)

	var apiMessages []any
	var systemPrompt string
	for _, msg := range messages {
		switch {
		case msg.Role == "system":
			systemPrompt = msg.Content

		case msg.Role == "tool" && msg.ToolCallID != "":
			// Tool result rides in a user message as a tool_result block.
			apiMessages = append(apiMessages, anthropicToolMessage{
				Role: "user",
				Content: []any{anthropicToolResultBlock{
					Type:      "tool_result",
					ToolUseID: msg.ToolCallID,
					Content:   msg.Content,
				}},
			})

		case msg.Role == "assistant" && len(msg.ToolCalls) > 0:
			var blocks []any
			if msg.Content != "" {
				blocks = append(blocks, anthropicTextBlock{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Arguments
				if len(input) == 0 {
					input = json.RawMessage(`{}`)
				}
				blocks = append(blocks, anthropicToolUseBlock{
					Type: "tool_use", ID: tc.ID, Name: tc.Name, Input: input,
				})
			}
			apiMessages = append(apiMessages, anthropicToolMessage{Role: "assistant", Content: blocks})

		default:
			apiMessages = append(apiMessages, anthropicMessage{Role: msg.Role, Content: msg.Content})
		}
	}

	apiTools := make([]anthropicToolDef, 0, len(tools))
	for _, td := range tools {
		apiTools = append(apiTools, anthropicToolDef{
			Name:        td.Function.Name,
			Description: td.Function.Description,
			InputSchema: td.Function.Parameters,
		})
	}

	resp, err := a.send(ctx, a.buildRequest(apiMessages, systemPrompt, apiTools, params))
	if err != nil {
		return nil, err
	}

	result := &ChatWithToolsResult{}
	var textParts []string
	for _, raw := range resp.Content {
		var block anthropicContentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			slog.Warn("failed to parse content block", slog.String("error", err.Error()))
			continue
		}
		switch block.Type {
		case "text":
			textParts = append(textParts, block.Text)
		case "tool_use":
			input := block.Input
			if len(input) == 0 {
				input = json.RawMessage(`{}`)
			}
			result.ToolCalls = append(result.ToolCalls, ToolCallResponse{
				ID: block.ID, Name: block.Name, Arguments: input,
			})
		}
	}
	result.Content = strings.Join(textParts, "")
	if len(result.ToolCalls) > 0 {
		result.StopReason = "tool_use"
	} else {
		result.StopReason = "end"
	}
	return result, nil
}

func (a *AnthropicClient) buildRequest(messages []any, systemPrompt string,
	tools []anthropicToolDef, params GenerationParams) anthropicRequest {

	req := anthropicRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: 4096,
		Tools:     tools,
	}
	if systemPrompt != "" {
		block := anthropicSystemBlock{Type: "text", Text: systemPrompt}
		if len(systemPrompt) > 1024 {
			block.CacheControl = &anthropicCacheControl{Type: "ephemeral"}
		}
		req.System = []anthropicSystemBlock{block}
	}
	if params.Temperature != nil {
		req.Temperature = params.Temperature
	}
	if params.TopP != nil {
		req.TopP = params.TopP
	}
	if params.TopK != nil {
		req.TopK = params.TopK
	}
	if len(params.Stop) > 0 {
		req.StopSeqs = params.Stop
	}
	if params.MaxTokens != nil {
		req.MaxTokens = *params.MaxTokens
	}
	return req
}

func (a *AnthropicClient) send(ctx context.Context, payload anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("anthropic: marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("anthropic: creating HTTP request: %w", err)
	}
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)
	req.Header.Set("content-type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("anthropic: HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("anthropic: reading response body (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("anthropic: API returned status %d: %s", resp.StatusCode, SafeLogString(string(respBody)))
	}

	var apiResp anthropicResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("anthropic: parsing response JSON: %w", err)
	}
	if apiResp.Error != nil {
		return nil, fmt.Errorf("anthropic: API error: %s - %s", apiResp.Error.Type, SafeLogString(apiResp.Error.Message))
	}
	return &apiResp, nil
}
