// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides provider-agnostic clients for the external language
// model collaborators. The routing fallback tier and the prose renderer are
// the only callers; both treat the model as untrusted and validate
// everything it returns.
package llm

import "context"

// Message is one plain conversation message without tool metadata.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams carries the optional sampling knobs shared by all
// providers. Nil fields use provider defaults.
type GenerationParams struct {
	Temperature *float32
	TopP        *float32
	TopK        *int
	MaxTokens   *int
	Stop        []string
}

// Client is the provider-agnostic language model surface.
//
// # Description
//
//	Generate wraps a single prompt as a one-message chat. ChatWithTools is
//	the constrained tool-calling call the routing fallback depends on: the
//	model must answer with either tool calls or plain text, and the caller
//	decides what a text answer means.
//
// # Thread Safety
//
//	Implementations must be safe for concurrent use.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)
	ChatWithTools(ctx context.Context, messages []ChatMessage, params GenerationParams, tools []ToolDef) (*ChatWithToolsResult, error)
}
