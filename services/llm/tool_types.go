// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import "encoding/json"

// ToolDef is the provider-agnostic tool definition passed to ChatWithTools.
// Follows the OpenAI function calling schema; each provider converts it to
// its own wire format (Anthropic input_schema, OpenAI function).
//
// Thread Safety: Immutable; safe for concurrent read access.
type ToolDef struct {
	// Type is always "function".
	Type string `json:"type"`

	Function ToolFunction `json:"function"`
}

// ToolFunction is the function name, description, and parameter schema.
type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  ToolParameters `json:"parameters"`
}

// ToolParameters is the JSON Schema object for a tool's parameters.
type ToolParameters struct {
	// Type is always "object".
	Type string `json:"type"`

	Properties map[string]ToolParamDef `json:"properties,omitempty"`
	Required   []string                `json:"required,omitempty"`
}

// ToolParamDef defines a single parameter in JSON Schema format.
type ToolParamDef struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// ChatMessage is a conversation message that can carry tool call metadata.
// Regular messages use Role and Content; assistant messages may carry
// ToolCalls and tool result messages link back through ToolCallID.
type ChatMessage struct {
	// Role is "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	Content    string             `json:"content,omitempty"`
	ToolCalls  []ToolCallResponse `json:"tool_calls,omitempty"`
	ToolCallID string             `json:"tool_call_id,omitempty"`
}

// ToolCallResponse is one tool invocation from any provider.
type ToolCallResponse struct {
	// ID is the provider-assigned identifier for this call.
	ID string `json:"id"`

	// Name is the function the model chose.
	Name string `json:"name"`

	// Arguments is the raw JSON arguments for the function.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsString returns the arguments as a JSON string. A quoted JSON
// string value is unquoted; nil or empty arguments become "{}".
func (t *ToolCallResponse) ArgumentsString() string {
	if len(t.Arguments) == 0 {
		return "{}"
	}
	if t.Arguments[0] == '"' {
		var s string
		if err := json.Unmarshal(t.Arguments, &s); err == nil {
			return s
		}
	}
	return string(t.Arguments)
}

// ChatWithToolsResult is the provider-agnostic result of ChatWithTools.
type ChatWithToolsResult struct {
	// Content is the text response; may be empty when only tools fired.
	Content string

	// ToolCalls contains tool calls from the model, in emission order.
	ToolCalls []ToolCallResponse

	// StopReason is "end" for a plain completion or "tool_use" when tool
	// calls are present.
	StopReason string
}
