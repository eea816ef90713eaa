// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAnthropicChat(t *testing.T) {
	var gotVersion, gotKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotVersion = r.Header.Get("anthropic-version")
		gotKey = r.Header.Get("x-api-key")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","content":[{"type":"text","text":"Hello there"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	got, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: "Be brief."},
		{Role: "user", Content: "Hi"},
	}, GenerationParams{})
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if got != "Hello there" {
		t.Errorf("Chat = %q, want %q", got, "Hello there")
	}
	if gotVersion != anthropicAPIVersion {
		t.Errorf("anthropic-version header = %q, want %q", gotVersion, anthropicAPIVersion)
	}
	if gotKey != "test-key" {
		t.Errorf("x-api-key header = %q, want %q", gotKey, "test-key")
	}
}

func TestAnthropicChatWithToolsParsesToolUse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "msg_2",
			"content": [
				{"type": "text", "text": "Routing the question."},
				{"type": "tool_use", "id": "toolu_01", "name": "team_profile",
				 "input": {"team1": "KC", "season": 2024}}
			],
			"stop_reason": "tool_use"
		}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	result, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "How good are the Chiefs?"}},
		GenerationParams{},
		[]ToolDef{{Type: "function", Function: ToolFunction{Name: "team_profile"}}},
	)
	if err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}
	if result.StopReason != "tool_use" {
		t.Errorf("StopReason = %q, want %q", result.StopReason, "tool_use")
	}
	if len(result.ToolCalls) != 1 {
		t.Fatalf("got %d tool calls, want 1", len(result.ToolCalls))
	}
	call := result.ToolCalls[0]
	if call.Name != "team_profile" || call.ID != "toolu_01" {
		t.Errorf("tool call = %+v, want name team_profile id toolu_01", call)
	}

	var args struct {
		Team1  string `json:"team1"`
		Season int    `json:"season"`
	}
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		t.Fatalf("unmarshaling arguments: %v", err)
	}
	if args.Team1 != "KC" || args.Season != 2024 {
		t.Errorf("arguments = %+v, want team1 KC season 2024", args)
	}
}

func TestAnthropicChatWithToolsSendsToolSchema(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_3","content":[{"type":"text","text":"ok"}],"stop_reason":"end_turn"}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	tools := []ToolDef{{
		Type: "function",
		Function: ToolFunction{
			Name:        "situation_epa",
			Description: "EPA by down and distance",
			Parameters: ToolParameters{
				Type: "object",
				Properties: map[string]ToolParamDef{
					"down": {Type: "integer"},
				},
				Required: []string{"down"},
			},
		},
	}}
	if _, err := client.ChatWithTools(context.Background(),
		[]ChatMessage{{Role: "user", Content: "3rd down EPA"}},
		GenerationParams{}, tools); err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}

	wireTools, ok := body["tools"].([]any)
	if !ok || len(wireTools) != 1 {
		t.Fatalf("request tools = %v, want one entry", body["tools"])
	}
	tool := wireTools[0].(map[string]any)
	if tool["name"] != "situation_epa" {
		t.Errorf("wire tool name = %v, want situation_epa", tool["name"])
	}
	if _, hasSchema := tool["input_schema"]; !hasSchema {
		t.Error("wire tool is missing input_schema")
	}
}

func TestAnthropicLargeSystemPromptGetsCacheControl(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_4","content":[{"type":"text","text":"ok"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	big := strings.Repeat("football ", 200)
	if _, err := client.Chat(context.Background(), []Message{
		{Role: "system", Content: big},
		{Role: "user", Content: "hi"},
	}, GenerationParams{}); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	system, ok := body["system"].([]any)
	if !ok || len(system) != 1 {
		t.Fatalf("request system = %v, want one block", body["system"])
	}
	block := system[0].(map[string]any)
	if _, hasCache := block["cache_control"]; !hasCache {
		t.Error("large system prompt did not get cache_control")
	}
}

func TestAnthropicAPIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	_, err := client.Generate(context.Background(), "hi", GenerationParams{})
	if err == nil {
		t.Fatal("expected error for 429 response")
	}
	if !strings.Contains(err.Error(), "429") {
		t.Errorf("error %q does not mention the status code", err)
	}
}

func TestAnthropicToolResultRoundTrip(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_5","content":[{"type":"text","text":"done"}]}`))
	}))
	defer server.Close()

	client := NewAnthropicClientWithConfig("test-key", "test-model", server.URL)
	messages := []ChatMessage{
		{Role: "user", Content: "Chiefs profile"},
		{Role: "assistant", ToolCalls: []ToolCallResponse{
			{ID: "toolu_9", Name: "team_profile", Arguments: json.RawMessage(`{"team1":"KC"}`)},
		}},
		{Role: "tool", ToolCallID: "toolu_9", Content: `{"epa":0.12}`},
	}
	if _, err := client.ChatWithTools(context.Background(), messages, GenerationParams{}, nil); err != nil {
		t.Fatalf("ChatWithTools returned error: %v", err)
	}

	wireMessages := body["messages"].([]any)
	if len(wireMessages) != 3 {
		t.Fatalf("got %d wire messages, want 3", len(wireMessages))
	}
	last := wireMessages[2].(map[string]any)
	if last["role"] != "user" {
		t.Errorf("tool result message role = %v, want user", last["role"])
	}
	blocks := last["content"].([]any)
	block := blocks[0].(map[string]any)
	if block["type"] != "tool_result" || block["tool_use_id"] != "toolu_9" {
		t.Errorf("tool result block = %v, want type tool_result tool_use_id toolu_9", block)
	}
}
