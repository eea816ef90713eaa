// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/llm"
)

// =============================================================================
// Tier 3: Model-Assisted Fallback
// =============================================================================

const (
	// insufficientInfoTool is the declared escape hatch: the model calls it
	// instead of guessing when the question cannot be mapped to a pipeline.
	insufficientInfoTool = "insufficient_info"

	defaultFallbackTimeout = 5 * time.Second

	// fallbackRecentTurns is how many prior turns are shown to the model.
	fallbackRecentTurns = 4
)

// errInsufficientInfo means the model explicitly declined to route. This is
// a routing failure, not a fallback outage: the model worked, the question
// lacks information.
var errInsufficientInfo = errors.New("model signaled insufficient information")

var fallbackSystemPrompt = strings.TrimSpace(`
You route NFL analytics questions to exactly one analysis tool.
Rules:
- Call exactly one tool per question.
- Fill arguments only from the question, the conversation, and the stated
  preferences. Never invent teams, numbers, or seasons.
- Team arguments are standard NFL abbreviations (KC, BUF, SF, ...).
- If the question cannot be answered by any tool, or a required argument is
  genuinely unknowable, call insufficient_info instead of guessing.
`)

// slotParamDefs is the shared parameter vocabulary for the tool catalog.
var slotParamDefs = map[string]llm.ToolParamDef{
	datatypes.SlotTeam1:          {Type: "string", Description: "primary team abbreviation"},
	datatypes.SlotTeam2:          {Type: "string", Description: "opponent team abbreviation"},
	datatypes.SlotDown:           {Type: "integer", Description: "down, 1-4"},
	datatypes.SlotDistance:       {Type: "integer", Description: "yards to go for a first down"},
	datatypes.SlotYardline:       {Type: "integer", Description: "yards from the opponent end zone, 1-99"},
	datatypes.SlotDefendersInBox: {Type: "integer", Description: "defenders in the box"},
	datatypes.SlotPosition:       {Type: "string", Description: "player position (QB, RB, WR, TE)"},
	datatypes.SlotMetric:         {Type: "string", Description: "ranking metric (epa, success_rate, yards)"},
	datatypes.SlotSeason:         {Type: "integer", Description: "NFL season year"},
	datatypes.SlotCount:          {Type: "integer", Description: "how many results to return"},
}

var pipelineToolDescriptions = map[datatypes.Pipeline]string{
	datatypes.PipelineTeamProfile:           "Season profile of one team: EPA, pass rate, success rate, strengths and weaknesses.",
	datatypes.PipelineTeamComparison:        "Head-to-head statistical comparison of two teams.",
	datatypes.PipelineSituationEPA:          "Expected points of run vs pass for a down and distance.",
	datatypes.PipelineDecisionAnalysis:      "Fourth-down decision: go for it, kick a field goal, or punt, by simulated expected points.",
	datatypes.PipelinePlayerRankings:        "Ranked players at a position by a metric, with small-sample correction.",
	datatypes.PipelineSituationalTendencies: "How often a team runs, passes, or blitzes in given situations.",
	datatypes.PipelineHistoricalQuery:       "Aggregate statistics for a team in a past season.",
}

// ToolCatalog builds the fixed tier-3 tool set: one tool per pipeline, with
// the pipeline's required slots as required parameters and its remaining
// meaningful slots optional, plus the insufficient_info escape hatch.
func ToolCatalog() []llm.ToolDef {
	catalog := make([]llm.ToolDef, 0, len(pipelineToolDescriptions)+1)
	for _, p := range datatypes.AllPipelines() {
		required := p.RequiredSlots()
		props := make(map[string]llm.ToolParamDef)
		for _, slot := range p.MeaningfulSlots() {
			props[slot] = slotParamDefs[slot]
		}
		for _, slot := range required {
			props[slot] = slotParamDefs[slot]
		}
		catalog = append(catalog, llm.ToolDef{
			Type: "function",
			Function: llm.ToolFunction{
				Name:        p.String(),
				Description: pipelineToolDescriptions[p],
				Parameters: llm.ToolParameters{
					Type:       "object",
					Properties: props,
					Required:   required,
				},
			},
		})
	}
	catalog = append(catalog, llm.ToolDef{
		Type: "function",
		Function: llm.ToolFunction{
			Name:        insufficientInfoTool,
			Description: "Call when no analysis tool fits or a required argument cannot be determined.",
			Parameters: llm.ToolParameters{
				Type: "object",
				Properties: map[string]llm.ToolParamDef{
					"reason": {Type: "string", Description: "what is missing or why no tool fits"},
				},
			},
		},
	})
	return catalog
}

// toolArguments is the union argument schema across all pipeline tools.
type toolArguments struct {
	Team1          *string `json:"team1,omitempty"`
	Team2          *string `json:"team2,omitempty"`
	Down           *int    `json:"down,omitempty"`
	Distance       *int    `json:"distance,omitempty"`
	Yardline       *int    `json:"yardline,omitempty"`
	DefendersInBox *int    `json:"defenders_in_box,omitempty"`
	Position       *string `json:"position,omitempty"`
	Metric         *string `json:"metric,omitempty"`
	Season         *int    `json:"season,omitempty"`
	Count          *int    `json:"count,omitempty"`
}

// Fallback is the tier-3 router: it hands the question, the resolved
// entities, recent turns, and user preferences to a language model that must
// answer with exactly one tool call from the fixed catalog.
//
// # Thread Safety
//
// Safe for concurrent use; the catalog is built once and the client is
// required to be concurrency-safe.
type Fallback struct {
	client  llm.Client
	catalog []llm.ToolDef
	timeout time.Duration
	logger  *slog.Logger
}

// NewFallback creates a Fallback. A zero timeout uses the default (5s).
// Panics if client is nil; a tier-3 router without a model is a
// misconfiguration, callers that want no tier 3 pass a nil *Fallback to
// NewRouter instead.
func NewFallback(client llm.Client, timeout time.Duration, logger *slog.Logger) *Fallback {
	if client == nil {
		panic("routing: NewFallback requires a non-nil llm client")
	}
	if timeout <= 0 {
		timeout = defaultFallbackTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallback{
		client:  client,
		catalog: ToolCatalog(),
		timeout: timeout,
		logger:  logger,
	}
}

// Route asks the model for a single tool call and converts it to a
// PipelineRequest.
//
// # Description
//
//	The call is timeout-guarded; a timeout or transport error returns
//	ErrFallbackUnavailable (wrapped) and is never retried here. An
//	insufficient_info call, no tool call, an unknown tool name, or a tool
//	call whose arguments still leave required slots empty are all routing
//	failures, reported as errInsufficientInfo.
func (f *Fallback) Route(ctx context.Context, text string, e datatypes.Entities,
	sess *datatypes.Session) (*datatypes.PipelineRequest, error) {

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	result, err := f.client.ChatWithTools(ctx, f.buildMessages(text, e, sess), llm.GenerationParams{}, f.catalog)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", datatypes.ErrFallbackUnavailable, err)
	}
	if len(result.ToolCalls) == 0 {
		f.logger.Debug("fallback returned no tool call",
			slog.String("content_preview", llm.SafeLogString(truncate(result.Content, 120))))
		return nil, errInsufficientInfo
	}

	// Exactly one tool invocation is the contract; extra calls are ignored.
	call := result.ToolCalls[0]
	if call.Name == insufficientInfoTool {
		return nil, errInsufficientInfo
	}
	pipeline, ok := datatypes.ParsePipeline(call.Name)
	if !ok {
		f.logger.Warn("fallback called unknown tool", slog.String("tool", call.Name))
		return nil, errInsufficientInfo
	}

	var args toolArguments
	if err := json.Unmarshal(call.Arguments, &args); err != nil {
		return nil, fmt.Errorf("%w: malformed tool arguments: %v", datatypes.ErrFallbackUnavailable, err)
	}

	// Model arguments fill gaps; extracted and resolved entities win on
	// conflict, the model never overrides what the user actually said.
	merged := e.Merge(datatypes.Entities{
		Team1:          args.Team1,
		Team2:          args.Team2,
		Down:           args.Down,
		Distance:       args.Distance,
		Yardline:       args.Yardline,
		DefendersInBox: args.DefendersInBox,
		Position:       args.Position,
		Metric:         args.Metric,
		Season:         args.Season,
		Count:          args.Count,
	})

	if missing := pipeline.MissingRequired(merged); len(missing) > 0 {
		return nil, errInsufficientInfo
	}
	return &datatypes.PipelineRequest{
		Pipeline: pipeline,
		Entities: merged,
		Tier:     3,
		Reason:   fmt.Sprintf("model tool call %s", call.Name),
	}, nil
}

func (f *Fallback) buildMessages(text string, e datatypes.Entities, sess *datatypes.Session) []llm.ChatMessage {
	messages := []llm.ChatMessage{{Role: "system", Content: fallbackSystemPrompt}}

	var ctxParts []string
	if sess != nil {
		turns := sess.Turns
		if len(turns) > fallbackRecentTurns {
			turns = turns[len(turns)-fallbackRecentTurns:]
		}
		for _, t := range turns {
			ctxParts = append(ctxParts, fmt.Sprintf("previously asked: %q (answered by %s)", t.Text, t.Pipeline))
		}
		if sess.FavoriteTeam != "" {
			ctxParts = append(ctxParts, "favorite team: "+sess.FavoriteTeam)
		}
		if sess.PreferredSeason != 0 {
			ctxParts = append(ctxParts, fmt.Sprintf("preferred season: %d", sess.PreferredSeason))
		}
	}
	if slots := e.SetSlots(); len(slots) > 0 {
		if raw, err := json.Marshal(e); err == nil {
			ctxParts = append(ctxParts, "entities already resolved: "+string(raw))
		}
	}
	if len(ctxParts) > 0 {
		messages = append(messages, llm.ChatMessage{
			Role:    "user",
			Content: "Conversation context:\n" + strings.Join(ctxParts, "\n"),
		})
	}
	messages = append(messages, llm.ChatMessage{Role: "user", Content: text})
	return messages
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
