// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package football

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/football/extract"
	"github.com/GridironAI/gridiron/services/football/pipeline"
	"github.com/GridironAI/gridiron/services/football/routing"
	"github.com/GridironAI/gridiron/services/football/session"
	"github.com/GridironAI/gridiron/services/llm"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	turnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "football",
		Name:      "turns_total",
		Help:      "Completed turns by outcome: answered, routing_failed, pipeline_failed",
	}, []string{"outcome"})

	turnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridiron",
		Subsystem: "football",
		Name:      "turn_latency_seconds",
		Help:      "End to end turn latency",
		Buckets:   []float64{0.01, 0.05, 0.25, 1.0, 2.5, 5.0, 10.0},
	})

	proseFallbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "football",
		Name:      "prose_fallbacks_total",
		Help:      "Prose renderings replaced by the structured fallback after a grounding mismatch",
	})
)

var serviceTracer = otel.Tracer("gridiron.football.service")

// =============================================================================
// Service
// =============================================================================

// Answer is the completed result of one question.
type Answer struct {
	SessionID string                    `json:"session_id"`
	TurnID    string                    `json:"turn_id"`
	Pipeline  string                    `json:"pipeline"`
	Tier      int                       `json:"tier"`
	Resolved  datatypes.Entities        `json:"resolved"`
	Result    *datatypes.PipelineResult `json:"result"`

	// Rendered is the user-facing text: validated prose when a renderer is
	// configured and its output grounds, the structured rendering otherwise.
	Rendered string `json:"rendered"`

	// Grounded reports whether Rendered is model prose that passed
	// validation (false for the structured rendering).
	Grounded bool `json:"grounded"`
}

// Service orchestrates a turn end to end: extract, resolve, route, execute,
// ground, persist.
//
// # Thread Safety
//
// Safe for concurrent use. Turns for the same session id are serialized by a
// keyed mutex so the second of two concurrent requests always observes the
// first's committed turn; turns for different sessions run fully in parallel.
type Service struct {
	extractor *extract.Extractor
	resolver  *session.Resolver
	sessions  session.Store
	router    *routing.Router
	executor  *pipeline.Executor
	validator *pipeline.Validator

	// renderer turns a structured result into prose. Nil means the
	// structured rendering is the only rendering.
	renderer llm.Client

	locks  keyedMutex
	logger *slog.Logger
}

// NewService wires a Service. renderer may be nil.
func NewService(extractor *extract.Extractor, resolver *session.Resolver, sessions session.Store,
	router *routing.Router, executor *pipeline.Executor, renderer llm.Client, logger *slog.Logger) (*Service, error) {

	if extractor == nil || resolver == nil || sessions == nil || router == nil || executor == nil {
		return nil, fmt.Errorf("NewService: extractor, resolver, session store, router, and executor are all required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		extractor: extractor,
		resolver:  resolver,
		sessions:  sessions,
		router:    router,
		executor:  executor,
		validator: pipeline.NewValidator(logger),
		renderer:  renderer,
		logger:    logger,
	}, nil
}

// Ask processes one question in the session's conversational context.
//
// # Description
//
//	Extraction never fails; routing and execution can. A failed turn is
//	not appended to the session, so one bad question never corrupts the
//	context a follow-up resolves against.
//
// # Outputs
//
//   - *Answer: The completed turn.
//   - error: *datatypes.RoutingError when no pipeline was satisfiable;
//     pipeline errors (including datatypes.ErrNoHistoricalSample) pass
//     through wrapped.
func (s *Service) Ask(ctx context.Context, sessionID, text string) (*Answer, error) {
	ctx, span := serviceTracer.Start(ctx, "football.Service.Ask",
		trace.WithAttributes(attribute.String("session_id", sessionID)),
	)
	defer span.End()

	start := time.Now()
	defer func() { turnLatency.Observe(time.Since(start).Seconds()) }()

	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if sess == nil {
		sess = datatypes.NewSession(sessionID)
	}

	extracted := s.extractor.Extract(text)
	resolved := s.resolver.Resolve(text, extracted, sess)

	req, err := s.router.Route(ctx, text, resolved, sess)
	if err != nil {
		turnsTotal.WithLabelValues("routing_failed").Inc()
		span.SetStatus(codes.Error, "routing failed")
		return nil, err
	}

	// Slots the chosen pipeline does not read are dropped now, not at
	// resolve time: the pipeline is only known after routing.
	req.Entities = session.Prune(req.Pipeline, req.Entities)

	result, err := s.executor.Execute(ctx, req)
	if err != nil {
		turnsTotal.WithLabelValues("pipeline_failed").Inc()
		span.SetStatus(codes.Error, "pipeline failed")
		return nil, err
	}

	rendered, grounded := s.render(ctx, text, result)

	turn := datatypes.Turn{
		ID:        uuid.NewString(),
		Text:      text,
		Extracted: extracted,
		Resolved:  req.Entities,
		Pipeline:  req.Pipeline,
		Tier:      req.Tier,
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
	sess.AppendTurn(turn)
	if err := s.sessions.Save(ctx, sess); err != nil {
		// The answer is already computed; losing the context carry is
		// worth surfacing but not worth failing the turn.
		s.logger.Error("saving session failed",
			slog.String("session_id", sessionID),
			slog.String("error", err.Error()),
		)
	}

	turnsTotal.WithLabelValues("answered").Inc()
	span.SetAttributes(
		attribute.String("pipeline", req.Pipeline.String()),
		attribute.Int("tier", req.Tier),
	)
	return &Answer{
		SessionID: sessionID,
		TurnID:    turn.ID,
		Pipeline:  req.Pipeline.String(),
		Tier:      req.Tier,
		Resolved:  req.Entities,
		Result:    result,
		Rendered:  rendered,
		Grounded:  grounded,
	}, nil
}

// render produces the user-facing text for a result. Model prose is used
// only when it grounds against the result; any mismatch, model error, or
// absent renderer yields the deterministic structured rendering.
func (s *Service) render(ctx context.Context, question string, result *datatypes.PipelineResult) (string, bool) {
	structured := pipeline.RenderStructured(result)
	if s.renderer == nil {
		return structured, false
	}

	prompt := fmt.Sprintf(
		"Answer the question in two or three sentences using ONLY these computed numbers.\nQuestion: %s\n%s",
		question, structured,
	)
	prose, err := s.renderer.Generate(ctx, prompt, llm.GenerationParams{})
	if err != nil {
		s.logger.Warn("prose rendering failed, using structured output",
			slog.String("error", llm.SafeLogString(err.Error())))
		return structured, false
	}
	prose = strings.TrimSpace(prose)
	if err := s.validator.Validate(prose, result); err != nil {
		proseFallbacksTotal.Inc()
		s.logger.Warn("prose failed grounding, using structured output",
			slog.String("pipeline", result.Pipeline.String()),
			slog.String("error", err.Error()),
		)
		return structured, false
	}
	return prose, true
}

// Session returns the stored session state.
func (s *Service) Session(ctx context.Context, sessionID string) (*datatypes.Session, error) {
	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, datatypes.ErrSessionNotFound
	}
	return sess, nil
}

// SetPreferences stores the favorite team and preferred season defaults the
// resolver falls back to. Empty team or zero season leave the current value.
func (s *Service) SetPreferences(ctx context.Context, sessionID, favoriteTeam string, preferredSeason int) (*datatypes.Session, error) {
	unlock := s.locks.lock(sessionID)
	defer unlock()

	sess, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		sess = datatypes.NewSession(sessionID)
	}
	if favoriteTeam != "" {
		sess.FavoriteTeam = strings.ToUpper(favoriteTeam)
	}
	if preferredSeason != 0 {
		sess.PreferredSeason = preferredSeason
	}
	sess.UpdatedAt = time.Now().UTC()
	if err := s.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("saving session %s: %w", sessionID, err)
	}
	return sess, nil
}

// Teams returns the canonical franchise codes the extractor recognizes.
func (s *Service) Teams() []string {
	return s.extractor.Index().Codes()
}

// IsRoutingFailure reports whether err is a routing failure the caller
// should present as a request for more information.
func IsRoutingFailure(err error) bool {
	var routingErr *datatypes.RoutingError
	return errors.As(err, &routingErr)
}

// =============================================================================
// Keyed Mutex
// =============================================================================

// keyedMutex serializes work per key. Entries are never removed; the key
// space is session ids, which are bounded by real users.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
