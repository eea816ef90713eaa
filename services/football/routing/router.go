// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	routeOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "router",
		Name:      "route_outcome_total",
		Help:      "Route outcomes: pattern, intent, followup, fallback, failed",
	}, []string{"outcome"})

	fallbackLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridiron",
		Subsystem: "router",
		Name:      "fallback_latency_seconds",
		Help:      "Latency of tier-3 model calls",
		Buckets:   []float64{0.1, 0.5, 1.0, 2.0, 3.0, 5.0},
	})

	fallbackSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "router",
		Name:      "fallback_skipped_total",
		Help:      "Tier-3 skip reasons: disabled, quota",
	}, []string{"reason"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var routerTracer = otel.Tracer("gridiron.football.routing")

// =============================================================================
// Router
// =============================================================================

// Router maps a query turn to a PipelineRequest through three strictly
// ordered tiers: the pattern table, the BM25 intent index, and the model
// fallback. An earlier tier that produces a satisfiable request always wins;
// later tiers never run.
//
// # Thread Safety
//
// Safe for concurrent use.
type Router struct {
	patterns *PatternTable
	intents  *IntentIndex
	fallback *Fallback
	quota    *Quota
	logger   *slog.Logger
}

// NewRouter creates a Router. fallback nil disables tier 3; quota nil means
// tier 3 runs unmetered.
func NewRouter(fallback *Fallback, quota *Quota, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		patterns: NewPatternTable(),
		intents:  NewIntentIndex(),
		fallback: fallback,
		quota:    quota,
		logger:   logger,
	}
}

// Route resolves the query text plus resolved entities to a pipeline.
//
// # Description
//
//	Tier 1 runs first; a satisfied pattern rule returns immediately so a
//	query matching both a pattern and an intent cluster always takes the
//	pattern's pipeline. Tier 2 runs only on a tier-1 miss. Tier 3 runs
//	only when both fail, is quota- and timeout-guarded, and its failure is
//	reported together with the best tier-1/2 diagnosis: the caller always
//	learns which slots were missing, never just "the model was down".
//
// # Outputs
//
//   - *datatypes.PipelineRequest: The satisfiable route. Tier records the
//     producing tier.
//   - error: A *datatypes.RoutingError when no tier produced a route.
func (r *Router) Route(ctx context.Context, text string, e datatypes.Entities,
	sess *datatypes.Session) (*datatypes.PipelineRequest, error) {

	ctx, span := routerTracer.Start(ctx, "routing.Router.Route",
		trace.WithAttributes(
			attribute.String("query_preview", truncate(text, 80)),
			attribute.Bool("fallback_configured", r.fallback != nil),
		),
	)
	defer span.End()

	if req, candidate := r.patterns.Match(text, e); req != nil {
		routeOutcomeTotal.WithLabelValues("pattern").Inc()
		span.SetAttributes(
			attribute.String("pipeline", req.Pipeline.String()),
			attribute.Int("tier", 1),
		)
		return req, nil
	} else if candidate != nil {
		return r.afterPatternMiss(ctx, span, text, e, sess, candidate)
	}
	return r.afterPatternMiss(ctx, span, text, e, sess, nil)
}

func (r *Router) afterPatternMiss(ctx context.Context, span trace.Span, text string,
	e datatypes.Entities, sess *datatypes.Session, patternCandidate *Candidate) (*datatypes.PipelineRequest, error) {

	req, intentCandidate := r.intents.Match(text, e)
	if req != nil {
		routeOutcomeTotal.WithLabelValues("intent").Inc()
		span.SetAttributes(
			attribute.String("pipeline", req.Pipeline.String()),
			attribute.Int("tier", 2),
		)
		return req, nil
	}

	if req := r.followUp(text, e, sess); req != nil {
		routeOutcomeTotal.WithLabelValues("followup").Inc()
		span.SetAttributes(
			attribute.String("pipeline", req.Pipeline.String()),
			attribute.Int("tier", 1),
		)
		return req, nil
	}

	// The pattern table saw the literal phrasing; its diagnosis outranks
	// the fuzzy one when both exist.
	best := patternCandidate
	if best == nil {
		best = intentCandidate
	}

	req, fallbackErr := r.tryFallback(ctx, text, e, sess)
	if req != nil {
		routeOutcomeTotal.WithLabelValues("fallback").Inc()
		span.SetAttributes(
			attribute.String("pipeline", req.Pipeline.String()),
			attribute.Int("tier", 3),
		)
		return req, nil
	}

	routeOutcomeTotal.WithLabelValues("failed").Inc()
	routingErr := &datatypes.RoutingError{}
	if best != nil {
		routingErr.BestPipeline = best.Pipeline
		routingErr.HasCandidate = true
		routingErr.MissingSlots = best.Missing
	}
	if fallbackErr != nil && !errors.Is(fallbackErr, errInsufficientInfo) {
		routingErr.Cause = fallbackErr
	}
	span.RecordError(routingErr)
	span.SetStatus(codes.Error, "no tier produced a route")
	r.logger.Info("routing failed",
		slog.String("query_preview", truncate(text, 80)),
		slog.Bool("has_candidate", routingErr.HasCandidate),
		slog.Any("missing_slots", routingErr.MissingSlots),
	)
	return nil, routingErr
}

// followUpRe matches elliptical follow-ups that change a slot without
// restating the question ("what about the Bills?", "and on the 20?").
var followUpRe = regexp.MustCompile(`(?i)^\s*(?:and\b|what\s+about\b|how\s+about\b|what\s+if\b|same\s+(?:for|thing|question)\b|now\b)`)

// followUp re-routes an elliptical follow-up onto the previous turn's
// pipeline when that pipeline's required slots are still satisfied by the
// resolved entities. This never runs for the first turn of a session and
// never overrides an explicit tier-1 or tier-2 match.
func (r *Router) followUp(text string, e datatypes.Entities, sess *datatypes.Session) *datatypes.PipelineRequest {
	if sess == nil {
		return nil
	}
	last := sess.LastTurn()
	if last == nil || !followUpRe.MatchString(text) {
		return nil
	}
	if len(last.Pipeline.MissingRequired(e)) > 0 {
		return nil
	}
	return &datatypes.PipelineRequest{
		Pipeline: last.Pipeline,
		Entities: e,
		Tier:     1,
		Reason:   "follow_up:" + last.Pipeline.String(),
	}
}

// tryFallback runs tier 3 if it is configured and the quota allows.
func (r *Router) tryFallback(ctx context.Context, text string, e datatypes.Entities,
	sess *datatypes.Session) (*datatypes.PipelineRequest, error) {

	if r.fallback == nil {
		fallbackSkippedTotal.WithLabelValues("disabled").Inc()
		return nil, nil
	}
	if r.quota != nil {
		sessionID := ""
		if sess != nil {
			sessionID = sess.ID
		}
		if err := r.quota.Allow(sessionID); err != nil {
			fallbackSkippedTotal.WithLabelValues("quota").Inc()
			return nil, err
		}
	}

	start := time.Now()
	req, err := r.fallback.Route(ctx, text, e, sess)
	fallbackLatency.Observe(time.Since(start).Seconds())
	return req, err
}
