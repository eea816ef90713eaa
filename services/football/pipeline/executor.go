// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/football/sim"
	"github.com/GridironAI/gridiron/services/football/stats"
	"github.com/GridironAI/gridiron/services/football/store"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	executionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "pipeline",
		Name:      "executions_total",
		Help:      "Pipeline executions by pipeline and outcome (ok, error)",
	}, []string{"pipeline", "outcome"})

	executionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "gridiron",
		Subsystem: "pipeline",
		Name:      "execution_latency_seconds",
		Help:      "Pipeline execution latency",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.5, 1.0, 2.5},
	}, []string{"pipeline"})
)

// =============================================================================
// OTel Tracer
// =============================================================================

var executorTracer = otel.Tracer("gridiron.football.pipeline")

// =============================================================================
// Executor
// =============================================================================

// Provenance values recorded on results.
const (
	provenanceAggregateStore     = "aggregate_store"
	provenanceDriveSimulator     = "drive_simulator"
	provenanceShrinkageEstimator = "shrinkage_estimator"
)

// Executor runs a routed PipelineRequest against the analytics backends.
//
// # Thread Safety
//
// Safe for concurrent use.
type Executor struct {
	store      store.Reader
	estimator  *stats.Estimator
	archetypes *stats.Archetypes
	simulator  *sim.Simulator
	logger     *slog.Logger
}

// NewExecutor wires an Executor. All backends are required: a pipeline whose
// backend is missing would otherwise fail at request time in a way that looks
// like a data problem.
func NewExecutor(st store.Reader, estimator *stats.Estimator, archetypes *stats.Archetypes,
	simulator *sim.Simulator, logger *slog.Logger) (*Executor, error) {

	if st == nil {
		return nil, fmt.Errorf("NewExecutor: store is required")
	}
	if estimator == nil {
		return nil, fmt.Errorf("NewExecutor: estimator is required")
	}
	if archetypes == nil {
		return nil, fmt.Errorf("NewExecutor: archetype table is required")
	}
	if simulator == nil {
		return nil, fmt.Errorf("NewExecutor: simulator is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		store:      st,
		estimator:  estimator,
		archetypes: archetypes,
		simulator:  simulator,
		logger:     logger,
	}, nil
}

// Execute dispatches the request to its pipeline handler.
//
// # Description
//
//	The switch is exhaustive over the Pipeline enum. A request carrying an
//	unknown pipeline value can only come from a programming error upstream
//	(the router validates names), so it panics rather than returning an
//	error a caller might swallow.
func (e *Executor) Execute(ctx context.Context, req *datatypes.PipelineRequest) (*datatypes.PipelineResult, error) {
	name := req.Pipeline.String()
	ctx, span := executorTracer.Start(ctx, "pipeline.Executor.Execute",
		trace.WithAttributes(
			attribute.String("pipeline", name),
			attribute.Int("tier", req.Tier),
		),
	)
	defer span.End()

	start := time.Now()
	var result *datatypes.PipelineResult
	var err error

	switch req.Pipeline {
	case datatypes.PipelineTeamProfile:
		result, err = e.teamProfile(ctx, req.Entities)
	case datatypes.PipelineTeamComparison:
		result, err = e.teamComparison(ctx, req.Entities)
	case datatypes.PipelineSituationEPA:
		result, err = e.situationEPA(ctx, req.Entities)
	case datatypes.PipelineDecisionAnalysis:
		result, err = e.decisionAnalysis(ctx, req.Entities)
	case datatypes.PipelinePlayerRankings:
		result, err = e.playerRankings(ctx, req.Entities)
	case datatypes.PipelineSituationalTendencies:
		result, err = e.situationalTendencies(ctx, req.Entities)
	case datatypes.PipelineHistoricalQuery:
		result, err = e.historicalQuery(ctx, req.Entities)
	default:
		panic(fmt.Sprintf("pipeline: Execute called with unknown pipeline %d", req.Pipeline))
	}

	executionLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		executionsTotal.WithLabelValues(name, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "pipeline execution failed")
		e.logger.Warn("pipeline execution failed",
			slog.String("pipeline", name),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	executionsTotal.WithLabelValues(name, "ok").Inc()
	return result, nil
}

// seasonOf returns the requested season, or 0 for "most recent stored".
func seasonOf(e datatypes.Entities) int {
	if e.Season != nil {
		return *e.Season
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
