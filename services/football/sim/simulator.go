// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"runtime"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// Observability
// =============================================================================

var simulatorTracer = otel.Tracer("gridiron.football.sim")

var (
	simRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gridiron",
		Subsystem: "sim",
		Name:      "runs_total",
		Help:      "Simulated drives by decision: go_for_it, field_goal, punt",
	}, []string{"decision"})

	simAnalysisLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "gridiron",
		Subsystem: "sim",
		Name:      "analysis_latency_seconds",
		Help:      "Latency of full decision analyses",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
	})
)

// =============================================================================
// Decision Simulator
// =============================================================================

// Decision names reported by Analyze.
const (
	DecisionGoForIt   = "go_for_it"
	DecisionFieldGoal = "field_goal"
	DecisionPunt      = "punt"
)

const (
	// DefaultRuns is the per-decision drive count when unconfigured.
	DefaultRuns = 5000

	// MaxFieldGoalYardline is the longest field position at which a kick is
	// considered a live option (a 62 yard attempt).
	MaxFieldGoalYardline = 45

	// ctxCheckInterval is how many runs a worker completes between context
	// cancellation checks.
	ctxCheckInterval = 256
)

// Config tunes a Simulator.
type Config struct {
	// Runs is the drive count per simulated decision. Defaults to
	// DefaultRuns when zero or negative.
	Runs int

	// Workers is the parallel batch count. Defaults to GOMAXPROCS.
	Workers int

	// Seed fixes the base RNG seed for reproducible aggregates in tests.
	// Zero means seed from the clock.
	Seed int64
}

// DecisionOutcome is the simulated result of one candidate decision.
type DecisionOutcome struct {
	Decision       string             `json:"decision"`
	ExpectedPoints float64            `json:"expected_points"`
	Probabilities  map[string]float64 `json:"probabilities"`
	StdError       float64            `json:"std_error"`
	Runs           int                `json:"runs"`
}

// Analysis is the full decision comparison for one starting state.
type Analysis struct {
	State          State             `json:"state"`
	Outcomes       []DecisionOutcome `json:"outcomes"`
	Recommendation string            `json:"recommendation"`
	Confidence     float64           `json:"confidence"`
}

// Simulator evaluates go-for-it, field goal, and punt from a game state.
//
// # Description
//
//	Go-for-it is estimated by Monte Carlo: N independent drives, each
//	resampling historical play outcomes until a terminal category is
//	reached. Field goal and punt are single-step: the kick is a direct
//	probability of its distance, the punt surrenders possession for zero
//	points. Runs are split across workers with no shared mutable state;
//	aggregation is sum and count, so the aggregate is deterministic for a
//	fixed seed regardless of scheduling.
//
// # Thread Safety
//
//	Safe for concurrent use.
type Simulator struct {
	sampler OutcomeSampler
	fg      FieldGoalModel
	runs    int
	workers int
	seed    int64
	logger  *slog.Logger
}

// NewSimulator builds a Simulator.
//
// # Inputs
//
//	sampler - Historical outcome source. Must not be nil.
//	fg - Field goal model. Must not be nil.
//	cfg - Tuning; zero values use defaults.
//	logger - Structured logger. If nil, slog.Default() is used.
func NewSimulator(sampler OutcomeSampler, fg FieldGoalModel, cfg Config, logger *slog.Logger) (*Simulator, error) {
	if sampler == nil {
		return nil, fmt.Errorf("NewSimulator: sampler must not be nil")
	}
	if fg == nil {
		return nil, fmt.Errorf("NewSimulator: field goal model must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	runs := cfg.Runs
	if runs <= 0 {
		runs = DefaultRuns
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > runs {
		workers = runs
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Simulator{
		sampler: sampler,
		fg:      fg,
		runs:    runs,
		workers: workers,
		seed:    seed,
		logger:  logger,
	}, nil
}

// Analyze evaluates all candidate decisions from state.
//
// # Inputs
//
//	ctx - Cancels in-flight simulation batches.
//	state - Starting situation; normalized before use.
//
// # Outputs
//
//	*Analysis - Outcomes sorted by expected points, best first.
//	error - ErrNoHistoricalSample (wrapped) when the play pools cannot
//	cover the state, or the context error on cancellation.
func (s *Simulator) Analyze(ctx context.Context, state State) (*Analysis, error) {
	ctx, span := simulatorTracer.Start(ctx, "sim.Analyze")
	defer span.End()
	start := time.Now()

	state = state.Normalize()
	span.SetAttributes(
		attribute.Int("down", state.Down),
		attribute.Int("distance", state.Distance),
		attribute.Int("yardline", state.Yardline),
		attribute.Int("runs", s.runs),
	)

	goOutcome, err := s.simulateGoForIt(ctx, state)
	if err != nil {
		return nil, err
	}

	outcomes := []DecisionOutcome{goOutcome, s.puntOutcome()}
	if state.Yardline <= MaxFieldGoalYardline {
		outcomes = append(outcomes, s.fieldGoalOutcome(state))
	}
	for _, o := range outcomes {
		simRunsTotal.WithLabelValues(o.Decision).Add(float64(o.Runs))
	}

	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].ExpectedPoints > outcomes[j].ExpectedPoints
	})

	analysis := &Analysis{
		State:          state,
		Outcomes:       outcomes,
		Recommendation: outcomes[0].Decision,
		Confidence:     decisionConfidence(outcomes),
	}

	simAnalysisLatency.Observe(time.Since(start).Seconds())
	s.logger.Debug("decision analysis complete",
		slog.String("recommendation", analysis.Recommendation),
		slog.Float64("confidence", analysis.Confidence),
		slog.Float64("best_ep", outcomes[0].ExpectedPoints),
	)
	return analysis, nil
}

// simulateGoForIt runs the Monte Carlo batches for keeping the offense on
// the field.
func (s *Simulator) simulateGoForIt(ctx context.Context, state State) (DecisionOutcome, error) {
	type batchResult struct {
		sum    float64
		sumSq  float64
		counts map[string]int
		runs   int
	}

	results := make([]batchResult, s.workers)
	base, extra := s.runs/s.workers, s.runs%s.workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < s.workers; w++ {
		w := w
		count := base
		if w < extra {
			count++
		}
		g.Go(func() error {
			rng := rand.New(rand.NewSource(s.seed + int64(uint64(w)*0x9e3779b97f4a7c15)))
			local := batchResult{counts: make(map[string]int, 5)}
			for i := 0; i < count; i++ {
				if i%ctxCheckInterval == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				category, points, err := s.simulateDrive(state, rng)
				if err != nil {
					return err
				}
				local.sum += points
				local.sumSq += points * points
				local.counts[category]++
				local.runs++
			}
			results[w] = local
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return DecisionOutcome{}, err
	}

	var merged batchResult
	merged.counts = make(map[string]int, 5)
	for _, r := range results {
		merged.sum += r.sum
		merged.sumSq += r.sumSq
		merged.runs += r.runs
		for k, v := range r.counts {
			merged.counts[k] += v
		}
	}

	n := float64(merged.runs)
	mean := merged.sum / n
	variance := merged.sumSq/n - mean*mean
	if variance < 0 {
		variance = 0
	}

	probs := make(map[string]float64, len(merged.counts))
	for k, v := range merged.counts {
		probs[k] = float64(v) / n
	}

	return DecisionOutcome{
		Decision:       DecisionGoForIt,
		ExpectedPoints: mean,
		Probabilities:  probs,
		StdError:       math.Sqrt(variance / n),
		Runs:           merged.runs,
	}, nil
}

// simulateDrive plays out one drive until a terminal category.
//
// The first snap always goes for it; later fourth downs use an in-drive
// heuristic (short yardage in plus territory keeps the offense on, kickable
// range attempts the field goal, otherwise punt). Every non-terminal
// transition advances the down or resets to first down with a strictly
// shorter field, so a drive always terminates.
func (s *Simulator) simulateDrive(state State, rng *rand.Rand) (string, float64, error) {
	first := true
	for {
		if state.Down == 4 && !first {
			switch {
			case state.Distance <= 2 && state.Yardline <= 40:
				// Keep the offense on the field.
			case state.Yardline <= MaxFieldGoalYardline-7:
				if rng.Float64() < s.fg.SuccessProb(state.Yardline+17) {
					return CategoryFieldGoal, 3, nil
				}
				return CategoryFailedDown, 0, nil
			default:
				return CategoryPunt, 0, nil
			}
		}

		outcome, err := s.sampler.Sample(state, rng)
		if err != nil {
			return "", 0, err
		}
		first = false

		if outcome.Turnover {
			return CategoryTurnover, 0, nil
		}

		yards := outcome.Yards
		if yards >= state.Yardline {
			return CategoryTouchdown, 7, nil
		}

		if yards >= state.Distance {
			next := state.Yardline - yards
			dist := 10
			if next < dist {
				dist = next
			}
			state = State{Down: 1, Distance: dist, Yardline: next}
			continue
		}

		if state.Down >= 4 {
			return CategoryFailedDown, 0, nil
		}
		state = State{
			Down:     state.Down + 1,
			Distance: state.Distance - yards,
			Yardline: state.Yardline - yards,
		}.Normalize()
	}
}

// fieldGoalOutcome is the single-step kick evaluation: make probability is
// a direct function of distance, never simulated play by play.
func (s *Simulator) fieldGoalOutcome(state State) DecisionOutcome {
	p := s.fg.SuccessProb(state.Yardline + 17)
	variance := 9 * p * (1 - p)
	return DecisionOutcome{
		Decision:       DecisionFieldGoal,
		ExpectedPoints: 3 * p,
		Probabilities: map[string]float64{
			CategoryFieldGoal:  p,
			CategoryFailedDown: 1 - p,
		},
		StdError: math.Sqrt(variance / float64(s.runs)),
		Runs:     s.runs,
	}
}

func (s *Simulator) puntOutcome() DecisionOutcome {
	return DecisionOutcome{
		Decision:       DecisionPunt,
		ExpectedPoints: 0,
		Probabilities:  map[string]float64{CategoryPunt: 1},
		StdError:       0,
		Runs:           s.runs,
	}
}

// decisionConfidence scores the margin between the top two expected values
// against their pooled standard error. More runs and a wider margin both
// raise confidence; the score is bounded to [0.5, 0.95] and is not a
// calibrated probability.
func decisionConfidence(sorted []DecisionOutcome) float64 {
	if len(sorted) < 2 {
		return 0.95
	}
	margin := sorted[0].ExpectedPoints - sorted[1].ExpectedPoints
	se := math.Sqrt(sorted[0].StdError*sorted[0].StdError + sorted[1].StdError*sorted[1].StdError)
	if se < 1e-9 {
		se = 1e-9
	}
	z := margin / se
	conf := 0.5 + z/20
	if conf < 0.5 {
		return 0.5
	}
	if conf > 0.95 {
		return 0.95
	}
	return conf
}
