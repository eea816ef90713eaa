// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// fixedSampler always returns the same play outcome.
type fixedSampler struct {
	outcome PlayOutcome
	err     error
}

func (f *fixedSampler) Sample(State, *rand.Rand) (PlayOutcome, error) {
	return f.outcome, f.err
}

// coinSampler converts half the time and is stopped for no gain otherwise.
type coinSampler struct {
	gain int
}

func (c *coinSampler) Sample(_ State, rng *rand.Rand) (PlayOutcome, error) {
	if rng.Float64() < 0.5 {
		return PlayOutcome{Yards: c.gain}, nil
	}
	return PlayOutcome{}, nil
}

func newTestSimulator(t *testing.T, sampler OutcomeSampler, cfg Config) *Simulator {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	s, err := NewSimulator(sampler, NewDistanceCurve(nil), cfg, nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	return s
}

func TestAnalyze_CertainTouchdownRecommendsGo(t *testing.T) {
	sampler := &fixedSampler{outcome: PlayOutcome{Yards: 2}}
	s := newTestSimulator(t, sampler, Config{Runs: 200})

	analysis, err := s.Analyze(context.Background(), State{Down: 4, Distance: 1, Yardline: 1})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if analysis.Recommendation != DecisionGoForIt {
		t.Errorf("Recommendation = %q, want %q", analysis.Recommendation, DecisionGoForIt)
	}
	best := analysis.Outcomes[0]
	if best.Decision != DecisionGoForIt || best.ExpectedPoints != 7 {
		t.Errorf("best outcome = %+v, want go_for_it at 7 EP", best)
	}
	if p := best.Probabilities[CategoryTouchdown]; p != 1 {
		t.Errorf("touchdown probability = %v, want 1", p)
	}
	if analysis.Confidence != 0.95 {
		t.Errorf("Confidence = %v, want 0.95 cap for a sure thing", analysis.Confidence)
	}
}

func TestAnalyze_CertainTurnoverRecommendsKick(t *testing.T) {
	sampler := &fixedSampler{outcome: PlayOutcome{Turnover: true}}
	s := newTestSimulator(t, sampler, Config{Runs: 200})

	// From the 25 a kick is live and beats a guaranteed turnover.
	analysis, err := s.Analyze(context.Background(), State{Down: 4, Distance: 5, Yardline: 25})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if analysis.Recommendation != DecisionFieldGoal {
		t.Errorf("Recommendation = %q, want %q", analysis.Recommendation, DecisionFieldGoal)
	}
	for _, o := range analysis.Outcomes {
		if o.Decision == DecisionGoForIt && o.ExpectedPoints != 0 {
			t.Errorf("go_for_it EP = %v, want 0", o.ExpectedPoints)
		}
	}
}

func TestAnalyze_NoKickOptionDeepInOwnTerritory(t *testing.T) {
	sampler := &fixedSampler{outcome: PlayOutcome{Turnover: true}}
	s := newTestSimulator(t, sampler, Config{Runs: 100})

	analysis, err := s.Analyze(context.Background(), State{Down: 4, Distance: 10, Yardline: 80})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, o := range analysis.Outcomes {
		if o.Decision == DecisionFieldGoal {
			t.Fatal("field goal offered from the own 20")
		}
	}
}

func TestAnalyze_AggregateStableAcrossSeeds(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping stability check in short mode")
	}

	state := State{Down: 4, Distance: 1, Yardline: 3}
	var eps []float64
	for _, seed := range []int64{7, 1311} {
		s := newTestSimulator(t, &coinSampler{gain: 3}, Config{Runs: 10000, Seed: seed})
		analysis, err := s.Analyze(context.Background(), state)
		if err != nil {
			t.Fatalf("Analyze(seed=%d): %v", seed, err)
		}
		eps = append(eps, analysis.Outcomes[0].ExpectedPoints)
	}

	// Converting half the time for a touchdown puts EP near 3.5; two
	// independent 10k-run estimates agree within Monte Carlo noise.
	if math.Abs(eps[0]-eps[1]) > 0.15 {
		t.Errorf("EP estimates diverge: %v vs %v", eps[0], eps[1])
	}
	if eps[0] < 3.2 || eps[0] > 3.8 {
		t.Errorf("EP = %v, want near 3.5", eps[0])
	}
}

func TestAnalyze_SamplerGapPropagates(t *testing.T) {
	sampler := &fixedSampler{err: datatypes.ErrNoHistoricalSample}
	s := newTestSimulator(t, sampler, Config{Runs: 50})

	_, err := s.Analyze(context.Background(), State{Down: 4, Distance: 1, Yardline: 1})
	if !errors.Is(err, datatypes.ErrNoHistoricalSample) {
		t.Fatalf("err = %v, want ErrNoHistoricalSample", err)
	}
}

func TestAnalyze_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestSimulator(t, &coinSampler{gain: 3}, Config{Runs: 100000})
	_, err := s.Analyze(ctx, State{Down: 4, Distance: 1, Yardline: 3})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestSimulateDrive_Terminates(t *testing.T) {
	// A sampler that never converts and never turns over must still end
	// every drive on downs.
	s := newTestSimulator(t, &fixedSampler{outcome: PlayOutcome{Yards: 0}}, Config{Runs: 10})
	rng := rand.New(rand.NewSource(9))

	category, points, err := s.simulateDrive(State{Down: 1, Distance: 10, Yardline: 60}, rng)
	if err != nil {
		t.Fatalf("simulateDrive: %v", err)
	}
	if points != 0 {
		t.Errorf("points = %v, want 0", points)
	}
	if category != CategoryPunt && category != CategoryFailedDown {
		t.Errorf("category = %q, want punt or failed_down", category)
	}
}

func TestNewSimulator_Validation(t *testing.T) {
	if _, err := NewSimulator(nil, NewDistanceCurve(nil), Config{}, nil); err == nil {
		t.Error("nil sampler accepted")
	}
	if _, err := NewSimulator(&fixedSampler{}, nil, Config{}, nil); err == nil {
		t.Error("nil field goal model accepted")
	}
}
