// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/football/sim"
	"github.com/GridironAI/gridiron/services/football/stats"
	"github.com/GridironAI/gridiron/services/football/store"
)

// fakeReader serves canned aggregates.
type fakeReader struct {
	profiles   map[string]*store.TeamProfile
	players    []store.PlayerLine
	situation  *store.SituationLine
	summary    *store.SeasonSummary
	archetypes map[string]float64
}

func (f *fakeReader) TeamProfile(ctx context.Context, team string, season int) (*store.TeamProfile, error) {
	if p, ok := f.profiles[team]; ok {
		return p, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeReader) PlayerLines(ctx context.Context, position string, season int) ([]store.PlayerLine, error) {
	return f.players, nil
}

func (f *fakeReader) SituationLine(ctx context.Context, down, distance int, team string) (*store.SituationLine, error) {
	if f.situation == nil {
		return nil, store.ErrNotFound
	}
	return f.situation, nil
}

func (f *fakeReader) SeasonSummary(ctx context.Context, team string, season int) (*store.SeasonSummary, error) {
	if f.summary == nil {
		return nil, store.ErrNotFound
	}
	return f.summary, nil
}

func (f *fakeReader) HistoricalPlays(ctx context.Context) ([]store.PlayRow, error) {
	return nil, nil
}

func (f *fakeReader) FieldGoalCurve(ctx context.Context) ([]store.FGPoint, error) {
	return nil, nil
}

func (f *fakeReader) ArchetypeMeans(ctx context.Context) (map[string]float64, error) {
	return f.archetypes, nil
}

// touchdownSampler always scores; drives are deterministic.
type touchdownSampler struct{}

func (touchdownSampler) Sample(state sim.State, rng *rand.Rand) (sim.PlayOutcome, error) {
	return sim.PlayOutcome{Yards: state.Yardline}, nil
}

type flatFG struct{ p float64 }

func (f flatFG) SuccessProb(distance int) float64 { return f.p }

func newTestExecutor(t *testing.T, reader *fakeReader) *Executor {
	t.Helper()

	estimator, err := stats.NewEstimator(stats.DefaultShrinkageK)
	if err != nil {
		t.Fatalf("NewEstimator: %v", err)
	}
	archetypes, err := stats.NewArchetypes(stats.NewArchetypeTable(reader.archetypes))
	if err != nil {
		t.Fatalf("NewArchetypes: %v", err)
	}
	simulator, err := sim.NewSimulator(touchdownSampler{}, flatFG{p: 0.5}, sim.Config{Runs: 200, Workers: 2, Seed: 7}, nil)
	if err != nil {
		t.Fatalf("NewSimulator: %v", err)
	}
	executor, err := NewExecutor(reader, estimator, archetypes, simulator, nil)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	return executor
}

func baseReader() *fakeReader {
	return &fakeReader{
		profiles: map[string]*store.TeamProfile{
			"KC": {
				Team: "KC", Season: 2024, OffensiveEPA: 0.12, DefensiveEPA: -0.06,
				PassRate: 0.64, SuccessRate: 0.47, RedZoneTDRate: 0.63,
				ThirdDownRate: 0.46, Plays: 1050,
			},
			"BUF": {
				Team: "BUF", Season: 2024, OffensiveEPA: 0.08, DefensiveEPA: 0.02,
				PassRate: 0.58, SuccessRate: 0.45, RedZoneTDRate: 0.55,
				ThirdDownRate: 0.41, Plays: 1010,
			},
		},
		situation: &store.SituationLine{
			Down: 3, Distance: 7, PassEPA: 0.15, RunEPA: -0.05,
			PassPlays: 900, RunPlays: 150, PassSuccess: 0.44, RunSuccess: 0.38,
		},
		summary: &store.SeasonSummary{
			Team: "KC", Season: 2021, Wins: 12, Losses: 5, PointsFor: 480,
			PointsAgainst: 364, OffensiveEPA: 0.1, DefensiveEPA: 0.01,
		},
		players: []store.PlayerLine{
			{Name: "A. Veteran", Team: "KC", Position: "RB", Plays: 300, EPAPerPlay: 0.10},
			{Name: "B. Rookie", Team: "BUF", Position: "RB", Plays: 2, EPAPerPlay: 0.90},
			{Name: "C. Steady", Team: "SF", Position: "RB", Plays: 250, EPAPerPlay: 0.08},
		},
		archetypes: map[string]float64{"RB:epa": 0.02},
	}
}

func TestExecuteTeamProfile(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineTeamProfile,
		Entities: datatypes.Entities{Team1: datatypes.String("KC")},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Data["offensive_epa"] != 0.12 {
		t.Errorf("offensive_epa = %g, want 0.12", result.Data["offensive_epa"])
	}
	if result.Labels["strengths"] == "" {
		t.Error("a 0.12 EPA offense should be labeled a strength")
	}
	if result.Provenance != provenanceAggregateStore {
		t.Errorf("provenance = %q", result.Provenance)
	}
}

func TestExecuteTeamProfileNotFound(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	_, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineTeamProfile,
		Entities: datatypes.Entities{Team1: datatypes.String("XYZ")},
	})
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestExecuteTeamComparison(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineTeamComparison,
		Entities: datatypes.Entities{Team1: datatypes.String("KC"), Team2: datatypes.String("BUF")},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// KC wins every axis in the fixture.
	if result.Labels["advantage"] != "KC" {
		t.Errorf("advantage = %q, want KC", result.Labels["advantage"])
	}
	delta := result.Data["offensive_epa_delta"]
	if delta < 0.039 || delta > 0.041 {
		t.Errorf("offensive_epa_delta = %g, want 0.04", delta)
	}
	if result.Confidence <= 0.5 {
		t.Errorf("confidence = %g, a sweep should be confident", result.Confidence)
	}
}

func TestExecuteSituationEPA(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineSituationEPA,
		Entities: datatypes.Entities{Down: datatypes.Int(3), Distance: datatypes.Int(7)},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Recommendation != "pass" {
		t.Errorf("recommendation = %q, want pass (pass EPA 0.15 vs run -0.05)", result.Recommendation)
	}
	if result.Data["pass_epa"] != 0.15 {
		t.Errorf("pass_epa = %g, want 0.15", result.Data["pass_epa"])
	}
}

func TestExecuteSituationEPABoxShading(t *testing.T) {
	reader := baseReader()
	// Run barely ahead; a loaded box must flip the call to pass.
	reader.situation = &store.SituationLine{
		Down: 2, Distance: 3, PassEPA: 0.04, RunEPA: 0.08,
		PassPlays: 400, RunPlays: 600,
	}
	executor := newTestExecutor(t, reader)

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineSituationEPA,
		Entities: datatypes.Entities{
			Down: datatypes.Int(2), Distance: datatypes.Int(3),
			DefendersInBox: datatypes.Int(9),
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Recommendation != "pass" {
		t.Errorf("recommendation = %q, want pass against a 9-man box", result.Recommendation)
	}
	want := 0.08 - 2*boxShadePerDefender
	if diff := result.Data["run_epa"] - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("shaded run_epa = %g, want %g", result.Data["run_epa"], want)
	}
}

func TestExecuteDecisionAnalysis(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineDecisionAnalysis,
		Entities: datatypes.Entities{Distance: datatypes.Int(1), Yardline: datatypes.Int(30)},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The sampler always scores, so going for it is worth 7 and dominates.
	if result.Recommendation != sim.DecisionGoForIt {
		t.Errorf("recommendation = %q, want go_for_it", result.Recommendation)
	}
	if ep := result.Data["expected_points_go_for_it"]; ep != 7.0 {
		t.Errorf("expected_points_go_for_it = %g, want 7", ep)
	}
	if result.Provenance != provenanceDriveSimulator {
		t.Errorf("provenance = %q", result.Provenance)
	}
}

func TestExecutePlayerRankingsShrinksSmallSamples(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelinePlayerRankings,
		Entities: datatypes.Entities{Position: datatypes.String("RB"), Count: datatypes.Int(3)},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	// The 2-play rookie's 0.90 EPA shrinks almost entirely to the 0.02
	// group mean; the 300-play veteran must rank first.
	if result.Labels["rank1_player"] != "A. Veteran" {
		t.Errorf("rank1 = %q, want the veteran over the tiny-sample rookie", result.Labels["rank1_player"])
	}
	if result.Data["rank1_shrinkage_applied"] >= 0.2 {
		t.Errorf("veteran shrinkage_applied = %g, want under 0.2", result.Data["rank1_shrinkage_applied"])
	}
	if result.Provenance != provenanceShrinkageEstimator {
		t.Errorf("provenance = %q", result.Provenance)
	}
}

func TestExecuteSituationalTendencies(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineSituationalTendencies,
		Entities: datatypes.Entities{
			Team1: datatypes.String("KC"),
			Down:  datatypes.Int(3), Distance: datatypes.Int(7),
		},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Labels["identity"] != "pass heavy" {
		t.Errorf("identity = %q, want pass heavy at a 0.64 pass rate", result.Labels["identity"])
	}
	if result.Recommendation != "expect pass" {
		t.Errorf("recommendation = %q, want expect pass (900 of 1050 bucket plays)", result.Recommendation)
	}
}

func TestExecuteHistoricalQuery(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	result, err := executor.Execute(context.Background(), &datatypes.PipelineRequest{
		Pipeline: datatypes.PipelineHistoricalQuery,
		Entities: datatypes.Entities{Team1: datatypes.String("KC"), Season: datatypes.Int(2021)},
	})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Data["wins"] != 12 || result.Data["losses"] != 5 {
		t.Errorf("record = %g-%g, want 12-5", result.Data["wins"], result.Data["losses"])
	}
	if result.Data["point_diff"] != 116 {
		t.Errorf("point_diff = %g, want 116", result.Data["point_diff"])
	}
}

func TestExecuteUnknownPipelinePanics(t *testing.T) {
	executor := newTestExecutor(t, baseReader())

	defer func() {
		if recover() == nil {
			t.Error("expected a panic for an unknown pipeline value")
		}
	}()
	executor.Execute(context.Background(), &datatypes.PipelineRequest{Pipeline: datatypes.Pipeline(99)})
}
