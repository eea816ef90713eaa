// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"testing"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

func TestIntentIndexScoresRelevantPipeline(t *testing.T) {
	idx := NewIntentIndex()

	scores := idx.Score("what's their tendency on early downs, how often do they blitz")
	best, bestScore := datatypes.PipelineTeamProfile, 0.0
	for p, s := range scores {
		if s > bestScore {
			best, bestScore = p, s
		}
	}
	if best != datatypes.PipelineSituationalTendencies {
		t.Errorf("best pipeline = %s (score %.2f), want situational_tendencies (scores %v)", best, bestScore, scores)
	}
}

func TestIntentIndexEmptyQuery(t *testing.T) {
	idx := NewIntentIndex()
	if scores := idx.Score(""); len(scores) != 0 {
		t.Errorf("Score(\"\") = %v, want empty", scores)
	}
}

func TestIntentMatchTieBreaksInDeclarationOrder(t *testing.T) {
	// Two documents with the same single term score identically, so the
	// winner must come from pipeline declaration order, not map order.
	tied := &IntentIndex{
		docs: []intentDoc{
			{pipeline: datatypes.PipelineTeamComparison, tf: map[string]int{"blitz": 1}, len: 1},
			{pipeline: datatypes.PipelineTeamProfile, tf: map[string]int{"blitz": 1}, len: 1},
		},
		idf:    map[string]float64{"blitz": 1.0},
		avgLen: 1,
	}
	e := datatypes.Entities{
		Team1: datatypes.String("KC"),
		Team2: datatypes.String("BUF"),
	}

	for i := 0; i < 50; i++ {
		req, cand := tied.Match("blitz", e)
		if req == nil {
			t.Fatalf("Match returned no request (candidate %+v)", cand)
		}
		if req.Pipeline != datatypes.PipelineTeamProfile {
			t.Fatalf("iteration %d: pipeline = %s, want team_profile", i, req.Pipeline)
		}
	}
}

func TestIntentMatchRoutesWithSlots(t *testing.T) {
	idx := NewIntentIndex()

	e := datatypes.Entities{Down: datatypes.Int(3), Distance: datatypes.Int(7)}
	req, candidate := idx.Match("should they throw in this situation?", e)
	if req == nil {
		t.Fatalf("expected a request (candidate: %+v)", candidate)
	}
	if req.Pipeline != datatypes.PipelineSituationEPA {
		t.Errorf("pipeline = %s, want situation_epa", req.Pipeline)
	}
	if req.Tier != 2 {
		t.Errorf("tier = %d, want 2", req.Tier)
	}
}

func TestIntentMatchMissingSlotsBecomesCandidate(t *testing.T) {
	idx := NewIntentIndex()

	req, candidate := idx.Match("should they throw in this situation?", datatypes.Entities{})
	if req != nil {
		t.Fatalf("expected no request without down and distance, got %+v", req)
	}
	if candidate == nil {
		t.Fatal("expected a candidate diagnosis")
	}
	if candidate.Pipeline != datatypes.PipelineSituationEPA {
		t.Errorf("candidate pipeline = %s, want situation_epa", candidate.Pipeline)
	}
	if len(candidate.Missing) == 0 {
		t.Error("candidate has no missing slots")
	}
}

func TestIntentCompareDisambiguation(t *testing.T) {
	idx := NewIntentIndex()

	// A comparison-flavored question about a position with no teams in
	// sight is a rankings question.
	e := datatypes.Entities{Position: datatypes.String("RB"), Count: datatypes.Int(5)}
	req, candidate := idx.Match("which ones are better, head to head?", e)
	if req == nil {
		t.Fatalf("expected a request (candidate: %+v)", candidate)
	}
	if req.Pipeline != datatypes.PipelinePlayerRankings {
		t.Errorf("pipeline = %s, want player_rankings", req.Pipeline)
	}

	// The same flavor with two resolved teams is a team comparison.
	e = datatypes.Entities{Team1: datatypes.String("KC"), Team2: datatypes.String("BUF")}
	req, candidate = idx.Match("which ones are better, head to head?", e)
	if req == nil {
		t.Fatalf("expected a request (candidate: %+v)", candidate)
	}
	if req.Pipeline != datatypes.PipelineTeamComparison {
		t.Errorf("pipeline = %s, want team_comparison", req.Pipeline)
	}
}

func TestIntentMatchDeclinesOffTopicQuery(t *testing.T) {
	idx := NewIntentIndex()
	req, candidate := idx.Match("book me a flight to the stadium", datatypes.Entities{})
	if req != nil || candidate != nil {
		t.Errorf("expected no route for off-topic query, got %+v / %+v", req, candidate)
	}
}
