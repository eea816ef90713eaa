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
	"math"
	"sort"
	"strings"

	"github.com/GridironAI/gridiron/services/football/datatypes"
	"github.com/GridironAI/gridiron/services/football/sim"
	"github.com/GridironAI/gridiron/services/football/store"
)

// Label thresholds for team strengths and weaknesses. Offensive EPA per play
// above +0.05 is a clearly efficient offense; defensive EPA below -0.05 means
// opponents lose value against this defense.
const (
	strongOffenseEPA = 0.05
	weakOffenseEPA   = -0.05
	strongDefenseEPA = -0.05
	weakDefenseEPA   = 0.05
	passHeavyRate    = 0.62
	runHeavyRate     = 0.52
)

// boxShadePerDefender is the run EPA penalty applied per defender over a
// seven-man box. Loaded boxes take away the run.
const boxShadePerDefender = 0.05

const (
	defaultRankingMetric = "epa"
	defaultRankingCount  = 10
	maxRankingCount      = 25
)

// =============================================================================
// team_profile
// =============================================================================

func (e *Executor) teamProfile(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	team := *ents.Team1
	profile, err := e.store.TeamProfile(ctx, team, seasonOf(ents))
	if err != nil {
		return nil, fmt.Errorf("team_profile %s: %w", team, err)
	}

	var strengths, weaknesses []string
	if profile.OffensiveEPA >= strongOffenseEPA {
		strengths = append(strengths, "efficient offense")
	} else if profile.OffensiveEPA <= weakOffenseEPA {
		weaknesses = append(weaknesses, "struggling offense")
	}
	if profile.DefensiveEPA <= strongDefenseEPA {
		strengths = append(strengths, "stingy defense")
	} else if profile.DefensiveEPA >= weakDefenseEPA {
		weaknesses = append(weaknesses, "leaky defense")
	}
	if profile.RedZoneTDRate >= 0.60 {
		strengths = append(strengths, "red zone finishing")
	} else if profile.RedZoneTDRate > 0 && profile.RedZoneTDRate <= 0.45 {
		weaknesses = append(weaknesses, "red zone finishing")
	}
	if profile.ThirdDownRate >= 0.45 {
		strengths = append(strengths, "third down conversion")
	}

	labels := map[string]string{
		"team":      profile.Team,
		"stat_type": "team_profile",
	}
	if len(strengths) > 0 {
		labels["strengths"] = strings.Join(strengths, ", ")
	}
	if len(weaknesses) > 0 {
		labels["weaknesses"] = strings.Join(weaknesses, ", ")
	}

	return &datatypes.PipelineResult{
		Pipeline: datatypes.PipelineTeamProfile,
		Data: map[string]float64{
			"offensive_epa":    profile.OffensiveEPA,
			"defensive_epa":    profile.DefensiveEPA,
			"pass_rate":        profile.PassRate,
			"success_rate":     profile.SuccessRate,
			"red_zone_td_rate": profile.RedZoneTDRate,
			"third_down_rate":  profile.ThirdDownRate,
			"season":           float64(profile.Season),
			"plays":            float64(profile.Plays),
		},
		Labels:     labels,
		Confidence: sampleConfidence(profile.Plays),
		Provenance: provenanceAggregateStore,
	}, nil
}

// =============================================================================
// team_comparison
// =============================================================================

// comparisonAxes are the per-axis fields compared head to head. higherWins
// is false for defensive EPA, where less is better.
var comparisonAxes = []struct {
	name       string
	higherWins bool
}{
	{"offensive_epa", true},
	{"defensive_epa", false},
	{"success_rate", true},
	{"red_zone_td_rate", true},
	{"third_down_rate", true},
}

func (e *Executor) teamComparison(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	team1, team2 := *ents.Team1, *ents.Team2
	season := seasonOf(ents)

	p1, err := e.store.TeamProfile(ctx, team1, season)
	if err != nil {
		return nil, fmt.Errorf("team_comparison %s: %w", team1, err)
	}
	p2, err := e.store.TeamProfile(ctx, team2, season)
	if err != nil {
		return nil, fmt.Errorf("team_comparison %s: %w", team2, err)
	}

	axisValue := func(p *store.TeamProfile, axis string) float64 {
		switch axis {
		case "offensive_epa":
			return p.OffensiveEPA
		case "defensive_epa":
			return p.DefensiveEPA
		case "success_rate":
			return p.SuccessRate
		case "red_zone_td_rate":
			return p.RedZoneTDRate
		case "third_down_rate":
			return p.ThirdDownRate
		}
		return 0
	}

	data := make(map[string]float64)
	labels := map[string]string{"team1": p1.Team, "team2": p2.Team, "stat_type": "team_comparison"}
	wins1, wins2 := 0, 0
	for _, axis := range comparisonAxes {
		v1, v2 := axisValue(p1, axis.name), axisValue(p2, axis.name)
		data[axis.name+"_team1"] = v1
		data[axis.name+"_team2"] = v2
		data[axis.name+"_delta"] = v1 - v2

		winner := p1.Team
		team1Wins := v1 > v2
		if !axis.higherWins {
			team1Wins = v1 < v2
		}
		if !team1Wins {
			winner = p2.Team
		}
		if v1 == v2 {
			winner = "even"
		}
		labels[axis.name+"_advantage"] = winner
		switch winner {
		case p1.Team:
			wins1++
		case p2.Team:
			wins2++
		}
	}

	overall := "even"
	if wins1 > wins2 {
		overall = p1.Team
	} else if wins2 > wins1 {
		overall = p2.Team
	}
	labels["advantage"] = overall

	margin := math.Abs(float64(wins1 - wins2))
	return &datatypes.PipelineResult{
		Pipeline:       datatypes.PipelineTeamComparison,
		Data:           data,
		Labels:         labels,
		Recommendation: overall,
		Confidence:     clamp(0.5+margin*0.08, 0.5, 0.95),
		Provenance:     provenanceAggregateStore,
	}, nil
}

// =============================================================================
// situation_epa
// =============================================================================

func (e *Executor) situationEPA(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	down, distance := *ents.Down, *ents.Distance
	team := ""
	if ents.Team1 != nil {
		team = *ents.Team1
	}

	line, err := e.store.SituationLine(ctx, down, distance, team)
	if err != nil {
		return nil, fmt.Errorf("situation_epa %d and %d: %w", down, distance, err)
	}

	passEPA, runEPA := line.PassEPA, line.RunEPA
	labels := map[string]string{"stat_type": "situation_epa"}
	if team != "" {
		labels["team"] = team
	}

	// A loaded box takes expected value away from the run.
	if ents.DefendersInBox != nil && *ents.DefendersInBox > 7 {
		shade := float64(*ents.DefendersInBox-7) * boxShadePerDefender
		runEPA -= shade
		labels["box_adjustment"] = fmt.Sprintf("%d in the box", *ents.DefendersInBox)
	}

	recommendation := "pass"
	if runEPA > passEPA {
		recommendation = "run"
	}
	margin := math.Abs(passEPA - runEPA)

	return &datatypes.PipelineResult{
		Pipeline: datatypes.PipelineSituationEPA,
		Data: map[string]float64{
			"pass_epa":     passEPA,
			"run_epa":      runEPA,
			"epa_margin":   margin,
			"pass_success": line.PassSuccess,
			"run_success":  line.RunSuccess,
			"pass_plays":   float64(line.PassPlays),
			"run_plays":    float64(line.RunPlays),
		},
		Labels:         labels,
		Recommendation: recommendation,
		Confidence:     clamp(0.5+margin*2.0, 0.5, 0.95),
		Provenance:     provenanceAggregateStore,
	}, nil
}

// =============================================================================
// decision_analysis
// =============================================================================

func (e *Executor) decisionAnalysis(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	state := sim.State{
		Down:     4,
		Distance: *ents.Distance,
		Yardline: *ents.Yardline,
	}
	if ents.Down != nil {
		state.Down = *ents.Down
	}

	analysis, err := e.simulator.Analyze(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("decision_analysis: %w", err)
	}

	data := make(map[string]float64)
	for _, outcome := range analysis.Outcomes {
		data["expected_points_"+outcome.Decision] = outcome.ExpectedPoints
		for category, prob := range outcome.Probabilities {
			data[outcome.Decision+"_"+category+"_prob"] = prob
		}
	}
	data["down"] = float64(analysis.State.Down)
	data["distance"] = float64(analysis.State.Distance)
	data["yardline"] = float64(analysis.State.Yardline)

	return &datatypes.PipelineResult{
		Pipeline:       datatypes.PipelineDecisionAnalysis,
		Data:           data,
		Labels:         map[string]string{"stat_type": "decision_analysis"},
		Recommendation: analysis.Recommendation,
		Confidence:     analysis.Confidence,
		Provenance:     provenanceDriveSimulator,
	}, nil
}

// =============================================================================
// player_rankings
// =============================================================================

func (e *Executor) playerRankings(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	position := strings.ToUpper(*ents.Position)
	metric := defaultRankingMetric
	if ents.Metric != nil {
		metric = strings.ToLower(*ents.Metric)
	}
	count := defaultRankingCount
	if ents.Count != nil && *ents.Count > 0 {
		count = *ents.Count
	}
	if count > maxRankingCount {
		count = maxRankingCount
	}

	lines, err := e.store.PlayerLines(ctx, position, seasonOf(ents))
	if err != nil {
		return nil, fmt.Errorf("player_rankings %s: %w", position, err)
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("player_rankings %s: no player lines: %w", position, store.ErrNotFound)
	}

	groupMean, ok := e.archetypes.Snapshot().GroupMean(position, metric)
	if !ok {
		// No precomputed archetype row: fall back to the cohort's own
		// unweighted mean so shrinkage still pulls toward something real.
		var sum float64
		for _, line := range lines {
			sum += metricValue(line, metric)
		}
		groupMean = sum / float64(len(lines))
	}

	type ranked struct {
		name             string
		team             string
		value            float64
		shrinkageApplied float64
		sampleSize       int
		reliability      string
	}
	rankings := make([]ranked, 0, len(lines))
	for _, line := range lines {
		est := e.estimator.Shrink(metricValue(line, metric), line.Plays, groupMean)
		rankings = append(rankings, ranked{
			name:             line.Name,
			team:             line.Team,
			value:            est.Value,
			shrinkageApplied: est.ShrinkageApplied,
			sampleSize:       est.SampleSize,
			reliability:      est.Reliability,
		})
	}
	sort.SliceStable(rankings, func(i, j int) bool { return rankings[i].value > rankings[j].value })
	if len(rankings) > count {
		rankings = rankings[:count]
	}

	data := map[string]float64{
		"group_mean": groupMean,
		"count":      float64(len(rankings)),
	}
	labels := map[string]string{
		"position":  position,
		"metric":    metric,
		"stat_type": "player_rankings",
	}
	for i, r := range rankings {
		prefix := fmt.Sprintf("rank%d_", i+1)
		data[prefix+"value"] = r.value
		data[prefix+"shrinkage_applied"] = r.shrinkageApplied
		data[prefix+"sample_size"] = float64(r.sampleSize)
		labels[prefix+"player"] = r.name
		labels[prefix+"team"] = r.team
		labels[prefix+"reliability"] = r.reliability
	}

	return &datatypes.PipelineResult{
		Pipeline:       datatypes.PipelinePlayerRankings,
		Data:           data,
		Labels:         labels,
		Recommendation: rankings[0].name,
		Confidence:     clamp(0.5+float64(rankings[0].sampleSize)/400.0, 0.5, 0.95),
		Provenance:     provenanceShrinkageEstimator,
	}, nil
}

// metricValue extracts the requested ranking metric from a player line.
// Unknown metrics fall back to EPA per play.
func metricValue(line store.PlayerLine, metric string) float64 {
	switch metric {
	case "success_rate", "success":
		return line.SuccessPct
	case "yards":
		return float64(line.Yards)
	case "touchdowns", "tds":
		return float64(line.Touchdowns)
	default:
		return line.EPAPerPlay
	}
}

// =============================================================================
// situational_tendencies
// =============================================================================

func (e *Executor) situationalTendencies(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	team := *ents.Team1
	profile, err := e.store.TeamProfile(ctx, team, seasonOf(ents))
	if err != nil {
		return nil, fmt.Errorf("situational_tendencies %s: %w", team, err)
	}

	data := map[string]float64{
		"pass_rate": profile.PassRate,
		"run_rate":  1.0 - profile.PassRate,
		"season":    float64(profile.Season),
	}
	labels := map[string]string{"team": profile.Team, "stat_type": "situational_tendencies"}

	identity := "balanced"
	if profile.PassRate >= passHeavyRate {
		identity = "pass heavy"
	} else if profile.PassRate <= runHeavyRate {
		identity = "run heavy"
	}
	labels["identity"] = identity

	// A specific down and distance narrows the answer to that bucket.
	var recommendation string
	confidence := sampleConfidence(profile.Plays)
	if ents.Down != nil && ents.Distance != nil {
		line, err := e.store.SituationLine(ctx, *ents.Down, *ents.Distance, team)
		if err != nil {
			return nil, fmt.Errorf("situational_tendencies %s bucket: %w", team, err)
		}
		total := line.PassPlays + line.RunPlays
		if total > 0 {
			bucketPassRate := float64(line.PassPlays) / float64(total)
			data["bucket_pass_rate"] = bucketPassRate
			data["bucket_run_rate"] = 1.0 - bucketPassRate
			data["bucket_plays"] = float64(total)
			if bucketPassRate >= 0.5 {
				recommendation = "expect pass"
			} else {
				recommendation = "expect run"
			}
			confidence = clamp(0.5+math.Abs(bucketPassRate-0.5)*1.5, 0.5, 0.95)
		}
	}

	return &datatypes.PipelineResult{
		Pipeline:       datatypes.PipelineSituationalTendencies,
		Data:           data,
		Labels:         labels,
		Recommendation: recommendation,
		Confidence:     confidence,
		Provenance:     provenanceAggregateStore,
	}, nil
}

// =============================================================================
// historical_query
// =============================================================================

func (e *Executor) historicalQuery(ctx context.Context, ents datatypes.Entities) (*datatypes.PipelineResult, error) {
	team, season := *ents.Team1, *ents.Season
	summary, err := e.store.SeasonSummary(ctx, team, season)
	if err != nil {
		return nil, fmt.Errorf("historical_query %s %d: %w", team, season, err)
	}

	return &datatypes.PipelineResult{
		Pipeline: datatypes.PipelineHistoricalQuery,
		Data: map[string]float64{
			"season":         float64(summary.Season),
			"wins":           float64(summary.Wins),
			"losses":         float64(summary.Losses),
			"ties":           float64(summary.Ties),
			"points_for":     float64(summary.PointsFor),
			"points_against": float64(summary.PointsAgainst),
			"point_diff":     float64(summary.PointsFor - summary.PointsAgainst),
			"offensive_epa":  summary.OffensiveEPA,
			"defensive_epa":  summary.DefensiveEPA,
		},
		Labels: map[string]string{
			"team":      summary.Team,
			"stat_type": "historical_query",
		},
		Confidence: 0.95,
		Provenance: provenanceAggregateStore,
	}, nil
}

// sampleConfidence maps an aggregate's play count to a confidence value. A
// full season of plays (about 1000) is near the ceiling.
func sampleConfidence(plays int) float64 {
	return clamp(0.5+float64(plays)/2500.0, 0.5, 0.95)
}
