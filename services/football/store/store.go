// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package store provides read access to the precomputed aggregate tables
// the pipelines consume. All tables are written by the offline ingestion
// jobs; at request time the store is read-only.
package store

import (
	"context"
	"errors"
)

// ErrNotFound indicates the requested aggregate row does not exist.
var ErrNotFound = errors.New("aggregate not found")

// =============================================================================
// Row Types
// =============================================================================

// TeamProfile is one team-season aggregate line.
type TeamProfile struct {
	Team          string  `json:"team"`
	Season        int     `json:"season"`
	OffensiveEPA  float64 `json:"offensive_epa"`
	DefensiveEPA  float64 `json:"defensive_epa"`
	PassRate      float64 `json:"pass_rate"`
	SuccessRate   float64 `json:"success_rate"`
	RedZoneTDRate float64 `json:"red_zone_td_rate"`
	ThirdDownRate float64 `json:"third_down_rate"`
	Plays         int     `json:"plays"`
}

// PlayerLine is one player-season raw aggregate, before shrinkage.
type PlayerLine struct {
	PlayerID   string  `json:"player_id"`
	Name       string  `json:"name"`
	Team       string  `json:"team"`
	Position   string  `json:"position"`
	Season     int     `json:"season"`
	Plays      int     `json:"plays"`
	EPAPerPlay float64 `json:"epa_per_play"`
	SuccessPct float64 `json:"success_pct"`
	Yards      int     `json:"yards"`
	Touchdowns int     `json:"touchdowns"`
}

// SituationLine is the pass/run split for one down-and-distance bucket,
// optionally conditioned on a team and a box count.
type SituationLine struct {
	Down        int     `json:"down"`
	Distance    int     `json:"distance"`
	PassEPA     float64 `json:"pass_epa"`
	RunEPA      float64 `json:"run_epa"`
	PassPlays   int     `json:"pass_plays"`
	RunPlays    int     `json:"run_plays"`
	PassSuccess float64 `json:"pass_success"`
	RunSuccess  float64 `json:"run_success"`
}

// SeasonSummary is one team's season record and efficiency totals.
type SeasonSummary struct {
	Team          string  `json:"team"`
	Season        int     `json:"season"`
	Wins          int     `json:"wins"`
	Losses        int     `json:"losses"`
	Ties          int     `json:"ties"`
	PointsFor     int     `json:"points_for"`
	PointsAgainst int     `json:"points_against"`
	OffensiveEPA  float64 `json:"offensive_epa"`
	DefensiveEPA  float64 `json:"defensive_epa"`
}

// PlayRow is one historical play observation for the simulator pools.
type PlayRow struct {
	Down     int
	Distance int
	Yardline int
	Yards    int
	Turnover bool
}

// FGPoint is one observed (kick distance, make rate) curve sample.
type FGPoint struct {
	Distance int
	Prob     float64
}

// =============================================================================
// Reader Contracts
// =============================================================================

// TeamReader serves team-season aggregates.
type TeamReader interface {
	// TeamProfile returns the aggregate line for a team code and season.
	// season <= 0 selects the most recent stored season.
	TeamProfile(ctx context.Context, team string, season int) (*TeamProfile, error)
}

// PlayerReader serves raw player-season aggregates.
type PlayerReader interface {
	// PlayerLines returns all lines for a position in a season, unranked.
	// season <= 0 selects the most recent stored season.
	PlayerLines(ctx context.Context, position string, season int) ([]PlayerLine, error)
}

// SituationReader serves down-and-distance pass/run splits.
type SituationReader interface {
	// SituationLine returns the split for a bucket. team may be empty for
	// the league-wide line.
	SituationLine(ctx context.Context, down, distance int, team string) (*SituationLine, error)
}

// HistoryReader serves season summaries and model inputs.
type HistoryReader interface {
	SeasonSummary(ctx context.Context, team string, season int) (*SeasonSummary, error)

	// HistoricalPlays returns the play observations behind the simulator
	// pools. The result can be large; callers load it once at startup.
	HistoricalPlays(ctx context.Context) ([]PlayRow, error)

	// FieldGoalCurve returns the observed kick curve points.
	FieldGoalCurve(ctx context.Context) ([]FGPoint, error)

	// ArchetypeMeans returns group means keyed "POSITION:metric".
	ArchetypeMeans(ctx context.Context) (map[string]float64, error)
}

// Reader is the full read surface the pipelines depend on.
type Reader interface {
	TeamReader
	PlayerReader
	SituationReader
	HistoryReader
}
