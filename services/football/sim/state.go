// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package sim implements the Monte Carlo drive simulator behind fourth-down
// decision analysis. Candidate decisions are evaluated as independent
// batches of simulated drives seeded from the same game state, with play
// outcomes resampled from historical plays in the matching situation bucket.
package sim

import "fmt"

// =============================================================================
// Simulation State
// =============================================================================

// State is one offensive snap situation. Yardline is measured as yards to
// the opponent's end zone (1 = goal line, 99 = own 1).
type State struct {
	Down     int `json:"down"`
	Distance int `json:"distance"`
	Yardline int `json:"yardline"`
}

// Normalize clamps a state into the representable field.
func (s State) Normalize() State {
	if s.Down < 1 {
		s.Down = 1
	}
	if s.Down > 4 {
		s.Down = 4
	}
	if s.Distance < 1 {
		s.Distance = 1
	}
	if s.Yardline < 1 {
		s.Yardline = 1
	}
	if s.Yardline > 99 {
		s.Yardline = 99
	}
	if s.Distance > s.Yardline {
		s.Distance = s.Yardline
	}
	return s
}

// DistanceBucket groups yards-to-go into the sampling granularity.
func (s State) DistanceBucket() string {
	switch {
	case s.Distance <= 3:
		return "short"
	case s.Distance <= 7:
		return "medium"
	default:
		return "long"
	}
}

// FieldZone groups field position into the sampling granularity.
func (s State) FieldZone() string {
	switch {
	case s.Yardline <= 10:
		return "goal_line"
	case s.Yardline <= 20:
		return "red_zone"
	case s.Yardline <= 40:
		return "opp_territory"
	case s.Yardline <= 60:
		return "midfield"
	default:
		return "own_territory"
	}
}

// BucketKey is the full-granularity historical pool key for this state.
func (s State) BucketKey() string {
	return fmt.Sprintf("%d_%s_%s", s.Down, s.DistanceBucket(), s.FieldZone())
}

// =============================================================================
// Terminal Categories
// =============================================================================

// Terminal category names and their point values. Every simulated drive
// ends in exactly one of these.
const (
	CategoryTouchdown  = "touchdown"
	CategoryFieldGoal  = "field_goal"
	CategoryTurnover   = "turnover"
	CategoryPunt       = "punt"
	CategoryFailedDown = "failed_down"
)

// AllCategories lists the terminal categories in reporting order.
func AllCategories() []string {
	return []string{
		CategoryTouchdown,
		CategoryFieldGoal,
		CategoryTurnover,
		CategoryPunt,
		CategoryFailedDown,
	}
}

// CategoryPoints returns the points awarded for a terminal category.
func CategoryPoints(category string) float64 {
	switch category {
	case CategoryTouchdown:
		return 7
	case CategoryFieldGoal:
		return 3
	default:
		return 0
	}
}
