// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

// Entity slot names. These are the canonical keys used in tool schemas,
// routing diagnostics, and missing-slot error messages.
const (
	SlotTeam1          = "team1"
	SlotTeam2          = "team2"
	SlotDown           = "down"
	SlotDistance       = "distance"
	SlotYardline       = "yardline"
	SlotDefendersInBox = "defenders_in_box"
	SlotPosition       = "position"
	SlotMetric         = "metric"
	SlotSeason         = "season"
	SlotCount          = "count"
)

// Entities is the partial slot mapping produced by extraction and completed
// by context resolution. Every slot is a pointer: nil means the slot was not
// present in the text and has not been resolved from history.
//
// # Thread Safety
//
// Entities is a value type. Callers that share an Entities across goroutines
// must Clone first.
type Entities struct {
	Team1          *string `json:"team1,omitempty"`
	Team2          *string `json:"team2,omitempty"`
	Down           *int    `json:"down,omitempty"`
	Distance       *int    `json:"distance,omitempty"`
	Yardline       *int    `json:"yardline,omitempty"`
	DefendersInBox *int    `json:"defenders_in_box,omitempty"`
	Position       *string `json:"position,omitempty"`
	Metric         *string `json:"metric,omitempty"`
	Season         *int    `json:"season,omitempty"`
	Count          *int    `json:"count,omitempty"`
}

// String returns a pointer to s. Convenience for building Entities literals.
func String(s string) *string { return &s }

// Int returns a pointer to n. Convenience for building Entities literals.
func Int(n int) *int { return &n }

// Clone returns a deep copy of e.
func (e Entities) Clone() Entities {
	out := Entities{}
	if e.Team1 != nil {
		out.Team1 = String(*e.Team1)
	}
	if e.Team2 != nil {
		out.Team2 = String(*e.Team2)
	}
	if e.Down != nil {
		out.Down = Int(*e.Down)
	}
	if e.Distance != nil {
		out.Distance = Int(*e.Distance)
	}
	if e.Yardline != nil {
		out.Yardline = Int(*e.Yardline)
	}
	if e.DefendersInBox != nil {
		out.DefendersInBox = Int(*e.DefendersInBox)
	}
	if e.Position != nil {
		out.Position = String(*e.Position)
	}
	if e.Metric != nil {
		out.Metric = String(*e.Metric)
	}
	if e.Season != nil {
		out.Season = Int(*e.Season)
	}
	if e.Count != nil {
		out.Count = Int(*e.Count)
	}
	return out
}

// Has reports whether the named slot is set. Unknown slot names return false.
func (e Entities) Has(slot string) bool {
	switch slot {
	case SlotTeam1:
		return e.Team1 != nil
	case SlotTeam2:
		return e.Team2 != nil
	case SlotDown:
		return e.Down != nil
	case SlotDistance:
		return e.Distance != nil
	case SlotYardline:
		return e.Yardline != nil
	case SlotDefendersInBox:
		return e.DefendersInBox != nil
	case SlotPosition:
		return e.Position != nil
	case SlotMetric:
		return e.Metric != nil
	case SlotSeason:
		return e.Season != nil
	case SlotCount:
		return e.Count != nil
	}
	return false
}

// Set assigns the named slot from a string or int value. Type mismatches and
// unknown slots are ignored; extraction and tool-call parsing both funnel
// through here, and a bad slot from an external collaborator must never panic.
func (e *Entities) Set(slot string, value any) {
	switch slot {
	case SlotTeam1:
		if s, ok := toString(value); ok {
			e.Team1 = String(s)
		}
	case SlotTeam2:
		if s, ok := toString(value); ok {
			e.Team2 = String(s)
		}
	case SlotDown:
		if n, ok := toInt(value); ok {
			e.Down = Int(n)
		}
	case SlotDistance:
		if n, ok := toInt(value); ok {
			e.Distance = Int(n)
		}
	case SlotYardline:
		if n, ok := toInt(value); ok {
			e.Yardline = Int(n)
		}
	case SlotDefendersInBox:
		if n, ok := toInt(value); ok {
			e.DefendersInBox = Int(n)
		}
	case SlotPosition:
		if s, ok := toString(value); ok {
			e.Position = String(s)
		}
	case SlotMetric:
		if s, ok := toString(value); ok {
			e.Metric = String(s)
		}
	case SlotSeason:
		if n, ok := toInt(value); ok {
			e.Season = Int(n)
		}
	case SlotCount:
		if n, ok := toInt(value); ok {
			e.Count = Int(n)
		}
	}
}

// Merge returns a copy of e with every unset slot filled from other.
// Slots already set on e always win.
func (e Entities) Merge(other Entities) Entities {
	out := e.Clone()
	if out.Team1 == nil && other.Team1 != nil {
		out.Team1 = String(*other.Team1)
	}
	if out.Team2 == nil && other.Team2 != nil {
		out.Team2 = String(*other.Team2)
	}
	if out.Down == nil && other.Down != nil {
		out.Down = Int(*other.Down)
	}
	if out.Distance == nil && other.Distance != nil {
		out.Distance = Int(*other.Distance)
	}
	if out.Yardline == nil && other.Yardline != nil {
		out.Yardline = Int(*other.Yardline)
	}
	if out.DefendersInBox == nil && other.DefendersInBox != nil {
		out.DefendersInBox = Int(*other.DefendersInBox)
	}
	if out.Position == nil && other.Position != nil {
		out.Position = String(*other.Position)
	}
	if out.Metric == nil && other.Metric != nil {
		out.Metric = String(*other.Metric)
	}
	if out.Season == nil && other.Season != nil {
		out.Season = Int(*other.Season)
	}
	if out.Count == nil && other.Count != nil {
		out.Count = Int(*other.Count)
	}
	return out
}

// SetSlots returns the names of all slots currently set, in canonical order.
func (e Entities) SetSlots() []string {
	all := []string{
		SlotTeam1, SlotTeam2, SlotDown, SlotDistance, SlotYardline,
		SlotDefendersInBox, SlotPosition, SlotMetric, SlotSeason, SlotCount,
	}
	out := make([]string, 0, len(all))
	for _, slot := range all {
		if e.Has(slot) {
			out = append(out, slot)
		}
	}
	return out
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		// JSON numbers decode as float64.
		return int(n), true
	}
	return 0, false
}
