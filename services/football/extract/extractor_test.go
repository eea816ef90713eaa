// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"testing"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()
	ex, err := New(nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return ex
}

func wantInt(t *testing.T, slot string, got *int, want int) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: got nil, want %d", slot, want)
	}
	if *got != want {
		t.Errorf("%s: got %d, want %d", slot, *got, want)
	}
}

func wantStr(t *testing.T, slot string, got *string, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: got nil, want %q", slot, want)
	}
	if *got != want {
		t.Errorf("%s: got %q, want %q", slot, *got, want)
	}
}

func TestExtract_DownAndDistance(t *testing.T) {
	ex := newTestExtractor(t)

	tests := []struct {
		name     string
		text     string
		down     int
		distance int
	}{
		{"ordinal shorthand", "should we go for it on 4th and 1?", 4, 1},
		{"ampersand", "2nd & 7 from their 40", 2, 7},
		{"spelled out", "third and fifteen is a passing down, right? third and 15", 3, 15},
		{"down word between", "what happens on 3rd down and 8", 3, 8},
		{"inches", "4th and inches at midfield", 4, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ents := ex.Extract(tt.text)
			wantInt(t, "down", ents.Down, tt.down)
			wantInt(t, "distance", ents.Distance, tt.distance)
		})
	}
}

func TestExtract_GoalToGo(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("4th and goal from the 1, do we go for it?")
	wantInt(t, "down", ents.Down, 4)
	wantInt(t, "yardline", ents.Yardline, 1)
	wantInt(t, "distance", ents.Distance, 1)
}

func TestExtract_Yardline(t *testing.T) {
	ex := newTestExtractor(t)

	tests := []struct {
		name     string
		text     string
		yardline int
	}{
		{"own side flips", "4th and 1 at my own 28", 72},
		{"our own", "punting from our own 35", 65},
		{"opponent side", "1st and 10 at their 40", 40},
		{"yard line phrase", "field goal range at the 30 yard line", 30},
		{"absolute", "ball is at the 45", 45},
		{"elliptical follow-up", "what about the 20?", 20},
		{"bare the", "same call, the 8", 8},
		{"midfield landmark", "4th and 2 at midfield", 50},
		{"red zone landmark", "how good are the bengals in the red zone", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ents := ex.Extract(tt.text)
			wantInt(t, "yardline", ents.Yardline, tt.yardline)
		})
	}
}

func TestExtract_Teams(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("Chiefs vs Bills, who wins?")
	wantStr(t, "team1", ents.Team1, "KC")
	wantStr(t, "team2", ents.Team2, "BUF")

	ents = ex.Extract("how often do the Ravens blitz?")
	wantStr(t, "team1", ents.Team1, "BAL")
	if ents.Team2 != nil {
		t.Errorf("team2: got %q, want nil", *ents.Team2)
	}
}

func TestExtract_BoxCount(t *testing.T) {
	ex := newTestExtractor(t)

	tests := []struct {
		name string
		text string
		box  int
	}{
		{"in the box", "run or pass on 3rd and 2 with 8 in the box", 8},
		{"man box", "EPA against a 7-man box", 7},
		{"defenders in the box", "9 defenders in the box on the goal line", 9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ents := ex.Extract(tt.text)
			wantInt(t, "defenders_in_box", ents.DefendersInBox, tt.box)
		})
	}
}

func TestExtract_RankingSlots(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("top 5 RBs by EPA in 2023")
	wantInt(t, "count", ents.Count, 5)
	wantStr(t, "position", ents.Position, "RB")
	wantStr(t, "metric", ents.Metric, "epa")
	wantInt(t, "season", ents.Season, 2023)

	ents = ex.Extract("best 10 wide receivers by success rate")
	wantInt(t, "count", ents.Count, 10)
	wantStr(t, "position", ents.Position, "WR")
	wantStr(t, "metric", ents.Metric, "success_rate")
}

func TestExtract_NeverErrors(t *testing.T) {
	ex := newTestExtractor(t)

	for _, text := range []string{
		"",
		"   ",
		"hello there",
		"!!!???",
		"and and and & & the the",
	} {
		ents := ex.Extract(text)
		if got := ents.SetSlots(); len(got) != 0 {
			t.Errorf("Extract(%q): got slots %v, want none", text, got)
		}
	}
}

func TestExtract_ConjunctionIsNotDistance(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("compare the Bills and the 49ers")
	if ents.Distance != nil {
		t.Errorf("distance: got %d, want nil", *ents.Distance)
	}
	wantStr(t, "team1", ents.Team1, "BUF")
	wantStr(t, "team2", ents.Team2, "SF")
}

func TestExtract_SeasonDoesNotLeakIntoYardline(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("how were the Lions on offense in 2023")
	wantInt(t, "season", ents.Season, 2023)
	if ents.Yardline != nil {
		t.Errorf("yardline: got %d, want nil", *ents.Yardline)
	}
}

func TestExtract_CloneSemantics(t *testing.T) {
	ex := newTestExtractor(t)

	ents := ex.Extract("4th and 1 at midfield")
	clone := ents.Clone()
	clone.Set(datatypes.SlotDown, 2)
	wantInt(t, "down", ents.Down, 4)
	wantInt(t, "clone down", clone.Down, 2)
}
