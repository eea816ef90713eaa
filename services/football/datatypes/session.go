// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// maxRetainedTurns caps how much history a session keeps. The resolver only
// ever reaches back a handful of turns; retaining more just bloats storage.
const maxRetainedTurns = 16

// Turn is one completed question/answer exchange. Immutable once appended to
// a Session: the resolved entity snapshot is recorded so a wrong context
// resolution is inspectable and correctable by a follow-up, never silently
// compounding.
type Turn struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Extracted Entities        `json:"extracted"`
	Resolved  Entities        `json:"resolved"`
	Pipeline  Pipeline        `json:"pipeline"`
	Tier      int             `json:"tier"`
	Result    *PipelineResult `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Session is the owned, versioned conversational state for one user.
// Callers own the lifecycle: created on first message, passed by reference
// into resolution, persisted after every appended Turn, expired by store TTL.
//
// # Thread Safety
//
// Session is not safe for concurrent mutation. The service layer serializes
// turns per session id.
type Session struct {
	ID      string `json:"id"`
	Version int    `json:"version"`

	// Turns is the ordered exchange history, oldest first, capped at
	// maxRetainedTurns.
	Turns []Turn `json:"turns"`

	// FavoriteTeam is the user's preferred team code; used as a team1
	// default only when no team appears in text or history.
	FavoriteTeam string `json:"favorite_team,omitempty"`

	// PreferredSeason is the default season when none is mentioned.
	PreferredSeason int `json:"preferred_season,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSession creates an empty session with the given id.
func NewSession(id string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:        id,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AppendTurn records a completed turn, bumps the version, and trims history
// to the retention cap.
func (s *Session) AppendTurn(t Turn) {
	s.Turns = append(s.Turns, t)
	if len(s.Turns) > maxRetainedTurns {
		s.Turns = s.Turns[len(s.Turns)-maxRetainedTurns:]
	}
	s.Version++
	s.UpdatedAt = time.Now().UTC()
}

// LastTurn returns the most recent turn, or nil for a fresh session.
func (s *Session) LastTurn() *Turn {
	if len(s.Turns) == 0 {
		return nil
	}
	return &s.Turns[len(s.Turns)-1]
}

// RecentTeams returns team codes mentioned in resolved history, most recent
// first, deduplicated. Used for plural-pronoun resolution ("compare them").
func (s *Session) RecentTeams() []string {
	seen := make(map[string]bool)
	var out []string
	add := func(team *string) {
		if team == nil || seen[*team] {
			return
		}
		seen[*team] = true
		out = append(out, *team)
	}
	for i := len(s.Turns) - 1; i >= 0; i-- {
		// Within one turn, team1 was mentioned before team2; walking turns
		// newest-first, team2 of the same turn is the more recent mention.
		add(s.Turns[i].Resolved.Team2)
		add(s.Turns[i].Resolved.Team1)
	}
	return out
}
