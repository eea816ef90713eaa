// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package session

import (
	"log/slog"
	"regexp"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Context Resolver
// =============================================================================

var (
	pluralPronounRe = regexp.MustCompile(`(?i)\b(they|them|themselves)\b`)
	comparisonCueRe = regexp.MustCompile(`(?i)\b(compare|vs\.?|versus|against|better|matchup|match up)\b`)
)

// Resolver fills unset entity slots from conversation history.
//
// # Description
//
//	Best-effort heuristic resolution, run before routing:
//
//	  - Plural pronouns resolve team slots from the most recently
//	    mentioned teams, most recent first. With an explicit team also in
//	    the text ("compare them to the Ravens") the pronoun team takes
//	    team1 and the explicit team moves to team2.
//	  - Each remaining unset slot is carried from the newest turn whose
//	    pipeline actually read that slot.
//	  - The favorite-team preference fills team1 only when no team appears
//	    in either the text or the history.
//
//	Resolution is a guess, not a guarantee: the caller records the
//	resolved snapshot on the Turn so a wrong guess is visible and fixable
//	by the next question. After routing selects a pipeline, Prune drops
//	carried slots the pipeline does not read, so a category switch never
//	drags stale context along.
//
// # Thread Safety
//
//	Immutable; safe for concurrent use.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver builds a Resolver. A nil logger uses slog.Default().
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

// Resolve merges extracted entities with session history.
//
// # Inputs
//
//	text - The raw turn text (for pronoun and comparison cues).
//	extracted - Slots present in the text. Always win over history.
//	sess - Conversation state. May be nil for a stateless query.
//
// # Outputs
//
//	datatypes.Entities - The resolved slot set.
func (r *Resolver) Resolve(text string, extracted datatypes.Entities, sess *datatypes.Session) datatypes.Entities {
	resolved := extracted.Clone()
	if sess == nil {
		return resolved
	}

	r.resolvePronouns(text, &resolved, sess)

	for _, slot := range unsetSlots(resolved) {
		if v, ok := carriedSlot(sess, slot); ok {
			resolved.Set(slot, v)
		}
	}

	if resolved.Team1 == nil && sess.FavoriteTeam != "" && len(sess.RecentTeams()) == 0 {
		resolved.Team1 = datatypes.String(sess.FavoriteTeam)
	}
	if resolved.Season == nil && sess.PreferredSeason > 0 {
		resolved.Season = datatypes.Int(sess.PreferredSeason)
	}

	// A carried opponent that collapsed onto the subject is no context at all.
	if resolved.Team1 != nil && resolved.Team2 != nil && *resolved.Team1 == *resolved.Team2 {
		resolved.Team2 = nil
	}

	r.logger.Debug("context resolved",
		slog.String("extracted", sliceKey(extracted.SetSlots())),
		slog.String("resolved", sliceKey(resolved.SetSlots())),
	)
	return resolved
}

// resolvePronouns handles "they"/"them" references to earlier teams.
func (r *Resolver) resolvePronouns(text string, resolved *datatypes.Entities, sess *datatypes.Session) {
	if !pluralPronounRe.MatchString(text) {
		return
	}
	recent := sess.RecentTeams()
	if len(recent) == 0 {
		return
	}

	switch {
	case resolved.Team1 != nil && resolved.Team2 == nil:
		// "Compare them to the Ravens": the pronoun is the prior subject,
		// the explicit team is the opponent.
		explicit := *resolved.Team1
		prior := recent[0]
		if prior == explicit && len(recent) > 1 {
			prior = recent[1]
		}
		if prior != explicit {
			resolved.Team1 = datatypes.String(prior)
			resolved.Team2 = datatypes.String(explicit)
		}
	case resolved.Team1 == nil:
		resolved.Team1 = datatypes.String(recent[0])
		if resolved.Team2 == nil && len(recent) > 1 && comparisonCueRe.MatchString(text) {
			resolved.Team2 = datatypes.String(recent[1])
		}
	}
}

// carriedSlot finds the newest turn whose pipeline read slot and whose
// resolved snapshot had it set.
func carriedSlot(sess *datatypes.Session, slot string) (any, bool) {
	for i := len(sess.Turns) - 1; i >= 0; i-- {
		turn := sess.Turns[i]
		if !pipelineReads(turn.Pipeline, slot) {
			continue
		}
		if !turn.Resolved.Has(slot) {
			continue
		}
		return slotValue(turn.Resolved, slot), true
	}
	return nil, false
}

// Prune drops slots the selected pipeline does not read. Called after
// routing so a pipeline-category switch resets foreign context (down and
// distance do not follow the user into a player ranking).
func Prune(p datatypes.Pipeline, e datatypes.Entities) datatypes.Entities {
	meaningful := make(map[string]bool)
	for _, slot := range p.MeaningfulSlots() {
		meaningful[slot] = true
	}

	var pruned datatypes.Entities
	for _, slot := range e.SetSlots() {
		if meaningful[slot] {
			pruned.Set(slot, slotValue(e, slot))
		}
	}
	return pruned
}

// =============================================================================
// Helpers
// =============================================================================

func pipelineReads(p datatypes.Pipeline, slot string) bool {
	for _, s := range p.MeaningfulSlots() {
		if s == slot {
			return true
		}
	}
	return false
}

func unsetSlots(e datatypes.Entities) []string {
	all := []string{
		datatypes.SlotTeam1, datatypes.SlotTeam2, datatypes.SlotDown,
		datatypes.SlotDistance, datatypes.SlotYardline, datatypes.SlotDefendersInBox,
		datatypes.SlotPosition, datatypes.SlotMetric, datatypes.SlotSeason,
		datatypes.SlotCount,
	}
	var unset []string
	for _, slot := range all {
		if !e.Has(slot) {
			unset = append(unset, slot)
		}
	}
	return unset
}

func slotValue(e datatypes.Entities, slot string) any {
	switch slot {
	case datatypes.SlotTeam1:
		return *e.Team1
	case datatypes.SlotTeam2:
		return *e.Team2
	case datatypes.SlotDown:
		return *e.Down
	case datatypes.SlotDistance:
		return *e.Distance
	case datatypes.SlotYardline:
		return *e.Yardline
	case datatypes.SlotDefendersInBox:
		return *e.DefendersInBox
	case datatypes.SlotPosition:
		return *e.Position
	case datatypes.SlotMetric:
		return *e.Metric
	case datatypes.SlotSeason:
		return *e.Season
	case datatypes.SlotCount:
		return *e.Count
	}
	return nil
}

func sliceKey(slots []string) string {
	out := ""
	for i, s := range slots {
		if i > 0 {
			out += ","
		}
		out += s
	}
	return out
}
