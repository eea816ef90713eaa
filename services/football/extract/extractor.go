// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extract

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Slot Patterns
// =============================================================================

var (
	// downRe matches an ordinal down immediately followed by "down", "and",
	// or "&" ("3rd down", "4th and 1", "2nd & 7").
	downRe = regexp.MustCompile(`\b(1st|first|2nd|second|3rd|third|4th|fourth)\s*(?:down|and|&)\b`)

	// distanceRe matches the yards-to-go number in ordinal-anchored phrasing
	// ("4th and 1", "3rd & 15"). Anchoring on the ordinal keeps list
	// conjunctions ("bills and 49ers") from producing a distance.
	distanceRe = regexp.MustCompile(`\b(?:1st|first|2nd|second|3rd|third|4th|fourth)\s*(?:down\s+)?(?:and|&)\s*(\d{1,2})\b`)

	// toGoRe matches explicit "N (yards) to go" phrasing.
	toGoRe = regexp.MustCompile(`\b(\d{1,2})\s*(?:yards?\s+)?to\s+go\b`)

	goalToGoRe = regexp.MustCompile(`\b(?:and|&)\s*goal\b`)
	inchesRe   = regexp.MustCompile(`\b(?:and|&)\s*inches\b`)

	// ownYardRe matches field position relative to the offense's own goal
	// line ("my own 28", "our own 45"); the stored yardline is distance to
	// the opponent's end zone, so the value flips to 100-N.
	ownYardRe = regexp.MustCompile(`\bown\s+(\d{1,2})\b`)

	// oppYardRe matches field position stated from the defense's side
	// ("their 40", "the opponent's 35").
	oppYardRe = regexp.MustCompile(`\b(?:their|opponents?'?s?)\s+(?:the\s+)?(\d{1,2})\b`)

	yardLineRe = regexp.MustCompile(`\b(\d{1,2})[-\s]*yard\s+line\b`)
	atYardRe   = regexp.MustCompile(`\b(?:at|from|on|to)\s+the\s+(\d{1,2})\b`)

	// bareTheYardRe catches elliptical follow-ups ("what about the 20?")
	// where no preposition survives.
	bareTheYardRe = regexp.MustCompile(`\bthe\s+(\d{1,2})\b`)

	boxCountRe = regexp.MustCompile(`\b(\d{1,2})(?:[-\s]*man)?\s+(?:(?:defenders?|men|guys)\s+)?(?:in\s+the\s+)?box\b`)

	seasonRe = regexp.MustCompile(`\b(19\d{2}|20[0-3]\d)\b`)
	countRe  = regexp.MustCompile(`\b(?:top|best)\s+(\d{1,3})\b`)
)

var ordinalDowns = map[string]int{
	"1st": 1, "first": 1,
	"2nd": 2, "second": 2,
	"3rd": 3, "third": 3,
	"4th": 4, "fourth": 4,
}

// positionTerms maps surface forms to the fixed position vocabulary.
// Multiword phrases are checked before single tokens.
var positionTerms = []struct {
	phrase string
	code   string
}{
	{"quarterbacks", "QB"},
	{"quarterback", "QB"},
	{"running backs", "RB"},
	{"running back", "RB"},
	{"halfbacks", "RB"},
	{"halfback", "RB"},
	{"wide receivers", "WR"},
	{"wide receiver", "WR"},
	{"receivers", "WR"},
	{"receiver", "WR"},
	{"tight ends", "TE"},
	{"tight end", "TE"},
	{"qbs", "QB"},
	{"qb", "QB"},
	{"rbs", "RB"},
	{"rb", "RB"},
	{"wrs", "WR"},
	{"wr", "WR"},
	{"tes", "TE"},
	{"te", "TE"},
}

var metricTerms = []struct {
	phrase string
	code   string
}{
	{"success rate", "success_rate"},
	{"epa per play", "epa"},
	{"expected points added", "epa"},
	{"epa", "epa"},
	{"touchdowns", "touchdowns"},
	{"touchdown", "touchdowns"},
	{"tds", "touchdowns"},
	{"yardage", "yards"},
	{"yards", "yards"},
}

// =============================================================================
// Extractor
// =============================================================================

// Extractor pulls structured football entities out of raw query text.
//
// # Description
//
//	Rule-based slot extraction: team mentions via the alias table, downs
//	from ordinals, distance and yardline from down-and-distance phrasing
//	and field landmarks, plus box counts, positions, metrics, seasons, and
//	ranking counts. Extraction never fails; slots that do not parse stay
//	unset.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type Extractor struct {
	teams  *TeamIndex
	logger *slog.Logger
}

// New builds an Extractor over the embedded team alias table.
//
// # Inputs
//
//	logger - Structured logger. If nil, slog.Default() is used.
//
// # Outputs
//
//	*Extractor - Ready to use. Never nil on success.
//	error - Non-nil only if the embedded alias table fails to load.
func New(logger *slog.Logger) (*Extractor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx, err := DefaultTeamIndex()
	if err != nil {
		return nil, err
	}
	return &Extractor{teams: idx, logger: logger}, nil
}

// Teams returns the canonical codes of teams mentioned in text, in order
// of first appearance.
func (e *Extractor) Teams(text string) []string {
	return e.teams.FindAll(text)
}

// Index returns the team alias index the extractor was built over.
func (e *Extractor) Index() *TeamIndex {
	return e.teams
}

// Extract produces the partial Entities present in text.
//
// # Inputs
//
//	text - Raw user query. May be empty; empty input yields zero slots.
//
// # Outputs
//
//	datatypes.Entities - Slots found in the text. Unparsed slots are nil.
func (e *Extractor) Extract(text string) datatypes.Entities {
	var ents datatypes.Entities
	if strings.TrimSpace(text) == "" {
		return ents
	}
	lower := strings.ToLower(text)

	if teams := e.teams.FindAll(lower); len(teams) > 0 {
		ents.Team1 = datatypes.String(teams[0])
		if len(teams) > 1 {
			ents.Team2 = datatypes.String(teams[1])
		}
	}

	if m := downRe.FindStringSubmatch(lower); m != nil {
		if d, ok := ordinalDowns[m[1]]; ok {
			ents.Down = datatypes.Int(d)
		}
	}

	goalToGo := goalToGoRe.MatchString(lower)

	if m := distanceRe.FindStringSubmatch(lower); m != nil {
		ents.Distance = intPtr(m[1])
	} else if m := toGoRe.FindStringSubmatch(lower); m != nil {
		ents.Distance = intPtr(m[1])
	} else if inchesRe.MatchString(lower) {
		ents.Distance = datatypes.Int(1)
	}

	ents.Yardline = e.extractYardline(lower, goalToGo)

	// Goal-to-go means the distance is the full remaining field.
	if goalToGo && ents.Distance == nil && ents.Yardline != nil {
		ents.Distance = datatypes.Int(*ents.Yardline)
	}

	if m := boxCountRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 3 && n <= 11 {
			ents.DefendersInBox = datatypes.Int(n)
		}
	}

	for _, p := range positionTerms {
		if containsWord(lower, p.phrase) {
			ents.Position = datatypes.String(p.code)
			break
		}
	}

	for _, m := range metricTerms {
		if containsWord(lower, m.phrase) {
			ents.Metric = datatypes.String(m.code)
			break
		}
	}

	if m := seasonRe.FindStringSubmatch(lower); m != nil {
		ents.Season = intPtr(m[1])
	}

	if m := countRe.FindStringSubmatch(lower); m != nil {
		ents.Count = intPtr(m[1])
	}

	e.logger.Debug("entities extracted",
		slog.String("slots", strings.Join(ents.SetSlots(), ",")),
	)
	return ents
}

// extractYardline resolves field position. Relative-to-own-goal phrasing is
// checked before absolute phrasing so "my own 28" never reads as "the 28".
func (e *Extractor) extractYardline(lower string, goalToGo bool) *int {
	if m := ownYardRe.FindStringSubmatch(lower); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n >= 1 && n <= 99 {
			return datatypes.Int(100 - n)
		}
	}
	if m := oppYardRe.FindStringSubmatch(lower); m != nil {
		if p := intPtr(m[1]); p != nil {
			return p
		}
	}
	if m := yardLineRe.FindStringSubmatch(lower); m != nil {
		if p := intPtr(m[1]); p != nil {
			return p
		}
	}
	if m := atYardRe.FindStringSubmatch(lower); m != nil {
		if p := intPtr(m[1]); p != nil {
			return p
		}
	}
	if m := bareTheYardRe.FindStringSubmatch(lower); m != nil {
		if p := intPtr(m[1]); p != nil {
			return p
		}
	}
	if containsWord(lower, "midfield") {
		return datatypes.Int(50)
	}
	if containsWord(lower, "red zone") {
		return datatypes.Int(20)
	}
	if containsWord(lower, "goal line") || goalToGo {
		return datatypes.Int(1)
	}
	return nil
}

func intPtr(s string) *int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return nil
	}
	return datatypes.Int(n)
}

func containsWord(lower, phrase string) bool {
	from := 0
	for {
		rel := strings.Index(lower[from:], phrase)
		if rel < 0 {
			return false
		}
		start := from + rel
		end := start + len(phrase)
		if wordBoundary(lower, start, end) {
			return true
		}
		from = end
	}
}
