// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"fmt"
	"regexp"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Tier 1: Pattern Table
// =============================================================================

// patternRule is one entry in the ordered tier-1 table. A rule fires when its
// regex matches the query text AND every slot its pipeline requires is
// resolvable from the entities at hand.
type patternRule struct {
	name     string
	re       *regexp.Regexp
	pipeline datatypes.Pipeline
}

// patternRules is evaluated top to bottom; the first rule whose regex matches
// and whose slots are satisfied wins. Ties are broken by declaration order
// on purpose, not by a scoring function, so routing stays predictable.
var patternRules = []patternRule{
	{
		name:     "team_versus_team",
		re:       regexp.MustCompile(`(?i)\bvs\.?\b|\bversus\b|\bcompared?\s+(?:to|with|against)\b|\bagainst\b`),
		pipeline: datatypes.PipelineTeamComparison,
	},
	{
		name:     "fourth_down_decision",
		re:       regexp.MustCompile(`(?i)\bgo\s+for\s+it\b|\bgo\s+or\s+(?:kick|punt)\b|\b(?:kick|punt)\s+or\s+go\b|\bfield\s+goal\s+or\b|\bshould\s+(?:we|they|i)\s+(?:kick|punt|go)\b`),
		pipeline: datatypes.PipelineDecisionAnalysis,
	},
	{
		name:     "run_or_pass",
		re:       regexp.MustCompile(`(?i)\brun\s+or\s+pass\b|\bpass\s+or\s+run\b|\brun\s+or\s+throw\b`),
		pipeline: datatypes.PipelineSituationEPA,
	},
	{
		name:     "top_players_by_metric",
		re:       regexp.MustCompile(`(?i)\btop\s+\d+\b|\bbest\s+\w+s?\s+(?:by|in)\b|\brank(?:ings?|ed)?\b|\bleaders?\b`),
		pipeline: datatypes.PipelinePlayerRankings,
	},
	{
		name:     "team_tendency",
		re:       regexp.MustCompile(`(?i)\bhow\s+often\b|\btendenc(?:y|ies)\b|\blikely\s+to\b|\bwhat\s+do\s+they\s+(?:run|call)\b`),
		pipeline: datatypes.PipelineSituationalTendencies,
	},
	{
		name:     "season_lookback",
		re:       regexp.MustCompile(`(?i)\b(?:in|during|back\s+in)\s+(?:19|20)\d{2}\b|\bthat\s+season\b|\bhistorically\b`),
		pipeline: datatypes.PipelineHistoricalQuery,
	},
	{
		name:     "team_profile",
		re:       regexp.MustCompile(`(?i)\bhow\s+good\s+(?:are|is)\b|\bprofile\b|\btell\s+me\s+about\b|\bhow\s+(?:are|is)\s+the\b|\bbreak\s+down\b`),
		pipeline: datatypes.PipelineTeamProfile,
	},
}

// Candidate is a near-miss diagnosis: a pipeline some tier identified as the
// likely intent, plus the required slots that could not be resolved. The
// router surfaces the best candidate when every tier fails, so the caller can
// ask the user for exactly what is missing.
type Candidate struct {
	Pipeline datatypes.Pipeline
	Missing  []string
	Reason   string
}

// PatternTable is the tier-1 matcher.
//
// Thread Safety: Immutable after construction; safe for concurrent use.
type PatternTable struct {
	rules []patternRule
}

// NewPatternTable returns a table over the built-in ordered rule set.
func NewPatternTable() *PatternTable {
	return &PatternTable{rules: patternRules}
}

// Match runs the ordered rule table against the query text.
//
// # Description
//
//	Returns a fully-satisfied PipelineRequest from the first rule whose
//	regex matches and whose pipeline's required slots are all present in
//	the entities. When rules match textually but slots are missing, the
//	first such near miss is returned as a Candidate so the caller can
//	report what information is absent.
//
// # Outputs
//
//   - *datatypes.PipelineRequest: Non-nil when a rule fired and is
//     satisfiable; Tier is 1.
//   - *Candidate: Non-nil when at least one rule matched textually but
//     required slots were missing. Nil when no rule matched at all.
func (t *PatternTable) Match(text string, e datatypes.Entities) (*datatypes.PipelineRequest, *Candidate) {
	var nearMiss *Candidate
	for _, rule := range t.rules {
		if !rule.re.MatchString(text) {
			continue
		}
		missing := rule.pipeline.MissingRequired(e)
		if len(missing) == 0 {
			return &datatypes.PipelineRequest{
				Pipeline: rule.pipeline,
				Entities: e,
				Tier:     1,
				Reason:   fmt.Sprintf("pattern rule %q", rule.name),
			}, nil
		}
		if nearMiss == nil {
			nearMiss = &Candidate{
				Pipeline: rule.pipeline,
				Missing:  missing,
				Reason:   fmt.Sprintf("pattern rule %q matched but slots missing", rule.name),
			}
		}
	}
	return nil, nearMiss
}
