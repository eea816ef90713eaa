// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"encoding/json"
	"fmt"
)

// Pipeline identifies one of the closed set of analytical pipelines. The set
// is fixed at compile time: the router only ever emits these values, and the
// executor dispatches with an exhaustive switch. An out-of-range value is a
// programming error, not a runtime user-facing case.
type Pipeline int

const (
	PipelineTeamProfile Pipeline = iota
	PipelineTeamComparison
	PipelineSituationEPA
	PipelineDecisionAnalysis
	PipelinePlayerRankings
	PipelineSituationalTendencies
	PipelineHistoricalQuery
)

// pipelineNames maps each Pipeline to its wire identifier.
var pipelineNames = [...]string{
	PipelineTeamProfile:           "team_profile",
	PipelineTeamComparison:        "team_comparison",
	PipelineSituationEPA:          "situation_epa",
	PipelineDecisionAnalysis:      "decision_analysis",
	PipelinePlayerRankings:        "player_rankings",
	PipelineSituationalTendencies: "situational_tendencies",
	PipelineHistoricalQuery:       "historical_query",
}

// AllPipelines returns every pipeline in declaration order.
func AllPipelines() []Pipeline {
	return []Pipeline{
		PipelineTeamProfile,
		PipelineTeamComparison,
		PipelineSituationEPA,
		PipelineDecisionAnalysis,
		PipelinePlayerRankings,
		PipelineSituationalTendencies,
		PipelineHistoricalQuery,
	}
}

// String returns the wire identifier (e.g. "team_profile").
func (p Pipeline) String() string {
	if int(p) < 0 || int(p) >= len(pipelineNames) {
		return fmt.Sprintf("pipeline(%d)", int(p))
	}
	return pipelineNames[p]
}

// MarshalJSON writes the wire identifier so API payloads carry
// "team_profile", not an opaque enum ordinal.
func (p Pipeline) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON accepts the wire identifier.
func (p *Pipeline) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, ok := ParsePipeline(name)
	if !ok {
		return fmt.Errorf("datatypes: unknown pipeline %q", name)
	}
	*p = parsed
	return nil
}

// ParsePipeline converts a wire identifier back into a Pipeline.
//
// # Outputs
//
//   - Pipeline: The matching pipeline value.
//   - bool: False if the identifier is not in the closed set.
func ParsePipeline(name string) (Pipeline, bool) {
	for i, n := range pipelineNames {
		if n == name {
			return Pipeline(i), true
		}
	}
	return 0, false
}

// RequiredSlots returns the entity slots a pipeline cannot execute without.
// A PipelineRequest is never constructed with a required slot missing;
// missing-required-slot is a routing error, not an executor error.
func (p Pipeline) RequiredSlots() []string {
	switch p {
	case PipelineTeamProfile:
		return []string{SlotTeam1}
	case PipelineTeamComparison:
		return []string{SlotTeam1, SlotTeam2}
	case PipelineSituationEPA:
		return []string{SlotDown, SlotDistance}
	case PipelineDecisionAnalysis:
		return []string{SlotDistance, SlotYardline}
	case PipelinePlayerRankings:
		return []string{SlotPosition}
	case PipelineSituationalTendencies:
		return []string{SlotTeam1}
	case PipelineHistoricalQuery:
		return []string{SlotTeam1, SlotSeason}
	}
	panic(fmt.Sprintf("datatypes: unhandled pipeline %d", int(p)))
}

// MeaningfulSlots returns the slots a pipeline reads at all, required or
// optional. The context resolver uses this to drop carried-over slots that
// have no meaning for the newly selected pipeline.
func (p Pipeline) MeaningfulSlots() []string {
	switch p {
	case PipelineTeamProfile:
		return []string{SlotTeam1, SlotSeason}
	case PipelineTeamComparison:
		return []string{SlotTeam1, SlotTeam2, SlotSeason}
	case PipelineSituationEPA:
		return []string{SlotTeam1, SlotDown, SlotDistance, SlotYardline, SlotDefendersInBox, SlotSeason}
	case PipelineDecisionAnalysis:
		return []string{SlotDown, SlotDistance, SlotYardline, SlotSeason}
	case PipelinePlayerRankings:
		return []string{SlotPosition, SlotMetric, SlotCount, SlotSeason}
	case PipelineSituationalTendencies:
		return []string{SlotTeam1, SlotDown, SlotDistance, SlotSeason}
	case PipelineHistoricalQuery:
		return []string{SlotTeam1, SlotTeam2, SlotSeason, SlotMetric}
	}
	panic(fmt.Sprintf("datatypes: unhandled pipeline %d", int(p)))
}

// MissingRequired returns the required slots of p that e does not satisfy,
// in canonical order. Empty means e can execute p.
func (p Pipeline) MissingRequired(e Entities) []string {
	var missing []string
	for _, slot := range p.RequiredSlots() {
		if !e.Has(slot) {
			missing = append(missing, slot)
		}
	}
	return missing
}

// PipelineRequest is a fully-resolved unit of executable work: a pipeline
// plus entities satisfying every required slot.
type PipelineRequest struct {
	Pipeline Pipeline `json:"pipeline"`
	Entities Entities `json:"entities"`

	// Tier records which routing tier produced the request (1, 2, or 3).
	Tier int `json:"tier"`

	// Reason is a short human-readable note on why this route was chosen
	// (matched rule name, intent cluster, or tool-call provenance).
	Reason string `json:"reason,omitempty"`
}

// PipelineResult is the structured output of one pipeline execution.
// Immutable once returned; consumed by the renderer and by the grounding
// validator.
type PipelineResult struct {
	Pipeline Pipeline `json:"pipeline"`

	// Data holds the named numeric fields of the result
	// (e.g. pass_epa, run_epa, expected_points_go).
	Data map[string]float64 `json:"data"`

	// Labels holds named categorical fields (e.g. advantage, stat_type).
	Labels map[string]string `json:"labels,omitempty"`

	// Recommendation is the suggested action, when the pipeline produces one.
	Recommendation string `json:"recommendation,omitempty"`

	// Confidence in [0,1]; a margin heuristic, not a calibrated probability.
	Confidence float64 `json:"confidence"`

	// Provenance records which engine produced the result
	// (e.g. "drive_simulator", "shrinkage_estimator", "aggregate_store").
	Provenance string `json:"provenance"`
}
