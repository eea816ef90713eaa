// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Grounding Validator
// =============================================================================

var groundingChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "gridiron",
	Subsystem: "pipeline",
	Name:      "grounding_checks_total",
	Help:      "Grounding validation outcomes: pass, mismatch",
}, []string{"outcome"})

// Per-field-class absolute tolerances. EPA values are quoted to two decimals
// in prose; rates are quoted as percentages and tolerate rounding.
const (
	epaTolerance     = 0.02
	rateTolerance    = 0.03
	defaultTolerance = 0.5
)

// numeralRe captures a numeric claim and an optional trailing percent sign.
var numeralRe = regexp.MustCompile(`(-?\d+(?:\.\d+)?)\s*(%)?`)

// Validator checks that externally-rendered prose agrees numerically with
// the PipelineResult it claims to describe. Mismatched prose is never
// surfaced; callers substitute the deterministic structured rendering.
//
// # Thread Safety
//
// Safe for concurrent use.
type Validator struct {
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(logger *slog.Logger) *Validator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{logger: logger}
}

// Validate extracts every numeric claim from the prose and requires each to
// match some result field within that field's tolerance.
//
// # Description
//
//	Small integers (downs, distances, ranks, play counts under 21) and
//	four-digit years are exempt: they are situational framing, not
//	statistical claims. A percentage claim is compared both as written and
//	divided by 100 so "62%" grounds against a 0.62 rate field. Any
//	remaining unmatched numeral fails the whole rendering with
//	datatypes.ErrGroundingMismatch.
func (v *Validator) Validate(prose string, result *datatypes.PipelineResult) error {
	if prose == "" || result == nil || len(result.Data) == 0 {
		return nil
	}

	for _, match := range numeralRe.FindAllStringSubmatch(prose, -1) {
		value, err := strconv.ParseFloat(match[1], 64)
		if err != nil {
			continue
		}
		isPercent := match[2] == "%"
		if exemptNumeral(value, isPercent) {
			continue
		}

		candidates := []float64{value}
		if isPercent {
			candidates = append(candidates, value/100.0)
		}

		if !v.grounded(candidates, result) {
			groundingChecksTotal.WithLabelValues("mismatch").Inc()
			v.logger.Warn("rendered prose failed grounding",
				slog.String("pipeline", result.Pipeline.String()),
				slog.Float64("claim", value),
			)
			return fmt.Errorf("claim %s: %w", match[1], datatypes.ErrGroundingMismatch)
		}
	}

	groundingChecksTotal.WithLabelValues("pass").Inc()
	return nil
}

// exemptNumeral reports whether a numeral is framing rather than a claim.
func exemptNumeral(value float64, isPercent bool) bool {
	if isPercent {
		return false
	}
	if value == math.Trunc(value) {
		// Downs, distances, ranks, box counts.
		if value >= 0 && value <= 20 {
			return true
		}
		// Season years.
		if value >= 1920 && value <= 2100 {
			return true
		}
	}
	return false
}

// grounded reports whether any candidate interpretation of the claim is
// within tolerance of any result field, or of the confidence value.
func (v *Validator) grounded(candidates []float64, result *datatypes.PipelineResult) bool {
	for field, actual := range result.Data {
		tolerance := fieldTolerance(field)
		for _, c := range candidates {
			if math.Abs(c-actual) <= tolerance {
				return true
			}
		}
	}
	for _, c := range candidates {
		if math.Abs(c-result.Confidence) <= rateTolerance {
			return true
		}
	}
	return false
}

func fieldTolerance(field string) float64 {
	switch {
	case strings.Contains(field, "epa"):
		return epaTolerance
	case strings.Contains(field, "rate"), strings.Contains(field, "success"),
		strings.Contains(field, "prob"), strings.Contains(field, "shrinkage"):
		return rateTolerance
	default:
		return defaultTolerance
	}
}

// RenderStructured produces the deterministic fallback rendering of a
// result: sorted fields, labels, and the recommendation. It is what the user
// sees whenever prose fails validation, so it must be complete on its own.
func RenderStructured(result *datatypes.PipelineResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s results:\n", result.Pipeline)

	fields := make([]string, 0, len(result.Data))
	for field := range result.Data {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		fmt.Fprintf(&b, "  %s: %.3f\n", field, result.Data[field])
	}

	labelKeys := make([]string, 0, len(result.Labels))
	for key := range result.Labels {
		labelKeys = append(labelKeys, key)
	}
	sort.Strings(labelKeys)
	for _, key := range labelKeys {
		fmt.Fprintf(&b, "  %s: %s\n", key, result.Labels[key])
	}

	if result.Recommendation != "" {
		fmt.Fprintf(&b, "recommendation: %s (confidence %.2f)\n", result.Recommendation, result.Confidence)
	}
	return b.String()
}
