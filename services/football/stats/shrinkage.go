// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stats implements the small-sample stabilization used by the
// ranking pipelines. Raw per-player means over a handful of plays are
// noisy; each estimate is pulled toward its archetype group mean with a
// strength that decays as the observed sample grows.
package stats

import (
	"fmt"
	"os"
	"strconv"
)

// =============================================================================
// Shrinkage Constants
// =============================================================================

const (
	// DefaultShrinkageK is the shrinkage-strength constant: the number of
	// pseudo-observations the group mean contributes. Tunable per deployment
	// via GRIDIRON_SHRINKAGE_K, never per request.
	DefaultShrinkageK = 30.0

	// MinSamplesLow is the sample size below which an estimate is flagged
	// as low-confidence regardless of shrinkage.
	MinSamplesLow = 20

	// MinSamplesFull is the sample size at which an estimate is considered
	// fully reliable.
	MinSamplesFull = 100
)

// ShrinkageKFromEnv reads the deployment's shrinkage constant.
//
// Returns DefaultShrinkageK if the variable is unset or unparseable.
func ShrinkageKFromEnv() float64 {
	raw := os.Getenv("GRIDIRON_SHRINKAGE_K")
	if raw == "" {
		return DefaultShrinkageK
	}
	k, err := strconv.ParseFloat(raw, 64)
	if err != nil || k <= 0 {
		return DefaultShrinkageK
	}
	return k
}

// =============================================================================
// Estimator
// =============================================================================

// Estimate is one stabilized statistic with its reliability metadata.
type Estimate struct {
	// Value is the shrunk statistic.
	Value float64 `json:"value"`

	// RawMean is the entity's unadjusted observed mean.
	RawMean float64 `json:"raw_mean"`

	// GroupMean is the archetype group mean the estimate was pulled toward.
	GroupMean float64 `json:"group_mean"`

	// SampleSize is the entity's observed play count.
	SampleSize int `json:"sample_size"`

	// ShrinkageApplied is k/(n+k): the fraction of the estimate that came
	// from the group mean rather than the entity's own observations.
	ShrinkageApplied float64 `json:"shrinkage_applied"`

	// Reliability is "low", "medium", or "high" from the sample thresholds.
	Reliability string `json:"reliability"`
}

// Estimator applies empirical-Bayes style shrinkage with a fixed strength.
//
// Thread Safety: Immutable; safe for concurrent use.
type Estimator struct {
	k float64
}

// NewEstimator builds an Estimator with shrinkage strength k.
//
// # Inputs
//
//	k - Pseudo-observation count for the group mean. Must be positive.
func NewEstimator(k float64) (*Estimator, error) {
	if k <= 0 {
		return nil, fmt.Errorf("NewEstimator: k must be positive, got %g", k)
	}
	return &Estimator{k: k}, nil
}

// K returns the configured shrinkage strength.
func (e *Estimator) K() float64 { return e.k }

// Shrink stabilizes an entity mean toward its group mean.
//
// # Description
//
//	shrunk = (n*entityMean + k*groupMean) / (n + k). At n=0 the result is
//	exactly the group mean; as n grows the result approaches the entity
//	mean. Negative sample sizes are treated as zero.
//
// # Inputs
//
//	entityMean - The entity's observed mean in the bucket.
//	n - The entity's observed sample size in the bucket.
//	groupMean - The precomputed archetype group mean.
//
// # Outputs
//
//	Estimate - The stabilized value with reliability metadata.
func (e *Estimator) Shrink(entityMean float64, n int, groupMean float64) Estimate {
	if n < 0 {
		n = 0
	}
	fn := float64(n)
	value := (fn*entityMean + e.k*groupMean) / (fn + e.k)

	return Estimate{
		Value:            value,
		RawMean:          entityMean,
		GroupMean:        groupMean,
		SampleSize:       n,
		ShrinkageApplied: e.k / (fn + e.k),
		Reliability:      reliability(n),
	}
}

func reliability(n int) string {
	switch {
	case n < MinSamplesLow:
		return "low"
	case n < MinSamplesFull:
		return "medium"
	default:
		return "high"
	}
}
