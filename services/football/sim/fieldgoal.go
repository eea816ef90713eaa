// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import "sort"

// =============================================================================
// Field Goal Model
// =============================================================================

// FieldGoalModel estimates make probability for a kick distance in yards
// (yardline plus 17 for the end zone depth and holder placement).
type FieldGoalModel interface {
	SuccessProb(distance int) float64
}

// CurvePoint is one observed (distance, make rate) sample of the kick curve.
type CurvePoint struct {
	Distance int
	Prob     float64
}

// DistanceCurve interpolates make probability between observed curve points.
//
// # Description
//
//	Linear interpolation between the two nearest points; distances outside
//	the observed range clamp to the end points. With no points at all the
//	curve falls back to a linear decay from a near-certain short kick.
//
// # Thread Safety
//
//	Immutable after construction; safe for concurrent use.
type DistanceCurve struct {
	points []CurvePoint
}

// NewDistanceCurve builds a curve from observed points in any order.
func NewDistanceCurve(points []CurvePoint) *DistanceCurve {
	sorted := make([]CurvePoint, len(points))
	copy(sorted, points)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })
	return &DistanceCurve{points: sorted}
}

// SuccessProb returns the estimated make probability for distance yards.
func (c *DistanceCurve) SuccessProb(distance int) float64 {
	if len(c.points) == 0 {
		return fallbackFGProb(distance)
	}
	pts := c.points
	if distance <= pts[0].Distance {
		return clampProb(pts[0].Prob)
	}
	last := pts[len(pts)-1]
	if distance >= last.Distance {
		return clampProb(last.Prob)
	}
	i := sort.Search(len(pts), func(i int) bool { return pts[i].Distance >= distance })
	lo, hi := pts[i-1], pts[i]
	span := float64(hi.Distance - lo.Distance)
	frac := float64(distance-lo.Distance) / span
	return clampProb(lo.Prob + frac*(hi.Prob-lo.Prob))
}

// fallbackFGProb is the no-data kick curve: linear decay of 1.5 points of
// make rate per yard past 20, floored at 30 percent.
func fallbackFGProb(distance int) float64 {
	p := 1.0 - float64(distance-20)*0.015
	if p < 0.3 {
		return 0.3
	}
	return clampProb(p)
}

func clampProb(p float64) float64 {
	if p < 0.01 {
		return 0.01
	}
	if p > 0.99 {
		return 0.99
	}
	return p
}
