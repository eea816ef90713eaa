// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors shared across the service. All of these are recoverable at
// the request level: one failing turn never corrupts session state, and none
// are treated as process-fatal.
var (
	// ErrFallbackUnavailable indicates the language-model fallback timed out,
	// errored, or was quota-exhausted. The router still reports the best
	// available tier-1/2 diagnosis alongside this error.
	ErrFallbackUnavailable = errors.New("fallback unavailable")

	// ErrNoHistoricalSample indicates the historical play pool was empty even
	// after bucket widening. The simulator reports this explicitly rather
	// than fabricating an outcome.
	ErrNoHistoricalSample = errors.New("no historical sample for bucket")

	// ErrGroundingMismatch indicates rendered prose diverged numerically from
	// the computed result. The caller falls back to a deterministic
	// structured rendering; mismatched prose is never surfaced.
	ErrGroundingMismatch = errors.New("rendered prose contradicts computed result")

	// ErrSessionNotFound indicates the session id has no stored state
	// (never created, or expired).
	ErrSessionNotFound = errors.New("session not found")

	// ErrQuotaExhausted indicates the caller's daily language-model quota is
	// spent. Tiers 1-2 keep working; only the fallback tier is skipped.
	ErrQuotaExhausted = errors.New("daily quota exhausted")
)

// RoutingError reports that no tier produced a satisfiable PipelineRequest.
// It names the missing slots so the caller can ask the user for exactly the
// information that is absent, never guessing defaults.
type RoutingError struct {
	// BestPipeline is the closest pipeline any tier identified, if any.
	BestPipeline Pipeline

	// HasCandidate reports whether BestPipeline is meaningful.
	HasCandidate bool

	// MissingSlots lists the required slots that could not be resolved.
	MissingSlots []string

	// Cause carries a tier-3 failure (ErrFallbackUnavailable and friends)
	// when the fallback was attempted and did not rescue the route.
	Cause error
}

func (e *RoutingError) Error() string {
	var b strings.Builder
	b.WriteString("routing failed")
	if e.HasCandidate {
		fmt.Fprintf(&b, " for %s", e.BestPipeline)
	}
	if len(e.MissingSlots) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(e.MissingSlots, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

func (e *RoutingError) Unwrap() error { return e.Cause }
