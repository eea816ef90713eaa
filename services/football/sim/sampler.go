// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package sim

import (
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

// =============================================================================
// Historical Play Pools
// =============================================================================

// PlayOutcome is the effect of one historical play: net yardage and whether
// possession was lost on the play.
type PlayOutcome struct {
	Yards    int  `json:"yards"`
	Turnover bool `json:"turnover"`
}

// HistoricalPlay is one observed play with the situation it occurred in.
// Rows come from the store's precomputed play table.
type HistoricalPlay struct {
	Down     int
	Distance int
	Yardline int
	Yards    int
	Turnover bool
}

// OutcomeSampler draws one play outcome for a simulation state.
//
// Sample must be safe for concurrent use; the rng is owned by the calling
// run and must be used for all randomness.
type OutcomeSampler interface {
	Sample(state State, rng *rand.Rand) (PlayOutcome, error)
}

// MinPoolSize is the sample count below which a bucket is considered too
// thin and the lookup widens to a coarser bucket.
const MinPoolSize = 20

// poolTable is one immutable snapshot of bucketed play pools at three
// granularities: down_distance_zone, down_distance_midfield, down_distance.
type poolTable struct {
	full    map[string][]PlayOutcome
	noDowns map[string][]PlayOutcome
}

// HistoricalSampler samples play outcomes from bucketed historical pools.
//
// # Description
//
//	Lookup tries the full bucket (down, distance bucket, field zone) first.
//	Below MinPoolSize it widens to the midfield zone for the same down and
//	distance, then to the down and distance bucket across all zones. An
//	empty pool after widening is an explicit data-gap error, never a
//	fabricated outcome.
//
// # Thread Safety
//
//	Safe for concurrent use. Pool rebuilds swap the whole snapshot
//	atomically; in-flight samples keep the snapshot they started with.
type HistoricalSampler struct {
	current atomic.Pointer[poolTable]
	minPool int
	logger  *slog.Logger
}

// NewHistoricalSampler builds a sampler over an initial set of plays.
//
// # Inputs
//
//	plays - Observed plays. May be empty; sampling then always errors.
//	logger - Structured logger. If nil, slog.Default() is used.
func NewHistoricalSampler(plays []HistoricalPlay, logger *slog.Logger) *HistoricalSampler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &HistoricalSampler{minPool: MinPoolSize, logger: logger}
	s.current.Store(buildPoolTable(plays))
	return s
}

// Reload replaces the pool snapshot with a rebuilt play set.
func (s *HistoricalSampler) Reload(plays []HistoricalPlay) {
	table := buildPoolTable(plays)
	s.current.Store(table)
	s.logger.Info("historical pools reloaded",
		slog.Int("full_buckets", len(table.full)),
		slog.Int("coarse_buckets", len(table.noDowns)),
	)
}

// PoolSize returns the pool length behind the full-granularity key for
// state, before widening. Zero means the bucket is empty.
func (s *HistoricalSampler) PoolSize(state State) int {
	table := s.current.Load()
	return len(table.full[state.Normalize().BucketKey()])
}

// Sample draws one outcome uniformly at random, with replacement, from the
// widest-necessary bucket for state.
//
// # Outputs
//
//	PlayOutcome - The sampled play effect.
//	error - ErrNoHistoricalSample if every widening level is empty.
func (s *HistoricalSampler) Sample(state State, rng *rand.Rand) (PlayOutcome, error) {
	state = state.Normalize()
	table := s.current.Load()

	pool := table.full[state.BucketKey()]
	if len(pool) < s.minPool {
		widened := fmt.Sprintf("%d_%s_midfield", state.Down, state.DistanceBucket())
		if alt := table.full[widened]; len(alt) >= s.minPool {
			pool = alt
		} else if alt := table.noDowns[fmt.Sprintf("%d_%s", state.Down, state.DistanceBucket())]; len(alt) > 0 {
			pool = alt
		}
	}
	if len(pool) == 0 {
		return PlayOutcome{}, fmt.Errorf("bucket %s: %w", state.BucketKey(), datatypes.ErrNoHistoricalSample)
	}
	return pool[rng.Intn(len(pool))], nil
}

func buildPoolTable(plays []HistoricalPlay) *poolTable {
	table := &poolTable{
		full:    make(map[string][]PlayOutcome),
		noDowns: make(map[string][]PlayOutcome),
	}
	for _, p := range plays {
		st := State{Down: p.Down, Distance: p.Distance, Yardline: p.Yardline}.Normalize()
		out := PlayOutcome{Yards: p.Yards, Turnover: p.Turnover}
		table.full[st.BucketKey()] = append(table.full[st.BucketKey()], out)
		coarse := fmt.Sprintf("%d_%s", st.Down, st.DistanceBucket())
		table.noDowns[coarse] = append(table.noDowns[coarse], out)
	}
	return table
}
