// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stats

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// =============================================================================
// Archetype Group Means
// =============================================================================

// ArchetypeTable is one immutable snapshot of group means, keyed by
// position and metric. Built offline, read-only at request time.
type ArchetypeTable struct {
	means map[string]float64
}

// NewArchetypeTable builds a snapshot from (position, metric) → mean rows.
func NewArchetypeTable(rows map[string]float64) *ArchetypeTable {
	means := make(map[string]float64, len(rows))
	for k, v := range rows {
		means[strings.ToUpper(k)] = v
	}
	return &ArchetypeTable{means: means}
}

// ArchetypeKey builds the canonical lookup key for a position and metric.
func ArchetypeKey(position, metric string) string {
	return strings.ToUpper(position + ":" + metric)
}

// GroupMean returns the group mean for a position/metric pair.
func (t *ArchetypeTable) GroupMean(position, metric string) (float64, bool) {
	v, ok := t.means[ArchetypeKey(position, metric)]
	return v, ok
}

// Len returns the number of group means in the snapshot.
func (t *ArchetypeTable) Len() int { return len(t.means) }

// =============================================================================
// Snapshot Holder
// =============================================================================

// Archetypes holds the current ArchetypeTable snapshot. Readers always see
// a complete table; an offline rebuild publishes a new snapshot with a
// single atomic swap and is never observed mid-write.
//
// Thread Safety: Safe for concurrent use.
type Archetypes struct {
	current atomic.Pointer[ArchetypeTable]
}

// NewArchetypes builds a holder with an initial snapshot.
func NewArchetypes(initial *ArchetypeTable) (*Archetypes, error) {
	if initial == nil {
		return nil, fmt.Errorf("NewArchetypes: initial table must not be nil")
	}
	a := &Archetypes{}
	a.current.Store(initial)
	return a, nil
}

// Snapshot returns the current table. The returned table is immutable.
func (a *Archetypes) Snapshot() *ArchetypeTable {
	return a.current.Load()
}

// Swap publishes a rebuilt table. A nil table is ignored.
func (a *Archetypes) Swap(next *ArchetypeTable) {
	if next == nil {
		return
	}
	a.current.Store(next)
}
