// Copyright (C) 2025 Gridiron AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routing

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/GridironAI/gridiron/services/football/datatypes"
)

const defaultDailyQuota = 50

// Quota gates the tier-3 model call: a per-session daily cap plus a global
// token-bucket smoother. Exceeding either skips tier 3 for that request;
// tiers 1-2 are never affected.
//
// # Thread Safety
//
// Safe for concurrent use.
type Quota struct {
	mu     sync.Mutex
	day    string
	counts map[string]int

	daily   int
	limiter *rate.Limiter
	now     func() time.Time
}

// NewQuota creates a Quota with the given per-session daily cap and a global
// rate smoother. daily <= 0 uses the default (50). perSecond <= 0 disables
// smoothing.
func NewQuota(daily int, perSecond rate.Limit, burst int) *Quota {
	if daily <= 0 {
		daily = defaultDailyQuota
	}
	var limiter *rate.Limiter
	if perSecond > 0 {
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(perSecond, burst)
	}
	return &Quota{
		counts:  make(map[string]int),
		daily:   daily,
		limiter: limiter,
		now:     time.Now,
	}
}

// Allow consumes one tier-3 credit for the session. Returns
// datatypes.ErrQuotaExhausted (wrapped with the reason) when the daily cap
// is spent or the smoother has no token. Counts reset at UTC midnight.
func (q *Quota) Allow(sessionID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	today := q.now().UTC().Format("2006-01-02")
	if q.day != today {
		q.day = today
		q.counts = make(map[string]int)
	}
	if q.counts[sessionID] >= q.daily {
		return fmt.Errorf("%w: session %s hit the daily cap of %d", datatypes.ErrQuotaExhausted, sessionID, q.daily)
	}
	// The smoother is consulted before the count so a smoother rejection
	// does not spend a daily credit.
	if q.limiter != nil && !q.limiter.Allow() {
		return fmt.Errorf("%w: model call rate exceeded", datatypes.ErrQuotaExhausted)
	}
	q.counts[sessionID]++
	return nil
}

// Usage reports the session's spent credits and the daily cap. A day
// boundary since the last Allow reads as zero used.
func (q *Quota) Usage(sessionID string) (used, limit int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.day != q.now().UTC().Format("2006-01-02") {
		return 0, q.daily
	}
	return q.counts[sessionID], q.daily
}
