// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package convert

import (
	"sync"
	"time"

	"github.com/bureau-foundation/airlock/lib/clock"
)

// Timeout budget constants. The budget scales with document size so
// a large scanned PDF gets the render time it needs, while a small
// malicious file that spins forever is cut off quickly.
const (
	TimeoutMin     = 60 * time.Second
	TimeoutPerMiB  = 30 * time.Second
	TimeoutPerPage = 30 * time.Second
)

// TimeoutPolicy computes the total conversion budget. pages is zero
// until the page count is known; the driver re-invokes the policy
// once it is and extends (never shrinks) the budget.
type TimeoutPolicy func(sizeBytes int64, pages int) time.Duration

// DefaultTimeoutPolicy is max(TimeoutMin, TimeoutPerMiB per MiB),
// extended to TimeoutPerPage per page once the count is known.
func DefaultTimeoutPolicy(sizeBytes int64, pages int) time.Duration {
	budget := time.Duration(float64(TimeoutPerMiB) * float64(sizeBytes) / (1 << 20))
	if budget < TimeoutMin {
		budget = TimeoutMin
	}
	if pages > 0 {
		if byPages := time.Duration(pages) * TimeoutPerPage; byPages > budget {
			budget = byPages
		}
	}
	return budget
}

// budgetTimer enforces a conversion budget measured from a fixed
// start instant, with one-way extension.
type budgetTimer struct {
	mu     sync.Mutex
	c      clock.Clock
	start  time.Time
	budget time.Duration
	timer  *clock.Timer
}

// startBudget arms a timer that invokes expire when the budget runs
// out.
func startBudget(c clock.Clock, budget time.Duration, expire func()) *budgetTimer {
	return &budgetTimer{
		c:      c,
		start:  c.Now(),
		budget: budget,
		timer:  c.AfterFunc(budget, expire),
	}
}

// Extend grows the budget to newBudget if larger. The deadline stays
// anchored to the original start.
func (b *budgetTimer) Extend(newBudget time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if newBudget <= b.budget {
		return
	}
	b.budget = newBudget
	b.timer.Reset(b.start.Add(newBudget).Sub(b.c.Now()))
}

// Stop disarms the timer.
func (b *budgetTimer) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timer.Stop()
}
