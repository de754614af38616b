package ratelimit

import (
	"sync"
	"time"

	"llmshield/internal/models"
)

// windowCounter is a fixed-window request counter. The window starts at the
// first request and restarts once its span has elapsed.
type windowCounter struct {
	count int
	start time.Time
}

// rollover resets the counter if its window has elapsed.
func (c *windowCounter) rollover(now time.Time, span time.Duration) {
	if c.start.IsZero() || now.Sub(c.start) >= span {
		c.count = 0
		c.start = now
	}
}

func (c *windowCounter) resetAt(span time.Duration) time.Time {
	return c.start.Add(span)
}

// clientQuota holds the three fixed-window counters for one client.
type clientQuota struct {
	windows  [3]windowCounter // indexed like quotaWindows: hour, day, month
	lastSeen time.Time
}

// QuotaTracker enforces hour, day, and month request ceilings per client.
// Admission is all-or-nothing: either every window has capacity and every
// counter is incremented, or no counter changes at all. Safe for concurrent
// use.
type QuotaTracker struct {
	mu      sync.Mutex
	clients map[string]*clientQuota
	clock   func() time.Time
}

func NewQuotaTracker() *QuotaTracker {
	return &QuotaTracker{
		clients: make(map[string]*clientQuota),
		clock:   time.Now,
	}
}

// CheckAndIncrement admits or denies one request for the client under the
// given limits. On denial no counter is modified, so a rejected request never
// consumes quota.
func (t *QuotaTracker) CheckAndIncrement(clientID string, limits models.TierLimits) Decision {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	q, exists := t.clients[clientID]
	if !exists {
		q = &clientQuota{}
		t.clients[clientID] = q
	}
	q.lastSeen = now

	ceilings := quotaCeilings(limits)
	for i := range q.windows {
		q.windows[i].rollover(now, quotaWindows[i].Duration())
	}

	// First pass: check every window before incrementing anything. When
	// several windows are exhausted the denial reports the one that stays
	// closed the longest; retrying at a nearer reset would still be denied.
	denied := -1
	for i := range q.windows {
		if q.windows[i].count < ceilings[i] {
			continue
		}
		if denied < 0 || q.windows[i].resetAt(quotaWindows[i].Duration()).After(q.windows[denied].resetAt(quotaWindows[denied].Duration())) {
			denied = i
		}
	}
	if denied >= 0 {
		resetAt := q.windows[denied].resetAt(quotaWindows[denied].Duration())
		return Decision{
			Allowed:    false,
			LimitedBy:  quotaWindows[denied],
			Limit:      ceilings[denied],
			Remaining:  0,
			ResetAt:    resetAt,
			RetryAfter: resetAt.Sub(now),
		}
	}

	for i := range q.windows {
		q.windows[i].count++
	}

	return t.tightestLocked(q, ceilings, now)
}

// States reports the current window states for a client without consuming
// quota. A client with no recorded requests reports full capacity.
func (t *QuotaTracker) States(clientID string, limits models.TierLimits) []WindowState {
	now := t.clock()
	ceilings := quotaCeilings(limits)

	t.mu.Lock()
	defer t.mu.Unlock()

	states := make([]WindowState, len(quotaWindows))
	q := t.clients[clientID]
	for i, w := range quotaWindows {
		states[i] = WindowState{
			Window:    w,
			Limit:     ceilings[i],
			Remaining: ceilings[i],
			ResetAt:   now.Add(w.Duration()),
		}
		if q == nil {
			continue
		}
		c := q.windows[i]
		c.rollover(now, w.Duration())
		states[i].Remaining = max(0, ceilings[i]-c.count)
		states[i].ResetAt = c.resetAt(w.Duration())
	}
	return states
}

// CleanupExpired removes clients idle for longer than olderThan and returns
// how many were evicted.
func (t *QuotaTracker) CleanupExpired(olderThan time.Duration) int {
	cutoff := t.clock().Add(-olderThan)

	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := 0
	for id, q := range t.clients {
		if q.lastSeen.Before(cutoff) {
			delete(t.clients, id)
			evicted++
		}
	}
	return evicted
}

// tightestLocked builds an allowed Decision. Limit and Remaining come from
// the most constrained window; ResetAt is the nearest upcoming reset, which
// may belong to a different window. Callers must hold t.mu.
func (t *QuotaTracker) tightestLocked(q *clientQuota, ceilings [3]int, now time.Time) Decision {
	d := Decision{Allowed: true, Remaining: -1}
	for i := range q.windows {
		remaining := max(0, ceilings[i]-q.windows[i].count)
		if d.Remaining < 0 || remaining < d.Remaining {
			d.Limit = ceilings[i]
			d.Remaining = remaining
		}
		resetAt := q.windows[i].resetAt(quotaWindows[i].Duration())
		if d.ResetAt.IsZero() || resetAt.Before(d.ResetAt) {
			d.ResetAt = resetAt
		}
	}
	return d
}

func quotaCeilings(limits models.TierLimits) [3]int {
	return [3]int{limits.RequestsPerHour, limits.RequestsPerDay, limits.RequestsPerMonth}
}
