package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"llmshield/internal/models"
)

// bucketEntry holds one client's minute-window token bucket. The bucket is
// rebuilt at full capacity when the client's tier changes.
type bucketEntry struct {
	bucket   *rate.Limiter
	tier     models.RateLimitTier
	lastSeen time.Time
}

// MultiTierRateLimiter combines the minute-window token bucket with the
// fixed-window quota tracker. The bucket is consulted first: a request denied
// by the bucket never touches the quota counters, and a request denied by
// quota does not refund its bucket token. Safe for concurrent use.
type MultiTierRateLimiter struct {
	table  models.TierTable
	quotas *QuotaTracker

	mu      sync.Mutex
	buckets map[string]*bucketEntry
	clock   func() time.Time
}

func NewMultiTierRateLimiter(table models.TierTable) *MultiTierRateLimiter {
	return &MultiTierRateLimiter{
		table:   table,
		quotas:  NewQuotaTracker(),
		buckets: make(map[string]*bucketEntry),
		clock:   time.Now,
	}
}

// Allow admits or denies one request for the client at the given tier.
func (l *MultiTierRateLimiter) Allow(clientID string, tier models.RateLimitTier) Decision {
	now := l.clock()
	limits := l.table.Limits(tier)

	l.mu.Lock()
	e, exists := l.buckets[clientID]
	if !exists || e.tier != tier {
		e = &bucketEntry{
			bucket: rate.NewLimiter(minuteRate(limits.RequestsPerMinute), limits.RequestsPerMinute),
			tier:   tier,
		}
		l.buckets[clientID] = e
	}
	e.lastSeen = now
	l.mu.Unlock()

	if !e.bucket.AllowN(now, 1) {
		r := e.bucket.ReserveN(now, 1)
		delay := r.DelayFrom(now)
		r.CancelAt(now)
		return Decision{
			Allowed:    false,
			LimitedBy:  WindowMinute,
			Limit:      limits.RequestsPerMinute,
			Remaining:  0,
			ResetAt:    now.Add(delay),
			RetryAfter: delay,
		}
	}

	quotaDecision := l.quotas.CheckAndIncrement(clientID, limits)
	if !quotaDecision.Allowed {
		return quotaDecision
	}

	bucketRemaining := int(math.Max(0, math.Floor(e.bucket.TokensAt(now))))
	if bucketRemaining < quotaDecision.Remaining {
		return Decision{
			Allowed:   true,
			Limit:     limits.RequestsPerMinute,
			Remaining: bucketRemaining,
			ResetAt:   now.Add(refillDuration(e.bucket, limits.RequestsPerMinute, now)),
		}
	}
	return quotaDecision
}

// States reports the client's admission state across all windows without
// consuming capacity.
func (l *MultiTierRateLimiter) States(clientID string, tier models.RateLimitTier) []WindowState {
	now := l.clock()
	limits := l.table.Limits(tier)

	minuteState := WindowState{
		Window:    WindowMinute,
		Limit:     limits.RequestsPerMinute,
		Remaining: limits.RequestsPerMinute,
		ResetAt:   now,
	}

	l.mu.Lock()
	if e, ok := l.buckets[clientID]; ok && e.tier == tier {
		minuteState.Remaining = int(math.Max(0, math.Floor(e.bucket.TokensAt(now))))
		minuteState.ResetAt = now.Add(refillDuration(e.bucket, limits.RequestsPerMinute, now))
	}
	l.mu.Unlock()

	return append([]WindowState{minuteState}, l.quotas.States(clientID, limits)...)
}

// Cleanup evicts bucket and quota state for clients idle longer than
// olderThan, returning the number of bucket entries removed.
func (l *MultiTierRateLimiter) Cleanup(olderThan time.Duration) int {
	cutoff := l.clock().Add(-olderThan)

	l.mu.Lock()
	evicted := 0
	for id, e := range l.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(l.buckets, id)
			evicted++
		}
	}
	l.mu.Unlock()

	l.quotas.CleanupExpired(olderThan)
	return evicted
}

// minuteRate refills the bucket to full capacity over one minute.
func minuteRate(requestsPerMinute int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(requestsPerMinute))
}

// refillDuration is how long until the bucket is full again.
func refillDuration(b *rate.Limiter, burst int, now time.Time) time.Duration {
	needed := float64(burst) - b.TokensAt(now)
	if needed <= 0 {
		return 0
	}
	return time.Duration(needed / float64(b.Limit()) * float64(time.Second))
}
