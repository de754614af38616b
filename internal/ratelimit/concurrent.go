package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Permit is a held concurrency slot. Release is idempotent, so it is safe to
// both defer it and call it explicitly on an early exit path.
type Permit struct {
	once    sync.Once
	release func()
}

func (p *Permit) Release() {
	if p == nil {
		return
	}
	p.once.Do(p.release)
}

// clientSlots tracks one client's concurrency semaphore and in-flight count.
type clientSlots struct {
	sem      *semaphore.Weighted
	max      int
	inFlight int
	lastSeen time.Time
}

// ConcurrentLimiter caps the number of simultaneous in-flight requests per
// client. The semaphore does not expose its available weight, so an in-flight
// counter is kept alongside for introspection. Safe for concurrent use.
type ConcurrentLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientSlots
	clock   func() time.Time
}

func NewConcurrentLimiter() *ConcurrentLimiter {
	return &ConcurrentLimiter{
		clients: make(map[string]*clientSlots),
		clock:   time.Now,
	}
}

// TryAcquire attempts to take a slot without blocking. It returns a Permit
// and true on success, or nil and false when the client is at its ceiling.
func (c *ConcurrentLimiter) TryAcquire(clientID string, maxConcurrent int) (*Permit, bool) {
	s := c.slots(clientID, maxConcurrent)
	if !s.sem.TryAcquire(1) {
		return nil, false
	}
	return c.grant(clientID, s), true
}

// Acquire blocks until a slot is available or the context is done.
func (c *ConcurrentLimiter) Acquire(ctx context.Context, clientID string, maxConcurrent int) (*Permit, error) {
	s := c.slots(clientID, maxConcurrent)
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return c.grant(clientID, s), nil
}

// InFlight returns the number of slots currently held by the client.
func (c *ConcurrentLimiter) InFlight(clientID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.clients[clientID]; ok {
		return s.inFlight
	}
	return 0
}

// Cleanup evicts idle clients with no slots held and returns how many were
// removed. A client with requests still in flight is never evicted.
func (c *ConcurrentLimiter) Cleanup(olderThan time.Duration) int {
	cutoff := c.clock().Add(-olderThan)

	c.mu.Lock()
	defer c.mu.Unlock()

	evicted := 0
	for id, s := range c.clients {
		if s.inFlight == 0 && s.lastSeen.Before(cutoff) {
			delete(c.clients, id)
			evicted++
		}
	}
	return evicted
}

// slots returns the client's semaphore, creating it on first use. A changed
// ceiling takes effect once the client has no slots held; resizing a
// semaphore with holders would corrupt its accounting.
func (c *ConcurrentLimiter) slots(clientID string, maxConcurrent int) *clientSlots {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.clients[clientID]
	if !ok || (s.max != maxConcurrent && s.inFlight == 0) {
		s = &clientSlots{
			sem: semaphore.NewWeighted(int64(maxConcurrent)),
			max: maxConcurrent,
		}
		c.clients[clientID] = s
	}
	s.lastSeen = c.clock()
	return s
}

func (c *ConcurrentLimiter) grant(clientID string, s *clientSlots) *Permit {
	c.mu.Lock()
	s.inFlight++
	c.mu.Unlock()

	return &Permit{release: func() {
		c.mu.Lock()
		s.inFlight--
		s.lastSeen = c.clock()
		c.mu.Unlock()
		s.sem.Release(1)
	}}
}
