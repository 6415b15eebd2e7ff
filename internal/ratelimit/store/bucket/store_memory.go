// Package bucket holds per-key token buckets in memory.
package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"qualtrack/internal/ratelimit/models"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// InMemoryBucketStore keeps one token bucket per key. Buckets idle for
// longer than the idle TTL are dropped by Sweep.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*entry
	limit   rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
}

type Option func(*InMemoryBucketStore)

func WithIdleTTL(d time.Duration) Option {
	return func(s *InMemoryBucketStore) {
		if d > 0 {
			s.idleTTL = d
		}
	}
}

// WithClock is for tests.
func WithClock(now func() time.Time) Option {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

func NewInMemoryBucketStore(perSecond float64, burst int, opts ...Option) *InMemoryBucketStore {
	if burst < 1 {
		burst = 1
	}
	s := &InMemoryBucketStore{
		buckets: make(map[string]*entry),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 10 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow takes one token from key's bucket.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string) (*models.Result, error) {
	now := s.now()

	s.mu.Lock()
	e, ok := s.buckets[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.buckets[key] = e
	}
	e.lastSeen = now
	allowed := e.limiter.AllowN(now, 1)
	tokens := e.limiter.TokensAt(now)
	s.mu.Unlock()

	result := &models.Result{
		Allowed:   allowed,
		Limit:     s.burst,
		Remaining: max(int(math.Floor(tokens)), 0),
		ResetAt:   now.Add(s.untilFull(tokens)),
	}
	if !allowed {
		result.RetryAfter = s.retryAfter(tokens)
	}
	return result, nil
}

// Sweep drops idle buckets and returns how many were removed.
func (s *InMemoryBucketStore) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL)
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.buckets {
		if e.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live buckets.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Run sweeps on every tick until ctx is done.
func (s *InMemoryBucketStore) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *InMemoryBucketStore) untilFull(tokens float64) time.Duration {
	if s.limit <= 0 || s.limit == rate.Inf {
		return 0
	}
	missing := float64(s.burst) - tokens
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(s.limit) * float64(time.Second))
}

func (s *InMemoryBucketStore) retryAfter(tokens float64) int {
	if s.limit <= 0 {
		return 60
	}
	wait := (1 - tokens) / float64(s.limit)
	return max(int(math.Ceil(wait)), 1)
}
