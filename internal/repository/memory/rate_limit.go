package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

type bucket struct {
	consumed int
	resetAt  time.Time
}

// RateLimitStore keeps limiter buckets in process memory. It is only correct
// when a single worker serves all traffic.
type RateLimitStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

// NewRateLimitStore constructs an empty in-memory store.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// WithClock overrides the clock used to expire windows.
func (s *RateLimitStore) WithClock(now func() time.Time) *RateLimitStore {
	if now != nil {
		s.now = now
	}
	return s
}

// Consume takes one point from key, starting a new window when the previous one elapsed.
func (s *RateLimitStore) Consume(_ context.Context, key string, points int, window time.Duration) (bool, port.RateLimitBucket, error) {
	if points <= 0 {
		return false, port.RateLimitBucket{}, errors.New("points must be positive")
	}
	if window <= 0 {
		return false, port.RateLimitBucket{}, errors.New("window must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(window)}
		s.buckets[key] = b
		s.sweep(now)
	}

	if b.consumed >= points {
		return false, port.RateLimitBucket{Consumed: b.consumed, ResetIn: b.resetAt.Sub(now)}, nil
	}

	b.consumed++
	return true, port.RateLimitBucket{Consumed: b.consumed, ResetIn: b.resetAt.Sub(now)}, nil
}

// Peek reads the bucket without consuming from it.
func (s *RateLimitStore) Peek(_ context.Context, key string) (port.RateLimitBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	b, ok := s.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		return port.RateLimitBucket{}, nil
	}
	return port.RateLimitBucket{Consumed: b.consumed, ResetIn: b.resetAt.Sub(now)}, nil
}

// Reset drops the bucket.
func (s *RateLimitStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.buckets, key)
	s.mu.Unlock()
	return nil
}

// sweep drops expired buckets once the map grows; callers hold the lock.
func (s *RateLimitStore) sweep(now time.Time) {
	if len(s.buckets) < sweepThreshold {
		return
	}
	for key, b := range s.buckets {
		if !now.Before(b.resetAt) {
			delete(s.buckets, key)
		}
	}
}

const sweepThreshold = 4096

var _ port.RateLimitStore = (*RateLimitStore)(nil)
