package port

import (
	"context"
	"time"
)

// RateLimitBucket is the raw bucket state returned by a store.
type RateLimitBucket struct {
	Consumed int
	ResetIn  time.Duration
}

// RateLimitStore keeps fixed-window point counters. Consume must be atomic per key:
// it starts a new window of the given duration when none is active, and never
// counts past points.
type RateLimitStore interface {
	Consume(ctx context.Context, key string, points int, window time.Duration) (allowed bool, bucket RateLimitBucket, err error)
	Peek(ctx context.Context, key string) (RateLimitBucket, error)
	Reset(ctx context.Context, key string) error
}
