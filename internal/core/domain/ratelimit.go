package domain

import "time"

// RateLimitPolicy describes one limiter namespace: a budget of Points per Duration.
type RateLimitPolicy struct {
	Namespace string
	Points    int
	Duration  time.Duration
}

// RateLimitResult is the state of a bucket after a consume or peek.
type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}
