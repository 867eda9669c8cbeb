package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/core/port"
)

// consumeScript implements a fixed window counter. The window starts with the
// first consumption and is never extended by later ones. An exhausted bucket
// is left untouched.
var consumeScript = redis.NewScript(`
local points = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local ttl = redis.call('PTTL', KEYS[1])
if ttl <= 0 then
	redis.call('SET', KEYS[1], 1, 'PX', window)
	return {1, 1, window}
end
local consumed = tonumber(redis.call('GET', KEYS[1]) or '0')
if consumed >= points then
	return {0, consumed, ttl}
end
consumed = redis.call('INCR', KEYS[1])
return {1, consumed, ttl}
`)

// RateLimitStore keeps limiter buckets in Redis so every worker shares the same counters.
type RateLimitStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRateLimitStore constructs a store using the provided Redis client and key prefix.
func NewRateLimitStore(client *redis.Client, keyPrefix string) *RateLimitStore {
	return &RateLimitStore{client: client, keyPrefix: keyPrefix}
}

// Consume atomically takes one point from the bucket stored under key.
func (s *RateLimitStore) Consume(ctx context.Context, key string, points int, window time.Duration) (bool, port.RateLimitBucket, error) {
	if points <= 0 {
		return false, port.RateLimitBucket{}, errors.New("points must be positive")
	}
	if window < time.Millisecond {
		return false, port.RateLimitBucket{}, errors.New("window must be at least one millisecond")
	}

	raw, err := consumeScript.Run(ctx, s.client, []string{s.key(key)}, points, window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, port.RateLimitBucket{}, fmt.Errorf("redis consume: %w", err)
	}
	if len(raw) != 3 {
		return false, port.RateLimitBucket{}, fmt.Errorf("redis consume: unexpected reply length %d", len(raw))
	}

	bucket := port.RateLimitBucket{
		Consumed: int(raw[1]),
		ResetIn:  time.Duration(raw[2]) * time.Millisecond,
	}
	return raw[0] == 1, bucket, nil
}

// Peek reads the bucket without consuming from it. A missing bucket is empty.
func (s *RateLimitStore) Peek(ctx context.Context, key string) (port.RateLimitBucket, error) {
	fullKey := s.key(key)

	pipe := s.client.Pipeline()
	getCmd := pipe.Get(ctx, fullKey)
	ttlCmd := pipe.PTTL(ctx, fullKey)
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return port.RateLimitBucket{}, fmt.Errorf("redis peek: %w", err)
	}

	consumed, err := getCmd.Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return port.RateLimitBucket{}, nil
		}
		return port.RateLimitBucket{}, fmt.Errorf("redis peek: %w", err)
	}

	ttl := ttlCmd.Val()
	if ttl <= 0 {
		return port.RateLimitBucket{}, nil
	}

	return port.RateLimitBucket{Consumed: consumed, ResetIn: ttl}, nil
}

// Reset deletes the bucket so the next consumption starts a new window.
func (s *RateLimitStore) Reset(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (s *RateLimitStore) key(identifier string) string {
	if s.keyPrefix == "" {
		return identifier
	}
	return s.keyPrefix + ":" + identifier
}

var _ port.RateLimitStore = (*RateLimitStore)(nil)
