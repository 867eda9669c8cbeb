package redis

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
)

const (
	defaultKeyPrefix = "hackreg:ratelimit"
	connectTimeout   = 5 * time.Second
)

// Client is the connection shared by every limiter namespace.
type Client struct {
	rdb       *redis.Client
	logger    *zap.Logger
	keyPrefix string
}

// NewClient connects and pings before returning so a misconfigured limiter
// store stops startup instead of failing every request.
func NewClient(ctx context.Context, cfg config.RedisSettings, logger *zap.Logger) (*Client, error) {
	opts := &redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,

		PoolSize:     10,
		MinIdleConns: 2,
		// A limiter decision must not be retried into a second consume.
		MaxRetries: -1,

		DialTimeout:     connectTimeout,
		ReadTimeout:     3 * time.Second,
		WriteTimeout:    3 * time.Second,
		PoolTimeout:     4 * time.Second,
		ConnMaxIdleTime: 5 * time.Minute,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: cfg.Host}
	}

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = defaultKeyPrefix
	}

	logger.Info("connected to redis",
		zap.String("addr", opts.Addr),
		zap.Int("db", cfg.DB),
		zap.Bool("tls", cfg.TLSEnabled),
		zap.String("key_prefix", prefix),
	)

	return &Client{rdb: rdb, logger: logger, keyPrefix: prefix}, nil
}

func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Ping backs the readiness probe. Limiter calls fail closed while it fails.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.logger.Info("closing redis connection")
	return c.rdb.Close()
}

// KeyPrefix is the namespace under which limiter buckets are stored.
func (c *Client) KeyPrefix() string {
	return c.keyPrefix
}
