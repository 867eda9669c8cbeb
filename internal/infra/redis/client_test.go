package redis

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
)

func miniredisSettings(t *testing.T) (*miniredis.Miniredis, config.RedisSettings) {
	t.Helper()
	srv := miniredis.RunT(t)
	port, err := strconv.Atoi(srv.Port())
	if err != nil {
		t.Fatalf("parse miniredis port: %v", err)
	}
	return srv, config.RedisSettings{Host: srv.Host(), Port: port}
}

func TestNewClientPingsAndDefaultsPrefix(t *testing.T) {
	_, cfg := miniredisSettings(t)

	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	if client.KeyPrefix() != defaultKeyPrefix {
		t.Fatalf("unexpected prefix %q", client.KeyPrefix())
	}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestClientPingFailsWhenServerGoesAway(t *testing.T) {
	srv, cfg := miniredisSettings(t)
	cfg.KeyPrefix = "test:rl"

	client, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	if client.KeyPrefix() != "test:rl" {
		t.Fatalf("unexpected prefix %q", client.KeyPrefix())
	}

	srv.Close()
	if err := client.Ping(context.Background()); err == nil {
		t.Fatalf("expected ping to fail after the server stopped")
	}
}

func TestNewClientFailsWithoutServer(t *testing.T) {
	_, cfg := miniredisSettings(t)
	cfg.Port = 1

	if _, err := NewClient(context.Background(), cfg, zaptest.NewLogger(t)); err == nil {
		t.Fatalf("expected connection error")
	}
}
