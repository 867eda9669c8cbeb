package database

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
)

// MongoClient owns the driver client and the configured database handle.
type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
	logger *zap.Logger
}

// NewMongoClient connects and pings the server. Nested documents decode as maps so
// signup forms round-trip as plain JSON objects.
func NewMongoClient(ctx context.Context, cfg config.MongoSettings, log *zap.Logger) (*MongoClient, error) {
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetConnectTimeout(timeout).
		SetBSONOptions(&options.BSONOptions{DefaultDocumentM: true})

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	log.Info("connected to mongo", zap.String("database", cfg.Database))

	return &MongoClient{client: client, db: client.Database(cfg.Database), logger: log}, nil
}

// Database returns the configured database handle.
func (c *MongoClient) Database() *mongo.Database {
	return c.db
}

// Ping reports whether the primary is reachable.
func (c *MongoClient) Ping(ctx context.Context) error {
	return c.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client.
func (c *MongoClient) Close(ctx context.Context) error {
	c.logger.Info("closing mongo connection")
	return c.client.Disconnect(ctx)
}
