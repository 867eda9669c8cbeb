package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/app"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/config"
	"github.com/SYSUMSC/hackreg-t1-backend/internal/infra/logger"
)

func main() {
	_ = godotenv.Load()

	// The logger is configured from cfg, so a config failure can only go to stderr.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	appLogger, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer func() { _ = appLogger.Sync() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.Error("failed to init app", zap.String("env", cfg.App.Env), zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		appLogger.Error("application stopped", zap.Error(err))
		_ = appLogger.Sync()
		os.Exit(1)
	}
	appLogger.Info("application stopped")
}
