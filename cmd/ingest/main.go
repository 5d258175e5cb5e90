package main

import (
	"context"
	"log"
	"os"

	"go.uber.org/zap"

	"deposit-bot/app"
	"deposit-bot/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	logging, err := app.NewLogger(cfg.LogMode)
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logging)
	if err != nil {
		logging.Error("Setup failed", zap.Error(err))
		os.Exit(1)
	}

	summary, err := a.RunIngest(ctx)
	if err != nil {
		logging.Error("Ingestion failed", zap.Error(err))
		os.Exit(1)
	}
	logging.Info("Ingestion finished",
		zap.Int("done", summary.Done),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped))
}
