// process führt einen einzelnen Lauf der Deposit-Pipeline aus, etwa aus einem CI-Workflow.
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

	summary, err := a.RunPipeline(ctx)
	if err != nil {
		logging.Error("Pipeline run failed", zap.String("run_id", summary.RunID), zap.Error(err))
		os.Exit(1)
	}
	logging.Info("Pipeline run finished",
		zap.String("run_id", summary.RunID),
		zap.Int("processed", summary.Processed),
		zap.Int("accepted", summary.Accepted),
		zap.Int("rejected", summary.Rejected),
		zap.Int("unauthorized", summary.Unauthorized),
		zap.String("deposit_id", summary.DepositID))
}
