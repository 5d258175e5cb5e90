// archive verschiebt die ältesten heißen Validierungsberichte ins Kalt-Archiv, sobald der Schwellwert erreicht ist.
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

	id, err := a.RunArchive(ctx)
	if err != nil {
		logging.Error("Archival failed", zap.Error(err))
		os.Exit(1)
	}
	if id == "" {
		logging.Info("Nothing to archive")
		return
	}
	logging.Info("Reports archived", zap.String("persistent_id", id))
}
