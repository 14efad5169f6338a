// Package main contains the entrypoint for the recurd scheduling daemon.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/edgard/recurd/internal/config"
	"github.com/edgard/recurd/internal/daemon"
	"github.com/edgard/recurd/internal/database"
	"github.com/edgard/recurd/internal/engine"
	"github.com/edgard/recurd/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components (config, logger, db, store, coordinator,
// daemon), handles graceful shutdown, and returns an exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	coord := engine.New(log, store, store, store, store, engine.Config{
		CollaboratorTimeout: cfg.Engine.CollaboratorTimeout,
		Horizon:             cfg.Engine.MaterializeHorizon,
		RetryCeiling:        cfg.Engine.RetryCeiling,
		Concurrency:         cfg.Engine.Concurrency,
	})

	d, err := daemon.New(log, coord, cfg.Scheduler.TickInterval)
	if err != nil {
		log.Error("Failed to create daemon", "error", err)
		return 1
	}

	log.Info("Starting recurd...")
	runErr := d.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Daemon stopped due to error", "error", runErr)
		return 1
	}

	log.Info("Daemon stopped gracefully.")
	return 0
}
