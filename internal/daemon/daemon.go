// Package daemon runs the periodic materialization loop: a gocron job
// ticks at a fixed interval and asks the coordinator to advance every
// active series.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/edgard/recurd/internal/engine"
	"github.com/edgard/recurd/internal/logger"
)

// Daemon owns the tick scheduler and drives the coordinator.
type Daemon struct {
	logger *slog.Logger
	coord  *engine.Coordinator
	tick   time.Duration

	mu        sync.Mutex
	scheduler gocron.Scheduler
	running   bool
}

// New creates a Daemon ticking at the given interval.
func New(log *slog.Logger, coord *engine.Coordinator, tick time.Duration) (*Daemon, error) {
	if log == nil {
		log = slog.Default()
	}
	s, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(logger.NewGocronLogger(log)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	return &Daemon{
		logger:    log.With("component", "daemon"),
		coord:     coord,
		tick:      tick,
		scheduler: s,
	}, nil
}

// Run registers the materialization job, starts the scheduler, and blocks
// until the context is cancelled, then shuts the scheduler down.
func (d *Daemon) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("daemon is already running")
	}

	_, err := d.scheduler.NewJob(
		gocron.DurationJob(d.tick),
		gocron.NewTask(func() {
			if err := d.coord.AdvanceAll(ctx); err != nil {
				d.logger.Error("Materialization pass failed", "error", err)
			}
		}),
		gocron.WithName("materialization_pass"),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		// A slow pass must not overlap the next tick for the same reason
		// same-series advances are single-flighted.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		d.mu.Unlock()
		return fmt.Errorf("failed to schedule materialization job: %w", err)
	}

	d.scheduler.Start()
	d.running = true
	d.mu.Unlock()
	d.logger.Info("Materialization loop started", "tick_interval", d.tick)

	<-ctx.Done()

	d.logger.Info("Shutdown signal received, stopping scheduler...")
	if err := d.scheduler.Shutdown(); err != nil {
		return fmt.Errorf("failed to shutdown scheduler: %w", err)
	}

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	d.logger.Info("Materialization loop stopped")
	return nil
}
