package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/edgard/recurd/internal/recurrence"
	"github.com/edgard/recurd/internal/reminder"
	"github.com/edgard/recurd/internal/series"
)

// Outcome classifies what a single advance pass did.
type Outcome string

const (
	// OutcomeAdvanced means one occurrence and its reminders were
	// materialized and the state commit succeeded.
	OutcomeAdvanced Outcome = "advanced"
	// OutcomeCompleted means the generator reported exhaustion and the
	// series moved to completed.
	OutcomeCompleted Outcome = "completed"
	// OutcomeNotDue means the next occurrence falls beyond the
	// materialization horizon; nothing was created.
	OutcomeNotDue Outcome = "not_due"
	// OutcomeSkipped means the series was not active.
	OutcomeSkipped Outcome = "skipped"
)

// Result describes the effect of one advance pass.
type Result struct {
	Outcome Outcome
	Status  series.Status
	Date    time.Time
	TaskRef TaskRef
}

// Config carries the coordinator's operational knobs.
type Config struct {
	// CollaboratorTimeout bounds one whole advance pass; on expiry the
	// advance is abandoned without state mutation.
	CollaboratorTimeout time.Duration
	// Horizon is how far ahead of now an occurrence may be materialized.
	// Zero disables the gate.
	Horizon time.Duration
	// RetryCeiling is how many consecutive transient failures a series
	// accumulates before the stall is escalated to error-level logging.
	// The coordinator keeps retrying regardless.
	RetryCeiling int
	// Concurrency limits how many series advance in parallel per pass.
	Concurrency int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Coordinator drives materialization for all series. Ticks for different
// series run concurrently; ticks for the same series are serialized by a
// per-series single-flight guard, because the state mutation in an advance
// is not atomic across its steps.
type Coordinator struct {
	logger    *slog.Logger
	rules     RuleSource
	tasks     TaskMaterializer
	reminders ReminderMaterializer
	prefs     PreferenceSource
	cfg       Config

	guard singleflight.Group

	mu       sync.Mutex
	failures map[int64]int
}

// New creates a Coordinator. Zero config fields fall back to safe defaults.
func New(logger *slog.Logger, rules RuleSource, tasks TaskMaterializer,
	reminders ReminderMaterializer, prefs PreferenceSource, cfg Config,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 5 * time.Second
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 5
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		logger:    logger.With("component", "coordinator"),
		rules:     rules,
		tasks:     tasks,
		reminders: reminders,
		prefs:     prefs,
		cfg:       cfg,
		failures:  make(map[int64]int),
	}
}

// AdvanceAll runs one materialization pass over every active series.
// Transient per-series failures are logged and retried next tick; they do
// not fail the pass or starve other series.
func (c *Coordinator) AdvanceAll(ctx context.Context) error {
	ids, err := c.rules.ListActiveSeries(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active series: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if _, err := c.AdvanceSeries(gCtx, id); err != nil && !Transient(err) {
				c.logger.Error("series advance failed", "series_id", id, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// AdvanceSeries materializes at most one newly due occurrence for the
// series, with at-most-once creation guaranteed by the store's idempotent
// keys and exactly-once state advance guaranteed by the optimistic commit.
// Concurrent calls for the same series share a single in-flight execution.
func (c *Coordinator) AdvanceSeries(ctx context.Context, seriesID int64) (Result, error) {
	v, err, _ := c.guard.Do(strconv.FormatInt(seriesID, 10), func() (any, error) {
		advCtx, cancel := context.WithTimeout(ctx, c.cfg.CollaboratorTimeout)
		defer cancel()
		return c.advance(advCtx, seriesID)
	})
	if err != nil {
		return Result{}, err
	}
	return v.(Result), nil
}

func (c *Coordinator) advance(ctx context.Context, seriesID int64) (Result, error) {
	snap, err := c.rules.Snapshot(ctx, seriesID)
	if err != nil {
		return Result{}, c.abandon(seriesID, "snapshot", err)
	}
	if snap.State.Status != series.StatusActive {
		return Result{Outcome: OutcomeSkipped, Status: snap.State.Status}, nil
	}

	index := snap.State.OccurrencesProduced
	date, err := snap.Rule.OccurrenceAt(index)
	if errors.Is(err, recurrence.ErrExhausted) {
		st := snap.State
		st.Complete()
		if err := c.rules.SetStatus(ctx, seriesID, st.Status); err != nil {
			return Result{}, c.abandon(seriesID, "complete", err)
		}
		c.clearFailures(seriesID)
		c.logger.Info("series completed", "series_id", seriesID, "occurrences", index)
		return Result{Outcome: OutcomeCompleted, Status: st.Status}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("occurrence generation failed for series %d: %w", seriesID, err)
	}

	dueAt := date.Add(snap.DueTime)
	if c.cfg.Horizon > 0 && dueAt.After(c.cfg.Now().Add(c.cfg.Horizon)) {
		return Result{Outcome: OutcomeNotDue, Status: snap.State.Status, Date: date}, nil
	}

	taskRef, err := c.tasks.CreateOccurrenceTask(ctx, seriesID, index, dueAt)
	if err != nil && !errors.Is(err, ErrConflict) {
		return Result{}, c.abandon(seriesID, "create task", err)
	}

	if err := c.materializeReminders(ctx, snap, taskRef, dueAt); err != nil {
		return Result{}, c.abandon(seriesID, "create reminders", err)
	}

	// State moves only after all creates succeeded; a partial failure above
	// leaves the state untouched and the whole advance retries next tick.
	st := snap.State
	if err := st.RecordOccurrence(date); err != nil {
		return Result{}, fmt.Errorf("series %d: %w", seriesID, err)
	}
	if err := c.rules.CommitAdvance(ctx, seriesID, st, index); err != nil {
		return Result{}, c.abandon(seriesID, "commit", err)
	}

	c.clearFailures(seriesID)
	c.logger.Info("occurrence materialized",
		"series_id", seriesID,
		"occurrence_index", index,
		"date", date.Format(time.DateOnly),
		"task_ref", string(taskRef))
	return Result{Outcome: OutcomeAdvanced, Status: st.Status, Date: date, TaskRef: taskRef}, nil
}

// materializeReminders computes and creates one reminder per configured
// channel. Duplicate-key rejections are idempotent no-ops.
func (c *Coordinator) materializeReminders(ctx context.Context, snap SeriesSnapshot, taskRef TaskRef, dueAt time.Time) error {
	if taskRef == "" {
		return nil
	}

	spec, err := c.prefs.ReminderSpec(ctx, snap.UserID)
	if err != nil {
		return fmt.Errorf("failed to load reminder preferences: %w", err)
	}
	channels := spec.Channels
	if len(channels) == 0 {
		channels = []string{reminder.DefaultChannel}
	}

	fireAt := reminder.ComputeFireInstant(dueAt, spec.LeadTime, spec.Quiet)
	for _, channel := range channels {
		if _, err := c.reminders.CreateReminder(ctx, taskRef, channel, fireAt); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			return fmt.Errorf("channel %q: %w", channel, err)
		}
	}
	return nil
}

// CancelSeries synchronously moves the series to cancelled. Cancellation
// always wins for future ticks; an advance already past task creation when
// the cancellation lands is allowed to complete, and nothing already
// created is retracted.
func (c *Coordinator) CancelSeries(ctx context.Context, seriesID int64) (series.Status, error) {
	snap, err := c.rules.Snapshot(ctx, seriesID)
	if err != nil {
		return "", fmt.Errorf("failed to load series %d: %w", seriesID, err)
	}

	st := snap.State
	if st.Status.Terminal() {
		return st.Status, nil
	}
	st.Cancel()
	if err := c.rules.SetStatus(ctx, seriesID, st.Status); err != nil {
		return "", fmt.Errorf("failed to cancel series %d: %w", seriesID, err)
	}
	c.clearFailures(seriesID)
	c.logger.Info("series cancelled", "series_id", seriesID)
	return st.Status, nil
}

// abandon classifies a failed collaborator call, records the consecutive
// failure, and escalates logging once the retry ceiling is crossed. The
// series state is never mutated on this path; the next tick retries.
func (c *Coordinator) abandon(seriesID int64, stage string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrStateConflict) {
		err = fmt.Errorf("%w: %s: %v", ErrTimeout, stage, err)
	}

	c.mu.Lock()
	c.failures[seriesID]++
	count := c.failures[seriesID]
	c.mu.Unlock()

	log := c.logger.Warn
	if count >= c.cfg.RetryCeiling {
		// Repeated stalls must surface as a pending occurrence, never as
		// silently dropped ones. The retry loop continues regardless.
		log = c.logger.Error
	}
	log("series advance abandoned, occurrence pending",
		"series_id", seriesID,
		"stage", stage,
		"consecutive_failures", count,
		"error", err)
	return err
}

func (c *Coordinator) clearFailures(seriesID int64) {
	c.mu.Lock()
	delete(c.failures, seriesID)
	c.mu.Unlock()
}
