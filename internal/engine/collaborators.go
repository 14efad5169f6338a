// Package engine orchestrates occurrence generation, series lifecycle, and
// reminder computation against the external task/reminder storage
// collaborators, guaranteeing idempotent materialization per
// (series, occurrence index) pair under concurrent ticks.
package engine

import (
	"context"
	"time"

	"github.com/edgard/recurd/internal/recurrence"
	"github.com/edgard/recurd/internal/reminder"
	"github.com/edgard/recurd/internal/series"
)

// TaskRef identifies a materialized task occurrence in the external store.
type TaskRef string

// ReminderRef identifies a materialized reminder in the external store.
type ReminderRef string

// SeriesSnapshot is a consistent read of one series: its immutable rule,
// its current lifecycle state, and the wall-clock offset at which each
// occurrence falls due within its date.
type SeriesSnapshot struct {
	ID      int64
	UserID  int64
	Rule    recurrence.Rule
	State   series.State
	DueTime time.Duration
}

// RuleSource provides read access to series rules and state, and the
// state-commit operations the coordinator drives.
type RuleSource interface {
	// ListActiveSeries returns the identifiers of every active series.
	ListActiveSeries(ctx context.Context) ([]int64, error)

	// Snapshot returns a consistent snapshot of one series.
	Snapshot(ctx context.Context, seriesID int64) (SeriesSnapshot, error)

	// CommitAdvance persists the post-advance state. expectedProduced is
	// the occurrence count observed at snapshot time; the store must
	// return ErrStateConflict when it no longer matches, so a concurrent
	// advance that slipped past the per-series guard is detected instead
	// of double-counted.
	CommitAdvance(ctx context.Context, seriesID int64, state series.State, expectedProduced int) error

	// SetStatus persists a lifecycle transition (completed, cancelled).
	SetStatus(ctx context.Context, seriesID int64, status series.Status) error
}

// TaskMaterializer creates concrete task occurrences. Creation is
// idempotent on (seriesID, occurrenceIndex): a duplicate request returns
// the existing reference.
type TaskMaterializer interface {
	CreateOccurrenceTask(ctx context.Context, seriesID int64, occurrenceIndex int, dueAt time.Time) (TaskRef, error)
}

// ReminderMaterializer creates timed reminders. Creation is idempotent on
// (taskRef, channel): a duplicate request returns the existing reference.
type ReminderMaterializer interface {
	CreateReminder(ctx context.Context, taskRef TaskRef, channel string, fireAt time.Time) (ReminderRef, error)
}

// PreferenceSource provides a user's notification preferences. Absent
// preferences must resolve to reminder.DefaultSpec.
type PreferenceSource interface {
	ReminderSpec(ctx context.Context, userID int64) (reminder.Spec, error)
}
