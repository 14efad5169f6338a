package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/edgard/recurd/internal/engine"
	"github.com/edgard/recurd/internal/recurrence"
	"github.com/edgard/recurd/internal/reminder"
	"github.com/edgard/recurd/internal/series"
)

// ErrSeriesNotFound is returned when a series identifier does not exist.
var ErrSeriesNotFound = errors.New("series not found")

// Store is the SQLite-backed implementation of every external collaborator
// contract the engine consumes, plus the series and preference CRUD the
// surrounding application needs.
type Store interface {
	engine.RuleSource
	engine.TaskMaterializer
	engine.ReminderMaterializer
	engine.PreferenceSource

	// Ping checks the database connection.
	Ping(ctx context.Context) error

	// CreateSeries persists a new series with its validated rule and
	// returns its identifier. The series starts active.
	CreateSeries(ctx context.Context, params NewSeries) (int64, error)

	// SavePreferences upserts a user's notification preferences.
	SavePreferences(ctx context.Context, userID int64, spec reminder.Spec) error
}

// NewSeries carries everything needed to create a series.
type NewSeries struct {
	UserID  int64
	Title   string
	Rule    recurrence.Rule
	DueTime time.Duration
}

type sqlxStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a Store backed by sqlx. It requires a connected
// sqlx.DB instance and a logger.
func NewStore(db *sqlx.DB, logger *slog.Logger) Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &sqlxStore{
		db:     db,
		logger: logger.With("component", "store"),
	}
}

// Ping checks the database connection.
func (s *sqlxStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateSeries persists a new series. The rule must already have passed
// recurrence.NewRule; its normalized fields are stored column-wise so the
// snapshot can rebuild the same validated value.
func (s *sqlxStore) CreateSeries(ctx context.Context, params NewSeries) (int64, error) {
	weekdays, err := marshalInts(params.Rule.Weekdays)
	if err != nil {
		return 0, err
	}
	monthDays, err := marshalInts(params.Rule.MonthDays)
	if err != nil {
		return 0, err
	}
	months, err := marshalInts(params.Rule.MonthsOfYear)
	if err != nil {
		return 0, err
	}

	row := SeriesRow{
		UserID:         params.UserID,
		Title:          params.Title,
		Status:         string(series.StatusActive),
		Frequency:      string(params.Rule.Frequency),
		Interval:       params.Rule.Interval,
		Weekdays:       weekdays,
		MonthDays:      monthDays,
		MonthsOfYear:   months,
		StartDate:      params.Rule.StartDate.UTC(),
		DueTimeMinutes: int(params.DueTime / time.Minute),
	}
	if params.Rule.EndDate != nil {
		row.EndDate = sql.NullTime{Time: params.Rule.EndDate.UTC(), Valid: true}
	}
	if params.Rule.Count != nil {
		row.Count = sql.NullInt64{Int64: int64(*params.Rule.Count), Valid: true}
	}
	now := time.Now().UTC()
	row.CreatedAt, row.UpdatedAt = now, now

	const query = `
        INSERT INTO series (user_id, title, status, frequency, "interval",
            weekdays, month_days, months_of_year, start_date, end_date, "count",
            due_time_minutes, occurrences_produced, created_at, updated_at)
        VALUES (:user_id, :title, :status, :frequency, :interval,
            :weekdays, :month_days, :months_of_year, :start_date, :end_date, :count,
            :due_time_minutes, 0, :created_at, :updated_at);
    `
	result, err := s.db.NamedExecContext(ctx, query, row)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create series", "user_id", params.UserID, "error", err)
		return 0, fmt.Errorf("failed to create series: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read new series id: %w", err)
	}

	s.logger.DebugContext(ctx, "Series created", "series_id", id, "user_id", params.UserID)
	return id, nil
}

// ListActiveSeries returns the identifiers of every active series.
func (s *sqlxStore) ListActiveSeries(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM series WHERE status = ? ORDER BY id;`, string(series.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active series: %w", err)
	}
	return ids, nil
}

// Snapshot returns a consistent snapshot of one series, rebuilding its
// validated rule from the stored columns.
func (s *sqlxStore) Snapshot(ctx context.Context, seriesID int64) (engine.SeriesSnapshot, error) {
	var row SeriesRow
	err := s.db.GetContext(ctx, &row, `
        SELECT id, created_at, updated_at, user_id, title, status,
               frequency, "interval", weekdays, month_days, months_of_year,
               start_date, end_date, "count", due_time_minutes,
               occurrences_produced, last_occurrence_date
        FROM series WHERE id = ?;
    `, seriesID)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.SeriesSnapshot{}, fmt.Errorf("series %d: %w", seriesID, ErrSeriesNotFound)
	}
	if err != nil {
		return engine.SeriesSnapshot{}, fmt.Errorf("failed to load series %d: %w", seriesID, err)
	}
	return s.snapshotFromRow(row)
}

func (s *sqlxStore) snapshotFromRow(row SeriesRow) (engine.SeriesSnapshot, error) {
	weekdays, err := unmarshalInts(row.Weekdays)
	if err != nil {
		return engine.SeriesSnapshot{}, err
	}
	monthDays, err := unmarshalInts(row.MonthDays)
	if err != nil {
		return engine.SeriesSnapshot{}, err
	}
	months, err := unmarshalInts(row.MonthsOfYear)
	if err != nil {
		return engine.SeriesSnapshot{}, err
	}

	rule := recurrence.Rule{
		Frequency:    recurrence.Frequency(row.Frequency),
		Interval:     row.Interval,
		Weekdays:     weekdays,
		MonthDays:    monthDays,
		MonthsOfYear: months,
		StartDate:    row.StartDate.UTC(),
	}
	if row.EndDate.Valid {
		end := row.EndDate.Time.UTC()
		rule.EndDate = &end
	}
	if row.Count.Valid {
		count := int(row.Count.Int64)
		rule.Count = &count
	}
	// Rows were validated on write; revalidating on read keeps a corrupted
	// row from reaching the generator.
	rule, err = recurrence.NewRule(rule)
	if err != nil {
		return engine.SeriesSnapshot{}, fmt.Errorf("stored rule for series %d is invalid: %w", row.ID, err)
	}

	state := series.State{
		Status:              series.Status(row.Status),
		OccurrencesProduced: row.OccurrencesProduced,
	}
	if !state.Status.Valid() {
		return engine.SeriesSnapshot{}, fmt.Errorf("series %d has unknown status %q", row.ID, row.Status)
	}
	if row.LastOccurrenceDate.Valid {
		last := row.LastOccurrenceDate.Time.UTC()
		state.LastOccurrenceDate = &last
	}

	return engine.SeriesSnapshot{
		ID:      row.ID,
		UserID:  row.UserID,
		Rule:    rule,
		State:   state,
		DueTime: time.Duration(row.DueTimeMinutes) * time.Minute,
	}, nil
}

// CommitAdvance persists the post-advance state with an optimistic check
// on the occurrence counter. A lost race surfaces as ErrStateConflict so
// the coordinator abandons the advance instead of double-counting.
func (s *sqlxStore) CommitAdvance(ctx context.Context, seriesID int64, state series.State, expectedProduced int) error {
	var last sql.NullTime
	if state.LastOccurrenceDate != nil {
		last = sql.NullTime{Time: state.LastOccurrenceDate.UTC(), Valid: true}
	}

	result, err := s.db.ExecContext(ctx, `
        UPDATE series
        SET occurrences_produced = ?, last_occurrence_date = ?, updated_at = ?
        WHERE id = ? AND status = ? AND occurrences_produced = ?;
    `, state.OccurrencesProduced, last, time.Now().UTC(),
		seriesID, string(series.StatusActive), expectedProduced)
	if err != nil {
		return fmt.Errorf("failed to commit advance for series %d: %w", seriesID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read commit result for series %d: %w", seriesID, err)
	}
	if affected == 0 {
		s.logger.WarnContext(ctx, "Advance commit lost a race",
			"series_id", seriesID, "expected_produced", expectedProduced)
		return fmt.Errorf("series %d: %w", seriesID, engine.ErrStateConflict)
	}
	return nil
}

// SetStatus persists a lifecycle transition. Only active series change;
// transitions attempted on terminal series are silent no-ops, matching the
// state machine.
func (s *sqlxStore) SetStatus(ctx context.Context, seriesID int64, status series.Status) error {
	if !status.Valid() {
		return fmt.Errorf("unknown series status %q", status)
	}
	_, err := s.db.ExecContext(ctx, `
        UPDATE series SET status = ?, updated_at = ?
        WHERE id = ? AND status = ?;
    `, string(status), time.Now().UTC(), seriesID, string(series.StatusActive))
	if err != nil {
		return fmt.Errorf("failed to set status of series %d: %w", seriesID, err)
	}
	return nil
}

// CreateOccurrenceTask creates one task occurrence. The unique index on
// (series_id, occurrence_index) makes the insert idempotent: a duplicate
// request returns the reference created by the first one.
func (s *sqlxStore) CreateOccurrenceTask(ctx context.Context, seriesID int64, occurrenceIndex int, dueAt time.Time) (engine.TaskRef, error) {
	id := uuid.NewString()
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO tasks (id, series_id, occurrence_index, due_at, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(series_id, occurrence_index) DO NOTHING;
    `, id, seriesID, occurrenceIndex, dueAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create task for series %d index %d: %w", seriesID, occurrenceIndex, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read task insert result: %w", err)
	}
	if affected == 1 {
		s.logger.DebugContext(ctx, "Task occurrence created",
			"series_id", seriesID, "occurrence_index", occurrenceIndex, "task_ref", id)
		return engine.TaskRef(id), nil
	}

	// Duplicate tick: hand back the existing reference.
	var existing string
	err = s.db.GetContext(ctx, &existing,
		`SELECT id FROM tasks WHERE series_id = ? AND occurrence_index = ?;`,
		seriesID, occurrenceIndex)
	if err != nil {
		return "", fmt.Errorf("failed to resolve existing task for series %d index %d: %w",
			seriesID, occurrenceIndex, err)
	}
	return engine.TaskRef(existing), nil
}

// CreateReminder creates one reminder, idempotent on (task_id, channel)
// via the unique index.
func (s *sqlxStore) CreateReminder(ctx context.Context, taskRef engine.TaskRef, channel string, fireAt time.Time) (engine.ReminderRef, error) {
	id := uuid.NewString()
	result, err := s.db.ExecContext(ctx, `
        INSERT INTO reminders (id, task_id, channel, fire_at, created_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(task_id, channel) DO NOTHING;
    `, id, string(taskRef), channel, fireAt.UTC(), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to create reminder for task %s channel %s: %w", taskRef, channel, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return "", fmt.Errorf("failed to read reminder insert result: %w", err)
	}
	if affected == 1 {
		return engine.ReminderRef(id), nil
	}

	var existing string
	err = s.db.GetContext(ctx, &existing,
		`SELECT id FROM reminders WHERE task_id = ? AND channel = ?;`,
		string(taskRef), channel)
	if err != nil {
		return "", fmt.Errorf("failed to resolve existing reminder for task %s channel %s: %w",
			taskRef, channel, err)
	}
	return engine.ReminderRef(existing), nil
}

// ReminderSpec loads a user's notification preferences. Absent preferences
// resolve to the documented defaults: 60 minutes of lead time, no quiet
// hours.
func (s *sqlxStore) ReminderSpec(ctx context.Context, userID int64) (reminder.Spec, error) {
	var row PreferenceRow
	err := s.db.GetContext(ctx, &row, `
        SELECT user_id, lead_time_minutes, quiet_hours_start, quiet_hours_end, channels, updated_at
        FROM notification_preferences WHERE user_id = ?;
    `, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return reminder.DefaultSpec(), nil
	}
	if err != nil {
		return reminder.Spec{}, fmt.Errorf("failed to load preferences for user %d: %w", userID, err)
	}

	spec := reminder.Spec{
		LeadTime: time.Duration(row.LeadTimeMinutes) * time.Minute,
	}
	if row.QuietHoursStart.Valid && row.QuietHoursEnd.Valid {
		quiet, err := reminder.ParseQuietHours(row.QuietHoursStart.String, row.QuietHoursEnd.String)
		if err != nil {
			return reminder.Spec{}, fmt.Errorf("stored quiet hours for user %d are invalid: %w", userID, err)
		}
		spec.Quiet = &quiet
	}
	channels, err := unmarshalStrings(row.Channels)
	if err != nil {
		return reminder.Spec{}, err
	}
	spec.Channels = channels
	if len(spec.Channels) == 0 {
		spec.Channels = []string{reminder.DefaultChannel}
	}
	return spec, nil
}

// SavePreferences upserts a user's notification preferences.
func (s *sqlxStore) SavePreferences(ctx context.Context, userID int64, spec reminder.Spec) error {
	var quietStart, quietEnd sql.NullString
	if spec.Quiet != nil {
		quietStart = sql.NullString{String: formatWallClock(spec.Quiet.Start), Valid: true}
		quietEnd = sql.NullString{String: formatWallClock(spec.Quiet.End), Valid: true}
	}
	channels, err := marshalStrings(spec.Channels)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO notification_preferences
            (user_id, lead_time_minutes, quiet_hours_start, quiet_hours_end, channels, updated_at)
        VALUES (?, ?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            lead_time_minutes = excluded.lead_time_minutes,
            quiet_hours_start = excluded.quiet_hours_start,
            quiet_hours_end = excluded.quiet_hours_end,
            channels = excluded.channels,
            updated_at = excluded.updated_at;
    `, userID, int(spec.LeadTime/time.Minute), quietStart, quietEnd, channels, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save preferences for user %d: %w", userID, err)
	}
	return nil
}

func formatWallClock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d.Hours()), int(d.Minutes())%60)
}
