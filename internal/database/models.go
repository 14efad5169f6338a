package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SeriesRow is the persisted form of a recurring series: the immutable
// rule columns plus the mutable lifecycle state owned by the engine.
type SeriesRow struct {
	ID        int64     `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`

	UserID int64  `db:"user_id"`
	Title  string `db:"title"`
	Status string `db:"status"`

	Frequency    string         `db:"frequency"`
	Interval     int            `db:"interval"`
	Weekdays     sql.NullString `db:"weekdays"`
	MonthDays    sql.NullString `db:"month_days"`
	MonthsOfYear sql.NullString `db:"months_of_year"`
	StartDate    time.Time      `db:"start_date"`
	EndDate      sql.NullTime   `db:"end_date"`
	Count        sql.NullInt64  `db:"count"`

	DueTimeMinutes      int          `db:"due_time_minutes"`
	OccurrencesProduced int          `db:"occurrences_produced"`
	LastOccurrenceDate  sql.NullTime `db:"last_occurrence_date"`
}

// TaskRow is one materialized task occurrence, keyed uniquely by
// (series_id, occurrence_index).
type TaskRow struct {
	ID              string    `db:"id"`
	SeriesID        int64     `db:"series_id"`
	OccurrenceIndex int       `db:"occurrence_index"`
	DueAt           time.Time `db:"due_at"`
	CreatedAt       time.Time `db:"created_at"`
}

// ReminderRow is one materialized reminder, keyed uniquely by
// (task_id, channel).
type ReminderRow struct {
	ID        string    `db:"id"`
	TaskID    string    `db:"task_id"`
	Channel   string    `db:"channel"`
	FireAt    time.Time `db:"fire_at"`
	CreatedAt time.Time `db:"created_at"`
}

// PreferenceRow stores a user's notification preferences.
type PreferenceRow struct {
	UserID          int64          `db:"user_id"`
	LeadTimeMinutes int            `db:"lead_time_minutes"`
	QuietHoursStart sql.NullString `db:"quiet_hours_start"`
	QuietHoursEnd   sql.NullString `db:"quiet_hours_end"`
	Channels        sql.NullString `db:"channels"`
	UpdatedAt       time.Time      `db:"updated_at"`
}

// marshalInts encodes an int set as a JSON column, NULL when empty.
func marshalInts(vals []int) (sql.NullString, error) {
	if len(vals) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode int set: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// unmarshalInts decodes a JSON int-set column; NULL decodes to nil.
func unmarshalInts(col sql.NullString) ([]int, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var vals []int
	if err := json.Unmarshal([]byte(col.String), &vals); err != nil {
		return nil, fmt.Errorf("failed to decode int set %q: %w", col.String, err)
	}
	return vals, nil
}

// marshalStrings encodes a string set as a JSON column, NULL when empty.
func marshalStrings(vals []string) (sql.NullString, error) {
	if len(vals) == 0 {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(vals)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode string set: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

// unmarshalStrings decodes a JSON string-set column; NULL decodes to nil.
func unmarshalStrings(col sql.NullString) ([]string, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var vals []string
	if err := json.Unmarshal([]byte(col.String), &vals); err != nil {
		return nil, fmt.Errorf("failed to decode string set %q: %w", col.String, err)
	}
	return vals, nil
}
