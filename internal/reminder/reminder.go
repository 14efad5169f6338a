// Package reminder computes reminder fire instants from occurrence due
// instants and per-user notification preferences (lead time, quiet hours).
// All computation is pure and assumes instants already resolved into a
// single caller-supplied time zone.
package reminder

import (
	"fmt"
	"time"
)

// DefaultLeadTime applies when a user has no stored preferences.
const DefaultLeadTime = 60 * time.Minute

// DefaultChannel is the reminder channel used when none is configured.
const DefaultChannel = "push"

// QuietHours is a wall-clock window during which reminders must not fire.
// Start and End are offsets from midnight; the window may wrap midnight
// (e.g. 22:00 to 07:00).
type QuietHours struct {
	Start time.Duration
	End   time.Duration
}

// ParseQuietHours builds a QuietHours from "HH:MM" wall-clock strings.
func ParseQuietHours(start, end string) (QuietHours, error) {
	s, err := parseWallClock(start)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours start: %w", err)
	}
	e, err := parseWallClock(end)
	if err != nil {
		return QuietHours{}, fmt.Errorf("quiet hours end: %w", err)
	}
	return QuietHours{Start: s, End: e}, nil
}

func parseWallClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, fmt.Errorf("invalid wall-clock time %q: %w", v, err)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}

// contains reports whether the wall-clock time of t falls within
// [Start, End), wrap-aware.
func (q QuietHours) contains(t time.Time) bool {
	clock := time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second
	if q.Start <= q.End {
		return clock >= q.Start && clock < q.End
	}
	// Window wraps midnight: late-evening and early-morning halves.
	return clock >= q.Start || clock < q.End
}

// Spec is a user's notification preference as supplied by the external
// preference source.
type Spec struct {
	LeadTime time.Duration
	Quiet    *QuietHours
	Channels []string
}

// DefaultSpec is the preference applied when a user has none stored:
// 60 minutes of lead time, no quiet hours, the default channel.
func DefaultSpec() Spec {
	return Spec{LeadTime: DefaultLeadTime, Channels: []string{DefaultChannel}}
}

// ComputeFireInstant derives when a reminder for an occurrence due at dueAt
// should fire. The candidate is dueAt minus the lead time; if it lands
// inside the quiet window it is deferred forward to the window's end on the
// same deferred day. The result never moves backward and never passes dueAt
// itself: a reminder deferred beyond its occurrence fires at the due
// instant instead, late but present.
func ComputeFireInstant(dueAt time.Time, leadTime time.Duration, quiet *QuietHours) time.Time {
	if leadTime < 0 {
		leadTime = 0
	}
	candidate := dueAt.Add(-leadTime)
	if quiet == nil || !quiet.contains(candidate) {
		return candidate
	}

	deferred := DayOfEnd(candidate, *quiet)
	if deferred.After(dueAt) {
		return dueAt
	}
	return deferred
}

// DayOfEnd returns the quiet window's end instant for the day the deferral
// lands on. A candidate caught in the late-evening half of a wrapping
// window defers into the next calendar day.
func DayOfEnd(candidate time.Time, quiet QuietHours) time.Time {
	midnight := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
		0, 0, 0, 0, candidate.Location())
	end := midnight.Add(quiet.End)

	clock := candidate.Sub(midnight)
	if quiet.Start > quiet.End && clock >= quiet.Start {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
