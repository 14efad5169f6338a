// Package series tracks the lifecycle of a recurring series: its status,
// how many occurrences it has produced, and the date of the last one. All
// mutations go through the event methods; the zero-value-adjacent NewState
// is the only other constructor.
package series

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a series.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// State is a series' lifecycle state. It starts active and moves to
// completed when the generator is exhausted, or to cancelled on explicit
// request. Completed and cancelled are terminal: further events are
// absorbed as no-ops, never errors.
type State struct {
	Status              Status
	OccurrencesProduced int
	LastOccurrenceDate  *time.Time
}

// NewState returns the initial state of a freshly created series.
func NewState() State {
	return State{Status: StatusActive}
}

// RecordOccurrence registers one successfully materialized occurrence.
// These are the only two mutations an advance performs: the counter
// increment and the last-date update. Recording on a terminal state is
// rejected; the coordinator checks the status before advancing, so hitting
// this indicates a caller bug.
func (s *State) RecordOccurrence(date time.Time) error {
	if s.Status != StatusActive {
		return fmt.Errorf("cannot record occurrence on %s series", s.Status)
	}
	s.OccurrencesProduced++
	d := date
	s.LastOccurrenceDate = &d
	return nil
}

// Complete moves an active series to completed, fired when the generator
// reports exhaustion. A no-op on terminal states.
func (s *State) Complete() {
	if s.Status == StatusActive {
		s.Status = StatusCompleted
	}
}

// Cancel moves an active series to cancelled. Cancellation is final and
// idempotent: it never retracts already-created occurrences and it is a
// no-op on terminal states.
func (s *State) Cancel() {
	if s.Status == StatusActive {
		s.Status = StatusCancelled
	}
}
