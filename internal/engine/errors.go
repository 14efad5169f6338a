package engine

import "errors"

var (
	// ErrConflict reports a duplicate-key rejection from the external
	// store. The coordinator treats it as success: the record already
	// exists, so the materialization goal is met.
	ErrConflict = errors.New("materialization conflict")

	// ErrTimeout reports that a collaborator call did not complete within
	// its budget. The advance is abandoned without state mutation and
	// retried on the next tick.
	ErrTimeout = errors.New("collaborator timeout")

	// ErrStateConflict reports that a concurrent advance mutated the
	// series state despite the per-series guard. Handled like ErrTimeout:
	// abandon without mutation, retry next tick.
	ErrStateConflict = errors.New("series state conflict")
)

// Transient reports whether err is a retryable advance failure rather than
// a permanent one.
func Transient(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrStateConflict)
}
