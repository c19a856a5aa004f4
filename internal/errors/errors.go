package errors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflicting write")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrStoreUnavailable  = errors.New("session store unavailable")
	ErrOperationInFlight = errors.New("another session operation is in flight")

	// ErrStaleSessionReclaimed is informational: reconciliation closed an abandoned session.
	ErrStaleSessionReclaimed = errors.New("stale session reclaimed")
)

