package domain

import "errors"

// Sentinel errors shared by the state machine and its callers.
var (
	ErrUnknownStatus     = errors.New("unknown queue item status")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrTerminalStatus    = errors.New("item is in a terminal status")
)

// TransientError marks a failure that should be retried up to the
// configured cap before the item is promoted to a terminal failed status.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(op string, err error) error {
	return &TransientError{Op: op, Err: err}
}

// IsTransient reports whether err is marked retryable anywhere in its chain.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
