package orchestrator

import "errors"

// Sentinel errors surfaced to trigger-surface callers.
var (
	ErrNotFound       = errors.New("pipeline not found")
	ErrAlreadyRunning = errors.New("pipeline is already running")
)
