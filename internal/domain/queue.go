package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QueueItemStatus enumerates the lifecycle states of a queued email.
type QueueItemStatus string

const (
	StatusAwaitingGeneration QueueItemStatus = "awaiting_generation"
	StatusPendingReview      QueueItemStatus = "pending_review"
	StatusScheduled          QueueItemStatus = "scheduled"
	StatusSent               QueueItemStatus = "sent"
	StatusGenerationFailed   QueueItemStatus = "generation_failed"
	StatusSendFailed         QueueItemStatus = "send_failed"
	StatusRejected           QueueItemStatus = "rejected"
)

// allowedTransitions is the closed transition table for queue items.
// A retry (failure below the attempt cap) keeps the item in its current
// status with retry_count incremented, so self-loops are not listed here.
var allowedTransitions = map[QueueItemStatus][]QueueItemStatus{
	StatusAwaitingGeneration: {StatusPendingReview, StatusGenerationFailed},
	StatusPendingReview:      {StatusScheduled, StatusRejected},
	StatusScheduled:          {StatusSent, StatusSendFailed},
	StatusSendFailed:         {StatusScheduled},
}

// Valid reports whether s is a known queue item status.
func (s QueueItemStatus) Valid() bool {
	switch s {
	case StatusAwaitingGeneration, StatusPendingReview, StatusScheduled,
		StatusSent, StatusGenerationFailed, StatusSendFailed, StatusRejected:
		return true
	}
	return false
}

// Terminal reports whether s is a final state. Terminal items never
// transition again except through an explicit operator override.
func (s QueueItemStatus) Terminal() bool {
	return s == StatusSent || s == StatusRejected || s == StatusGenerationFailed
}

// CanTransition reports whether from -> to is an allowed transition.
func CanTransition(from, to QueueItemStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// QueueItem is one planned outbound email and its lifecycle state.
type QueueItem struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	MemberID     uuid.UUID       `json:"member_id" db:"member_id"`
	Pipeline     string          `json:"pipeline" db:"pipeline"`
	Status       QueueItemStatus `json:"status" db:"status"`
	TemplateID   *uuid.UUID      `json:"template_id" db:"template_id"`
	ScheduledAt  *time.Time      `json:"scheduled_at" db:"scheduled_at"`
	ContextData  map[string]any  `json:"context_data" db:"context_data"`
	Variables    map[string]any  `json:"variables" db:"variables"`
	Tag          string          `json:"tag" db:"tag"`
	RetryCount   int             `json:"retry_count" db:"retry_count"`
	LastError    *string         `json:"last_error" db:"last_error"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Transition validates and applies a status change. It enforces the
// transition table, terminal-state protection, and the template-reference
// invariant (pending_review, scheduled, and sent all require a template).
func (q *QueueItem) Transition(to QueueItemStatus) error {
	if !to.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownStatus, to)
	}
	if q.Status.Terminal() {
		return fmt.Errorf("%w: item %s is %s", ErrTerminalStatus, q.ID, q.Status)
	}
	if !CanTransition(q.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, q.Status, to)
	}
	if requiresTemplate(to) && q.TemplateID == nil {
		return fmt.Errorf("%w: transition to %s requires a template reference", ErrInvalidTransition, to)
	}
	q.Status = to
	q.UpdatedAt = time.Now().UTC()
	return nil
}

// RecordFailure applies the retry-or-terminal rule after a failed attempt.
// Below maxRetries the item stays in its current status with the counter
// incremented; at or above the cap it moves to the given terminal status.
func (q *QueueItem) RecordFailure(errMsg string, maxRetries int, terminal QueueItemStatus) error {
	if q.Status.Terminal() {
		return fmt.Errorf("%w: item %s is %s", ErrTerminalStatus, q.ID, q.Status)
	}
	q.RetryCount++
	q.LastError = &errMsg
	q.UpdatedAt = time.Now().UTC()
	if q.RetryCount >= maxRetries {
		q.Status = terminal
	}
	return nil
}

// Requeue is the operator override path: it forces a send_failed or
// generation_failed item back into the retryable flow. Sent and rejected
// items stay put even here.
func (q *QueueItem) Requeue(at time.Time) error {
	switch q.Status {
	case StatusSendFailed, StatusGenerationFailed:
	default:
		return fmt.Errorf("%w: cannot requeue item in status %s", ErrInvalidTransition, q.Status)
	}
	if q.Status == StatusGenerationFailed {
		q.Status = StatusAwaitingGeneration
	} else {
		q.Status = StatusScheduled
		q.ScheduledAt = &at
	}
	q.UpdatedAt = time.Now().UTC()
	return nil
}

func requiresTemplate(s QueueItemStatus) bool {
	return s == StatusPendingReview || s == StatusScheduled || s == StatusSent
}

// QueueStats holds aggregate item counts grouped by status and pipeline.
type QueueStats struct {
	ByStatus   map[QueueItemStatus]int `json:"by_status"`
	ByPipeline map[string]int          `json:"by_pipeline"`
	Total      int                     `json:"total"`
}
