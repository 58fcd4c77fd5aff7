// Package scheduler runs the two background scan loops: template
// generation for items awaiting AI content, and email dispatch for items
// whose scheduled time has arrived. Each loop is independently paced and
// guarded so a slow scan is skipped rather than stacked.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// ErrStaleItem is returned by QueueStore.Update when the item's status
// changed underneath the guard. The scheduler skips the item; the next
// scan sees its current state.
var ErrStaleItem = errors.New("queue item modified concurrently")

// ErrTemplateState is returned when a review action targets a template
// that is not waiting for review.
var ErrTemplateState = errors.New("template is not awaiting review")

// QueueStore is the queue persistence surface both loops share.
type QueueStore interface {
	// ListByStatus returns items in the given status, oldest first.
	ListByStatus(ctx context.Context, status domain.QueueItemStatus, limit int) ([]domain.QueueItem, error)

	// DueItems returns scheduled items whose scheduled_at has arrived,
	// soonest first.
	DueItems(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error)

	// ItemsByTemplate returns items referencing the template in the given
	// status. Used by the review fan-out.
	ItemsByTemplate(ctx context.Context, templateID uuid.UUID, status domain.QueueItemStatus) ([]domain.QueueItem, error)

	// Update persists the item guarded by its expected current status.
	// Returns ErrStaleItem when no row matched the guard.
	Update(ctx context.Context, item *domain.QueueItem, expect domain.QueueItemStatus) error

	// CountsByStatus returns aggregate queue counts.
	CountsByStatus(ctx context.Context) (*domain.QueueStats, error)
}

// TemplateStore is the template surface the loops and review flow use.
type TemplateStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TemplateStatus) error
	WaitingReview(ctx context.Context, limit int) ([]domain.Template, error)
}

// MemberStore resolves recipients at dispatch time.
type MemberStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
}
