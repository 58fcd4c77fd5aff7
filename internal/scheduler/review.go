package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// ReviewQueue returns generated templates awaiting human review.
func (g *GenerationScheduler) ReviewQueue(ctx context.Context, limit int) ([]domain.Template, error) {
	if limit <= 0 {
		limit = 50
	}
	return g.templates.WaitingReview(ctx, limit)
}

// Approve marks a waiting_review template approved and fans the decision
// out to every pending_review item referencing it: each moves to
// scheduled at the given time. Returns the number of items scheduled.
func (g *GenerationScheduler) Approve(ctx context.Context, templateID uuid.UUID, scheduledAt time.Time) (int, error) {
	tmpl, err := g.templates.GetByID(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("loading template: %w", err)
	}
	if tmpl.Status != domain.TemplateWaitingReview {
		return 0, fmt.Errorf("%w: template %s is %s", ErrTemplateState, tmpl.Code, tmpl.Status)
	}

	if err := g.templates.UpdateStatus(ctx, templateID, domain.TemplateApproved); err != nil {
		return 0, fmt.Errorf("approving template: %w", err)
	}

	items, err := g.queue.ItemsByTemplate(ctx, templateID, domain.StatusPendingReview)
	if err != nil {
		return 0, fmt.Errorf("loading pending items: %w", err)
	}

	scheduled := 0
	for i := range items {
		item := &items[i]
		item.ScheduledAt = &scheduledAt
		if err := item.Transition(domain.StatusScheduled); err != nil {
			g.log.Error("scheduling approved item", "item", item.ID, "error", err)
			continue
		}
		if err := g.queue.Update(ctx, item, domain.StatusPendingReview); err != nil {
			g.log.Error("persisting approved item", "item", item.ID, "error", err)
			continue
		}
		scheduled++
	}

	g.log.Info("template approved", "template", templateID, "items_scheduled", scheduled)
	return scheduled, nil
}

// Reject marks a waiting_review template inactive and fans the decision
// out to every pending_review item referencing it: each moves to the
// terminal rejected status with the reason recorded. Returns the number
// of items rejected.
func (g *GenerationScheduler) Reject(ctx context.Context, templateID uuid.UUID, reason string) (int, error) {
	tmpl, err := g.templates.GetByID(ctx, templateID)
	if err != nil {
		return 0, fmt.Errorf("loading template: %w", err)
	}
	if tmpl.Status != domain.TemplateWaitingReview {
		return 0, fmt.Errorf("%w: template %s is %s", ErrTemplateState, tmpl.Code, tmpl.Status)
	}

	if err := g.templates.UpdateStatus(ctx, templateID, domain.TemplateInactive); err != nil {
		return 0, fmt.Errorf("rejecting template: %w", err)
	}

	items, err := g.queue.ItemsByTemplate(ctx, templateID, domain.StatusPendingReview)
	if err != nil {
		return 0, fmt.Errorf("loading pending items: %w", err)
	}

	rejected := 0
	for i := range items {
		item := &items[i]
		if reason != "" {
			item.LastError = &reason
		}
		if err := item.Transition(domain.StatusRejected); err != nil {
			g.log.Error("rejecting item", "item", item.ID, "error", err)
			continue
		}
		if err := g.queue.Update(ctx, item, domain.StatusPendingReview); err != nil {
			g.log.Error("persisting rejected item", "item", item.ID, "error", err)
			continue
		}
		rejected++
	}

	g.log.Info("template rejected", "template", templateID, "items_rejected", rejected, "reason", reason)
	return rejected, nil
}

// RequeueItem is the operator override for failed items: send_failed
// goes back to scheduled at the given time, generation_failed back to
// awaiting_generation.
func (g *GenerationScheduler) RequeueItem(ctx context.Context, item *domain.QueueItem, at time.Time) error {
	expect := item.Status
	if err := item.Requeue(at); err != nil {
		return err
	}
	return g.queue.Update(ctx, item, expect)
}
