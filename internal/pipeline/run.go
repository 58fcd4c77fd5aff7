package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

var runLog = logger.Component("pipeline")

// runAndInsert is the shared orchestration body behind every pipeline's
// Run: select members, build queue items, bulk insert. Selection and
// build failures abort the run; a partial insert is reported in the
// result, not swallowed.
func runAndInsert(ctx context.Context, p Pipeline, queue QueueRepository) (*Result, error) {
	members, err := p.SelectMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting members for %s: %w", p.Name(), err)
	}

	res := &Result{}
	if len(members) == 0 {
		runLog.Info("no eligible members", "pipeline", p.Name())
		return res, nil
	}

	items := p.BuildQueueItems(members)
	if len(items) == 0 {
		return res, nil
	}

	created, err := queue.InsertBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("inserting queue items for %s: %w", p.Name(), err)
	}
	res.Created = created
	if created < len(items) {
		res.Failed = len(items) - created
		res.Errors = append(res.Errors, fmt.Sprintf("%d of %d items not inserted", res.Failed, len(items)))
	}

	runLog.Info("pipeline run complete", "pipeline", p.Name(),
		"selected", len(members), "created", created, "failed", res.Failed)
	return res, nil
}

// filterExisting drops members that already have a queue item for the
// pipeline. This is the dedup guarantee selection relies on.
func filterExisting(ctx context.Context, queue QueueRepository, name, tag string, members []domain.Member) ([]domain.Member, error) {
	if len(members) == 0 {
		return members, nil
	}
	ids := make([]uuid.UUID, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	existing, err := queue.ExistingMemberIDs(ctx, name, tag, ids)
	if err != nil {
		return nil, fmt.Errorf("checking existing queue items: %w", err)
	}
	out := members[:0]
	for _, m := range members {
		if !existing[m.ID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// filterRecentlyContacted drops members inside the contact exclusion
// window. A nil guard excludes nobody; a guard error fails the selection
// rather than risking double-contacting.
func filterRecentlyContacted(ctx context.Context, guard ContactGuard, members []domain.Member) ([]domain.Member, error) {
	if guard == nil {
		return members, nil
	}
	out := members[:0]
	for _, m := range members {
		recent, err := guard.RecentlyContacted(ctx, m.ID)
		if err != nil {
			return nil, fmt.Errorf("contact guard: %w", err)
		}
		if !recent {
			out = append(out, m)
		}
	}
	return out, nil
}

// memberVariables builds the render variables for a member, starting
// from the member's stored defaults.
func memberVariables(m domain.Member) map[string]any {
	vars := make(map[string]any, len(m.Defaults)+2)
	for k, v := range m.Defaults {
		vars[k] = v
	}
	vars["first_name"] = m.FirstName
	vars["last_name"] = m.LastName
	return vars
}

// newScheduledItem creates a queue item draft ready for dispatch. The
// template reference may be attached later, before insert.
func newScheduledItem(pipeline string, m domain.Member, templateID *uuid.UUID, at time.Time, tag string) domain.QueueItem {
	now := time.Now().UTC()
	return domain.QueueItem{
		ID:          uuid.New(),
		MemberID:    m.ID,
		Pipeline:    pipeline,
		Status:      domain.StatusScheduled,
		TemplateID:  templateID,
		ScheduledAt: &at,
		Variables:   memberVariables(m),
		Tag:         tag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// newGenerationItem creates a queue item draft awaiting AI generation.
func newGenerationItem(pipeline string, m domain.Member, contextData map[string]any, tag string) domain.QueueItem {
	now := time.Now().UTC()
	return domain.QueueItem{
		ID:          uuid.New(),
		MemberID:    m.ID,
		Pipeline:    pipeline,
		Status:      domain.StatusAwaitingGeneration,
		ContextData: contextData,
		Variables:   memberVariables(m),
		Tag:         tag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
