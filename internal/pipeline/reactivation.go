package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

const (
	// ReactivationTemplateCode is the fixed, pre-approved win-back template.
	ReactivationTemplateCode = "REACTIVATION_DORMANT"

	dormantAfterDays = 90
)

// ReactivationPipeline targets members with no activity for an extended
// period. Predefined variant with recently-contacted exclusion; dedup is
// scoped per month so a member can be re-approached a month later.
type ReactivationPipeline struct {
	deps Deps
}

// NewReactivationPipeline constructs the reactivation pipeline.
func NewReactivationPipeline(deps Deps) Pipeline {
	return &ReactivationPipeline{deps: deps}
}

func (p *ReactivationPipeline) Name() string { return "REACTIVATION_DORMANT" }

func monthTag() string {
	return time.Now().UTC().Format("2006-01")
}

// SelectMembers returns dormant members not contacted inside the
// exclusion window and not already queued this month.
func (p *ReactivationPipeline) SelectMembers(ctx context.Context) ([]domain.Member, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -dormantAfterDays)
	members, err := p.deps.Members.DormantMembers(ctx, cutoff, p.deps.MaxRecipients)
	if err != nil {
		return nil, err
	}
	members, err = filterRecentlyContacted(ctx, p.deps.Contacts, members)
	if err != nil {
		return nil, err
	}
	return filterExisting(ctx, p.deps.Queue, p.Name(), monthTag(), members)
}

// BuildQueueItems creates scheduled drafts; Run attaches the template.
func (p *ReactivationPipeline) BuildQueueItems(members []domain.Member) []domain.QueueItem {
	now := time.Now().UTC()
	items := make([]domain.QueueItem, 0, len(members))
	for _, m := range members {
		if !m.Mailable() {
			continue
		}
		items = append(items, newScheduledItem(p.Name(), m, nil, now, monthTag()))
	}
	return items
}

// Run resolves the win-back template, builds items, and bulk inserts.
func (p *ReactivationPipeline) Run(ctx context.Context) (*Result, error) {
	tmpl, err := p.deps.Templates.GetByCode(ctx, ReactivationTemplateCode)
	if err != nil {
		return nil, fmt.Errorf("resolving template %s: %w", ReactivationTemplateCode, err)
	}
	if !tmpl.Sendable() {
		return nil, fmt.Errorf("template %s is not sendable (status %s)", tmpl.Code, tmpl.Status)
	}

	members, err := p.SelectMembers(ctx)
	if err != nil {
		return nil, fmt.Errorf("selecting members for %s: %w", p.Name(), err)
	}
	items := p.BuildQueueItems(members)
	for i := range items {
		id := tmpl.ID
		items[i].TemplateID = &id
	}

	res := &Result{}
	if len(items) == 0 {
		return res, nil
	}
	created, err := p.deps.Queue.InsertBatch(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("inserting queue items for %s: %w", p.Name(), err)
	}
	res.Created = created
	if created < len(items) {
		res.Failed = len(items) - created
		res.Errors = append(res.Errors, fmt.Sprintf("%d of %d items not inserted", res.Failed, len(items)))
	}
	return res, nil
}
