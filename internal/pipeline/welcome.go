package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/mailflow/internal/domain"
)

const (
	// WelcomeTemplateCode is the fixed, pre-approved welcome template.
	WelcomeTemplateCode = "WELCOME_NEW_MEMBER"

	welcomeWindowDays = 14
	welcomeTag        = "welcome"
)

// WelcomePipeline greets members who joined recently and have not been
// welcomed yet. Predefined variant: items are created directly scheduled
// against the fixed welcome template.
type WelcomePipeline struct {
	deps Deps
}

// NewWelcomePipeline constructs the welcome pipeline.
func NewWelcomePipeline(deps Deps) Pipeline {
	return &WelcomePipeline{deps: deps}
}

func (p *WelcomePipeline) Name() string { return "WELCOME_NEW_MEMBER" }

// SelectMembers returns recent signups that have never received a
// welcome item. The queue check is the "already welcomed" exclusion.
func (p *WelcomePipeline) SelectMembers(ctx context.Context) ([]domain.Member, error) {
	since := time.Now().UTC().AddDate(0, 0, -welcomeWindowDays)
	members, err := p.deps.Members.NewMembersSince(ctx, since, p.deps.MaxRecipients)
	if err != nil {
		return nil, err
	}
	return filterExisting(ctx, p.deps.Queue, p.Name(), welcomeTag, members)
}

// BuildQueueItems creates scheduled drafts; Run attaches the resolved
// template before insert.
func (p *WelcomePipeline) BuildQueueItems(members []domain.Member) []domain.QueueItem {
	now := time.Now().UTC()
	items := make([]domain.QueueItem, 0, len(members))
	for _, m := range members {
		if !m.Mailable() {
			continue
		}
		items = append(items, newScheduledItem(p.Name(), m, nil, now, welcomeTag))
	}
	return items
}

// Run resolves the welcome template, builds items for the selected
// members, and bulk inserts them.
func (p *WelcomePipeline) Run(ctx context.Context) (*Result, error) {
	tmpl, err := p.deps.Templates.GetByCode(ctx, WelcomeTemplateCode)
	if err != nil {
		return nil, fmt.Errorf("resolving template %s: %w", WelcomeTemplateCode, err)
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
