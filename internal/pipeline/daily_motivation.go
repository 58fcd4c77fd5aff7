package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

const (
	dailyMotivationPrompt = "A short, upbeat motivational note tied to the " +
		"member's interests. One clear call to action back into the app."

	dailyActiveWindowDays = 30
)

// DailyMotivationPipeline sends each engaged member a personalized
// motivational email. AI-generated variant: items await generation and
// human review before any send.
type DailyMotivationPipeline struct {
	deps Deps
}

// NewDailyMotivationPipeline constructs the daily motivation pipeline.
func NewDailyMotivationPipeline(deps Deps) Pipeline {
	return &DailyMotivationPipeline{deps: deps}
}

func (p *DailyMotivationPipeline) Name() string { return "DAILY_MOTIVATION" }

// dayTag scopes dedup to one calendar day, so tomorrow's run targets the
// same members again.
func dayTag() string {
	return time.Now().UTC().Format("2006-01-02")
}

// SelectMembers returns members active inside the engagement window that
// have not been picked up by today's run yet.
func (p *DailyMotivationPipeline) SelectMembers(ctx context.Context) ([]domain.Member, error) {
	activeSince := time.Now().UTC().AddDate(0, 0, -dailyActiveWindowDays)
	members, err := p.deps.Members.ActiveMembersSince(ctx, activeSince, p.deps.MaxRecipients)
	if err != nil {
		return nil, err
	}
	return filterExisting(ctx, p.deps.Queue, p.Name(), dayTag(), members)
}

// BuildQueueItems creates awaiting_generation drafts with the per-member
// generation context.
func (p *DailyMotivationPipeline) BuildQueueItems(members []domain.Member) []domain.QueueItem {
	items := make([]domain.QueueItem, 0, len(members))
	for _, m := range members {
		if !m.Mailable() {
			continue
		}
		contextData := map[string]any{
			"first_name": m.FirstName,
			"topics":     m.Topics,
		}
		if m.LastActivityAt != nil {
			contextData["last_activity_at"] = m.LastActivityAt.Format(time.RFC3339)
		}
		items = append(items, newGenerationItem(p.Name(), m, contextData, dayTag()))
	}
	return items
}

// Run selects, builds, and bulk inserts today's generation queue.
func (p *DailyMotivationPipeline) Run(ctx context.Context) (*Result, error) {
	return runAndInsert(ctx, p, p.deps.Queue)
}

// GenerateContent produces a personalized template for one member and
// returns the waiting_review template id.
func (p *DailyMotivationPipeline) GenerateContent(ctx context.Context, memberID uuid.UUID, contextData map[string]any) (uuid.UUID, error) {
	return generateTemplate(ctx, p.deps, p.Name(), "motivation", dailyMotivationPrompt, memberID, contextData)
}
