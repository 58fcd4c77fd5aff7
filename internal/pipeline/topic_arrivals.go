package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

const (
	topicArrivalsPrompt = "Announce this week's new arrivals matching the " +
		"member's followed topics. Curated, specific, no filler."
)

// TopicArrivalsPipeline notifies members about new catalog arrivals in
// the topics they follow. AI-generated variant with recently-contacted
// exclusion so weekly announcement mail never stacks on other campaigns.
type TopicArrivalsPipeline struct {
	deps Deps
}

// NewTopicArrivalsPipeline constructs the topic arrivals pipeline.
func NewTopicArrivalsPipeline(deps Deps) Pipeline {
	return &TopicArrivalsPipeline{deps: deps}
}

func (p *TopicArrivalsPipeline) Name() string { return "TOPIC_NEW_ARRIVALS" }

// weekTag scopes dedup to the ISO week of the run.
func weekTag() string {
	year, week := time.Now().UTC().ISOWeek()
	return fmt.Sprintf("%d-w%02d", year, week)
}

// SelectMembers returns topic-following members, excluding anyone already
// queued this week or contacted inside the exclusion window.
func (p *TopicArrivalsPipeline) SelectMembers(ctx context.Context) ([]domain.Member, error) {
	members, err := p.deps.Members.MembersWithTopics(ctx, p.deps.MaxRecipients)
	if err != nil {
		return nil, err
	}
	members, err = filterRecentlyContacted(ctx, p.deps.Contacts, members)
	if err != nil {
		return nil, err
	}
	return filterExisting(ctx, p.deps.Queue, p.Name(), weekTag(), members)
}

// BuildQueueItems creates awaiting_generation drafts carrying the
// member's followed topics as generation context.
func (p *TopicArrivalsPipeline) BuildQueueItems(members []domain.Member) []domain.QueueItem {
	items := make([]domain.QueueItem, 0, len(members))
	for _, m := range members {
		if !m.Mailable() || len(m.Topics) == 0 {
			continue
		}
		contextData := map[string]any{
			"first_name": m.FirstName,
			"topics":     m.Topics,
		}
		items = append(items, newGenerationItem(p.Name(), m, contextData, weekTag()))
	}
	return items
}

// Run selects, builds, and bulk inserts this week's generation queue.
func (p *TopicArrivalsPipeline) Run(ctx context.Context) (*Result, error) {
	return runAndInsert(ctx, p, p.deps.Queue)
}

// GenerateContent produces a personalized arrivals template for one
// member and returns the waiting_review template id.
func (p *TopicArrivalsPipeline) GenerateContent(ctx context.Context, memberID uuid.UUID, contextData map[string]any) (uuid.UUID, error) {
	return generateTemplate(ctx, p.deps, p.Name(), "arrivals", topicArrivalsPrompt, memberID, contextData)
}
