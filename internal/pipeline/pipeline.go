// Package pipeline defines the pipeline contract, the static registry of
// named pipelines, and the concrete recipient-selection strategies that
// produce queue items.
package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/generation"
)

// Result summarizes one pipeline run.
type Result struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Errors  []string `json:"errors,omitempty"`
}

// Pipeline is a named recipient-selection + content strategy. Predefined
// pipelines create items directly in scheduled status with a fixed
// template; ai-generated pipelines create items awaiting generation and
// additionally implement ContentPipeline.
type Pipeline interface {
	Name() string

	// SelectMembers returns the target recipients for this run. Selection
	// is pipeline-specific (recency windows, topic matching, exclusion of
	// recently-contacted members) and already deduplicated.
	SelectMembers(ctx context.Context) ([]domain.Member, error)

	// BuildQueueItems turns selected members into queue item drafts.
	BuildQueueItems(members []domain.Member) []domain.QueueItem

	// Run is the orchestration entry point: select, build, bulk insert.
	Run(ctx context.Context) (*Result, error)
}

// ContentPipeline is the ai-generated variant: it can produce personalized
// content for a single recipient after the fact. On success it persists a
// waiting_review template and returns its id. Failures wrapped in
// domain.TransientError are retryable; anything else is permanent.
type ContentPipeline interface {
	Pipeline
	GenerateContent(ctx context.Context, memberID uuid.UUID, contextData map[string]any) (uuid.UUID, error)
}

// MemberRepository is the member selection surface pipelines query.
// Implementations must keep all queries strictly parameterized.
type MemberRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error)
	NewMembersSince(ctx context.Context, since time.Time, limit int) ([]domain.Member, error)
	ActiveMembersSince(ctx context.Context, activeSince time.Time, limit int) ([]domain.Member, error)
	MembersWithTopics(ctx context.Context, limit int) ([]domain.Member, error)
	DormantMembers(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.Member, error)
}

// QueueRepository is the queue surface pipelines write to.
type QueueRepository interface {
	// InsertBatch bulk-inserts queue items, returning the number created.
	InsertBatch(ctx context.Context, items []domain.QueueItem) (int, error)

	// ExistingMemberIDs returns which of the given members already have a
	// queue item for the named pipeline and tag. Used for selection dedup;
	// recurring pipelines scope the check with a per-period tag.
	ExistingMemberIDs(ctx context.Context, pipeline, tag string, memberIDs []uuid.UUID) (map[uuid.UUID]bool, error)
}

// TemplateRepository resolves and persists templates for pipelines.
type TemplateRepository interface {
	GetByCode(ctx context.Context, code string) (*domain.Template, error)
	Insert(ctx context.Context, t *domain.Template) error
	UpsertByCode(ctx context.Context, t *domain.Template) error
}

// ContactGuard answers whether a member was contacted inside the
// exclusion window. A nil guard excludes nobody.
type ContactGuard interface {
	RecentlyContacted(ctx context.Context, memberID uuid.UUID) (bool, error)
	MarkContacted(ctx context.Context, memberID uuid.UUID) error
}

// Deps carries the injected collaborators shared by all pipelines.
type Deps struct {
	Members       MemberRepository
	Queue         QueueRepository
	Templates     TemplateRepository
	Generator     generation.ContentGenerator
	Contacts      ContactGuard
	MaxRecipients int
}
