package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pipeline"
)

// stubContentPipeline is a controllable ai-generated pipeline.
type stubContentPipeline struct {
	name       string
	templateID uuid.UUID
	genErr     error
	calls      int
}

func (s *stubContentPipeline) Name() string { return s.name }

func (s *stubContentPipeline) SelectMembers(ctx context.Context) ([]domain.Member, error) {
	return nil, nil
}

func (s *stubContentPipeline) BuildQueueItems(members []domain.Member) []domain.QueueItem {
	return nil
}

func (s *stubContentPipeline) Run(ctx context.Context) (*pipeline.Result, error) {
	return &pipeline.Result{}, nil
}

func (s *stubContentPipeline) GenerateContent(ctx context.Context, memberID uuid.UUID, contextData map[string]any) (uuid.UUID, error) {
	s.calls++
	if s.genErr != nil {
		return uuid.Nil, s.genErr
	}
	return s.templateID, nil
}

func contentRegistry(t *testing.T, stub *stubContentPipeline) *pipeline.Registry {
	t.Helper()
	r, err := pipeline.NewRegistry(pipeline.Deps{}, []pipeline.Definition{{
		Name:           stub.name,
		TemplateType:   domain.TemplateAIGenerated,
		ReviewRequired: true,
		Build:          func(pipeline.Deps) pipeline.Pipeline { return stub },
	}})
	if err != nil {
		t.Fatalf("building registry: %v", err)
	}
	return r
}

func awaitingItem(pipelineName string) *domain.QueueItem {
	now := time.Now().UTC()
	return &domain.QueueItem{
		ID:          uuid.New(),
		MemberID:    uuid.New(),
		Pipeline:    pipelineName,
		Status:      domain.StatusAwaitingGeneration,
		ContextData: map[string]any{"topics": []string{"scifi"}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestGenerationScan_Success(t *testing.T) {
	stub := &stubContentPipeline{name: "DAILY_MOTIVATION", templateID: uuid.New()}
	item := awaitingItem(stub.name)
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.ScanOnce(context.Background())

	got := queue.get(item.ID)
	if got.Status != domain.StatusPendingReview {
		t.Fatalf("status = %s, want pending_review", got.Status)
	}
	if got.TemplateID == nil || *got.TemplateID != stub.templateID {
		t.Error("item not linked to the generated template")
	}
	if stub.calls != 1 {
		t.Errorf("generate calls = %d, want 1", stub.calls)
	}
	if stats := g.Stats(); stats.Generated != 1 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestGenerationScan_TransientFailureRetries(t *testing.T) {
	stub := &stubContentPipeline{
		name:   "DAILY_MOTIVATION",
		genErr: domain.Transient("bedrock invoke", errors.New("throttled")),
	}
	item := awaitingItem(stub.name)
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.ScanOnce(context.Background())

	got := queue.get(item.ID)
	if got.Status != domain.StatusAwaitingGeneration {
		t.Fatalf("status = %s, want awaiting_generation for retry", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
	if got.LastError == nil {
		t.Error("last_error not recorded")
	}
}

func TestGenerationScan_TransientFailureHitsCap(t *testing.T) {
	stub := &stubContentPipeline{
		name:   "DAILY_MOTIVATION",
		genErr: domain.Transient("bedrock invoke", errors.New("throttled")),
	}
	item := awaitingItem(stub.name)
	item.RetryCount = 2 // one attempt away from the cap
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.ScanOnce(context.Background())

	got := queue.get(item.ID)
	if got.Status != domain.StatusGenerationFailed {
		t.Fatalf("status = %s, want generation_failed at cap", got.Status)
	}
	if got.RetryCount != 3 {
		t.Errorf("retry_count = %d, want 3", got.RetryCount)
	}
}

func TestGenerationScan_PermanentFailureTerminalizes(t *testing.T) {
	stub := &stubContentPipeline{name: "DAILY_MOTIVATION", genErr: errors.New("prompt rejected")}
	item := awaitingItem(stub.name)
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.ScanOnce(context.Background())

	got := queue.get(item.ID)
	if got.Status != domain.StatusGenerationFailed {
		t.Fatalf("status = %s, want generation_failed immediately", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry_count = %d, want 1", got.RetryCount)
	}
}

func TestGenerationScan_UnknownPipeline(t *testing.T) {
	stub := &stubContentPipeline{name: "DAILY_MOTIVATION"}
	item := awaitingItem("GHOST_PIPELINE")
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.ScanOnce(context.Background())

	if got := queue.get(item.ID); got.Status != domain.StatusGenerationFailed {
		t.Errorf("status = %s, want generation_failed", got.Status)
	}
}

func TestGenerationScan_SkipsWhenInFlight(t *testing.T) {
	stub := &stubContentPipeline{name: "DAILY_MOTIVATION", templateID: uuid.New()}
	item := awaitingItem(stub.name)
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(), contentRegistry(t, stub), GenerationConfig{MaxRetries: 3})

	g.inFlight.Store(true)
	g.ScanOnce(context.Background())

	if got := queue.get(item.ID); got.Status != domain.StatusAwaitingGeneration {
		t.Error("guarded scan should not process items")
	}
	if stub.calls != 0 {
		t.Errorf("generate calls = %d, want 0", stub.calls)
	}
}

func TestGenerationStartStop(t *testing.T) {
	g := NewGenerationScheduler(newMemQueue(), newMemTemplates(), contentRegistry(t, &stubContentPipeline{name: "DAILY_MOTIVATION"}), GenerationConfig{
		ScanInterval: time.Hour,
	})

	if err := g.Start(); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if err := g.Start(); err == nil {
		t.Error("double Start() should fail")
	}
	g.Stop()
	g.Stop() // idempotent
}

// ---------------------------------------------------------------------------
// Review workflow
// ---------------------------------------------------------------------------

func waitingTemplate() *domain.Template {
	now := time.Now().UTC()
	return &domain.Template{
		ID:        uuid.New(),
		Code:      "daily_motivation_ab12cd34",
		Subject:   "Hi {{ first_name }}",
		HTMLBody:  "<p>Go get it</p>",
		Type:      domain.TemplateAIGenerated,
		Status:    domain.TemplateWaitingReview,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func pendingItem(templateID uuid.UUID) *domain.QueueItem {
	now := time.Now().UTC()
	return &domain.QueueItem{
		ID:         uuid.New(),
		MemberID:   uuid.New(),
		Pipeline:   "DAILY_MOTIVATION",
		Status:     domain.StatusPendingReview,
		TemplateID: &templateID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestApprove_SchedulesPendingItems(t *testing.T) {
	tmpl := waitingTemplate()
	itemA, itemB := pendingItem(tmpl.ID), pendingItem(tmpl.ID)
	queue := newMemQueue(itemA, itemB)
	templates := newMemTemplates(tmpl)
	stub := &stubContentPipeline{name: "DAILY_MOTIVATION"}
	g := NewGenerationScheduler(queue, templates, contentRegistry(t, stub), GenerationConfig{})

	sendAt := time.Now().UTC().Add(2 * time.Hour)
	scheduled, err := g.Approve(context.Background(), tmpl.ID, sendAt)
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if scheduled != 2 {
		t.Fatalf("scheduled = %d, want 2", scheduled)
	}

	if got, _ := templates.GetByID(context.Background(), tmpl.ID); got.Status != domain.TemplateApproved {
		t.Errorf("template status = %s, want approved", got.Status)
	}
	for _, id := range []uuid.UUID{itemA.ID, itemB.ID} {
		got := queue.get(id)
		if got.Status != domain.StatusScheduled {
			t.Errorf("item status = %s, want scheduled", got.Status)
		}
		if got.ScheduledAt == nil || !got.ScheduledAt.Equal(sendAt) {
			t.Error("scheduled_at not set from approval")
		}
	}
}

func TestApprove_WrongTemplateState(t *testing.T) {
	tmpl := waitingTemplate()
	tmpl.Status = domain.TemplateApproved
	g := NewGenerationScheduler(newMemQueue(), newMemTemplates(tmpl),
		contentRegistry(t, &stubContentPipeline{name: "DAILY_MOTIVATION"}), GenerationConfig{})

	_, err := g.Approve(context.Background(), tmpl.ID, time.Now())
	if !errors.Is(err, ErrTemplateState) {
		t.Errorf("Approve on approved template = %v, want ErrTemplateState", err)
	}
}

func TestReject_TerminalizesPendingItems(t *testing.T) {
	tmpl := waitingTemplate()
	item := pendingItem(tmpl.ID)
	queue := newMemQueue(item)
	templates := newMemTemplates(tmpl)
	g := NewGenerationScheduler(queue, templates,
		contentRegistry(t, &stubContentPipeline{name: "DAILY_MOTIVATION"}), GenerationConfig{})

	rejected, err := g.Reject(context.Background(), tmpl.ID, "off-brand tone")
	if err != nil {
		t.Fatalf("Reject() error: %v", err)
	}
	if rejected != 1 {
		t.Fatalf("rejected = %d, want 1", rejected)
	}

	if got, _ := templates.GetByID(context.Background(), tmpl.ID); got.Status != domain.TemplateInactive {
		t.Errorf("template status = %s, want inactive", got.Status)
	}
	got := queue.get(item.ID)
	if got.Status != domain.StatusRejected {
		t.Errorf("item status = %s, want rejected", got.Status)
	}
	if got.LastError == nil || *got.LastError != "off-brand tone" {
		t.Error("rejection reason not recorded")
	}

	// Rejected is terminal: a later approval cannot resurrect the item.
	if err := got.Transition(domain.StatusScheduled); !errors.Is(err, domain.ErrTerminalStatus) {
		t.Errorf("transition from rejected = %v, want ErrTerminalStatus", err)
	}
}

func TestRequeueItem(t *testing.T) {
	tid := uuid.New()
	now := time.Now().UTC()
	item := &domain.QueueItem{
		ID: uuid.New(), MemberID: uuid.New(), Pipeline: "WELCOME_NEW_MEMBER",
		Status: domain.StatusSendFailed, TemplateID: &tid, RetryCount: 3,
		CreatedAt: now, UpdatedAt: now,
	}
	queue := newMemQueue(item)
	g := NewGenerationScheduler(queue, newMemTemplates(),
		contentRegistry(t, &stubContentPipeline{name: "DAILY_MOTIVATION"}), GenerationConfig{})

	at := time.Now().UTC().Add(time.Hour)
	fetched := queue.get(item.ID)
	if err := g.RequeueItem(context.Background(), fetched, at); err != nil {
		t.Fatalf("RequeueItem() error: %v", err)
	}

	got := queue.get(item.ID)
	if got.Status != domain.StatusScheduled {
		t.Errorf("status = %s, want scheduled", got.Status)
	}
	if got.RetryCount != 3 {
		t.Errorf("retry_count = %d, operator requeue must not reset the counter", got.RetryCount)
	}
}
