package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pipeline"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// GenerationConfig holds the generation loop tunables.
type GenerationConfig struct {
	ScanInterval time.Duration
	BatchSize    int
	MaxRetries   int
	ItemDelay    time.Duration
}

// GenerationScheduler polls for awaiting_generation items, produces
// personalized content through the owning pipeline, and moves each item
// to pending_review. One scan runs at a time; a tick that arrives while
// a scan is in flight is skipped.
type GenerationScheduler struct {
	queue     QueueStore
	templates TemplateStore
	registry  *pipeline.Registry
	cfg       GenerationConfig
	log       *logger.Logger

	inFlight atomic.Bool
	scanNow  chan struct{}

	// Stats
	itemsProcessed int64
	itemsGenerated int64
	itemsFailed    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewGenerationScheduler creates the generation loop. Zero-valued config
// fields fall back to safe defaults.
func NewGenerationScheduler(queue QueueStore, templates TemplateStore, registry *pipeline.Registry, cfg GenerationConfig) *GenerationScheduler {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &GenerationScheduler{
		queue:     queue,
		templates: templates,
		registry:  registry,
		cfg:       cfg,
		log:       logger.Component("generation_scheduler"),
		scanNow:   make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (g *GenerationScheduler) Start() error {
	g.mu.Lock()
	if g.running {
		g.mu.Unlock()
		return fmt.Errorf("generation scheduler already running")
	}
	g.running = true
	g.ctx, g.cancel = context.WithCancel(context.Background())
	g.mu.Unlock()

	g.log.Info("starting", "interval", g.cfg.ScanInterval, "batch_size", g.cfg.BatchSize)

	g.wg.Add(1)
	go g.loop()
	return nil
}

// Stop drains the loop and waits for an in-flight scan to finish.
func (g *GenerationScheduler) Stop() {
	g.mu.Lock()
	if !g.running {
		g.mu.Unlock()
		return
	}
	g.running = false
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()
	g.log.Info("stopped",
		"processed", atomic.LoadInt64(&g.itemsProcessed),
		"generated", atomic.LoadInt64(&g.itemsGenerated),
		"failed", atomic.LoadInt64(&g.itemsFailed))
}

// ScanNow requests an immediate scan without waiting for the next tick.
// A scan already in flight absorbs the request.
func (g *GenerationScheduler) ScanNow() {
	select {
	case g.scanNow <- struct{}{}:
	default:
	}
}

func (g *GenerationScheduler) loop() {
	defer g.wg.Done()

	ticker := time.NewTicker(g.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx.Done():
			return
		case <-ticker.C:
			g.scan()
		case <-g.scanNow:
			g.scan()
		}
	}
}

func (g *GenerationScheduler) scan() {
	ctx, cancel := context.WithTimeout(g.ctx, 10*time.Minute)
	defer cancel()
	g.ScanOnce(ctx)
}

// ScanOnce runs one pass over the awaiting_generation backlog. The
// in-flight guard makes an overlapping call a no-op instead of a second
// scan.
func (g *GenerationScheduler) ScanOnce(ctx context.Context) {
	if !g.inFlight.CompareAndSwap(false, true) {
		g.log.Debug("scan skipped, previous scan still running")
		return
	}
	defer g.inFlight.Store(false)

	items, err := g.queue.ListByStatus(ctx, domain.StatusAwaitingGeneration, g.cfg.BatchSize)
	if err != nil {
		g.log.Error("fetching awaiting items", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	g.log.Info("scan started", "items", len(items))

	for i := range items {
		// Shutdown stops between items, never inside a generation call.
		select {
		case <-ctx.Done():
			return
		default:
		}
		g.processItem(ctx, &items[i])
		if g.cfg.ItemDelay > 0 && i < len(items)-1 {
			time.Sleep(g.cfg.ItemDelay)
		}
	}
}

// processItem generates content for one queue item. A failure on one
// item never aborts the rest of the batch.
func (g *GenerationScheduler) processItem(ctx context.Context, item *domain.QueueItem) {
	atomic.AddInt64(&g.itemsProcessed, 1)

	p, ok := g.registry.Lookup(item.Pipeline)
	if !ok {
		g.failItem(ctx, item, fmt.Errorf("unknown pipeline %q", item.Pipeline))
		return
	}
	cp, ok := p.(pipeline.ContentPipeline)
	if !ok {
		g.failItem(ctx, item, fmt.Errorf("pipeline %q does not generate content", item.Pipeline))
		return
	}

	templateID, err := cp.GenerateContent(ctx, item.MemberID, item.ContextData)
	if err != nil {
		g.failItem(ctx, item, err)
		return
	}

	item.TemplateID = &templateID
	if err := item.Transition(domain.StatusPendingReview); err != nil {
		g.log.Error("transition to pending_review", "item", item.ID, "error", err)
		return
	}
	if err := g.queue.Update(ctx, item, domain.StatusAwaitingGeneration); err != nil {
		g.log.Error("persisting generated item", "item", item.ID, "error", err)
		return
	}

	atomic.AddInt64(&g.itemsGenerated, 1)
	g.log.Info("content generated", "item", item.ID, "pipeline", item.Pipeline, "template", templateID)
}

// failItem applies the retry-or-terminal rule. Transient failures count
// toward the retry cap and the item stays awaiting_generation until it
// hits the cap. Permanent failures terminalize immediately.
func (g *GenerationScheduler) failItem(ctx context.Context, item *domain.QueueItem, cause error) {
	atomic.AddInt64(&g.itemsFailed, 1)

	expect := item.Status
	maxRetries := g.cfg.MaxRetries
	if !domain.IsTransient(cause) {
		maxRetries = 0
	}
	if err := item.RecordFailure(cause.Error(), maxRetries, domain.StatusGenerationFailed); err != nil {
		g.log.Error("recording generation failure", "item", item.ID, "error", err)
		return
	}
	if err := g.queue.Update(ctx, item, expect); err != nil {
		g.log.Error("persisting failed item", "item", item.ID, "error", err)
		return
	}

	if item.Status == domain.StatusGenerationFailed {
		g.log.Warn("generation terminally failed", "item", item.ID, "pipeline", item.Pipeline,
			"retries", item.RetryCount, "error", cause)
	} else {
		g.log.Warn("generation failed, will retry", "item", item.ID, "pipeline", item.Pipeline,
			"attempt", item.RetryCount, "max", maxRetries, "error", cause)
	}
}

// GenerationStats is a point-in-time snapshot of loop counters.
type GenerationStats struct {
	Processed int64 `json:"processed"`
	Generated int64 `json:"generated"`
	Failed    int64 `json:"failed"`
	InFlight  bool  `json:"in_flight"`
}

// Stats returns loop counters since start.
func (g *GenerationScheduler) Stats() GenerationStats {
	return GenerationStats{
		Processed: atomic.LoadInt64(&g.itemsProcessed),
		Generated: atomic.LoadInt64(&g.itemsGenerated),
		Failed:    atomic.LoadInt64(&g.itemsFailed),
		InFlight:  g.inFlight.Load(),
	}
}
