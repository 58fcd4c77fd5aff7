package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/mailing"
	"github.com/ignite/mailflow/internal/pipeline"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// DispatchConfig holds the dispatch loop tunables.
type DispatchConfig struct {
	ScanInterval time.Duration
	BatchSize    int
	MaxRetries   int
	AutoRetry    bool
	RetryBackoff time.Duration
	SendDelay    time.Duration
	SendTimeout  time.Duration
}

// DispatchScheduler polls for scheduled items whose time has arrived,
// renders their template per recipient, and sends through the configured
// provider. It runs independently of the generation loop with its own
// pacing and in-flight guard.
type DispatchScheduler struct {
	queue     QueueStore
	templates TemplateStore
	members   MemberStore
	renderer  *mailing.Renderer
	sender    mailing.EmailSender
	contacts  pipeline.ContactGuard
	cfg       DispatchConfig
	log       *logger.Logger

	inFlight atomic.Bool
	scanNow  chan struct{}

	// Stats
	itemsSent   int64
	itemsFailed int64
	requeued    int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
}

// NewDispatchScheduler creates the dispatch loop. The contact guard is
// optional; nil disables contact marking.
func NewDispatchScheduler(queue QueueStore, templates TemplateStore, members MemberStore,
	renderer *mailing.Renderer, sender mailing.EmailSender, contacts pipeline.ContactGuard,
	cfg DispatchConfig) *DispatchScheduler {

	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 15 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 5 * time.Minute
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &DispatchScheduler{
		queue:     queue,
		templates: templates,
		members:   members,
		renderer:  renderer,
		sender:    sender,
		contacts:  contacts,
		cfg:       cfg,
		log:       logger.Component("dispatch_scheduler"),
		scanNow:   make(chan struct{}, 1),
	}
}

// Start begins the polling loop.
func (d *DispatchScheduler) Start() error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatch scheduler already running")
	}
	d.running = true
	d.ctx, d.cancel = context.WithCancel(context.Background())
	d.mu.Unlock()

	d.log.Info("starting", "interval", d.cfg.ScanInterval, "batch_size", d.cfg.BatchSize)

	d.wg.Add(1)
	go d.loop()
	return nil
}

// Stop drains the loop and waits for an in-flight scan to finish.
func (d *DispatchScheduler) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
	d.log.Info("stopped",
		"sent", atomic.LoadInt64(&d.itemsSent),
		"failed", atomic.LoadInt64(&d.itemsFailed),
		"requeued", atomic.LoadInt64(&d.requeued))
}

// ScanNow requests an immediate scan without waiting for the next tick.
func (d *DispatchScheduler) ScanNow() {
	select {
	case d.scanNow <- struct{}{}:
	default:
	}
}

func (d *DispatchScheduler) loop() {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-d.ctx.Done():
			return
		case <-ticker.C:
			d.scan()
		case <-d.scanNow:
			d.scan()
		}
	}
}

func (d *DispatchScheduler) scan() {
	ctx, cancel := context.WithTimeout(d.ctx, 10*time.Minute)
	defer cancel()
	d.ScanOnce(ctx)
}

// ScanOnce runs one dispatch pass: send everything due, then requeue
// retryable failures if auto-retry is enabled. Overlapping calls are
// skipped via the in-flight guard.
func (d *DispatchScheduler) ScanOnce(ctx context.Context) {
	if !d.inFlight.CompareAndSwap(false, true) {
		d.log.Debug("scan skipped, previous scan still running")
		return
	}
	defer d.inFlight.Store(false)

	due, err := d.queue.DueItems(ctx, time.Now().UTC(), d.cfg.BatchSize)
	if err != nil {
		d.log.Error("fetching due items", "error", err)
		return
	}

	if len(due) > 0 {
		d.log.Info("dispatch scan started", "due", len(due))
	}
	for i := range due {
		// Shutdown stops between items. A send that already started
		// always records its outcome before the loop exits.
		select {
		case <-ctx.Done():
			return
		default:
		}
		d.dispatchItem(ctx, &due[i])
		if d.cfg.SendDelay > 0 && i < len(due)-1 {
			time.Sleep(d.cfg.SendDelay)
		}
	}

	if d.cfg.AutoRetry {
		d.requeueFailed(ctx)
	}
}

// dispatchItem renders and sends one queue item. Every failure path
// records send_failed; the item never silently stays scheduled.
func (d *DispatchScheduler) dispatchItem(ctx context.Context, item *domain.QueueItem) {
	if item.TemplateID == nil {
		d.failItem(ctx, item, fmt.Errorf("scheduled item has no template"))
		return
	}

	tmpl, err := d.templates.GetByID(ctx, *item.TemplateID)
	if err != nil {
		d.failItem(ctx, item, fmt.Errorf("loading template: %w", err))
		return
	}
	if !tmpl.Sendable() {
		d.failItem(ctx, item, fmt.Errorf("template %s is not sendable (status %s)", tmpl.Code, tmpl.Status))
		return
	}

	member, err := d.members.GetByID(ctx, item.MemberID)
	if err != nil {
		d.failItem(ctx, item, fmt.Errorf("loading member: %w", err))
		return
	}
	if !member.Mailable() {
		d.failItem(ctx, item, fmt.Errorf("member is not mailable (status %s)", member.Status))
		return
	}

	vars := mailing.MergeVariables(member.Defaults, item.Variables)
	rendered, err := d.renderer.RenderTemplate(tmpl, vars)
	if err != nil {
		d.failItem(ctx, item, fmt.Errorf("rendering: %w", err))
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
	defer cancel()

	result, err := d.sender.Send(sendCtx, &mailing.EmailMessage{
		Email:       member.Email,
		Subject:     rendered.Subject,
		HTMLContent: rendered.HTML,
		TextContent: rendered.Text,
		Pipeline:    item.Pipeline,
		MemberID:    member.ID.String(),
	})
	if err != nil {
		d.failItem(ctx, item, err)
		return
	}
	if !result.Success {
		d.failItem(ctx, item, result.Error)
		return
	}

	if err := item.Transition(domain.StatusSent); err != nil {
		d.log.Error("transition to sent", "item", item.ID, "error", err)
		return
	}
	if err := d.queue.Update(ctx, item, domain.StatusScheduled); err != nil {
		d.log.Error("persisting sent item", "item", item.ID, "error", err)
		return
	}

	if d.contacts != nil {
		if err := d.contacts.MarkContacted(ctx, member.ID); err != nil {
			d.log.Warn("marking contact", "member", member.ID, "error", err)
		}
	}

	atomic.AddInt64(&d.itemsSent, 1)
	d.log.Info("sent", "item", item.ID, "pipeline", item.Pipeline,
		"email", member.Email, "message_id", result.MessageID)
}

// failItem moves the item to send_failed with its retry counter bumped.
func (d *DispatchScheduler) failItem(ctx context.Context, item *domain.QueueItem, cause error) {
	atomic.AddInt64(&d.itemsFailed, 1)

	msg := "send failed"
	if cause != nil {
		msg = cause.Error()
	}
	if err := item.RecordFailure(msg, d.cfg.MaxRetries, domain.StatusSendFailed); err != nil {
		d.log.Error("recording send failure", "item", item.ID, "error", err)
		return
	}
	if item.Status != domain.StatusSendFailed {
		if err := item.Transition(domain.StatusSendFailed); err != nil {
			d.log.Error("transition to send_failed", "item", item.ID, "error", err)
			return
		}
	}
	if err := d.queue.Update(ctx, item, domain.StatusScheduled); err != nil {
		d.log.Error("persisting failed item", "item", item.ID, "error", err)
		return
	}

	d.log.Warn("send failed", "item", item.ID, "pipeline", item.Pipeline,
		"attempt", item.RetryCount, "error", msg)
}

// requeueFailed moves retryable send_failed items back to scheduled with
// linear backoff. Items at the retry cap stay send_failed until an
// operator requeues them explicitly.
func (d *DispatchScheduler) requeueFailed(ctx context.Context) {
	failed, err := d.queue.ListByStatus(ctx, domain.StatusSendFailed, d.cfg.BatchSize)
	if err != nil {
		d.log.Error("fetching send_failed items", "error", err)
		return
	}

	for i := range failed {
		item := &failed[i]
		if item.RetryCount >= d.cfg.MaxRetries {
			continue
		}
		at := time.Now().UTC().Add(d.cfg.RetryBackoff * time.Duration(item.RetryCount))
		if err := item.Requeue(at); err != nil {
			d.log.Error("requeueing item", "item", item.ID, "error", err)
			continue
		}
		if err := d.queue.Update(ctx, item, domain.StatusSendFailed); err != nil {
			d.log.Error("persisting requeued item", "item", item.ID, "error", err)
			continue
		}
		atomic.AddInt64(&d.requeued, 1)
		d.log.Info("requeued for retry", "item", item.ID, "attempt", item.RetryCount, "at", at)
	}
}

// DispatchStats is a point-in-time snapshot of loop counters.
type DispatchStats struct {
	Sent     int64 `json:"sent"`
	Failed   int64 `json:"failed"`
	Requeued int64 `json:"requeued"`
	InFlight bool  `json:"in_flight"`
}

// Stats returns loop counters since start.
func (d *DispatchScheduler) Stats() DispatchStats {
	return DispatchStats{
		Sent:     atomic.LoadInt64(&d.itemsSent),
		Failed:   atomic.LoadInt64(&d.itemsFailed),
		Requeued: atomic.LoadInt64(&d.requeued),
		InFlight: d.inFlight.Load(),
	}
}
