// Package orchestrator executes named pipelines with a single-flight
// guarantee and records every run in the execution log.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/pipeline"
	"github.com/ignite/mailflow/internal/pkg/logger"
)

// ExecutionLogRepository is the audit-record surface the orchestrator
// owns. Nothing else writes execution logs.
type ExecutionLogRepository interface {
	// Open inserts an in_progress record.
	Open(ctx context.Context, entry *domain.ExecutionLog) error

	// Close finalizes a record as success or failed. Closed records are
	// immutable.
	Close(ctx context.Context, entry *domain.ExecutionLog) error

	// List returns execution history, newest first.
	List(ctx context.Context, limit, offset int) ([]domain.ExecutionLog, error)

	// MetricsByPipeline aggregates closed runs per pipeline.
	MetricsByPipeline(ctx context.Context) ([]domain.PipelineMetrics, error)

	// DeleteOlderThan purges records outside the retention window and
	// returns how many were removed.
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// RunningPipeline describes one in-flight execution.
type RunningPipeline struct {
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// SequenceResult is the per-name outcome of a batch execution.
type SequenceResult struct {
	Pipeline string           `json:"pipeline"`
	Result   *pipeline.Result `json:"result,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Orchestrator runs pipelines one instance at a time per name. The
// running set is in-memory and per-process; running two instances of
// this service against one store is unsupported.
type Orchestrator struct {
	registry *pipeline.Registry
	logs     ExecutionLogRepository
	log      *logger.Logger

	mu      sync.Mutex
	running map[string]time.Time
}

// New creates an orchestrator over the given registry and log store.
func New(registry *pipeline.Registry, logs ExecutionLogRepository) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		logs:     logs,
		log:      logger.Component("orchestrator"),
		running:  make(map[string]time.Time),
	}
}

// Execute runs the named pipeline once. It fails fast with
// ErrAlreadyRunning while a previous call for the same name is still in
// flight, and with ErrNotFound for unknown names. The execution log is
// always closed, success or failure, before Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, name string) (*pipeline.Result, error) {
	p, ok := o.registry.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	o.mu.Lock()
	if _, busy := o.running[name]; busy {
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrAlreadyRunning, name)
	}
	o.running[name] = time.Now().UTC()
	o.mu.Unlock()

	// Guaranteed cleanup of the single-flight slot, whatever happens below.
	defer func() {
		o.mu.Lock()
		delete(o.running, name)
		o.mu.Unlock()
	}()

	entry := &domain.ExecutionLog{
		ID:        uuid.New(),
		Pipeline:  name,
		Step:      "run_pipeline",
		Status:    domain.ExecutionInProgress,
		Metadata:  map[string]any{},
		CreatedAt: time.Now().UTC(),
	}
	if err := o.logs.Open(ctx, entry); err != nil {
		return nil, fmt.Errorf("opening execution log for %s: %w", name, err)
	}

	start := time.Now()
	res, runErr := p.Run(ctx)
	entry.DurationMs = time.Since(start).Milliseconds()

	if runErr != nil {
		msg := runErr.Error()
		entry.Status = domain.ExecutionFailed
		entry.Error = &msg
		if err := o.logs.Close(ctx, entry); err != nil {
			o.log.Error("closing execution log", "pipeline", name, "error", err)
		}
		o.log.Error("pipeline run failed", "pipeline", name, "duration_ms", entry.DurationMs, "error", runErr)
		return nil, runErr
	}

	entry.Status = domain.ExecutionSuccess
	entry.CreatedItems = res.Created
	entry.FailedItems = res.Failed
	if len(res.Errors) > 0 {
		entry.Metadata["errors"] = res.Errors
	}
	if err := o.logs.Close(ctx, entry); err != nil {
		o.log.Error("closing execution log", "pipeline", name, "error", err)
	}
	o.log.Info("pipeline run succeeded", "pipeline", name,
		"created", res.Created, "failed", res.Failed, "duration_ms", entry.DurationMs)
	return res, nil
}

// ExecuteSequence runs the named pipelines in order, continuing past
// individual failures. One result is returned per name.
func (o *Orchestrator) ExecuteSequence(ctx context.Context, names []string) []SequenceResult {
	out := make([]SequenceResult, 0, len(names))
	for _, name := range names {
		res, err := o.Execute(ctx, name)
		sr := SequenceResult{Pipeline: name, Result: res}
		if err != nil {
			sr.Error = err.Error()
		}
		out = append(out, sr)
	}
	return out
}

// Running returns the pipelines currently executing, sorted by name.
func (o *Orchestrator) Running() []RunningPipeline {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]RunningPipeline, 0, len(o.running))
	for name, since := range o.running {
		out = append(out, RunningPipeline{Name: name, StartedAt: since})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// History returns execution records, newest first.
func (o *Orchestrator) History(ctx context.Context, limit, offset int) ([]domain.ExecutionLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return o.logs.List(ctx, limit, offset)
}

// Metrics returns aggregate success-rate and duration stats per pipeline.
func (o *Orchestrator) Metrics(ctx context.Context) ([]domain.PipelineMetrics, error) {
	return o.logs.MetricsByPipeline(ctx)
}

// PruneHistory removes execution records older than the retention window.
func (o *Orchestrator) PruneHistory(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	n, err := o.logs.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning execution history: %w", err)
	}
	if n > 0 {
		o.log.Info("pruned execution history", "removed", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}
