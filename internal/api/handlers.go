// Package api is the HTTP trigger surface: pipeline execution, status,
// review actions, and queue inspection. It performs no orchestration
// logic itself.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/orchestrator"
	"github.com/ignite/mailflow/internal/pipeline"
	"github.com/ignite/mailflow/internal/scheduler"
)

// QueueReader is the read/requeue surface the API needs from the queue.
type QueueReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error)
	CountsByStatus(ctx context.Context) (*domain.QueueStats, error)
}

// Handlers holds the API dependencies.
type Handlers struct {
	orch     *orchestrator.Orchestrator
	registry *pipeline.Registry
	gen      *scheduler.GenerationScheduler
	dispatch *scheduler.DispatchScheduler
	queue    QueueReader
}

// NewHandlers wires the API over its collaborators.
func NewHandlers(orch *orchestrator.Orchestrator, registry *pipeline.Registry,
	gen *scheduler.GenerationScheduler, dispatch *scheduler.DispatchScheduler,
	queue QueueReader) *Handlers {
	return &Handlers{orch: orch, registry: registry, gen: gen, dispatch: dispatch, queue: queue}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// ListPipelines returns the static pipeline catalog.
func (h *Handlers) ListPipelines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"pipelines": h.registry.List()})
}

// RunPipeline executes one named pipeline synchronously.
func (h *Handlers) RunPipeline(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	result, err := h.orch.Execute(r.Context(), name)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, orchestrator.ErrAlreadyRunning):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"pipeline": name, "result": result})
}

// RunBatch executes a sequence of pipelines, continuing past failures.
func (h *Handlers) RunBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Pipelines []string `json:"pipelines"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.Pipelines) == 0 {
		respondError(w, http.StatusBadRequest, "pipelines list is required")
		return
	}
	for _, name := range req.Pipelines {
		if !h.registry.Exists(name) {
			respondError(w, http.StatusNotFound, "unknown pipeline: "+name)
			return
		}
	}

	results := h.orch.ExecuteSequence(r.Context(), req.Pipelines)
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// RunningPipelines returns the in-flight execution set.
func (h *Handlers) RunningPipelines(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"running": h.orch.Running()})
}

// ExecutionHistory returns execution log records, newest first.
func (h *Handlers) ExecutionHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	logs, err := h.orch.History(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"executions": logs})
}

// PipelineMetrics returns per-pipeline run aggregates.
func (h *Handlers) PipelineMetrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.orch.Metrics(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"metrics": metrics})
}

// QueueStats returns queue item counts grouped by status.
func (h *Handlers) QueueStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.CountsByStatus(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// SchedulerStats returns counters for both background loops.
func (h *Handlers) SchedulerStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"generation": h.gen.Stats(),
		"dispatch":   h.dispatch.Stats(),
	})
}

// ReviewQueue lists generated templates awaiting review.
func (h *Handlers) ReviewQueue(w http.ResponseWriter, r *http.Request) {
	templates, err := h.gen.ReviewQueue(r.Context(), queryInt(r, "limit", 50))
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"templates": templates})
}

// ApproveTemplate approves a waiting_review template and schedules its
// pending items.
func (h *Handlers) ApproveTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var req struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	scheduledAt := time.Now().UTC()
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	scheduled, err := h.gen.Approve(r.Context(), templateID, scheduledAt)
	if err != nil {
		if errors.Is(err, scheduler.ErrTemplateState) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"template_id":     templateID,
		"items_scheduled": scheduled,
		"scheduled_at":    scheduledAt,
	})
}

// RejectTemplate rejects a waiting_review template and terminalizes its
// pending items.
func (h *Handlers) RejectTemplate(w http.ResponseWriter, r *http.Request) {
	templateID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid template id")
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	rejected, err := h.gen.Reject(r.Context(), templateID, req.Reason)
	if err != nil {
		if errors.Is(err, scheduler.ErrTemplateState) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"template_id":    templateID,
		"items_rejected": rejected,
	})
}

// RequeueItem is the operator override for failed queue items.
func (h *Handlers) RequeueItem(w http.ResponseWriter, r *http.Request) {
	itemID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid item id")
		return
	}

	var req struct {
		ScheduledAt *time.Time `json:"scheduled_at"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}
	at := time.Now().UTC()
	if req.ScheduledAt != nil {
		at = req.ScheduledAt.UTC()
	}

	item, err := h.queue.GetByID(r.Context(), itemID)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := h.gen.RequeueItem(r.Context(), item, at); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			respondError(w, http.StatusConflict, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"item": item})
}

// ScanGeneration triggers an immediate generation scan.
func (h *Handlers) ScanGeneration(w http.ResponseWriter, r *http.Request) {
	h.gen.ScanNow()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scan requested"})
}

// ScanDispatch triggers an immediate dispatch scan.
func (h *Handlers) ScanDispatch(w http.ResponseWriter, r *http.Request) {
	h.dispatch.ScanNow()
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "scan requested"})
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
