package domain

import (
	"time"

	"github.com/google/uuid"
)

// ExecutionStatus enumerates the states of a pipeline run record.
type ExecutionStatus string

const (
	ExecutionInProgress ExecutionStatus = "in_progress"
	ExecutionSuccess    ExecutionStatus = "success"
	ExecutionFailed     ExecutionStatus = "failed"
)

// ExecutionLog is the audit record of one pipeline run. It is opened by
// the orchestrator before the run and closed exactly once afterwards;
// closed records are immutable.
type ExecutionLog struct {
	ID           uuid.UUID       `json:"id" db:"id"`
	Pipeline     string          `json:"pipeline" db:"pipeline"`
	Step         string          `json:"step" db:"step"`
	Status       ExecutionStatus `json:"status" db:"status"`
	CreatedItems int             `json:"created_items" db:"created_items"`
	FailedItems  int             `json:"failed_items" db:"failed_items"`
	Metadata     map[string]any  `json:"metadata" db:"metadata"`
	Error        *string         `json:"error" db:"error"`
	DurationMs   int64           `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
}

// PipelineMetrics aggregates execution history for one pipeline.
type PipelineMetrics struct {
	Pipeline      string  `json:"pipeline"`
	Runs          int     `json:"runs"`
	Succeeded     int     `json:"succeeded"`
	Failed        int     `json:"failed"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	TotalCreated  int     `json:"total_created"`
}
