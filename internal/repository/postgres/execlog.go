package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// ExecutionLogRepo implements the orchestrator's audit-record surface.
type ExecutionLogRepo struct{ db *sql.DB }

// NewExecutionLogRepo creates a Postgres-backed execution log repository.
func NewExecutionLogRepo(db *sql.DB) *ExecutionLogRepo { return &ExecutionLogRepo{db: db} }

// Open inserts an in_progress record.
func (r *ExecutionLogRepo) Open(ctx context.Context, entry *domain.ExecutionLog) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO mailflow_execution_logs
			(id, pipeline, step, status, created_items, failed_items, metadata, created_at)
		VALUES ($1, $2, $3, $4, 0, 0, $5, NOW())
	`, entry.ID, entry.Pipeline, entry.Step, domain.ExecutionInProgress, metaJSON)
	if err != nil {
		return fmt.Errorf("open execution log: %w", err)
	}
	return nil
}

// Close finalizes a record. The in_progress guard keeps closed records
// immutable.
func (r *ExecutionLogRepo) Close(ctx context.Context, entry *domain.ExecutionLog) error {
	metaJSON, err := json.Marshal(entry.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailflow_execution_logs
		SET status = $1, created_items = $2, failed_items = $3,
		    metadata = $4, error = $5, duration_ms = $6
		WHERE id = $7 AND status = $8
	`, entry.Status, entry.CreatedItems, entry.FailedItems,
		metaJSON, entry.Error, entry.DurationMs,
		entry.ID, domain.ExecutionInProgress)
	if err != nil {
		return fmt.Errorf("close execution log: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("execution log %s not open", entry.ID)
	}
	return nil
}

// List returns execution history, newest first.
func (r *ExecutionLogRepo) List(ctx context.Context, limit, offset int) ([]domain.ExecutionLog, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pipeline, step, status, created_items, failed_items,
		       COALESCE(metadata, '{}'), error, COALESCE(duration_ms, 0), created_at
		FROM mailflow_execution_logs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list execution logs: %w", err)
	}
	defer rows.Close()

	var out []domain.ExecutionLog
	for rows.Next() {
		var e domain.ExecutionLog
		var metaJSON []byte
		if err := rows.Scan(
			&e.ID, &e.Pipeline, &e.Step, &e.Status,
			&e.CreatedItems, &e.FailedItems, &metaJSON,
			&e.Error, &e.DurationMs, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MetricsByPipeline aggregates closed runs per pipeline.
func (r *ExecutionLogRepo) MetricsByPipeline(ctx context.Context) ([]domain.PipelineMetrics, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT pipeline,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'success'),
		       COUNT(*) FILTER (WHERE status = 'failed'),
		       COALESCE(AVG(duration_ms), 0),
		       COALESCE(SUM(created_items), 0)
		FROM mailflow_execution_logs
		WHERE status IN ('success', 'failed')
		GROUP BY pipeline
		ORDER BY pipeline
	`)
	if err != nil {
		return nil, fmt.Errorf("metrics by pipeline: %w", err)
	}
	defer rows.Close()

	var out []domain.PipelineMetrics
	for rows.Next() {
		var m domain.PipelineMetrics
		if err := rows.Scan(&m.Pipeline, &m.Runs, &m.Succeeded, &m.Failed,
			&m.AvgDurationMs, &m.TotalCreated); err != nil {
			return nil, fmt.Errorf("scan metrics: %w", err)
		}
		if m.Runs > 0 {
			m.SuccessRate = float64(m.Succeeded) / float64(m.Runs)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DeleteOlderThan purges records outside the retention window.
func (r *ExecutionLogRepo) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM mailflow_execution_logs WHERE created_at < $1
	`, before)
	if err != nil {
		return 0, fmt.Errorf("prune execution logs: %w", err)
	}
	return res.RowsAffected()
}

// OpenDB dials the database with pool settings applied and verifies
// connectivity before returning.
func OpenDB(url string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if maxIdle > 0 {
		db.SetMaxIdleConns(maxIdle)
	}
	if maxLifetime > 0 {
		db.SetConnMaxLifetime(maxLifetime)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}
