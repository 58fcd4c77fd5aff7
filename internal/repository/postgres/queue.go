// Package postgres implements the repository interfaces declared by the
// pipeline, scheduler, and orchestrator packages against PostgreSQL.
// Every query is strictly parameterized.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/scheduler"
)

// QueueRepo implements the queue surfaces of both the pipeline package
// (bulk insert, dedup lookup) and the scheduler package (scan, guarded
// update, review fan-out).
type QueueRepo struct{ db *sql.DB }

// NewQueueRepo creates a Postgres-backed queue repository.
func NewQueueRepo(db *sql.DB) *QueueRepo { return &QueueRepo{db: db} }

const queueColumns = `
	id, member_id, pipeline, status, template_id, scheduled_at,
	COALESCE(context_data, '{}'), COALESCE(variables, '{}'),
	COALESCE(tag, ''), retry_count, last_error, created_at, updated_at`

// InsertBatch bulk-inserts queue items inside one transaction. Returns
// the number actually inserted; conflicts on (pipeline, member, tag) are
// skipped rather than failed.
func (r *QueueRepo) InsertBatch(ctx context.Context, items []domain.QueueItem) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin insert batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO mailflow_queue_items
			(id, member_id, pipeline, status, template_id, scheduled_at,
			 context_data, variables, tag, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, NOW(), NOW())
		ON CONFLICT (pipeline, member_id, tag) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range items {
		item := &items[i]
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		contextJSON, err := json.Marshal(item.ContextData)
		if err != nil {
			return inserted, fmt.Errorf("marshal context data: %w", err)
		}
		varsJSON, err := json.Marshal(item.Variables)
		if err != nil {
			return inserted, fmt.Errorf("marshal variables: %w", err)
		}
		res, err := stmt.ExecContext(ctx,
			item.ID, item.MemberID, item.Pipeline, item.Status,
			item.TemplateID, item.ScheduledAt, contextJSON, varsJSON, item.Tag)
		if err != nil {
			return inserted, fmt.Errorf("insert queue item: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit insert batch: %w", err)
	}
	return inserted, nil
}

// ExistingMemberIDs returns which of the given members already have an
// item for the pipeline and tag.
func (r *QueueRepo) ExistingMemberIDs(ctx context.Context, pipeline, tag string, memberIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	existing := make(map[uuid.UUID]bool)
	if len(memberIDs) == 0 {
		return existing, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT member_id FROM mailflow_queue_items
		WHERE pipeline = $1 AND tag = $2 AND member_id = ANY($3)
	`, pipeline, tag, pq.Array(memberIDs))
	if err != nil {
		return nil, fmt.Errorf("existing member ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		existing[id] = true
	}
	return existing, rows.Err()
}

// GetByID returns one queue item.
func (r *QueueRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.QueueItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+queueColumns+`
		FROM mailflow_queue_items WHERE id = $1
	`, id)
	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("queue item %s not found", id)
	}
	return item, err
}

// ListByStatus returns items in the given status, oldest first.
func (r *QueueRepo) ListByStatus(ctx context.Context, status domain.QueueItemStatus, limit int) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM mailflow_queue_items
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list by status: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// DueItems returns scheduled items whose time has arrived, soonest first.
func (r *QueueRepo) DueItems(ctx context.Context, now time.Time, limit int) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM mailflow_queue_items
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
		LIMIT $3
	`, domain.StatusScheduled, now, limit)
	if err != nil {
		return nil, fmt.Errorf("due items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// ItemsByTemplate returns items referencing a template in the given status.
func (r *QueueRepo) ItemsByTemplate(ctx context.Context, templateID uuid.UUID, status domain.QueueItemStatus) ([]domain.QueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+queueColumns+`
		FROM mailflow_queue_items
		WHERE template_id = $1 AND status = $2
		ORDER BY created_at ASC
	`, templateID, status)
	if err != nil {
		return nil, fmt.Errorf("items by template: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// Update persists the item's mutable fields guarded by its expected
// current status. The guard in the WHERE clause makes the status change
// atomic; a missed guard reports scheduler.ErrStaleItem.
func (r *QueueRepo) Update(ctx context.Context, item *domain.QueueItem, expect domain.QueueItemStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailflow_queue_items
		SET status = $1, template_id = $2, scheduled_at = $3,
		    retry_count = $4, last_error = $5, updated_at = NOW()
		WHERE id = $6 AND status = $7
	`, item.Status, item.TemplateID, item.ScheduledAt,
		item.RetryCount, item.LastError, item.ID, expect)
	if err != nil {
		return fmt.Errorf("update queue item: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return scheduler.ErrStaleItem
	}
	return nil
}

// CountsByStatus returns aggregate item counts grouped by status and by
// pipeline.
func (r *QueueRepo) CountsByStatus(ctx context.Context) (*domain.QueueStats, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, pipeline, COUNT(*)
		FROM mailflow_queue_items
		GROUP BY status, pipeline
	`)
	if err != nil {
		return nil, fmt.Errorf("counts by status: %w", err)
	}
	defer rows.Close()

	stats := &domain.QueueStats{
		ByStatus:   make(map[domain.QueueItemStatus]int),
		ByPipeline: make(map[string]int),
	}
	for rows.Next() {
		var status domain.QueueItemStatus
		var pipeline string
		var count int
		if err := rows.Scan(&status, &pipeline, &count); err != nil {
			return nil, fmt.Errorf("scan counts: %w", err)
		}
		stats.ByStatus[status] += count
		stats.ByPipeline[pipeline] += count
		stats.Total += count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanQueueItem(row rowScanner) (*domain.QueueItem, error) {
	var item domain.QueueItem
	var contextJSON, varsJSON []byte
	err := row.Scan(
		&item.ID, &item.MemberID, &item.Pipeline, &item.Status,
		&item.TemplateID, &item.ScheduledAt, &contextJSON, &varsJSON,
		&item.Tag, &item.RetryCount, &item.LastError,
		&item.CreatedAt, &item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(contextJSON) > 0 {
		if err := json.Unmarshal(contextJSON, &item.ContextData); err != nil {
			return nil, fmt.Errorf("unmarshal context data: %w", err)
		}
	}
	if len(varsJSON) > 0 {
		if err := json.Unmarshal(varsJSON, &item.Variables); err != nil {
			return nil, fmt.Errorf("unmarshal variables: %w", err)
		}
	}
	return &item, nil
}

func scanQueueItems(rows *sql.Rows) ([]domain.QueueItem, error) {
	var out []domain.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		out = append(out, *item)
	}
	return out, rows.Err()
}
