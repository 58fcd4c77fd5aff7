package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/mailflow/internal/domain"
)

// ErrTemplateNotFound is returned when a template lookup matches nothing.
var ErrTemplateNotFound = fmt.Errorf("template not found")

// TemplateRepo implements the template surfaces of the pipeline and
// scheduler packages.
type TemplateRepo struct{ db *sql.DB }

// NewTemplateRepo creates a Postgres-backed template repository.
func NewTemplateRepo(db *sql.DB) *TemplateRepo { return &TemplateRepo{db: db} }

const templateColumns = `
	id, code, name, subject, COALESCE(html_body, ''), COALESCE(text_body, ''),
	type, status, placeholders, COALESCE(prompt, ''), COALESCE(category, ''),
	created_at, updated_at`

func (r *TemplateRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM mailflow_templates WHERE id = $1
	`, id)
	return scanTemplate(row)
}

func (r *TemplateRepo) GetByCode(ctx context.Context, code string) (*domain.Template, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+templateColumns+`
		FROM mailflow_templates WHERE code = $1
	`, code)
	return scanTemplate(row)
}

func (r *TemplateRepo) Insert(ctx context.Context, t *domain.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailflow_templates
			(id, code, name, subject, html_body, text_body, type, status,
			 placeholders, prompt, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, t.ID, t.Code, t.Name, t.Subject, t.HTMLBody, t.TextBody,
		t.Type, t.Status, pq.Array(t.Placeholders), t.Prompt, t.Category)
	if err != nil {
		return fmt.Errorf("insert template: %w", err)
	}
	return nil
}

// UpsertByCode inserts or refreshes a template keyed by its code. Used
// by the predefined template seeder at startup.
func (r *TemplateRepo) UpsertByCode(ctx context.Context, t *domain.Template) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailflow_templates
			(id, code, name, subject, html_body, text_body, type, status,
			 placeholders, prompt, category, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			subject = EXCLUDED.subject,
			html_body = EXCLUDED.html_body,
			text_body = EXCLUDED.text_body,
			placeholders = EXCLUDED.placeholders,
			updated_at = NOW()
	`, t.ID, t.Code, t.Name, t.Subject, t.HTMLBody, t.TextBody,
		t.Type, t.Status, pq.Array(t.Placeholders), t.Prompt, t.Category)
	if err != nil {
		return fmt.Errorf("upsert template: %w", err)
	}
	return nil
}

func (r *TemplateRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TemplateStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailflow_templates SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("update template status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrTemplateNotFound
	}
	return nil
}

// WaitingReview returns generated templates awaiting review, oldest first.
func (r *TemplateRepo) WaitingReview(ctx context.Context, limit int) ([]domain.Template, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+templateColumns+`
		FROM mailflow_templates
		WHERE status = $1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.TemplateWaitingReview, limit)
	if err != nil {
		return nil, fmt.Errorf("waiting review: %w", err)
	}
	defer rows.Close()

	var out []domain.Template
	for rows.Next() {
		t, err := scanTemplateRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTemplate(row *sql.Row) (*domain.Template, error) {
	t, err := scanTemplateRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrTemplateNotFound
	}
	return t, err
}

func scanTemplateRow(row rowScanner) (*domain.Template, error) {
	var t domain.Template
	err := row.Scan(
		&t.ID, &t.Code, &t.Name, &t.Subject, &t.HTMLBody, &t.TextBody,
		&t.Type, &t.Status, pq.Array(&t.Placeholders), &t.Prompt, &t.Category,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
