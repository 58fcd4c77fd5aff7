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
)

// ErrMemberNotFound is returned when a member lookup matches nothing.
var ErrMemberNotFound = fmt.Errorf("member not found")

// MemberRepo implements the member selection surface the pipelines query
// and the lookup the dispatch loop needs.
type MemberRepo struct{ db *sql.DB }

// NewMemberRepo creates a Postgres-backed member repository.
func NewMemberRepo(db *sql.DB) *MemberRepo { return &MemberRepo{db: db} }

const memberColumns = `
	id, email, COALESCE(first_name, ''), COALESCE(last_name, ''), status,
	topics, COALESCE(defaults, '{}'), last_activity_at, last_contacted_at, created_at`

func (r *MemberRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+memberColumns+`
		FROM mailflow_members WHERE id = $1
	`, id)
	m, err := scanMember(row)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	return m, err
}

// NewMembersSince returns active members who joined after the cutoff.
func (r *MemberRepo) NewMembersSince(ctx context.Context, since time.Time, limit int) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM mailflow_members
		WHERE status = $1 AND created_at >= $2
		ORDER BY created_at ASC
		LIMIT $3
	`, domain.MemberActive, since, limit)
	if err != nil {
		return nil, fmt.Errorf("new members since: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// ActiveMembersSince returns active members with activity after the cutoff.
func (r *MemberRepo) ActiveMembersSince(ctx context.Context, activeSince time.Time, limit int) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM mailflow_members
		WHERE status = $1 AND last_activity_at IS NOT NULL AND last_activity_at >= $2
		ORDER BY last_activity_at DESC
		LIMIT $3
	`, domain.MemberActive, activeSince, limit)
	if err != nil {
		return nil, fmt.Errorf("active members since: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// MembersWithTopics returns active members following at least one topic.
func (r *MemberRepo) MembersWithTopics(ctx context.Context, limit int) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM mailflow_members
		WHERE status = $1 AND topics <> '{}'
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.MemberActive, limit)
	if err != nil {
		return nil, fmt.Errorf("members with topics: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

// DormantMembers returns active members with no activity since the cutoff.
func (r *MemberRepo) DormantMembers(ctx context.Context, inactiveSince time.Time, limit int) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+memberColumns+`
		FROM mailflow_members
		WHERE status = $1
		  AND (last_activity_at IS NULL OR last_activity_at < $2)
		ORDER BY last_activity_at ASC NULLS FIRST
		LIMIT $3
	`, domain.MemberActive, inactiveSince, limit)
	if err != nil {
		return nil, fmt.Errorf("dormant members: %w", err)
	}
	defer rows.Close()
	return scanMembers(rows)
}

func scanMember(row rowScanner) (*domain.Member, error) {
	var m domain.Member
	var defaultsJSON []byte
	err := row.Scan(
		&m.ID, &m.Email, &m.FirstName, &m.LastName, &m.Status,
		pq.Array(&m.Topics), &defaultsJSON,
		&m.LastActivityAt, &m.LastContactedAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(defaultsJSON) > 0 {
		if err := json.Unmarshal(defaultsJSON, &m.Defaults); err != nil {
			return nil, fmt.Errorf("unmarshal member defaults: %w", err)
		}
	}
	return &m, nil
}

func scanMembers(rows *sql.Rows) ([]domain.Member, error) {
	var out []domain.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
