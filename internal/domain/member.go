package domain

import (
	"time"

	"github.com/google/uuid"
)

// MemberStatus enumerates subscription states for a member.
type MemberStatus string

const (
	MemberActive       MemberStatus = "active"
	MemberUnsubscribed MemberStatus = "unsubscribed"
	MemberBounced      MemberStatus = "bounced"
)

// Member is a mailable recipient with the profile data pipelines select
// on and the default variables templates render with.
type Member struct {
	ID              uuid.UUID      `json:"id" db:"id"`
	Email           string         `json:"email" db:"email"`
	FirstName       string         `json:"first_name" db:"first_name"`
	LastName        string         `json:"last_name" db:"last_name"`
	Status          MemberStatus   `json:"status" db:"status"`
	Topics          []string       `json:"topics" db:"topics"`
	Defaults        map[string]any `json:"defaults" db:"defaults"`
	LastActivityAt  *time.Time     `json:"last_activity_at" db:"last_activity_at"`
	LastContactedAt *time.Time     `json:"last_contacted_at" db:"last_contacted_at"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
}

// Mailable reports whether the member may receive campaign mail.
func (m *Member) Mailable() bool {
	return m.Status == MemberActive && m.Email != ""
}
