package domain

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TemplateType distinguishes fixed pre-approved content from content
// produced per recipient by the generation scheduler.
type TemplateType string

const (
	TemplatePredefined  TemplateType = "predefined"
	TemplateAIGenerated TemplateType = "ai_generated"
)

// TemplateStatus enumerates the review lifecycle of a template.
type TemplateStatus string

const (
	TemplateApproved      TemplateStatus = "approved"
	TemplateWaitingReview TemplateStatus = "waiting_review"
	TemplateInactive      TemplateStatus = "inactive"
)

// Template is reusable or AI-generated email content. Subject and bodies
// may contain liquid placeholders ({{ first_name }}).
type Template struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	Code         string         `json:"code" db:"code"`
	Name         string         `json:"name" db:"name"`
	Subject      string         `json:"subject" db:"subject"`
	HTMLBody     string         `json:"html_body" db:"html_body"`
	TextBody     string         `json:"text_body" db:"text_body"`
	Type         TemplateType   `json:"type" db:"type"`
	Status       TemplateStatus `json:"status" db:"status"`
	Placeholders []string       `json:"placeholders" db:"placeholders"`
	Prompt       string         `json:"prompt" db:"prompt"`
	Category     string         `json:"category" db:"category"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Sendable reports whether the template may be used for dispatch.
func (t *Template) Sendable() bool {
	return t.Status == TemplateApproved && strings.TrimSpace(t.HTMLBody) != ""
}

// placeholderRe matches {{ name }} and {{ name | filter }} occurrences.
var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_.]*)\s*(?:\|[^}]*)?\}\}`)

// ExtractPlaceholders returns the sorted set of placeholder names present
// in the subject, HTML, and text bodies.
func (t *Template) ExtractPlaceholders() []string {
	seen := make(map[string]bool)
	for _, body := range []string{t.Subject, t.HTMLBody, t.TextBody} {
		for _, m := range placeholderRe.FindAllStringSubmatch(body, -1) {
			seen[m[1]] = true
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// ValidatePlaceholders cross-checks the declared placeholder set against
// the placeholders actually present in the bodies. Mismatches in either
// direction are reported; callers decide whether to treat them as fatal.
func (t *Template) ValidatePlaceholders() []string {
	present := make(map[string]bool)
	for _, name := range t.ExtractPlaceholders() {
		present[name] = true
	}
	declared := make(map[string]bool)
	for _, name := range t.Placeholders {
		declared[name] = true
	}

	var problems []string
	for _, name := range t.Placeholders {
		if !present[name] {
			problems = append(problems, fmt.Sprintf("declared placeholder %q not used in any body", name))
		}
	}
	for name := range present {
		if !declared[name] {
			problems = append(problems, fmt.Sprintf("placeholder %q used in body but not declared", name))
		}
	}
	sort.Strings(problems)
	return problems
}
