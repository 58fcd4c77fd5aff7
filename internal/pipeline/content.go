package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
	"github.com/ignite/mailflow/internal/generation"
)

// generateTemplate is the shared GenerateContent body for ai-generated
// pipelines: call the generator for one member, persist the result as a
// waiting_review template, and return its id. Generator and insert
// failures keep their transient/permanent marking for the scheduler's
// retry rule.
func generateTemplate(ctx context.Context, deps Deps, pipelineName, category, prompt string, memberID uuid.UUID, contextData map[string]any) (uuid.UUID, error) {
	if deps.Generator == nil {
		return uuid.Nil, fmt.Errorf("%w: pipeline %s has no content generator", ErrConfiguration, pipelineName)
	}

	m, err := deps.Members.GetByID(ctx, memberID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("loading member %s: %w", memberID, err)
	}

	content, err := deps.Generator.Generate(ctx, generation.Input{
		Pipeline:  pipelineName,
		Prompt:    prompt,
		FirstName: m.FirstName,
		Topics:    m.Topics,
		Context:   contextData,
	})
	if err != nil {
		return uuid.Nil, err
	}

	now := time.Now().UTC()
	tmpl := &domain.Template{
		ID:        uuid.New(),
		Name:      fmt.Sprintf("%s for %s", pipelineName, m.FirstName),
		Subject:   content.Subject,
		HTMLBody:  content.HTML,
		TextBody:  content.Text,
		Type:      domain.TemplateAIGenerated,
		Status:    domain.TemplateWaitingReview,
		Prompt:    prompt,
		Category:  category,
		CreatedAt: now,
		UpdatedAt: now,
	}
	tmpl.Code = fmt.Sprintf("%s_%s", strings.ToLower(pipelineName), tmpl.ID.String()[:8])
	// Declared set mirrors what the model actually emitted.
	tmpl.Placeholders = tmpl.ExtractPlaceholders()

	if err := deps.Templates.Insert(ctx, tmpl); err != nil {
		return uuid.Nil, domain.Transient("storing generated template", err)
	}
	return tmpl.ID, nil
}
