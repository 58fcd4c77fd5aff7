package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

// SeedPredefinedTemplates installs the fixed, pre-approved templates the
// predefined pipelines send with. Upsert by code, so re-running at every
// startup is safe.
func SeedPredefinedTemplates(ctx context.Context, templates TemplateRepository) error {
	now := time.Now().UTC()
	seed := []*domain.Template{
		{
			ID:      uuid.New(),
			Code:    WelcomeTemplateCode,
			Name:    "Welcome New Member",
			Subject: "Welcome aboard, {{ first_name | default: \"friend\" }}!",
			HTMLBody: `<html><body>
<p>Hi {{ first_name | default: "there" }},</p>
<p>Welcome to the club. Your membership is active and your first picks are waiting.</p>
<p><a href="https://app.example.com/start">Get started</a></p>
</body></html>`,
			TextBody:     "Hi {{ first_name | default: \"there\" }},\n\nWelcome to the club. Your membership is active.\n",
			Type:         domain.TemplatePredefined,
			Status:       domain.TemplateApproved,
			Placeholders: []string{"first_name"},
			Category:     "onboarding",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
		{
			ID:      uuid.New(),
			Code:    ReactivationTemplateCode,
			Name:    "Reactivate Dormant Member",
			Subject: "{{ first_name | default: \"Hey\" }}, we saved your spot",
			HTMLBody: `<html><body>
<p>Hi {{ first_name | default: "there" }},</p>
<p>It has been a while. Here is what you missed, picked for you.</p>
<p><a href="https://app.example.com/comeback">See what's new</a></p>
</body></html>`,
			TextBody:     "Hi {{ first_name | default: \"there\" }},\n\nIt has been a while. Come see what's new.\n",
			Type:         domain.TemplatePredefined,
			Status:       domain.TemplateApproved,
			Placeholders: []string{"first_name"},
			Category:     "winback",
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	for _, tmpl := range seed {
		if problems := tmpl.ValidatePlaceholders(); len(problems) > 0 {
			return fmt.Errorf("%w: template %s: %v", ErrConfiguration, tmpl.Code, problems)
		}
		if err := templates.UpsertByCode(ctx, tmpl); err != nil {
			return fmt.Errorf("seeding template %s: %w", tmpl.Code, err)
		}
	}
	return nil
}
