package pipeline

import "github.com/ignite/mailflow/internal/domain"

// Catalog is the deploy-time list of every pipeline this service runs.
// NewRegistry validates each entry at startup.
func Catalog() []Definition {
	return []Definition{
		{
			Name:         "WELCOME_NEW_MEMBER",
			DisplayName:  "Welcome New Members",
			Description:  "Greets members who joined in the last two weeks and were not welcomed yet.",
			TemplateType: domain.TemplatePredefined,
			TemplateCode: WelcomeTemplateCode,
			Build:        NewWelcomePipeline,
		},
		{
			Name:           "DAILY_MOTIVATION",
			DisplayName:    "Daily Motivation",
			Description:    "Personalized motivational email for members active in the last month.",
			TemplateType:   domain.TemplateAIGenerated,
			ReviewRequired: true,
			Build:          NewDailyMotivationPipeline,
		},
		{
			Name:           "TOPIC_NEW_ARRIVALS",
			DisplayName:    "New Arrivals by Topic",
			Description:    "Weekly new-arrivals announcement matched to the member's followed topics.",
			TemplateType:   domain.TemplateAIGenerated,
			ReviewRequired: true,
			Build:          NewTopicArrivalsPipeline,
		},
		{
			Name:         "REACTIVATION_DORMANT",
			DisplayName:  "Reactivate Dormant Members",
			Description:  "Monthly win-back email for members inactive for ninety days or more.",
			TemplateType: domain.TemplatePredefined,
			TemplateCode: ReactivationTemplateCode,
			Build:        NewReactivationPipeline,
		},
	}
}
