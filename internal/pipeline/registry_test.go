package pipeline

import (
	"errors"
	"testing"

	"github.com/ignite/mailflow/internal/domain"
)

func validDeps() Deps {
	return Deps{
		Members:       &fakeMembers{},
		Queue:         &fakeQueue{},
		Templates:     &fakeTemplates{byCode: map[string]*domain.Template{}},
		Generator:     &fakeGenerator{},
		MaxRecipients: 100,
	}
}

func TestNewRegistry_FullCatalog(t *testing.T) {
	r, err := NewRegistry(validDeps(), Catalog())
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}

	defs := r.List()
	if len(defs) != 4 {
		t.Fatalf("List() = %d definitions, want 4", len(defs))
	}
	for i := 1; i < len(defs); i++ {
		if defs[i-1].Name >= defs[i].Name {
			t.Fatal("List() not sorted by name")
		}
	}

	for _, def := range defs {
		p, ok := r.Lookup(def.Name)
		if !ok {
			t.Fatalf("Lookup(%q) missing", def.Name)
		}
		if p.Name() != def.Name {
			t.Errorf("instance name = %q, want %q", p.Name(), def.Name)
		}
		if def.TemplateType == domain.TemplateAIGenerated {
			if _, ok := p.(ContentPipeline); !ok {
				t.Errorf("%q should implement content generation", def.Name)
			}
		}
	}

	if r.Exists("NOPE") {
		t.Error("Exists(NOPE) should be false")
	}
}

func TestNewRegistry_RejectsDuplicates(t *testing.T) {
	defs := []Definition{
		{Name: "WELCOME_NEW_MEMBER", TemplateType: domain.TemplatePredefined, TemplateCode: "X", Build: NewWelcomePipeline},
		{Name: "WELCOME_NEW_MEMBER", TemplateType: domain.TemplatePredefined, TemplateCode: "X", Build: NewWelcomePipeline},
	}
	if _, err := NewRegistry(validDeps(), defs); !errors.Is(err, ErrConfiguration) {
		t.Errorf("duplicate definitions = %v, want ErrConfiguration", err)
	}
}

func TestNewRegistry_RejectsPredefinedWithoutTemplateCode(t *testing.T) {
	defs := []Definition{
		{Name: "WELCOME_NEW_MEMBER", TemplateType: domain.TemplatePredefined, Build: NewWelcomePipeline},
	}
	if _, err := NewRegistry(validDeps(), defs); !errors.Is(err, ErrConfiguration) {
		t.Errorf("predefined without template code = %v, want ErrConfiguration", err)
	}
}

func TestNewRegistry_RejectsAIGeneratedWithoutContentCapability(t *testing.T) {
	// Welcome pipeline has no GenerateContent; declaring it ai_generated
	// must fail validation.
	defs := []Definition{
		{Name: "WELCOME_NEW_MEMBER", TemplateType: domain.TemplateAIGenerated, ReviewRequired: true, Build: NewWelcomePipeline},
	}
	if _, err := NewRegistry(validDeps(), defs); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ai_generated without capability = %v, want ErrConfiguration", err)
	}
}

func TestNewRegistry_RejectsAIGeneratedWithoutReview(t *testing.T) {
	defs := []Definition{
		{Name: "DAILY_MOTIVATION", TemplateType: domain.TemplateAIGenerated, Build: NewDailyMotivationPipeline},
	}
	if _, err := NewRegistry(validDeps(), defs); !errors.Is(err, ErrConfiguration) {
		t.Errorf("ai_generated without review = %v, want ErrConfiguration", err)
	}
}

func TestNewRegistry_RejectsNameMismatch(t *testing.T) {
	defs := []Definition{
		{Name: "SOMETHING_ELSE", TemplateType: domain.TemplatePredefined, TemplateCode: "X", Build: NewWelcomePipeline},
	}
	if _, err := NewRegistry(validDeps(), defs); !errors.Is(err, ErrConfiguration) {
		t.Errorf("name mismatch = %v, want ErrConfiguration", err)
	}
}
