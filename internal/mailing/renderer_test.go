package mailing

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/mailflow/internal/domain"
)

func sendableTemplate(subject, htmlBody, textBody string) *domain.Template {
	now := time.Now().UTC()
	return &domain.Template{
		ID:        uuid.New(),
		Code:      "test_template",
		Subject:   subject,
		HTMLBody:  htmlBody,
		TextBody:  textBody,
		Type:      domain.TemplatePredefined,
		Status:    domain.TemplateApproved,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestRenderTemplate(t *testing.T) {
	r := NewRenderer()
	tmpl := sendableTemplate(
		"Hi {{ first_name }}",
		"<p>Your code is {{ promo_code }}</p>",
		"Your code is {{ promo_code }}",
	)

	got, err := r.RenderTemplate(tmpl, map[string]any{
		"first_name": "Jordan",
		"promo_code": "SPRING25",
	})
	if err != nil {
		t.Fatalf("RenderTemplate() error: %v", err)
	}
	if got.Subject != "Hi Jordan" {
		t.Errorf("subject = %q", got.Subject)
	}
	if got.HTML != "<p>Your code is SPRING25</p>" {
		t.Errorf("html = %q", got.HTML)
	}
	if got.Text != "Your code is SPRING25" {
		t.Errorf("text = %q", got.Text)
	}
}

func TestRenderTemplate_MissingVariableRendersEmpty(t *testing.T) {
	r := NewRenderer()
	tmpl := sendableTemplate("Hi {{ first_name }}", "<p>Hi {{ first_name }}</p>", "")

	got, err := r.RenderTemplate(tmpl, map[string]any{})
	if err != nil {
		t.Fatalf("RenderTemplate() error: %v", err)
	}
	if got.Subject != "Hi " {
		t.Errorf("subject = %q, missing variables should render empty", got.Subject)
	}
	if got.Text != "" {
		t.Errorf("text = %q, want empty when template has no text body", got.Text)
	}
}

func TestRenderTemplate_NotSendable(t *testing.T) {
	r := NewRenderer()

	tmpl := sendableTemplate("Hi", "<p>Hi</p>", "")
	tmpl.Status = domain.TemplateWaitingReview
	if _, err := r.RenderTemplate(tmpl, nil); err == nil {
		t.Error("waiting_review template should not render")
	}

	tmpl = sendableTemplate("Hi", "", "")
	if _, err := r.RenderTemplate(tmpl, nil); err == nil {
		t.Error("template with empty html body should not render")
	}
}

func TestRenderTemplate_InvalidSyntax(t *testing.T) {
	r := NewRenderer()
	tmpl := sendableTemplate("Hi {{ first_name", "<p>Hi</p>", "")

	_, err := r.RenderTemplate(tmpl, map[string]any{"first_name": "Sam"})
	if err == nil {
		t.Fatal("unterminated tag should fail")
	}
	if !strings.Contains(err.Error(), tmpl.Code) {
		t.Errorf("error %q should name the template", err)
	}
}

func TestFilters(t *testing.T) {
	r := NewRenderer()

	cases := []struct {
		name string
		src  string
		vars map[string]any
		want string
	}{
		{"default fallback", `Hi {{ first_name | default: "Friend" }}`, map[string]any{}, "Hi Friend"},
		{"default kept", `Hi {{ first_name | default: "Friend" }}`, map[string]any{"first_name": "Kai"}, "Hi Kai"},
		{"default empty string", `Hi {{ first_name | default: "Friend" }}`, map[string]any{"first_name": ""}, "Hi Friend"},
		{"capitalize", `{{ name | capitalize }}`, map[string]any{"name": "dENISE"}, "Denise"},
		{"escape", `{{ note | escape }}`, map[string]any{"note": "<b>hi</b>"}, "&lt;b&gt;hi&lt;/b&gt;"},
		{"urlencode", `{{ email | urlencode }}`, map[string]any{"email": "a+b@example.com"}, "a%2Bb%40example.com"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tmpl := sendableTemplate(tc.src, "<p>x</p>", "")
			got, err := r.RenderTemplate(tmpl, tc.vars)
			if err != nil {
				t.Fatalf("render error: %v", err)
			}
			if got.Subject != tc.want {
				t.Errorf("got %q, want %q", got.Subject, tc.want)
			}
		})
	}
}

func TestRenderTemplate_CacheInvalidatesOnUpdate(t *testing.T) {
	r := NewRenderer()
	tmpl := sendableTemplate("v1 {{ first_name }}", "<p>x</p>", "")
	vars := map[string]any{"first_name": "Lee"}

	first, err := r.RenderTemplate(tmpl, vars)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if first.Subject != "v1 Lee" {
		t.Fatalf("subject = %q", first.Subject)
	}

	// Same id, new revision: the cache key includes UpdatedAt so the
	// edited subject must take effect.
	tmpl.Subject = "v2 {{ first_name }}"
	tmpl.UpdatedAt = tmpl.UpdatedAt.Add(time.Minute)

	second, err := r.RenderTemplate(tmpl, vars)
	if err != nil {
		t.Fatalf("render error: %v", err)
	}
	if second.Subject != "v2 Lee" {
		t.Errorf("subject = %q, stale cached template served", second.Subject)
	}
}

func TestMergeVariables(t *testing.T) {
	defaults := map[string]any{"first_name": "Sam", "city": "Austin"}
	overrides := map[string]any{"first_name": "Alex"}

	merged := MergeVariables(defaults, overrides)

	if merged["first_name"] != "Alex" {
		t.Errorf("first_name = %v, item variables must win", merged["first_name"])
	}
	if merged["city"] != "Austin" {
		t.Errorf("city = %v, defaults must survive", merged["city"])
	}
	if len(defaults) != 2 || defaults["first_name"] != "Sam" {
		t.Error("inputs must not be mutated")
	}
}
