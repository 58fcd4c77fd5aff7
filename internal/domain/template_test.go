package domain

import (
	"reflect"
	"testing"
)

func TestExtractPlaceholders(t *testing.T) {
	tmpl := &Template{
		Subject:  "Welcome, {{ first_name }}!",
		HTMLBody: `<p>Hi {{ first_name | default: "Friend" }}, check out {{ topic }}.</p>`,
		TextBody: "Hi {{first_name}}, your code is {{ promo_code }}.",
	}
	got := tmpl.ExtractPlaceholders()
	want := []string{"first_name", "promo_code", "topic"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ExtractPlaceholders() = %v, want %v", got, want)
	}
}

func TestValidatePlaceholders(t *testing.T) {
	tmpl := &Template{
		Subject:      "Hello {{ first_name }}",
		HTMLBody:     "<p>{{ first_name }} likes {{ topic }}</p>",
		Placeholders: []string{"first_name", "promo_code"},
	}
	problems := tmpl.ValidatePlaceholders()
	if len(problems) != 2 {
		t.Fatalf("problems = %v, want 2 entries", problems)
	}

	tmpl.Placeholders = []string{"first_name", "topic"}
	if problems := tmpl.ValidatePlaceholders(); len(problems) != 0 {
		t.Errorf("consistent template reported problems: %v", problems)
	}
}

func TestSendable(t *testing.T) {
	tmpl := &Template{Status: TemplateApproved, HTMLBody: "<p>hi</p>"}
	if !tmpl.Sendable() {
		t.Error("approved template with body should be sendable")
	}

	tmpl.Status = TemplateWaitingReview
	if tmpl.Sendable() {
		t.Error("waiting_review template should not be sendable")
	}

	tmpl.Status = TemplateInactive
	if tmpl.Sendable() {
		t.Error("inactive template should not be sendable")
	}

	tmpl = &Template{Status: TemplateApproved, HTMLBody: "   "}
	if tmpl.Sendable() {
		t.Error("approved template with blank body should not be sendable")
	}
}
