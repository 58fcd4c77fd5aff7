// Package mailing renders templates with the Liquid template language and
// delivers finished messages through the outbound send capability.
package mailing

import (
	"fmt"
	"html"
	"net/url"
	"strings"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/mailflow/internal/domain"
)

// Renderer renders template bodies against per-recipient variables, with
// compiled-template caching keyed by template id + revision time.
type Renderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewRenderer creates a renderer with the custom filters registered.
func NewRenderer() *Renderer {
	r := &Renderer{engine: liquid.NewEngine()}
	r.registerFilters()
	return r
}

func (r *Renderer) registerFilters() {
	// Fallback value: {{ first_name | default: "Friend" }}
	r.engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	// Capitalize first letter: {{ name | capitalize }}
	r.engine.RegisterFilter("capitalize", func(s string) string {
		if len(s) == 0 {
			return s
		}
		return strings.ToUpper(string(s[0])) + strings.ToLower(s[1:])
	})

	// HTML escape: {{ user_input | escape }}
	r.engine.RegisterFilter("escape", func(s string) string {
		return html.EscapeString(s)
	})

	// URL encode: {{ email | urlencode }}
	r.engine.RegisterFilter("urlencode", func(s string) string {
		return url.QueryEscape(s)
	})
}

// RenderedEmail is a template fully resolved for one recipient.
type RenderedEmail struct {
	Subject string
	HTML    string
	Text    string
}

// RenderTemplate renders subject, HTML, and text bodies of a template
// against the given variables. The template must be sendable.
func (r *Renderer) RenderTemplate(tmpl *domain.Template, vars map[string]any) (*RenderedEmail, error) {
	if !tmpl.Sendable() {
		return nil, fmt.Errorf("template %s is not sendable (status %s)", tmpl.Code, tmpl.Status)
	}

	subject, err := r.render(tmpl.ID.String()+":subject:"+tmpl.UpdatedAt.String(), tmpl.Subject, vars)
	if err != nil {
		return nil, fmt.Errorf("rendering subject of %s: %w", tmpl.Code, err)
	}
	htmlBody, err := r.render(tmpl.ID.String()+":html:"+tmpl.UpdatedAt.String(), tmpl.HTMLBody, vars)
	if err != nil {
		return nil, fmt.Errorf("rendering html body of %s: %w", tmpl.Code, err)
	}
	textBody := ""
	if tmpl.TextBody != "" {
		textBody, err = r.render(tmpl.ID.String()+":text:"+tmpl.UpdatedAt.String(), tmpl.TextBody, vars)
		if err != nil {
			return nil, fmt.Errorf("rendering text body of %s: %w", tmpl.Code, err)
		}
	}

	return &RenderedEmail{Subject: subject, HTML: htmlBody, Text: textBody}, nil
}

func (r *Renderer) render(cacheKey, templateStr string, vars map[string]any) (string, error) {
	if cached, ok := r.cache.Load(cacheKey); ok {
		return cached.(*liquid.Template).RenderString(vars)
	}
	tpl, err := r.engine.ParseString(templateStr)
	if err != nil {
		return "", err
	}
	r.cache.Store(cacheKey, tpl)
	return tpl.RenderString(vars)
}

// MergeVariables overlays item variables on recipient defaults; item
// values win on conflict.
func MergeVariables(defaults, overrides map[string]any) map[string]any {
	merged := make(map[string]any, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
