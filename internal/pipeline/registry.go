package pipeline

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ignite/mailflow/internal/domain"
)

// ErrConfiguration marks a registry misconfiguration. It is fatal at
// startup; it never surfaces at runtime.
var ErrConfiguration = errors.New("pipeline configuration error")

// Definition is the static catalog entry for one named pipeline.
type Definition struct {
	Name           string              `json:"name"`
	DisplayName    string              `json:"display_name"`
	Description    string              `json:"description"`
	TemplateType   domain.TemplateType `json:"template_type"`
	ReviewRequired bool                `json:"review_required"`
	TemplateCode   string              `json:"template_code,omitempty"`
	Build          func(Deps) Pipeline `json:"-"`
}

// Registry is the read-only catalog mapping pipeline name to its
// definition and constructed instance. Adding pipelines is a deploy-time
// change to the catalog, not a runtime registration API.
type Registry struct {
	defs      map[string]Definition
	instances map[string]Pipeline
}

// NewRegistry constructs every cataloged pipeline with the given
// dependencies and validates the result. A definition that does not
// satisfy its declared capability set is a startup-time fatal error.
func NewRegistry(deps Deps, defs []Definition) (*Registry, error) {
	r := &Registry{
		defs:      make(map[string]Definition, len(defs)),
		instances: make(map[string]Pipeline, len(defs)),
	}
	for _, def := range defs {
		if def.Name == "" || def.Build == nil {
			return nil, fmt.Errorf("%w: definition missing name or constructor", ErrConfiguration)
		}
		if _, dup := r.defs[def.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate pipeline %q", ErrConfiguration, def.Name)
		}
		p := def.Build(deps)
		if p == nil {
			return nil, fmt.Errorf("%w: constructor for %q returned nil", ErrConfiguration, def.Name)
		}
		if p.Name() != def.Name {
			return nil, fmt.Errorf("%w: pipeline %q reports name %q", ErrConfiguration, def.Name, p.Name())
		}
		switch def.TemplateType {
		case domain.TemplatePredefined:
			if def.TemplateCode == "" {
				return nil, fmt.Errorf("%w: predefined pipeline %q has no template code", ErrConfiguration, def.Name)
			}
		case domain.TemplateAIGenerated:
			if _, ok := p.(ContentPipeline); !ok {
				return nil, fmt.Errorf("%w: pipeline %q declares ai_generated but does not implement content generation", ErrConfiguration, def.Name)
			}
			if !def.ReviewRequired {
				return nil, fmt.Errorf("%w: ai_generated pipeline %q must require review", ErrConfiguration, def.Name)
			}
		default:
			return nil, fmt.Errorf("%w: pipeline %q has unknown template type %q", ErrConfiguration, def.Name, def.TemplateType)
		}
		r.defs[def.Name] = def
		r.instances[def.Name] = p
	}
	return r, nil
}

// Lookup returns the pipeline instance for name.
func (r *Registry) Lookup(name string) (Pipeline, bool) {
	p, ok := r.instances[name]
	return p, ok
}

// Definition returns the catalog entry for name.
func (r *Registry) Definition(name string) (Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Exists reports whether name is a registered pipeline.
func (r *Registry) Exists(name string) bool {
	_, ok := r.defs[name]
	return ok
}

// List returns all definitions sorted by name.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
