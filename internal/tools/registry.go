// Package tools holds the static tool registry.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/finagent/orchestrator/internal/domain"
)

// Registry is a read-only mapping from tool name to definition, built once
// at process start. It is safe for concurrent use without locking.
type Registry struct {
	byName map[string]domain.ToolDefinition
	order  []string
}

// Filter narrows List results.
type Filter struct {
	Category string
	Tags     []string
}

// NewRegistry builds a registry from a catalog. Duplicate names are an
// error so a bad catalog fails at startup, not at call time.
func NewRegistry(catalog []domain.ToolDefinition) (*Registry, error) {
	r := &Registry{byName: make(map[string]domain.ToolDefinition, len(catalog))}
	for _, def := range catalog {
		if def.Name == "" {
			return nil, fmt.Errorf("tool definition with empty name")
		}
		if _, exists := r.byName[def.Name]; exists {
			return nil, fmt.Errorf("duplicate tool definition %q", def.Name)
		}
		if !def.RiskTier.Valid() {
			return nil, fmt.Errorf("tool %q has unknown risk tier %q", def.Name, def.RiskTier)
		}
		r.byName[def.Name] = def
		r.order = append(r.order, def.Name)
	}
	return r, nil
}

// Get looks up a tool by name. An absent name is a normal outcome, not an
// error; callers decide whether to skip, warn, or fail.
func (r *Registry) Get(name string) (domain.ToolDefinition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// List returns tools matching the filter, in catalog order.
func (r *Registry) List(f Filter) []domain.ToolDefinition {
	var out []domain.ToolDefinition
	for _, name := range r.order {
		def := r.byName[name]
		if f.Category != "" && def.Category != f.Category {
			continue
		}
		if !hasAllTags(def.Tags, f.Tags) {
			continue
		}
		out = append(out, def)
	}
	return out
}

func hasAllTags(have, want []string) bool {
	for _, w := range want {
		found := false
		for _, h := range have {
			if h == w {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// ValidateArguments checks args against the tool's parameter schema. Only
// presence checks are performed: args must be a JSON object and every name
// in the schema's "required" list must appear. Returns nil when valid, else
// one message per problem.
func (r *Registry) ValidateArguments(name string, args json.RawMessage) []string {
	def, ok := r.byName[name]
	if !ok {
		return []string{fmt.Sprintf("unknown tool %q", name)}
	}

	var argMap map[string]json.RawMessage
	if len(args) == 0 {
		argMap = map[string]json.RawMessage{}
	} else if err := json.Unmarshal(args, &argMap); err != nil {
		return []string{fmt.Sprintf("arguments for %q are not a JSON object", name)}
	}

	if len(def.Parameters) == 0 {
		return nil
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(def.Parameters, &schema); err != nil {
		// The schema is opaque beyond the required list; an unreadable
		// schema validates nothing.
		return nil
	}

	var errs []string
	for _, field := range schema.Required {
		if _, ok := argMap[field]; !ok {
			errs = append(errs, fmt.Sprintf("missing required argument %q", field))
		}
	}
	return errs
}
