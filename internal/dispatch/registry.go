package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/ghgate/ghgate/internal/safe"
)

// Handler executes one tool against the shared runtime and returns the
// tool-specific envelope fields.
type Handler func(ctx context.Context, rt *Runtime, args map[string]any) (map[string]any, error)

// ToolSpec declares a tool: its argument shape and which policy checks apply
// to it beyond the operation allowlist.
type ToolSpec struct {
	Name        string
	Description string

	// Schema is the JSON schema for the argument object. Registration
	// compiles it; dispatch validates every call against it.
	Schema map[string]any

	Handler Handler

	// RequiresRepo marks tools taking owner/repo arguments; the repository
	// allowlist applies.
	RequiresRepo bool

	// Project marks tools taking owner/project_number arguments; the
	// project allowlist applies.
	Project bool

	// BranchParam names the argument holding a branch this tool writes to;
	// protected-branch denial applies when set.
	BranchParam string
}

// Registry is the fixed operation → handler table built at startup.
type Registry struct {
	order   []string
	specs   map[string]*ToolSpec
	schemas map[string]*gojsonschema.Schema
}

func NewRegistry() *Registry {
	return &Registry{
		specs:   make(map[string]*ToolSpec),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register compiles the tool's schema and adds it to the table. Duplicate
// names and invalid schemas are programming errors surfaced at startup.
func (r *Registry) Register(spec ToolSpec) error {
	if spec.Name == "" || spec.Handler == nil {
		return fmt.Errorf("tool spec needs a name and a handler")
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tool %q registered twice", spec.Name)
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(spec.Schema))
	if err != nil {
		return fmt.Errorf("compile schema for %q: %w", spec.Name, err)
	}
	s := spec
	r.order = append(r.order, spec.Name)
	r.specs[spec.Name] = &s
	r.schemas[spec.Name] = schema
	return nil
}

func (r *Registry) Lookup(name string) (*ToolSpec, bool) {
	spec, ok := r.specs[name]
	return spec, ok
}

// Names returns the registered tool names in registration order. This is the
// compiled-in operation allowlist handed to the policy engine.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Specs returns the tool specs in registration order, for protocol adapters
// that advertise the tool list.
func (r *Registry) Specs() []*ToolSpec {
	out := make([]*ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.specs[name])
	}
	return out
}

// Validate checks args against the tool's declared shape. Unknown fields,
// missing required fields, and wrong types all reject the call.
func (r *Registry) Validate(name string, args map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return safe.UserInput("unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return safe.UserInput("arguments are not a valid JSON object")
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return safe.UserInput("invalid arguments for %s: %s", name, strings.Join(msgs, "; "))
}
