// Package tools holds the declarative tool catalog, the handler
// registry, and the execution pipeline that joins them under
// permission, validation, and timeout control.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/halcyon-ai/halcyon/internal/auth"
	"github.com/halcyon-ai/halcyon/internal/schema"
	"github.com/halcyon-ai/halcyon/pkg/models"
)

// Registry manages tool definitions with thread-safe registration and
// lookup. It holds declarative metadata only; executable handlers live
// in a HandlerRegistry keyed by the same names.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]models.ToolDefinition

	// compiled schemas by tool name, built at registration
	inputSchemas  map[string]*schema.Schema
	outputSchemas map[string]*schema.Schema
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:         make(map[string]models.ToolDefinition),
		inputSchemas:  make(map[string]*schema.Schema),
		outputSchemas: make(map[string]*schema.Schema),
	}
}

// Register adds a tool definition. Registering a name twice is an
// error and leaves the first definition in place. The input schema is
// compiled eagerly so malformed definitions fail here, not at call time.
func (r *Registry) Register(def models.ToolDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if len(def.InputSchema) == 0 {
		return fmt.Errorf("tool %q: input schema is required", def.Name)
	}

	input, err := schema.Compile(def.Name+"_input", def.InputSchema)
	if err != nil {
		return err
	}
	var output *schema.Schema
	if len(def.OutputSchema) > 0 {
		output, err = schema.Compile(def.Name+"_output", def.OutputSchema)
		if err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[def.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, def.Name)
	}
	r.tools[def.Name] = def
	r.inputSchemas[def.Name] = input
	if output != nil {
		r.outputSchemas[def.Name] = output
	}
	return nil
}

// Get returns a definition by name.
func (r *Registry) Get(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.tools[name]
	return def, ok
}

// Has reports whether a tool name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// List returns all definitions, filtered by category when category is
// non-empty.
func (r *Registry) List(category string) []models.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		if category != "" && def.Category != category {
			continue
		}
		out = append(out, def)
	}
	return out
}

// ListForUser returns the definitions whose entire required-permission
// set is covered by the caller's permissions, optionally filtered by
// category.
func (r *Registry) ListForUser(permissions []string, category string) []models.ToolDefinition {
	set := auth.NewPermissionSet(permissions)

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.ToolDefinition, 0, len(r.tools))
	for _, def := range r.tools {
		if category != "" && def.Category != category {
			continue
		}
		if !set.HasAll(def.RequiredPermissions) {
			continue
		}
		out = append(out, def)
	}
	return out
}

// FunctionSchema is the provider-agnostic function-call projection of a
// tool definition.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ExportFunctionSchemas projects definitions into the shape providers
// expect for function calling. Names restricts the export; an empty
// list exports everything.
func (r *Registry) ExportFunctionSchemas(names []string) []FunctionSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pick := func(def models.ToolDefinition) FunctionSchema {
		return FunctionSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.InputSchema,
		}
	}

	if len(names) == 0 {
		out := make([]FunctionSchema, 0, len(r.tools))
		for _, def := range r.tools {
			out = append(out, pick(def))
		}
		return out
	}

	out := make([]FunctionSchema, 0, len(names))
	for _, name := range names {
		if def, ok := r.tools[name]; ok {
			out = append(out, pick(def))
		}
	}
	return out
}

// Export returns a snapshot of every registered definition.
func (r *Registry) Export() []models.ToolDefinition {
	return r.List("")
}

// Import registers a snapshot of definitions, stopping at the first
// failure. Useful for restoring an exported registry wholesale.
func (r *Registry) Import(defs []models.ToolDefinition) error {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

func (r *Registry) schemas(name string) (input, output *schema.Schema) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.inputSchemas[name], r.outputSchemas[name]
}
