package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/martinemde/vox/unifiedllm"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// ToolHandler executes a tool against raw JSON arguments from the model.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (string, error)

// ToolDefinition describes a tool for the model. Parameters keeps the
// declared property order of the argument struct it was reflected from.
type ToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters"`
}

// LLMDefinition converts the definition to the shape the model client sends.
func (d ToolDefinition) LLMDefinition() unifiedllm.ToolDefinition {
	def := unifiedllm.ToolDefinition{Name: d.Name, Description: d.Description}
	if d.Parameters != nil {
		if raw, err := json.Marshal(d.Parameters); err == nil {
			def.Parameters = raw
		}
	}
	return def
}

// RegisteredTool pairs a tool definition with its handler.
type RegisteredTool struct {
	Definition ToolDefinition
	Handler    ToolHandler
}

// ToolRegistry holds the tools a session may call, in registration order.
type ToolRegistry struct {
	tools *orderedmap.OrderedMap[string, *RegisteredTool]
	mu    sync.RWMutex
}

// NewToolRegistry creates an empty ToolRegistry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools: orderedmap.New[string, *RegisteredTool](),
	}
}

// Register adds a tool. Names are unique within a registry.
func (r *ToolRegistry) Register(tool RegisteredTool) error {
	if tool.Definition.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidTool)
	}
	if tool.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidTool, tool.Definition.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools.Get(tool.Definition.Name); exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, tool.Definition.Name)
	}
	r.tools.Set(tool.Definition.Name, &tool)
	return nil
}

// Get returns a registered tool by name, or nil if not found.
func (r *ToolRegistry) Get(name string) *RegisteredTool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, _ := r.tools.Get(name)
	return tool
}

// Definitions returns all tool definitions in registration order.
func (r *ToolRegistry) Definitions() []ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ToolDefinition, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		defs = append(defs, pair.Value.Definition)
	}
	return defs
}

// LLMDefinitions returns Definitions converted for a model request.
func (r *ToolRegistry) LLMDefinitions() []unifiedllm.ToolDefinition {
	defs := r.Definitions()
	out := make([]unifiedllm.ToolDefinition, len(defs))
	for i, d := range defs {
		out[i] = d.LLMDefinition()
	}
	return out
}

// Names returns the names of all registered tools in registration order.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, r.tools.Len())
	for pair := r.tools.Oldest(); pair != nil; pair = pair.Next() {
		names = append(names, pair.Key)
	}
	return names
}

// Count returns the number of registered tools.
func (r *ToolRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools.Len()
}

// Invoke runs the named tool with the model's raw arguments.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, arguments json.RawMessage) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return tool.Handler(ctx, arguments)
}
