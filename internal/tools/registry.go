// Package tools implements the gateway's pluggable tool registry and the
// bundled web_search tool.
package tools

import (
	"fmt"
	"sync"

	"github.com/apellegr/llm-gateway/internal/envelope"
)

// ExecuteFunc runs a tool against its parsed arguments and returns the
// textual result to insert as a role=tool turn.
type ExecuteFunc func(args map[string]interface{}) (string, error)

// Tool is a callable tool with its schema and handler.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Execute     ExecuteFunc
}

// Registry manages the set of registered tools. Handlers are pluggable by
// registration, per spec.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

var (
	global     *Registry
	globalOnce sync.Once
)

// Default returns the process-wide tool registry, registering the built-in
// web_search tool on first use.
func Default() *Registry {
	globalOnce.Do(func() {
		global = &Registry{tools: make(map[string]*Tool)}
		global.Register(NewWebSearchTool())
	})
	return global
}

// Register adds a tool, rejecting empty names, missing handlers, and
// duplicates.
func (r *Registry) Register(tool *Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tool.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if tool.Execute == nil {
		return fmt.Errorf("tool %s must have an Execute function", tool.Name)
	}
	if _, exists := r.tools[tool.Name]; exists {
		return fmt.Errorf("tool %s is already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	return nil
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (*Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Execute runs a registered tool's handler by name.
func (r *Registry) Execute(name string, args map[string]interface{}) (string, error) {
	tool, ok := r.Get(name)
	if !ok {
		return "", fmt.Errorf("tool %s not found", name)
	}
	return tool.Execute(args)
}

// Descriptors returns every registered tool as an envelope.ToolDescriptor,
// for injection into outgoing requests.
func (r *Registry) Descriptors() []envelope.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]envelope.ToolDescriptor, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, envelope.ToolDescriptor{Name: t.Name, Description: t.Description, Parameters: t.Parameters})
	}
	return out
}
