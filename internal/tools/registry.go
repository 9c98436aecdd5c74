package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"reins/internal/api"
	"reins/pkg/logging"
)

// ChangeListener observes registry mutations. Transports use it to keep
// their exposed tool set in step with registration and removal.
type ChangeListener func(tool api.Tool, removed bool)

// Registry is the in-process tool table. Names are unique; registering a
// taken name is refused so callers notice double registration instead of
// silently shadowing a tool.
type Registry struct {
	mu             sync.RWMutex
	tools          map[string]api.Tool
	contextFactory api.ToolContextFactory
	listeners      []ChangeListener
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]api.Tool)}
}

// SetContextFactory installs the per-call context factory applied before
// every tool invocation.
func (r *Registry) SetContextFactory(factory api.ToolContextFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contextFactory = factory
}

// AddChangeListener registers a mutation observer. Listeners run after
// the mutation, outside the registry lock.
func (r *Registry) AddChangeListener(listener ChangeListener) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener)
}

// RegisterTool adds a tool under its name.
func (r *Registry) RegisterTool(tool api.Tool) error {
	if tool.Name == "" {
		return api.NewValidationError("tool name cannot be empty")
	}
	if tool.Handler == nil {
		return api.NewValidationError("tool %s has no handler", tool.Name)
	}

	r.mu.Lock()
	if _, exists := r.tools[tool.Name]; exists {
		r.mu.Unlock()
		return api.NewValidationError("tool %s already registered", tool.Name)
	}
	r.tools[tool.Name] = tool
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.Unlock()

	logging.Debug("ToolRegistry", "Registered tool %s", tool.Name)
	for _, listener := range listeners {
		listener(tool, false)
	}
	return nil
}

// RemoveTool withdraws a tool by name.
func (r *Registry) RemoveTool(name string) error {
	r.mu.Lock()
	tool, exists := r.tools[name]
	if !exists {
		r.mu.Unlock()
		return api.NewToolNotFoundError(name)
	}
	delete(r.tools, name)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.Unlock()

	logging.Debug("ToolRegistry", "Removed tool %s", name)
	for _, listener := range listeners {
		listener(tool, true)
	}
	return nil
}

// GetTool returns a tool by name.
func (r *Registry) GetTool(name string) (api.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// ListTools returns every registered tool sorted by name.
func (r *Registry) ListTools() []api.Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]api.Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		out = append(out, tool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CallTool invokes a tool by name. Handler panics are converted to
// errors so one misbehaving tool cannot take the process down.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (result *api.CallToolResult, err error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	factory := r.contextFactory
	r.mu.RUnlock()

	if !ok {
		return nil, api.NewToolNotFoundError(name)
	}
	if factory != nil {
		ctx = factory(ctx)
	}

	defer func() {
		if rec := recover(); rec != nil {
			logging.Error("ToolRegistry", fmt.Errorf("%v", rec), "Tool %s panicked", name)
			result = nil
			err = api.NewOperationError(fmt.Sprintf("tool %s panicked: %v", name, rec), nil)
		}
	}()

	return tool.Handler(ctx, args)
}
