// Package tools holds the fixed set of portfolio tools the model may call.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"ai-portfolio/internal/domain"
)

var (
	ErrToolUnregistered = errors.New("tools: tool is not registered")
	ErrToolNameEmpty    = errors.New("tools: tool name is empty")
	ErrNilExecute       = errors.New("tools: tool execute func is nil")
)

// Func runs a tool with the model-supplied arguments.
type Func func(ctx context.Context, args map[string]any) (any, error)

// Tool is a named action exposed to the model.
type Tool struct {
	Name        string
	Description string
	// Title is the human-facing label shown next to the tool's output.
	Title   string
	Execute Func
}

// Definition is the provider-neutral description sent with a model request.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Registry stores tools by name and executes calls against them.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func New(initial ...Tool) *Registry {
	r := &Registry{tools: make(map[string]Tool, len(initial))}
	for _, t := range initial {
		r.Register(t)
	}
	return r
}

// Register adds or replaces a tool. Registration order is preserved.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Definitions lists every tool in registration order.
func (r *Registry) Definitions() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: emptyObjectSchema(),
		})
	}
	return out
}

// DisplayName returns the tool's title, or the raw name when unknown.
func (r *Registry) DisplayName(name string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.tools[name]; ok && t.Title != "" {
		return t.Title
	}
	return name
}

// Execute runs a call and returns the invocation in its final state. A tool
// that fails yields an invocation in the error state and a nil error; err is
// reserved for calls that cannot be dispatched at all.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall) (domain.ToolInvocation, error) {
	if err := ctx.Err(); err != nil {
		return domain.ToolInvocation{}, err
	}
	if call.Name == "" {
		return domain.ToolInvocation{}, fmt.Errorf("%w: call %q", ErrToolNameEmpty, call.ID)
	}

	r.mu.RLock()
	t, ok := r.tools[call.Name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolInvocation{}, fmt.Errorf("%w: %q", ErrToolUnregistered, call.Name)
	}
	if t.Execute == nil {
		return domain.ToolInvocation{}, fmt.Errorf("%w: %q", ErrNilExecute, call.Name)
	}

	inv := domain.NewToolInvocation(call)
	result, err := t.Execute(ctx, call.Args)
	if err != nil {
		inv.Fail(err.Error())
		return inv, nil
	}
	inv.Resolve(result)
	return inv, nil
}

func emptyObjectSchema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{},
	}
}
