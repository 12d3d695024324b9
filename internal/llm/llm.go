// Package llm defines the provider-neutral streaming chat contract shared by
// the OpenAI, Anthropic and Ollama integrations.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/tools"
)

const (
	FinishStop          = "stop"
	FinishLength        = "length"
	FinishToolCalls     = "tool-calls"
	FinishContentFilter = "content-filter"
	FinishError         = "error"
	FinishOther         = "other"
)

var ErrMissingAPIKey = errors.New("llm: API key is not configured")

// Request is one model step.
type Request struct {
	Model     string
	System    string
	Messages  []domain.ChatMessage
	Tools     []tools.Definition
	MaxTokens int
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Response is the aggregate of one streamed step.
type Response struct {
	Text         string
	ToolCalls    []domain.ToolCall
	FinishReason string
	Usage        Usage
}

// Handler receives incremental output while a step streams. Returning an
// error aborts the stream.
type Handler interface {
	OnText(delta string) error
	OnToolCallStart(id, name string) error
	OnToolCallDelta(id, argsDelta string) error
}

// Provider streams one model step.
type Provider interface {
	Name() string
	Model() string
	Stream(ctx context.Context, req Request, h Handler) (Response, error)
}

// HandlerFuncs adapts optional funcs to Handler; nil funcs are no-ops.
type HandlerFuncs struct {
	Text          func(delta string) error
	ToolCallStart func(id, name string) error
	ToolCallDelta func(id, argsDelta string) error
}

func (f HandlerFuncs) OnText(delta string) error {
	if f.Text == nil {
		return nil
	}
	return f.Text(delta)
}

func (f HandlerFuncs) OnToolCallStart(id, name string) error {
	if f.ToolCallStart == nil {
		return nil
	}
	return f.ToolCallStart(id, name)
}

func (f HandlerFuncs) OnToolCallDelta(id, argsDelta string) error {
	if f.ToolCallDelta == nil {
		return nil
	}
	return f.ToolCallDelta(id, argsDelta)
}

// KeySource yields the API key for a provider.
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// StaticKey is a KeySource for a key known at startup.
type StaticKey string

func (k StaticKey) APIKey(context.Context) (string, error) {
	if k == "" {
		return "", ErrMissingAPIKey
	}
	return string(k), nil
}

// ResultText renders a tool invocation outcome as text for the next model step.
func ResultText(inv domain.ToolInvocation) string {
	if inv.State == domain.ToolStateError {
		return "Error: " + inv.Error
	}
	switch v := inv.Result.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// ParseArgs decodes streamed tool arguments. Empty input is an empty object.
func ParseArgs(raw string) (map[string]any, error) {
	args := map[string]any{}
	if raw == "" {
		return args, nil
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// ArgsJSON encodes tool arguments, never returning an empty string.
func ArgsJSON(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}
