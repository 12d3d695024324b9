// Package ollama streams chat steps from a local Ollama server.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/llm"
)

const (
	providerName   = "ollama"
	DefaultBaseURL = "http://localhost:11434"
	DefaultModel   = "llama3.2"

	// Local models may need to load before the first byte.
	headerTimeout = 120 * time.Second
)

// chatRequest is the request body for Ollama's /api/chat endpoint.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []toolSpec    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type toolSpec struct {
	Type     string       `json:"type"`
	Function functionSpec `json:"function"`
}

type functionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient creates a Client for the server at baseURL. Empty values fall
// back to the local defaults.
func NewClient(baseURL, model string, opts ...Option) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = DefaultModel
	}
	c := &Client{
		baseURL:    baseURL,
		model:      model,
		httpClient: llm.NewStreamingClient(headerTimeout),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string    { return providerName }
func (c *Client) Model() string   { return c.model }
func (c *Client) BaseURL() string { return c.baseURL }

// newCallID labels tool calls; Ollama does not assign ids itself.
var newCallID = func() string {
	return "call_" + uuid.NewString()
}

func (c *Client) Stream(ctx context.Context, req llm.Request, h llm.Handler) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	res, err := llm.PostJSON(ctx, httpClient, providerName, c.baseURL+"/api/chat", nil, chatRequest{
		Model:    model,
		Messages: toChatMessages(req.System, req.Messages),
		Tools:    toToolSpecs(req),
		Stream:   true,
	})
	if err != nil {
		return llm.Response{}, err
	}
	defer func() { _ = res.Body.Close() }()

	var (
		out  llm.Response
		text strings.Builder
	)
	err = llm.ScanLines(res.Body, func(line string) error {
		if !gjson.Valid(line) {
			return fmt.Errorf("ollama: malformed stream line: %.64s", line)
		}
		chunk := gjson.Parse(line)
		if msg := chunk.Get("error"); msg.Exists() {
			return fmt.Errorf("ollama: stream error: %s", msg.String())
		}
		if delta := chunk.Get("message.content").String(); delta != "" {
			text.WriteString(delta)
			if err := h.OnText(delta); err != nil {
				return err
			}
		}
		for _, tc := range chunk.Get("message.tool_calls").Array() {
			call := domain.ToolCall{
				ID:   newCallID(),
				Name: tc.Get("function.name").String(),
				Args: map[string]any{},
			}
			if call.Name == "" {
				return errors.New("ollama: tool call without function name")
			}
			if args := tc.Get("function.arguments"); args.IsObject() {
				parsed, err := llm.ParseArgs(args.Raw)
				if err != nil {
					return fmt.Errorf("ollama: decode arguments for %q: %w", call.Name, err)
				}
				call.Args = parsed
			}
			out.ToolCalls = append(out.ToolCalls, call)
			if err := h.OnToolCallStart(call.ID, call.Name); err != nil {
				return err
			}
			if err := h.OnToolCallDelta(call.ID, llm.ArgsJSON(call.Args)); err != nil {
				return err
			}
		}
		if chunk.Get("done").Bool() {
			out.Usage = llm.Usage{
				PromptTokens:     int(chunk.Get("prompt_eval_count").Int()),
				CompletionTokens: int(chunk.Get("eval_count").Int()),
			}
			out.FinishReason = mapDoneReason(chunk.Get("done_reason").String(), len(out.ToolCalls) > 0)
		}
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}

	out.Text = text.String()
	if out.FinishReason == "" {
		out.FinishReason = mapDoneReason("", len(out.ToolCalls) > 0)
	}
	return out, nil
}

func mapDoneReason(reason string, hasTools bool) string {
	if hasTools {
		return llm.FinishToolCalls
	}
	switch reason {
	case "stop":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	default:
		return llm.FinishOther
	}
}

func toChatMessages(system string, messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: string(domain.RoleSystem), Content: system})
	}
	for _, m := range messages {
		msg := chatMessage{Role: string(m.Role), Content: m.Content}
		if m.Role != domain.RoleAssistant || len(m.ToolInvocations) == 0 {
			out = append(out, msg)
			continue
		}
		for _, inv := range m.ToolInvocations {
			args := inv.Args
			if args == nil {
				args = map[string]any{}
			}
			msg.ToolCalls = append(msg.ToolCalls, toolCall{Function: functionCall{Name: inv.ToolName, Arguments: args}})
		}
		out = append(out, msg)
		for _, inv := range m.ToolInvocations {
			out = append(out, chatMessage{Role: "tool", Content: llm.ResultText(inv)})
		}
	}
	return out
}

func toToolSpecs(req llm.Request) []toolSpec {
	if len(req.Tools) == 0 {
		return nil
	}
	out := make([]toolSpec, 0, len(req.Tools))
	for _, t := range req.Tools {
		out = append(out, toolSpec{
			Type:     "function",
			Function: functionSpec{Name: t.Name, Description: t.Description, Parameters: t.InputSchema},
		})
	}
	return out
}
