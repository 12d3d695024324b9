package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/llm"
)

const (
	providerName   = "openai"
	defaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4o-mini"
	headerTimeout  = 60 * time.Second
)

// chatRequest is the request shape for a streamed Chat Completions call.
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []chatMessage  `json:"messages"`
	Stream        bool           `json:"stream"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
	Tools         []toolSpec     `json:"tools,omitempty"`
	ToolChoice    string         `json:"tool_choice,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type chatMessage struct {
	Role       string     `json:"role"`
	Content    *string    `json:"content"`
	ToolCalls  []toolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

type toolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function functionCall `json:"function"`
}

type functionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
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

// moderationRequest is the request shape for the Moderations endpoint.
type moderationRequest struct {
	Input string `json:"input"`
}

// Client is a focused OpenAI-compatible client for streamed chat completions.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
	keys       llm.KeySource
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		if model = strings.TrimSpace(model); model != "" {
			c.model = model
		}
	}
}

// NewClient creates a Client whose API key is obtained from keys on every
// request; key sources backed by SSM cache the value themselves.
func NewClient(keys llm.KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("openai: key source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      DefaultModel,
		httpClient: llm.NewStreamingClient(headerTimeout),
		keys:       keys,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Name() string  { return providerName }
func (c *Client) Model() string { return c.model }

// resolvedHTTPClient returns the configured HTTP client, or a streaming
// default if none was set.
func (c *Client) resolvedHTTPClient() *http.Client {
	if c.httpClient != nil {
		return c.httpClient
	}
	return llm.NewStreamingClient(headerTimeout)
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}

func moderationURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/moderations"
	}
	return base + "/v1/moderations"
}

func (c *Client) authHeaders(ctx context.Context) (map[string]string, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: resolve API key: %w", err)
	}
	return map[string]string{"Authorization": "Bearer " + apiKey}, nil
}

// partialCall collects one streamed tool call; OpenAI keys deltas by index.
type partialCall struct {
	id      string
	name    string
	args    strings.Builder
	started bool
}

// Stream runs one streamed chat completion step.
func (c *Client) Stream(ctx context.Context, req llm.Request, h llm.Handler) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return llm.Response{}, errors.New("openai: model must not be empty")
	}
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return llm.Response{}, err
	}

	res, err := llm.PostJSON(ctx, c.resolvedHTTPClient(), providerName, chatURL(c.baseURL), headers, chatRequest{
		Model:         model,
		Messages:      toChatMessages(req.System, req.Messages),
		Stream:        true,
		StreamOptions: &streamOptions{IncludeUsage: true},
		Tools:         toToolSpecs(req),
		ToolChoice:    toolChoice(req),
		MaxTokens:     req.MaxTokens,
	})
	if err != nil {
		return llm.Response{}, err
	}
	defer func() { _ = res.Body.Close() }()

	return decodeStream(res.Body, h)
}

func decodeStream(body io.Reader, h llm.Handler) (llm.Response, error) {
	var (
		out   llm.Response
		text  strings.Builder
		calls []*partialCall
	)

	err := llm.ScanSSE(body, func(_, data string) error {
		if data == "[DONE]" {
			return nil
		}
		if !gjson.Valid(data) {
			return fmt.Errorf("openai: malformed stream chunk: %.64s", data)
		}
		chunk := gjson.Parse(data)
		if msg := chunk.Get("error.message"); msg.Exists() {
			return fmt.Errorf("openai: stream error: %s", msg.String())
		}
		if usage := chunk.Get("usage"); usage.IsObject() {
			out.Usage = llm.Usage{
				PromptTokens:     int(usage.Get("prompt_tokens").Int()),
				CompletionTokens: int(usage.Get("completion_tokens").Int()),
			}
		}

		choice := chunk.Get("choices.0")
		if !choice.Exists() {
			return nil
		}
		if delta := choice.Get("delta.content").String(); delta != "" {
			text.WriteString(delta)
			if err := h.OnText(delta); err != nil {
				return err
			}
		}
		for _, tc := range choice.Get("delta.tool_calls").Array() {
			idx := int(tc.Get("index").Int())
			for len(calls) <= idx {
				calls = append(calls, &partialCall{})
			}
			pc := calls[idx]
			if id := tc.Get("id").String(); id != "" {
				pc.id = id
			}
			if name := tc.Get("function.name").String(); name != "" {
				pc.name += name
			}
			if !pc.started && pc.id != "" && pc.name != "" {
				pc.started = true
				if err := h.OnToolCallStart(pc.id, pc.name); err != nil {
					return err
				}
			}
			if args := tc.Get("function.arguments").String(); args != "" {
				pc.args.WriteString(args)
				if err := h.OnToolCallDelta(pc.id, args); err != nil {
					return err
				}
			}
		}
		if reason := choice.Get("finish_reason").String(); reason != "" {
			out.FinishReason = mapFinishReason(reason)
		}
		return nil
	})
	if err != nil {
		return llm.Response{}, err
	}

	out.Text = text.String()
	for _, pc := range calls {
		if pc.name == "" {
			continue
		}
		args, err := llm.ParseArgs(pc.args.String())
		if err != nil {
			return llm.Response{}, fmt.Errorf("openai: decode arguments for %q: %w", pc.name, err)
		}
		out.ToolCalls = append(out.ToolCalls, domain.ToolCall{ID: pc.id, Name: pc.name, Args: args})
	}
	if out.FinishReason == "" {
		out.FinishReason = llm.FinishOther
	}
	return out, nil
}

func mapFinishReason(reason string) string {
	switch reason {
	case "stop":
		return llm.FinishStop
	case "length":
		return llm.FinishLength
	case "tool_calls", "function_call":
		return llm.FinishToolCalls
	case "content_filter":
		return llm.FinishContentFilter
	default:
		return llm.FinishOther
	}
}

func toChatMessages(system string, messages []domain.ChatMessage) []chatMessage {
	out := make([]chatMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, chatMessage{Role: string(domain.RoleSystem), Content: strPtr(system)})
	}
	for _, m := range messages {
		if m.Role != domain.RoleAssistant || len(m.ToolInvocations) == 0 {
			out = append(out, chatMessage{Role: string(m.Role), Content: strPtr(m.Content)})
			continue
		}

		assistant := chatMessage{Role: string(domain.RoleAssistant)}
		if m.Content != "" {
			assistant.Content = strPtr(m.Content)
		}
		for _, inv := range m.ToolInvocations {
			assistant.ToolCalls = append(assistant.ToolCalls, toolCall{
				ID:   inv.ToolCallID,
				Type: "function",
				Function: functionCall{
					Name:      inv.ToolName,
					Arguments: llm.ArgsJSON(inv.Args),
				},
			})
		}
		out = append(out, assistant)
		for _, inv := range m.ToolInvocations {
			out = append(out, chatMessage{
				Role:       "tool",
				Content:    strPtr(llm.ResultText(inv)),
				ToolCallID: inv.ToolCallID,
			})
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
			Type: "function",
			Function: functionSpec{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

func toolChoice(req llm.Request) string {
	if len(req.Tools) == 0 {
		return ""
	}
	return "auto"
}

// Moderate calls the OpenAI Moderations API and returns true if the input is flagged.
func (c *Client) Moderate(ctx context.Context, input string) (bool, error) {
	headers, err := c.authHeaders(ctx)
	if err != nil {
		return false, err
	}

	res, err := llm.PostJSON(ctx, c.resolvedHTTPClient(), providerName, moderationURL(c.baseURL), headers, moderationRequest{Input: input})
	if err != nil {
		return false, fmt.Errorf("openai: moderation request failed: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return false, fmt.Errorf("openai: read moderation response: %w", err)
	}
	if !gjson.ValidBytes(raw) {
		return false, errors.New("openai: decode moderation response: invalid JSON")
	}
	result := gjson.GetBytes(raw, "results.0")
	if !result.Exists() {
		return false, errors.New("openai: no results in moderation response")
	}
	return result.Get("flagged").Bool(), nil
}

func strPtr(s string) *string {
	return &s
}
