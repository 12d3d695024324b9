// Package anthropic streams chat steps from the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/llm"
)

const (
	providerName     = "anthropic"
	defaultBaseURL   = "https://api.anthropic.com/v1"
	apiVersion       = "2023-06-01"
	DefaultModel     = "claude-3-5-sonnet-20241022"
	defaultMaxTokens = 1024
	headerTimeout    = 60 * time.Second
)

// messagesRequest is the request body for a streamed Messages call.
type messagesRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	System    string    `json:"system,omitempty"`
	Messages  []message `json:"messages"`
	Tools     []tool    `json:"tools,omitempty"`
	Stream    bool      `json:"stream"`
}

// message content is either a string or a list of content blocks.
type message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentBlock struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name,omitempty"`
	Input     any    `json:"input,omitempty"`
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type Client struct {
	baseURL    string
	model      string
	maxTokens  int
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

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

func NewClient(keys llm.KeySource, opts ...Option) (*Client, error) {
	if keys == nil {
		return nil, errors.New("anthropic: key source must not be nil")
	}
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      DefaultModel,
		maxTokens:  defaultMaxTokens,
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

func messagesURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/messages"
	}
	return base + "/v1/messages"
}

func (c *Client) Stream(ctx context.Context, req llm.Request, h llm.Handler) (llm.Response, error) {
	apiKey, err := c.keys.APIKey(ctx)
	if err != nil {
		return llm.Response{}, fmt.Errorf("anthropic: resolve API key: %w", err)
	}
	model := req.Model
	if model == "" {
		model = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}

	httpClient := c.httpClient
	if httpClient == nil {
		httpClient = llm.NewStreamingClient(headerTimeout)
	}
	res, err := llm.PostJSON(ctx, httpClient, providerName, messagesURL(c.baseURL), map[string]string{
		"x-api-key":         apiKey,
		"anthropic-version": apiVersion,
	}, messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    req.System,
		Messages:  toMessages(req.Messages),
		Tools:     toTools(req),
		Stream:    true,
	})
	if err != nil {
		return llm.Response{}, err
	}
	defer func() { _ = res.Body.Close() }()

	s := &streamState{h: h}
	if err := llm.ScanSSE(res.Body, s.handle); err != nil {
		return llm.Response{}, err
	}
	return s.response()
}

// block is an open content block, keyed by its stream index.
type block struct {
	kind string
	id   string
	name string
	json strings.Builder
}

type streamState struct {
	h      llm.Handler
	text   strings.Builder
	blocks map[int64]*block
	order  []*block
	out    llm.Response
}

func (s *streamState) handle(event, data string) error {
	if !gjson.Valid(data) {
		return fmt.Errorf("anthropic: malformed stream event %q: %.64s", event, data)
	}
	ev := gjson.Parse(data)
	if event == "" {
		event = ev.Get("type").String()
	}

	switch event {
	case "message_start":
		s.out.Usage.PromptTokens = int(ev.Get("message.usage.input_tokens").Int())
		s.out.Usage.CompletionTokens = int(ev.Get("message.usage.output_tokens").Int())
	case "content_block_start":
		cb := ev.Get("content_block")
		b := &block{kind: cb.Get("type").String(), id: cb.Get("id").String(), name: cb.Get("name").String()}
		if s.blocks == nil {
			s.blocks = make(map[int64]*block)
		}
		s.blocks[ev.Get("index").Int()] = b
		s.order = append(s.order, b)
		if b.kind == "tool_use" {
			return s.h.OnToolCallStart(b.id, b.name)
		}
		if text := cb.Get("text").String(); text != "" {
			s.text.WriteString(text)
			return s.h.OnText(text)
		}
	case "content_block_delta":
		b := s.blocks[ev.Get("index").Int()]
		delta := ev.Get("delta")
		switch delta.Get("type").String() {
		case "text_delta":
			text := delta.Get("text").String()
			if text == "" {
				return nil
			}
			s.text.WriteString(text)
			return s.h.OnText(text)
		case "input_json_delta":
			if b == nil {
				return errors.New("anthropic: input delta for unknown content block")
			}
			partial := delta.Get("partial_json").String()
			b.json.WriteString(partial)
			return s.h.OnToolCallDelta(b.id, partial)
		}
	case "message_delta":
		if reason := ev.Get("delta.stop_reason").String(); reason != "" {
			s.out.FinishReason = mapStopReason(reason)
		}
		if out := ev.Get("usage.output_tokens"); out.Exists() {
			s.out.Usage.CompletionTokens = int(out.Int())
		}
	case "error":
		return fmt.Errorf("anthropic: stream error: %s: %s", ev.Get("error.type").String(), ev.Get("error.message").String())
	}
	return nil
}

func (s *streamState) response() (llm.Response, error) {
	s.out.Text = s.text.String()
	for _, b := range s.order {
		if b.kind != "tool_use" {
			continue
		}
		args, err := llm.ParseArgs(b.json.String())
		if err != nil {
			return llm.Response{}, fmt.Errorf("anthropic: decode input for %q: %w", b.name, err)
		}
		s.out.ToolCalls = append(s.out.ToolCalls, domain.ToolCall{ID: b.id, Name: b.name, Args: args})
	}
	if s.out.FinishReason == "" {
		s.out.FinishReason = llm.FinishOther
	}
	return s.out, nil
}

func mapStopReason(reason string) string {
	switch reason {
	case "end_turn", "stop_sequence":
		return llm.FinishStop
	case "max_tokens":
		return llm.FinishLength
	case "tool_use":
		return llm.FinishToolCalls
	default:
		return llm.FinishOther
	}
}

// toMessages converts the transcript. An assistant turn with tool
// invocations becomes tool_use blocks followed by a user turn carrying the
// matching tool_result blocks. Empty assistant turns are dropped because the
// API rejects messages without content.
func toMessages(in []domain.ChatMessage) []message {
	out := make([]message, 0, len(in))
	for _, m := range in {
		if m.Role == domain.RoleSystem {
			continue
		}
		if m.Role == domain.RoleAssistant && len(m.ToolInvocations) == 0 && strings.TrimSpace(m.Content) == "" {
			continue
		}
		if m.Role != domain.RoleAssistant || len(m.ToolInvocations) == 0 {
			out = append(out, message{Role: string(m.Role), Content: m.Content})
			continue
		}

		var blocks []contentBlock
		if m.Content != "" {
			blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
		}
		results := make([]contentBlock, 0, len(m.ToolInvocations))
		for _, inv := range m.ToolInvocations {
			input := inv.Args
			if input == nil {
				input = map[string]any{}
			}
			blocks = append(blocks, contentBlock{Type: "tool_use", ID: inv.ToolCallID, Name: inv.ToolName, Input: input})
			results = append(results, contentBlock{
				Type:      "tool_result",
				ToolUseID: inv.ToolCallID,
				Content:   llm.ResultText(inv),
				IsError:   inv.State == domain.ToolStateError,
			})
		}
		out = append(out,
			message{Role: string(domain.RoleAssistant), Content: blocks},
			message{Role: string(domain.RoleUser), Content: results},
		)
	}
	return out
}

func toTools(req llm.Request) []tool {
	if len(req.Tools) == 0 {
		return nil
	}
	out := make([]tool, 0, len(req.Tools))
	for _, t := range req.Tools {
		out = append(out, tool{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return out
}
