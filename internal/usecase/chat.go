package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ai-portfolio/internal/datastream"
	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/llm"
	"ai-portfolio/internal/tools"
)

const (
	defaultMaxSteps      = 2
	defaultMaxQuestion   = 300
	defaultMaxHistory    = 40
	instrumentationScope = "ai-portfolio/usecase"
)

// Sink receives the data stream of one chat response. *datastream.Writer
// satisfies it.
type Sink interface {
	Started() bool
	StartStep(messageID string) error
	Text(delta string) error
	ToolCallStart(id, name string) error
	ToolCallDelta(id, argsDelta string) error
	ToolCall(call domain.ToolCall) error
	ToolResult(id string, result any) error
	ToolError(id, msg string) error
	FinishStep(reason string, usage datastream.Usage, continued bool) error
	FinishMessage(reason string, usage datastream.Usage) error
	Error(msg string) error
}

type ToolRunner interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, call domain.ToolCall) (domain.ToolInvocation, error)
}

type Moderator interface {
	Moderate(ctx context.Context, input string) (bool, error)
}

type TurnStore interface {
	GetConversationTurnCount(ctx context.Context, conversationID string) (int, error)
	SaveCompletedTurn(ctx context.Context, turn domain.Turn, turns int) error
}

type ChatService struct {
	provider  llm.Provider
	tools     ToolRunner
	store     TurnStore
	moderator Moderator
	logger    *slog.Logger

	systemPrompt   string
	maxSteps       int
	maxQuestionLen int
	maxHistory     int
	maxTurns       int

	tracer       trace.Tracer
	toolCounter  metric.Int64Counter
	stepDuration metric.Float64Histogram
}

type ChatOption func(*ChatService)

// WithStore enables turn persistence and the per-conversation turn limit.
func WithStore(s TurnStore) ChatOption {
	return func(c *ChatService) { c.store = s }
}

func WithModerator(m Moderator) ChatOption {
	return func(c *ChatService) { c.moderator = m }
}

func WithLogger(l *slog.Logger) ChatOption {
	return func(c *ChatService) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithSystemPrompt(p string) ChatOption {
	return func(c *ChatService) { c.systemPrompt = p }
}

// WithLimits overrides the step, question length, history and turn limits.
// Non-positive values keep the defaults; maxTurns 0 disables the turn limit.
func WithLimits(maxSteps, maxQuestionLen, maxHistory, maxTurns int) ChatOption {
	return func(c *ChatService) {
		if maxSteps > 0 {
			c.maxSteps = maxSteps
		}
		if maxQuestionLen > 0 {
			c.maxQuestionLen = maxQuestionLen
		}
		if maxHistory > 0 {
			c.maxHistory = maxHistory
		}
		if maxTurns > 0 {
			c.maxTurns = maxTurns
		}
	}
}

func NewChatService(provider llm.Provider, runner ToolRunner, opts ...ChatOption) (*ChatService, error) {
	if provider == nil {
		return nil, errors.New("usecase: llm provider must not be nil")
	}
	if runner == nil {
		return nil, errors.New("usecase: tool runner must not be nil")
	}
	s := &ChatService{
		provider:       provider,
		tools:          runner,
		logger:         slog.Default(),
		systemPrompt:   SystemPrompt,
		maxSteps:       defaultMaxSteps,
		maxQuestionLen: defaultMaxQuestion,
		maxHistory:     defaultMaxHistory,
		tracer:         otel.Tracer(instrumentationScope),
	}
	for _, opt := range opts {
		opt(s)
	}

	meter := otel.Meter(instrumentationScope)
	var err error
	s.toolCounter, err = meter.Int64Counter("portfolio.tool.invocations",
		metric.WithDescription("Tool invocations by tool name and outcome"))
	if err != nil {
		return nil, err
	}
	s.stepDuration, err = meter.Float64Histogram("portfolio.step.duration",
		metric.WithDescription("Model step latency"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

type ChatInput struct {
	Messages       []domain.Message
	ConversationID string
}

type ChatOutput struct {
	ConversationID string
	Answer         string
	Tools          []string
	Steps          int
	FinishReason   string
	Usage          datastream.Usage
}

// Chat answers the last user message of in.Messages, streaming the reply
// into sink. Errors raised before anything was written are returned
// untouched so the caller can pick a status code; once the stream has
// started they are also written to sink as an error part.
func (s *ChatService) Chat(ctx context.Context, in ChatInput, sink Sink) (ChatOutput, error) {
	question, history, err := s.validate(in.Messages)
	if err != nil {
		return ChatOutput{}, err
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = newUUID()
	}

	ctx, span := s.tracer.Start(ctx, "chat", trace.WithAttributes(
		attribute.String("llm.provider", s.provider.Name()),
		attribute.String("llm.model", s.provider.Model()),
		attribute.String("conversation.id", convID),
	))
	defer span.End()

	out, err := s.chat(ctx, convID, question, history, sink)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if sink.Started() {
			var ue *Error
			code := ErrorInternal
			if errors.As(err, &ue) {
				code = ue.Code
			}
			_ = sink.Error(PublicMessage(code))
		}
		return out, err
	}
	span.SetAttributes(attribute.Int("chat.steps", out.Steps), attribute.StringSlice("chat.tools", out.Tools))
	return out, nil
}

func (s *ChatService) chat(ctx context.Context, convID, question string, history []domain.Message, sink Sink) (ChatOutput, error) {
	existingTurns, err := s.checkTurnLimit(ctx, convID)
	if err != nil {
		return ChatOutput{}, err
	}

	if s.moderator != nil {
		flagged, err := s.moderator.Moderate(ctx, question)
		if err != nil {
			return ChatOutput{}, classifyUpstream("moderation", err)
		}
		if flagged {
			return ChatOutput{}, newError(ErrorInvalidQuestion, "moderation_flagged", nil)
		}
	}

	out := ChatOutput{ConversationID: convID}
	messages := domain.ChatMessagesFrom(history)
	defs := s.tools.Definitions()
	var answer strings.Builder

	for step := 0; step < s.maxSteps; step++ {
		resp, invocations, err := s.runStep(ctx, step, messages, defs, sink)
		if err != nil {
			return out, err
		}
		out.Steps++
		out.Usage.PromptTokens += resp.Usage.PromptTokens
		out.Usage.CompletionTokens += resp.Usage.CompletionTokens
		out.FinishReason = resp.FinishReason
		answer.WriteString(resp.Text)
		for _, inv := range invocations {
			out.Tools = append(out.Tools, inv.ToolName)
		}

		if len(invocations) == 0 {
			break
		}
		messages = append(messages, domain.ChatMessage{
			Role:            domain.RoleAssistant,
			Content:         resp.Text,
			ToolInvocations: invocations,
		})
	}

	if err := sink.FinishMessage(out.FinishReason, out.Usage); err != nil {
		return out, newError(ErrorInternal, "stream_write_error", err)
	}
	out.Answer = answer.String()

	s.saveTurn(ctx, domain.Turn{
		ConversationID: convID,
		Question:       question,
		Answer:         out.Answer,
		Tools:          out.Tools,
		Provider:       s.provider.Name(),
	}, existingTurns+1)
	return out, nil
}

// runStep streams one model step and executes the tools it requests.
func (s *ChatService) runStep(ctx context.Context, step int, messages []domain.ChatMessage, defs []tools.Definition, sink Sink) (llm.Response, []domain.ToolInvocation, error) {
	ctx, span := s.tracer.Start(ctx, "chat.step", trace.WithAttributes(attribute.Int("chat.step", step)))
	defer span.End()
	start := time.Now()

	sw := &stepWriter{sink: sink, messageID: "msg-" + newUUID()}
	resp, err := s.provider.Stream(ctx, llm.Request{
		System:   s.systemPrompt,
		Messages: messages,
		Tools:    defs,
	}, sw)
	s.stepDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(attribute.String("llm.provider", s.provider.Name())))
	if err != nil {
		span.RecordError(err)
		if sw.err != nil {
			return llm.Response{}, nil, newError(ErrorInternal, "stream_write_error", sw.err)
		}
		return llm.Response{}, nil, classifyUpstream("llm", err)
	}

	var invocations []domain.ToolInvocation
	for _, call := range resp.ToolCalls {
		if err := sw.begin(); err != nil {
			return resp, nil, newError(ErrorInternal, "stream_write_error", err)
		}
		if call.Args == nil {
			call.Args = map[string]any{}
		}
		if err := sink.ToolCall(call); err != nil {
			return resp, nil, newError(ErrorInternal, "stream_write_error", err)
		}
		inv := s.executeTool(ctx, call)
		invocations = append(invocations, inv)
		if err := writeToolOutcome(sink, inv); err != nil {
			return resp, nil, newError(ErrorInternal, "stream_write_error", err)
		}
	}

	if err := sw.begin(); err != nil {
		return resp, nil, newError(ErrorInternal, "stream_write_error", err)
	}
	usage := datastream.Usage{PromptTokens: resp.Usage.PromptTokens, CompletionTokens: resp.Usage.CompletionTokens}
	if err := sink.FinishStep(resp.FinishReason, usage, false); err != nil {
		return resp, nil, newError(ErrorInternal, "stream_write_error", err)
	}
	span.SetAttributes(attribute.String("llm.finish_reason", resp.FinishReason), attribute.Int("chat.tool_calls", len(invocations)))
	return resp, invocations, nil
}

func (s *ChatService) executeTool(ctx context.Context, call domain.ToolCall) domain.ToolInvocation {
	inv, err := s.tools.Execute(ctx, call)
	if err != nil {
		s.logger.WarnContext(ctx, "tool dispatch failed", "tool", call.Name, "tool_call_id", call.ID, "err", err)
		inv = domain.NewToolInvocation(call)
		inv.Fail(err.Error())
	}
	s.toolCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", call.Name),
		attribute.String("tool.state", string(inv.State)),
	))
	return inv
}

func writeToolOutcome(sink Sink, inv domain.ToolInvocation) error {
	if inv.State == domain.ToolStateError {
		return sink.ToolError(inv.ToolCallID, inv.Error)
	}
	return sink.ToolResult(inv.ToolCallID, inv.Result)
}

// validate checks the request and returns the question together with the
// history that is sent to the model.
func (s *ChatService) validate(messages []domain.Message) (string, []domain.Message, error) {
	if len(messages) == 0 {
		return "", nil, newError(ErrorInvalidInput, "empty_messages", nil)
	}
	for _, m := range messages {
		if m.Role != domain.RoleUser && m.Role != domain.RoleAssistant {
			return "", nil, newError(ErrorInvalidInput, "invalid_role", nil)
		}
	}
	last := messages[len(messages)-1]
	if last.Role != domain.RoleUser {
		return "", nil, newError(ErrorInvalidInput, "last_message_not_user", nil)
	}
	question := strings.TrimSpace(last.Content)
	if question == "" {
		return "", nil, newError(ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question) > s.maxQuestionLen {
		return "", nil, newError(ErrorInvalidInput, "question_too_long", nil)
	}
	return question, trimHistory(messages, s.maxHistory), nil
}

// trimHistory drops assistant messages without content and keeps at most
// limit of the newest messages. The result always starts with a user message
// and ends with the current question.
func trimHistory(messages []domain.Message, limit int) []domain.Message {
	kept := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if m.Role == domain.RoleAssistant && strings.TrimSpace(m.Content) == "" {
			continue
		}
		kept = append(kept, m)
	}
	if limit > 0 && len(kept) > limit {
		kept = kept[len(kept)-limit:]
	}
	for len(kept) > 1 && kept[0].Role != domain.RoleUser {
		kept = kept[1:]
	}
	return kept
}

func (s *ChatService) checkTurnLimit(ctx context.Context, convID string) (int, error) {
	if s.store == nil {
		return 0, nil
	}
	turns, err := s.store.GetConversationTurnCount(ctx, convID)
	if err != nil {
		return 0, newError(ErrorInternal, "state_turn_count_error", err)
	}
	if s.maxTurns > 0 && turns >= s.maxTurns {
		return turns, newError(ErrorInvalidInput, "conversation_turn_limit", nil)
	}
	return turns, nil
}

// saveTurn runs after the response is complete, so failures are logged
// rather than surfaced.
func (s *ChatService) saveTurn(ctx context.Context, turn domain.Turn, turns int) {
	if s.store == nil {
		return
	}
	if err := s.store.SaveCompletedTurn(context.WithoutCancel(ctx), turn, turns); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist turn", "conversation_id", turn.ConversationID, "err", err)
	}
}

// stepWriter forwards provider callbacks to the sink and writes the start
// step part lazily, so a provider that fails before producing output leaves
// the stream untouched.
type stepWriter struct {
	sink      Sink
	messageID string
	started   bool
	err       error
}

func (w *stepWriter) begin() error {
	if w.started {
		return nil
	}
	w.started = true
	return w.sink.StartStep(w.messageID)
}

func (w *stepWriter) OnText(delta string) error {
	if delta == "" {
		return nil
	}
	return w.fail(w.begin(), func() error { return w.sink.Text(delta) })
}

func (w *stepWriter) OnToolCallStart(id, name string) error {
	return w.fail(w.begin(), func() error { return w.sink.ToolCallStart(id, name) })
}

func (w *stepWriter) OnToolCallDelta(id, argsDelta string) error {
	return w.fail(w.begin(), func() error { return w.sink.ToolCallDelta(id, argsDelta) })
}

// fail records the first sink error so it is not mistaken for a provider error.
func (w *stepWriter) fail(err error, next func() error) error {
	if err == nil {
		err = next()
	}
	if err != nil && w.err == nil {
		w.err = err
	}
	return err
}

var newUUID = func() string {
	return uuid.NewString()
}
