// Package chatclient holds the client-side state of one chat session and
// talks to the chat API.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"ai-portfolio/internal/datastream"
	"ai-portfolio/internal/domain"
)

const (
	chatPath         = "/api/chat"
	llmInfoPath      = "/api/llm-info"
	questionsPath    = "/api/questions"
	conversationHdr  = "X-Conversation-Id"
	maxErrorBodySize = 64 << 10
)

// StatusError is returned when the chat API answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("chatclient: unexpected status %d", e.StatusCode)
	}
	return fmt.Sprintf("chatclient: %s (status %d): %s", e.Code, e.StatusCode, e.Message)
}

func (e *StatusError) HTTPStatusCode() int { return e.StatusCode }

// StreamError carries an error part received in the middle of a response.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string {
	return "chatclient: stream error: " + e.Message
}

// Session keeps the transcript of one conversation. It is safe for
// concurrent use; at most one request is in flight at a time.
type Session struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu             sync.Mutex
	messages       []domain.ChatMessage
	loading        bool
	cancel         context.CancelFunc
	autoSubmitted  bool
	conversationID string
	onUpdate       func([]domain.ChatMessage)
}

type Option func(*Session)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Session) {
		if c != nil {
			s.httpClient = c
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithConversationID continues an existing server-side conversation.
func WithConversationID(id string) Option {
	return func(s *Session) { s.conversationID = strings.TrimSpace(id) }
}

func NewSession(baseURL string, opts ...Option) (*Session, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("chatclient: base URL must not be empty")
	}
	s := &Session{
		baseURL: baseURL,
		// No overall timeout: responses stream for as long as the model talks.
		httpClient: &http.Client{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// OnUpdate registers fn to receive a copy of the transcript after every change.
func (s *Session) OnUpdate(fn func([]domain.ChatMessage)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
}

// Submit sends query as the next user message and streams the reply into the
// transcript. Blank queries and queries sent while a reply is loading are
// ignored. A reply interrupted by Stop returns an error wrapping
// context.Canceled; the partial reply stays in the transcript.
func (s *Session) Submit(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	s.loading = true
	s.messages = append(s.messages, domain.ChatMessage{
		ID:      s.messageID("user"),
		Role:    domain.RoleUser,
		Content: query,
	})
	body := chatRequest{ConversationID: s.conversationID}
	for _, m := range s.messages {
		body.Messages = append(body.Messages, m.Message())
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	s.notify()

	defer func() {
		cancel()
		s.mu.Lock()
		s.loading = false
		s.cancel = nil
		s.mu.Unlock()
		s.notify()
	}()

	res, err := s.post(ctx, body)
	if err != nil {
		return err
	}
	defer func() { _ = res.Body.Close() }()

	if id := res.Header.Get(conversationHdr); id != "" {
		s.mu.Lock()
		s.conversationID = id
		s.mu.Unlock()
	}
	return s.readReply(ctx, res.Body)
}

// SubmitInitial submits query only the first time it is called with a
// non-blank query.
func (s *Session) SubmitInitial(ctx context.Context, query string) error {
	if strings.TrimSpace(query) == "" {
		return nil
	}
	s.mu.Lock()
	if s.autoSubmitted {
		s.mu.Unlock()
		return nil
	}
	s.autoSubmitted = true
	s.mu.Unlock()
	return s.Submit(ctx, query)
}

// Reload asks the latest user question again, replacing whatever reply
// followed it.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	idx := s.lastIndex(domain.RoleUser)
	if idx < 0 {
		s.mu.Unlock()
		return nil
	}
	query := s.messages[idx].Content
	s.messages = s.messages[:idx]
	s.mu.Unlock()
	return s.Submit(ctx, query)
}

// Stop cancels the in-flight request, if any.
func (s *Session) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("chatclient: encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+chatPath, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chatclient: send request: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		defer func() { _ = res.Body.Close() }()
		return nil, statusError(res)
	}
	return res, nil
}

// readReply appends the assistant message and folds parts into it as they
// arrive.
func (s *Session) readReply(ctx context.Context, body io.Reader) error {
	s.mu.Lock()
	s.messages = append(s.messages, domain.ChatMessage{ID: s.messageID("ai"), Role: domain.RoleAssistant})
	idx := len(s.messages) - 1
	reply := s.messages[idx].Clone()
	s.mu.Unlock()
	s.notify()

	acc := datastream.NewAccumulator(&reply)
	dec := datastream.NewDecoder()
	dec.OnError = func(line string, err error) {
		s.logger.Warn("ignoring malformed stream line", "line", line, "err", err)
	}

	apply := func(parts []datastream.Part) {
		changed := false
		for _, p := range parts {
			if acc.Apply(p) {
				changed = true
			}
		}
		if !changed {
			return
		}
		s.mu.Lock()
		if idx < len(s.messages) {
			s.messages[idx] = reply.Clone()
		}
		s.mu.Unlock()
		s.notify()
	}

	buf := make([]byte, 4096)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			apply(dec.Feed(buf[:n]))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fmt.Errorf("chatclient: read stream: %w", ctxErr)
			}
			return fmt.Errorf("chatclient: read stream: %w", err)
		}
	}
	apply(dec.Flush())

	if acc.Err != "" {
		return &StreamError{Message: acc.Err}
	}
	return nil
}

func (s *Session) notify() {
	s.mu.Lock()
	fn := s.onUpdate
	var snapshot []domain.ChatMessage
	if fn != nil {
		snapshot = s.copyMessages()
	}
	s.mu.Unlock()
	if fn != nil {
		fn(snapshot)
	}
}

// messageID must be called with mu held.
func (s *Session) messageID(prefix string) string {
	return prefix + "-" + strconv.FormatInt(s.now().UnixMilli(), 10)
}

func (s *Session) lastIndex(role domain.Role) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == role {
			return i
		}
	}
	return -1
}

func (s *Session) copyMessages() []domain.ChatMessage {
	out := make([]domain.ChatMessage, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Messages returns a copy of the transcript.
func (s *Session) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyMessages()
}

func (s *Session) LatestUserMessage() (domain.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.lastIndex(domain.RoleUser); i >= 0 {
		return s.messages[i].Clone(), true
	}
	return domain.ChatMessage{}, false
}

// CurrentAIMessage returns the assistant reply to the latest user message.
// It reports false while that reply has not started.
func (s *Session) CurrentAIMessage() (domain.ChatMessage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentAI()
}

func (s *Session) currentAI() (domain.ChatMessage, bool) {
	ai := s.lastIndex(domain.RoleAssistant)
	if ai < 0 || ai < s.lastIndex(domain.RoleUser) {
		return domain.ChatMessage{}, false
	}
	return s.messages[ai].Clone(), true
}

// HasActiveTool reports whether the current reply carries a tool result.
func (s *Session) HasActiveTool() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.currentAI()
	if !ok {
		return false
	}
	for _, inv := range msg.ToolInvocations {
		if inv.State == domain.ToolStateResult {
			return true
		}
	}
	return false
}

func (s *Session) IsEmptyState() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hasAI := s.currentAI()
	return !hasAI && s.lastIndex(domain.RoleUser) < 0 && !s.loading
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// ConversationID is the id the server assigned to this conversation.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

type chatRequest struct {
	Messages       []domain.Message `json:"messages"`
	ConversationID string           `json:"conversationId,omitempty"`
}

func statusError(res *http.Response) error {
	out := &StatusError{StatusCode: res.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(res.Body, maxErrorBodySize))
	if err != nil {
		return out
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		out.Code, out.Message = body.Error, body.Message
	}
	return out
}
