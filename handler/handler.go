// Package handler exposes the chat service over HTTP and API Gateway.
package handler

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"ai-portfolio/internal/datastream"
	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/usecase"
)

const (
	correlationHeader  = "X-Correlation-Id"
	conversationHeader = "X-Conversation-Id"
)

type ChatUseCase interface {
	Chat(ctx context.Context, in usecase.ChatInput, sink usecase.Sink) (usecase.ChatOutput, error)
}

type InfoUseCase interface {
	LLMInfo() domain.LLMInfo
}

type HistoryUseCase interface {
	History(ctx context.Context, conversationID string) ([]domain.Turn, error)
}

type Handler struct {
	chat    ChatUseCase
	info    InfoUseCase
	history HistoryUseCase
	logger  *slog.Logger
	mux     http.Handler
}

type Option func(*Handler)

// WithHistory serves GET /api/conversations/{id}.
func WithHistory(h HistoryUseCase) Option {
	return func(hd *Handler) { hd.history = h }
}

func WithLogger(l *slog.Logger) Option {
	return func(hd *Handler) {
		if l != nil {
			hd.logger = l
		}
	}
}

func NewHandler(chat ChatUseCase, info InfoUseCase, opts ...Option) (*Handler, error) {
	if chat == nil {
		return nil, errors.New("handler: chat usecase must not be nil")
	}
	if info == nil {
		return nil, errors.New("handler: info usecase must not be nil")
	}
	h := &Handler{chat: chat, info: info, logger: slog.Default()}
	for _, opt := range opts {
		opt(h)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("GET /api/llm-info", h.handleLLMInfo)
	mux.HandleFunc("GET /api/questions", h.handleQuestions)
	mux.HandleFunc("GET /api/conversations/{id}", h.handleHistory)
	mux.HandleFunc("GET /healthz", h.handleHealth)
	h.mux = chain(mux, h.correlate, h.logRequests, limitBody)
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Handle serves an API Gateway proxy event through the same routes. The
// data stream is returned in full once the chat completes.
func (h *Handler) Handle(ctx context.Context, event events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	req, err := requestFromEvent(ctx, event)
	if err != nil {
		h.logger.WarnContext(ctx, "rejecting malformed event", "err", err)
		buf := newResponseBuffer()
		writeError(buf, http.StatusBadRequest, string(usecase.ErrorInvalidInput), usecase.PublicMessage(usecase.ErrorInvalidInput))
		return buf.proxyResponse(), nil
	}

	buf := newResponseBuffer()
	h.ServeHTTP(buf, req)
	return buf.proxyResponse(), nil
}

func requestFromEvent(ctx context.Context, event events.APIGatewayProxyRequest) (*http.Request, error) {
	body := event.Body
	if event.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, err
		}
		body = string(raw)
	}

	path := event.Path
	if path == "" {
		path = "/"
	}
	u := &url.URL{Path: path}
	if len(event.QueryStringParameters) > 0 {
		q := url.Values{}
		for k, v := range event.QueryStringParameters {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, event.HTTPMethod, u.String(), strings.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range event.Headers {
		req.Header.Set(k, v)
	}
	for k, vs := range event.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

type chatRequest struct {
	Messages       []domain.Message `json:"messages"`
	ConversationID string           `json:"conversationId"`
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSONBody(r, &req); err != nil || req.Messages == nil {
		writeError(w, http.StatusBadRequest, string(usecase.ErrorInvalidInput), usecase.PublicMessage(usecase.ErrorInvalidInput))
		return
	}

	convID := strings.TrimSpace(req.ConversationID)
	if convID == "" {
		convID = newUUID()
	}
	w.Header().Set(conversationHeader, convID)
	datastream.SetHeaders(w.Header())

	sink := datastream.NewWriter(w)
	out, err := h.chat.Chat(r.Context(), usecase.ChatInput{
		Messages:       req.Messages,
		ConversationID: convID,
	}, sink)
	if err != nil {
		if sink.Started() {
			h.logger.ErrorContext(r.Context(), "chat failed mid-stream", "correlation_id", CorrelationID(r.Context()), "err", err)
			return
		}
		w.Header().Del(datastream.VersionHeader)
		w.Header().Del("Cache-Control")
		h.writeUseCaseError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "chat completed",
		"correlation_id", CorrelationID(r.Context()),
		"conversation_id", out.ConversationID,
		"steps", out.Steps,
		"tools", out.Tools,
		"finish_reason", out.FinishReason,
	)
}

func (h *Handler) handleLLMInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.info.LLMInfo())
}

func (h *Handler) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, usecase.QuickQuestions())
}

type historyResponse struct {
	ConversationID string        `json:"conversationId"`
	Turns          []domain.Turn `json:"turns"`
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "conversation history is not enabled")
		return
	}
	id := r.PathValue("id")
	turns, err := h.history.History(r.Context(), id)
	if err != nil {
		h.writeUseCaseError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResponse{ConversationID: id, Turns: turns})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeUseCaseError(w http.ResponseWriter, r *http.Request, err error) {
	code := usecase.ErrorInternal
	var ue *usecase.Error
	if errors.As(err, &ue) {
		code = ue.Code
	}
	status := statusFor(code)

	attrs := []any{"correlation_id", CorrelationID(r.Context()), "code", code, "err", err}
	if ue != nil {
		attrs = append(attrs, "reason", ue.Reason)
	}
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed", attrs...)
	} else {
		h.logger.WarnContext(r.Context(), "request rejected", attrs...)
	}
	writeError(w, status, string(code), usecase.PublicMessage(code))
}

func statusFor(code usecase.ErrorCode) int {
	switch code {
	case usecase.ErrorInvalidInput, usecase.ErrorInvalidQuestion:
		return http.StatusBadRequest
	case usecase.ErrorRateLimited:
		return http.StatusTooManyRequests
	case usecase.ErrorUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var newUUID = func() string {
	return uuid.NewString()
}
