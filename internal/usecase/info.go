package usecase

import (
	"context"
	"errors"
	"strings"

	"ai-portfolio/internal/config"
	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/providers"
)

// InfoService reports the configured LLM backends.
type InfoService struct {
	cfg config.Config
}

func NewInfoService(cfg config.Config) *InfoService {
	return &InfoService{cfg: cfg}
}

func (s *InfoService) LLMInfo() domain.LLMInfo {
	info := providers.Info(s.cfg)
	info.Success = true
	return info
}

var quickQuestions = []domain.QuickQuestion{
	{Key: "Me", Question: "Who are you? I want to know more about you.", Color: "#329696", Icon: "lucide:laugh"},
	{Key: "Projects", Question: "What are your projects? What are you working on right now?", Color: "#3E9858", Icon: "lucide:briefcase-business"},
	{Key: "Skills", Question: "What are your skills? Give me a list of your soft and hard skills.", Color: "#856ED9", Icon: "lucide:layers"},
	{Key: "Fun", Question: "What's the craziest thing you've ever done? What are your hobbies?", Color: "#B95F9D", Icon: "lucide:party-popper"},
	{Key: "Contact", Question: "How can I contact you?", Color: "#C19433", Icon: "lucide:user-round-search"},
}

var chatSuggestions = []string{
	"Tell me about yourself",
	"What are your main skills?",
	"Show me your projects",
	"What are you working on?",
	"How can I contact you?",
	"What do you do for fun?",
}

// Catalog is the landing page content.
type Catalog struct {
	Questions   []domain.QuickQuestion `json:"questions"`
	Suggestions []string               `json:"suggestions"`
}

// QuickQuestions returns a copy of the landing page catalog.
func QuickQuestions() Catalog {
	return Catalog{
		Questions:   append([]domain.QuickQuestion(nil), quickQuestions...),
		Suggestions: append([]string(nil), chatSuggestions...),
	}
}

// QuestionFor looks up a quick question by key, case-insensitively.
func QuestionFor(key string) (domain.QuickQuestion, bool) {
	for _, q := range quickQuestions {
		if strings.EqualFold(q.Key, strings.TrimSpace(key)) {
			return q, true
		}
	}
	return domain.QuickQuestion{}, false
}

type HistoryReader interface {
	GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
}

// HistoryService reads persisted turns back for a conversation.
type HistoryService struct {
	store HistoryReader
	limit int
}

func NewHistoryService(store HistoryReader, limit int) (*HistoryService, error) {
	if store == nil {
		return nil, errors.New("usecase: history reader must not be nil")
	}
	if limit <= 0 {
		limit = defaultMaxHistory
	}
	return &HistoryService{store: store, limit: limit}, nil
}

func (s *HistoryService) History(ctx context.Context, conversationID string) ([]domain.Turn, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, newError(ErrorInvalidInput, "empty_conversation_id", nil)
	}
	turns, err := s.store.GetHistory(ctx, conversationID, s.limit)
	if err != nil {
		return nil, newError(ErrorInternal, "state_history_error", err)
	}
	if turns == nil {
		turns = []domain.Turn{}
	}
	return turns, nil
}
