package chatclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ai-portfolio/internal/domain"
)

// Catalog is the landing page content served by /api/questions.
type Catalog struct {
	Questions   []domain.QuickQuestion `json:"questions"`
	Suggestions []string               `json:"suggestions"`
}

// Info fetches the backend's provider configuration.
func (s *Session) Info(ctx context.Context) (domain.LLMInfo, error) {
	var out domain.LLMInfo
	if err := s.getJSON(ctx, llmInfoPath, &out); err != nil {
		return domain.LLMInfo{}, err
	}
	return out, nil
}

func (s *Session) Questions(ctx context.Context) (Catalog, error) {
	var out Catalog
	if err := s.getJSON(ctx, questionsPath, &out); err != nil {
		return Catalog{}, err
	}
	return out, nil
}

func (s *Session) getJSON(ctx context.Context, path string, dst any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("chatclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chatclient: GET %s: %w", path, err)
	}
	defer func() { _ = res.Body.Close() }()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return statusError(res)
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("chatclient: decode %s: %w", path, err)
	}
	return nil
}
