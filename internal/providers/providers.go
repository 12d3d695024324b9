// Package providers chooses and describes the configured LLM backend.
package providers

import (
	"errors"
	"fmt"

	"ai-portfolio/internal/config"
	"ai-portfolio/internal/domain"
	"ai-portfolio/internal/integrations/anthropic"
	"ai-portfolio/internal/integrations/ollama"
	"ai-portfolio/internal/integrations/openai"
	"ai-portfolio/internal/integrations/paramstore"
	"ai-portfolio/internal/llm"
)

var (
	ErrUnknownProvider = errors.New("providers: unknown provider")
	ErrNotConfigured   = errors.New("providers: provider not configured")
)

// Error carries a message meant for operators alongside a sentinel for
// errors.Is checks.
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Message }
func (e *Error) Unwrap() error { return e.Err }

var displayNames = map[domain.Provider]string{
	domain.ProviderAnthropic: "Anthropic Claude",
	domain.ProviderOpenAI:    "OpenAI",
	domain.ProviderOllama:    "Ollama (Local)",
}

// Selection is the chosen backend plus the OpenAI client when one could be
// built, which the moderation check reuses.
type Selection struct {
	Provider llm.Provider
	OpenAI   *openai.Client
}

// Select builds the provider named by cfg.LLMProvider. API keys come from
// the config; a missing key is looked up under
// "<PARAM_PREFIX>/<provider>-api-key" when a prefix and getter are given.
func Select(cfg config.Config, params paramstore.Getter) (Selection, error) {
	name := domain.Provider(cfg.LLMProvider)
	if name == "" {
		name = domain.ProviderAnthropic
	}

	var sel Selection
	switch name {
	case domain.ProviderAnthropic:
		keys, err := keySource(cfg, params, name, cfg.AnthropicAPIKey)
		if err != nil {
			return Selection{}, err
		}
		c, err := anthropic.NewClient(keys, anthropic.WithModel(cfg.AnthropicModel))
		if err != nil {
			return Selection{}, fmt.Errorf("providers: anthropic client: %w", err)
		}
		sel.Provider = c
	case domain.ProviderOpenAI:
		keys, err := keySource(cfg, params, name, cfg.OpenAIAPIKey)
		if err != nil {
			return Selection{}, err
		}
		c, err := openai.NewClient(keys, openai.WithModel(cfg.OpenAIModel))
		if err != nil {
			return Selection{}, fmt.Errorf("providers: openai client: %w", err)
		}
		sel.Provider = c
		sel.OpenAI = c
	case domain.ProviderOllama:
		sel.Provider = ollama.NewClient(cfg.OllamaBaseURL, cfg.OllamaModel)
	default:
		return Selection{}, &Error{
			Message: fmt.Sprintf("Invalid LLM provider: %s. Must be 'anthropic', 'openai', or 'ollama'.", cfg.LLMProvider),
			Err:     ErrUnknownProvider,
		}
	}

	// Moderation needs an OpenAI key even when another provider answers.
	if sel.OpenAI == nil && cfg.ModerationEnabled {
		if keys, err := keySource(cfg, params, domain.ProviderOpenAI, cfg.OpenAIAPIKey); err == nil {
			sel.OpenAI, _ = openai.NewClient(keys)
		}
	}
	return sel, nil
}

func keySource(cfg config.Config, params paramstore.Getter, name domain.Provider, key string) (llm.KeySource, error) {
	if key != "" {
		return llm.StaticKey(key), nil
	}
	if cfg.ParamPrefix != "" && params != nil {
		return paramstore.NewTokenSource(params, paramstore.TokenParameterName(cfg.ParamPrefix, string(name)+"-api-key"))
	}
	return nil, &Error{
		Message: fmt.Sprintf("%s API key is not configured. Please set %s_API_KEY in your .env file.", keyLabel(name), envPrefix(name)),
		Err:     ErrNotConfigured,
	}
}

func keyLabel(name domain.Provider) string {
	if name == domain.ProviderOpenAI {
		return "OpenAI"
	}
	return "Anthropic"
}

func envPrefix(name domain.Provider) string {
	if name == domain.ProviderOpenAI {
		return "OPENAI"
	}
	return "ANTHROPIC"
}

// Info describes every backend as configured. A key stored under
// PARAM_PREFIX counts as configured since it is only fetched on first use.
func Info(cfg config.Config) domain.LLMInfo {
	all := map[domain.Provider]domain.ProviderInfo{
		domain.ProviderAnthropic: {
			Name:       displayNames[domain.ProviderAnthropic],
			Model:      orDefault(cfg.AnthropicModel, anthropic.DefaultModel),
			Configured: cfg.AnthropicAPIKey != "" || cfg.ParamPrefix != "",
		},
		domain.ProviderOpenAI: {
			Name:       displayNames[domain.ProviderOpenAI],
			Model:      orDefault(cfg.OpenAIModel, openai.DefaultModel),
			Configured: cfg.OpenAIAPIKey != "" || cfg.ParamPrefix != "",
		},
		domain.ProviderOllama: {
			Name:       displayNames[domain.ProviderOllama],
			Model:      orDefault(cfg.OllamaModel, ollama.DefaultModel),
			Configured: true,
			BaseURL:    orDefault(cfg.OllamaBaseURL, ollama.DefaultBaseURL),
		},
	}

	current := domain.Provider(cfg.LLMProvider)
	if current == "" {
		current = domain.ProviderAnthropic
	}
	return domain.LLMInfo{
		Current:      current,
		CurrentInfo:  all[current],
		AllProviders: all,
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
