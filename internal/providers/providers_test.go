package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"ai-portfolio/internal/config"
	"ai-portfolio/internal/domain"
)

type fakeGetter struct {
	names []string
	value string
	err   error
}

func (f *fakeGetter) GetParameter(_ context.Context, name string) (string, error) {
	f.names = append(f.names, name)
	return f.value, f.err
}

func TestSelect_DefaultsToAnthropic(t *testing.T) {
	sel, err := Select(config.Config{AnthropicAPIKey: "sk-ant"}, nil)
	require.NoError(t, err)
	require.Equal(t, "anthropic", sel.Provider.Name())
	require.Equal(t, "claude-3-5-sonnet-20241022", sel.Provider.Model())
	require.Nil(t, sel.OpenAI)
}

func TestSelect_OpenAIWithModel(t *testing.T) {
	sel, err := Select(config.Config{LLMProvider: "openai", OpenAIAPIKey: "sk", OpenAIModel: "gpt-4o"}, nil)
	require.NoError(t, err)
	require.Equal(t, "openai", sel.Provider.Name())
	require.Equal(t, "gpt-4o", sel.Provider.Model())
	require.NotNil(t, sel.OpenAI)
}

func TestSelect_OllamaNeedsNoKey(t *testing.T) {
	sel, err := Select(config.Config{LLMProvider: "ollama"}, nil)
	require.NoError(t, err)
	require.Equal(t, "ollama", sel.Provider.Name())
	require.Equal(t, "llama3.2", sel.Provider.Model())
}

func TestSelect_MissingKeys(t *testing.T) {
	_, err := Select(config.Config{LLMProvider: "anthropic"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.EqualError(t, err, "Anthropic API key is not configured. Please set ANTHROPIC_API_KEY in your .env file.")

	_, err = Select(config.Config{LLMProvider: "openai"}, nil)
	require.ErrorIs(t, err, ErrNotConfigured)
	require.EqualError(t, err, "OpenAI API key is not configured. Please set OPENAI_API_KEY in your .env file.")
}

func TestSelect_UnknownProvider(t *testing.T) {
	_, err := Select(config.Config{LLMProvider: "grok"}, nil)
	require.ErrorIs(t, err, ErrUnknownProvider)
	require.EqualError(t, err, "Invalid LLM provider: grok. Must be 'anthropic', 'openai', or 'ollama'.")
}

func TestSelect_KeyFromParameterStore(t *testing.T) {
	getter := &fakeGetter{value: `{"token":"sk-from-ssm"}`}
	sel, err := Select(config.Config{LLMProvider: "openai", ParamPrefix: "/portfolio"}, getter)
	require.NoError(t, err)
	require.NotNil(t, sel.OpenAI)
	// The parameter is read lazily, on the first request.
	require.Empty(t, getter.names)
}

func TestSelect_ModerationClientForOtherProvider(t *testing.T) {
	sel, err := Select(config.Config{
		LLMProvider:       "ollama",
		OpenAIAPIKey:      "sk",
		ModerationEnabled: true,
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "ollama", sel.Provider.Name())
	require.NotNil(t, sel.OpenAI)

	sel, err = Select(config.Config{LLMProvider: "ollama", ModerationEnabled: true}, nil)
	require.NoError(t, err)
	require.Nil(t, sel.OpenAI)
}

func TestInfo(t *testing.T) {
	info := Info(config.Config{
		LLMProvider:     "openai",
		OpenAIAPIKey:    "sk",
		OpenAIModel:     "gpt-4o-mini",
		OllamaBaseURL:   "http://localhost:11434",
		OllamaModel:     "llama3.2",
		AnthropicModel:  "claude-3-5-sonnet-20241022",
		AnthropicAPIKey: "",
	})
	require.Equal(t, domain.ProviderOpenAI, info.Current)
	require.Equal(t, domain.ProviderInfo{Name: "OpenAI", Model: "gpt-4o-mini", Configured: true}, info.CurrentInfo)
	require.Len(t, info.AllProviders, 3)
	require.False(t, info.AllProviders[domain.ProviderAnthropic].Configured)
	require.Equal(t, "Anthropic Claude", info.AllProviders[domain.ProviderAnthropic].Name)

	ollama := info.AllProviders[domain.ProviderOllama]
	require.True(t, ollama.Configured)
	require.Equal(t, "Ollama (Local)", ollama.Name)
	require.Equal(t, "http://localhost:11434", ollama.BaseURL)
}

func TestInfo_DefaultsCurrent(t *testing.T) {
	info := Info(config.Config{})
	require.Equal(t, domain.ProviderAnthropic, info.Current)
	require.Equal(t, "claude-3-5-sonnet-20241022", info.CurrentInfo.Model)
}

func TestError_Unwrap(t *testing.T) {
	err := error(&Error{Message: "x", Err: ErrNotConfigured})
	require.True(t, errors.Is(err, ErrNotConfigured))
}
