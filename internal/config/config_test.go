package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "anthropic", cfg.LLMProvider)
	require.Equal(t, "claude-3-5-sonnet-20241022", cfg.AnthropicModel)
	require.Equal(t, "gpt-4o-mini", cfg.OpenAIModel)
	require.Equal(t, "http://localhost:11434", cfg.OllamaBaseURL)
	require.Equal(t, "llama3.2", cfg.OllamaModel)
	require.Equal(t, StateNone, cfg.StateBackend)
	require.Equal(t, 2, cfg.MaxSteps)
	require.Equal(t, 300, cfg.MaxQuestionLength)
	require.False(t, cfg.ModerationEnabled)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LLM_PROVIDER", " OpenAI ")
	t.Setenv("OPENAI_API_KEY", " sk-env ")
	t.Setenv("PARAM_PREFIX", "/portfolio/")
	t.Setenv("MAX_STEPS", "4")
	t.Setenv("MODERATION_ENABLED", "true")
	t.Setenv("STATE_BACKEND", "SQLite")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "openai", cfg.LLMProvider)
	require.Equal(t, "sk-env", cfg.OpenAIAPIKey)
	require.Equal(t, "/portfolio", cfg.ParamPrefix)
	require.Equal(t, 4, cfg.MaxSteps)
	require.True(t, cfg.ModerationEnabled)
	require.Equal(t, StateSQLite, cfg.StateBackend)
}

func TestLoad_ConfigFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portfolio.yaml")
	require.NoError(t, os.WriteFile(path, []byte("llm_provider: ollama\nollama_model: qwen2.5\nmax_history_messages: 12\n"), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("OLLAMA_MODEL", "mistral")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ollama", cfg.LLMProvider)
	require.Equal(t, "mistral", cfg.OllamaModel)
	require.Equal(t, 12, cfg.MaxHistoryMessages)
}

func TestLoad_MissingConfigFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorContains(t, err, "config: read")
}

func TestValidate(t *testing.T) {
	base := Config{
		StateBackend:       StateNone,
		LogFormat:          "text",
		MaxSteps:           2,
		MaxQuestionLength:  300,
		MaxHistoryMessages: 40,
	}
	require.NoError(t, base.Validate())

	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"dynamodb without table", func(c *Config) { c.StateBackend = StateDynamoDB }, "STATE_TABLE"},
		{"sqlite without path", func(c *Config) { c.StateBackend = StateSQLite }, "SQLITE_PATH"},
		{"unknown backend", func(c *Config) { c.StateBackend = "redis" }, "unknown STATE_BACKEND"},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }, "unknown LOG_FORMAT"},
		{"zero steps", func(c *Config) { c.MaxSteps = 0 }, "MAX_STEPS"},
		{"zero question length", func(c *Config) { c.MaxQuestionLength = 0 }, "MAX_QUESTION_LENGTH"},
		{"zero history", func(c *Config) { c.MaxHistoryMessages = 0 }, "MAX_HISTORY_MESSAGES"},
		{"negative turns", func(c *Config) { c.MaxConversationTurns = -1 }, "MAX_CONVERSATION_TURNS"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base
			tc.mutate(&cfg)
			require.ErrorContains(t, cfg.Validate(), tc.wantErr)
		})
	}
}
