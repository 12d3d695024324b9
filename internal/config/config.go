// Package config loads service settings from the environment and an
// optional config file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

const (
	StateNone     = "none"
	StateDynamoDB = "dynamodb"
	StateSQLite   = "sqlite"
)

// Config holds every setting the binaries read. Keys match the lower-cased
// environment variable names, so LLM_PROVIDER and llm_provider in a config
// file set the same field.
type Config struct {
	LLMProvider string `mapstructure:"llm_provider"`

	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	AnthropicModel  string `mapstructure:"anthropic_model"`
	OpenAIAPIKey    string `mapstructure:"openai_api_key"`
	OpenAIModel     string `mapstructure:"openai_model"`
	OllamaBaseURL   string `mapstructure:"ollama_base_url"`
	OllamaModel     string `mapstructure:"ollama_model"`

	// ParamPrefix enables SSM lookup of API keys missing from the environment.
	ParamPrefix string `mapstructure:"param_prefix"`

	StateBackend string `mapstructure:"state_backend"`
	StateTable   string `mapstructure:"state_table"`
	SQLitePath   string `mapstructure:"sqlite_path"`

	HTTPAddr  string `mapstructure:"http_addr"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	MaxSteps             int  `mapstructure:"max_steps"`
	MaxQuestionLength    int  `mapstructure:"max_question_length"`
	MaxHistoryMessages   int  `mapstructure:"max_history_messages"`
	MaxConversationTurns int  `mapstructure:"max_conversation_turns"`
	ModerationEnabled    bool `mapstructure:"moderation_enabled"`

	OtelEnabled   bool   `mapstructure:"otel_enabled"`
	OtelOutputDir string `mapstructure:"otel_output_dir"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm_provider", "anthropic")
	v.SetDefault("anthropic_api_key", "")
	v.SetDefault("anthropic_model", "claude-3-5-sonnet-20241022")
	v.SetDefault("openai_api_key", "")
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("ollama_base_url", "http://localhost:11434")
	v.SetDefault("ollama_model", "llama3.2")
	v.SetDefault("param_prefix", "")
	v.SetDefault("state_backend", StateNone)
	v.SetDefault("state_table", "")
	v.SetDefault("sqlite_path", "portfolio.db")
	v.SetDefault("http_addr", ":3000")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("log_file", "")
	v.SetDefault("max_steps", 2)
	v.SetDefault("max_question_length", 300)
	v.SetDefault("max_history_messages", 40)
	v.SetDefault("max_conversation_turns", 0)
	v.SetDefault("moderation_enabled", false)
	v.SetDefault("otel_enabled", false)
	v.SetDefault("otel_output_dir", "telemetry")
	v.SetDefault("config_file", "")
}

// Load reads defaults, then the config file at path (or CONFIG_FILE when
// path is empty), then the environment. Later sources win.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config_file")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.LLMProvider = strings.ToLower(strings.TrimSpace(c.LLMProvider))
	c.StateBackend = strings.ToLower(strings.TrimSpace(c.StateBackend))
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))
	c.AnthropicAPIKey = strings.TrimSpace(c.AnthropicAPIKey)
	c.OpenAIAPIKey = strings.TrimSpace(c.OpenAIAPIKey)
	c.ParamPrefix = strings.TrimRight(strings.TrimSpace(c.ParamPrefix), "/")
	if c.StateBackend == "" {
		c.StateBackend = StateNone
	}
}

// Validate checks settings that would otherwise fail late. The provider
// name is checked when the provider is selected.
func (c Config) Validate() error {
	switch c.StateBackend {
	case StateNone:
	case StateDynamoDB:
		if c.StateTable == "" {
			return errors.New("config: STATE_TABLE is required when STATE_BACKEND=dynamodb")
		}
	case StateSQLite:
		if c.SQLitePath == "" {
			return errors.New("config: SQLITE_PATH is required when STATE_BACKEND=sqlite")
		}
	default:
		return fmt.Errorf("config: unknown STATE_BACKEND %q", c.StateBackend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: unknown LOG_FORMAT %q", c.LogFormat)
	}

	if c.MaxSteps < 1 {
		return errors.New("config: MAX_STEPS must be at least 1")
	}
	if c.MaxQuestionLength < 1 {
		return errors.New("config: MAX_QUESTION_LENGTH must be at least 1")
	}
	if c.MaxHistoryMessages < 1 {
		return errors.New("config: MAX_HISTORY_MESSAGES must be at least 1")
	}
	if c.MaxConversationTurns < 0 {
		return errors.New("config: MAX_CONVERSATION_TURNS must not be negative")
	}
	return nil
}
