package domain

// Provider names an LLM backend.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
)

// Providers lists the supported backends in display order.
var Providers = []Provider{ProviderAnthropic, ProviderOpenAI, ProviderOllama}

// ProviderInfo describes one backend's configuration for display and debugging.
type ProviderInfo struct {
	Name       string `json:"name"`
	Model      string `json:"model"`
	Configured bool   `json:"configured"`
	BaseURL    string `json:"baseURL,omitempty"`
}

// LLMInfo is the payload of the llm-info endpoint.
type LLMInfo struct {
	Success      bool                      `json:"success"`
	Error        string                    `json:"error,omitempty"`
	Current      Provider                  `json:"current"`
	CurrentInfo  ProviderInfo              `json:"currentInfo"`
	AllProviders map[Provider]ProviderInfo `json:"allProviders"`
}

// QuickQuestion is a predefined landing-page prompt.
type QuickQuestion struct {
	Key      string `json:"key"`
	Question string `json:"question"`
	Color    string `json:"color"`
	Icon     string `json:"icon"`
}
