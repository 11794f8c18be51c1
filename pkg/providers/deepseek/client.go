package deepseek

import (
	"log/slog"

	"chatello/gateway/pkg/providers"
	"chatello/gateway/pkg/providers/openai"
)

// Defaults for the DeepSeek API.
const (
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"
)

// Provider is the DeepSeek provider adapter. DeepSeek speaks the OpenAI chat
// completions format, so requests and responses go through the OpenAI adapter
// with DeepSeek's endpoint and default model.
type Provider struct {
	*openai.Provider
}

// NewProvider creates a new DeepSeek provider instance.
func NewProvider(config providers.ProviderConfig) (*Provider, error) {
	if config.Name == "" {
		return nil, &providers.ConfigError{
			Provider: "deepseek",
			Field:    "name",
			Message:  "provider name is required",
		}
	}

	config.Type = "deepseek"
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}

	openaiProvider, err := openai.NewProvider(config)
	if err != nil {
		return nil, err
	}

	slog.Debug("DeepSeek provider initialized", "provider", config.Name)

	return &Provider{Provider: openaiProvider}, nil
}

// GetType returns "deepseek" as the provider type.
func (p *Provider) GetType() string {
	return "deepseek"
}
