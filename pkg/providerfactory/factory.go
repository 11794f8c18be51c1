package providerfactory

import (
	"fmt"
	"log/slog"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/providers"
	"chatello/gateway/pkg/providers/anthropic"
	"chatello/gateway/pkg/providers/deepseek"
	"chatello/gateway/pkg/providers/openai"
)

// NewProvider creates a new provider instance based on the configuration.
//
// Supported provider types:
//   - "openai": OpenAI chat completions API
//   - "anthropic": Anthropic Messages API
//   - "deepseek": DeepSeek's OpenAI-compatible API
//
// The provider type is determined from the config.Type field. If not specified,
// it is inferred from the provider name.
//
// Example:
//
//	provider, err := NewProvider(providers.ProviderConfig{
//	    Name:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  "sk-...",
//	})
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
func NewProvider(cfg providers.ProviderConfig) (providers.Provider, error) {
	providerType := cfg.Type
	if providerType == "" {
		providerType = inferProviderType(cfg.Name)
		cfg.Type = providerType
	}

	slog.Debug("creating provider",
		"name", cfg.Name,
		"type", providerType,
		"base_url", cfg.BaseURL,
	)

	var provider providers.Provider
	var err error

	switch providerType {
	case "openai":
		provider, err = openai.NewProvider(cfg)

	case "anthropic":
		provider, err = anthropic.NewProvider(cfg)

	case "deepseek":
		provider, err = deepseek.NewProvider(cfg)

	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "type",
			Message:  fmt.Sprintf("unsupported provider type: %q (supported: openai, anthropic, deepseek)", providerType),
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
	}

	return provider, nil
}

// AdapterConfig converts a provider section of the gateway configuration into
// the adapter configuration.
func AdapterConfig(name string, pc config.ProviderConfig) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:    name,
		Type:    inferProviderType(name),
		BaseURL: pc.BaseURL,
		APIKey:  pc.APIKey,
		Model:   pc.Model,
		Timeout: pc.Timeout,
	}
}

// inferProviderType infers the provider type from the provider name.
func inferProviderType(name string) string {
	switch name {
	case "anthropic", "claude":
		return "anthropic"
	case "deepseek":
		return "deepseek"
	default:
		return "openai"
	}
}
