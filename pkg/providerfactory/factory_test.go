package providerfactory

import (
	"errors"
	"testing"
	"time"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/providers"
)

func TestNewProvider_Types(t *testing.T) {
	tests := []struct {
		name         string
		providerName string
		providerType string
		expectedType string
	}{
		{name: "openai", providerName: "openai", providerType: "openai", expectedType: "openai"},
		{name: "anthropic", providerName: "anthropic", providerType: "anthropic", expectedType: "anthropic"},
		{name: "deepseek", providerName: "deepseek", providerType: "deepseek", expectedType: "deepseek"},
		{name: "inferred anthropic", providerName: "anthropic", expectedType: "anthropic"},
		{name: "inferred deepseek", providerName: "deepseek", expectedType: "deepseek"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewProvider(providers.ProviderConfig{
				Name:    tt.providerName,
				Type:    tt.providerType,
				APIKey:  "test-key",
				Timeout: 30 * time.Second,
			})
			if err != nil {
				t.Fatalf("NewProvider() failed: %v", err)
			}
			defer provider.Close()

			if provider.GetName() != tt.providerName {
				t.Errorf("Expected name %s, got %s", tt.providerName, provider.GetName())
			}
			if provider.GetType() != tt.expectedType {
				t.Errorf("Expected type %s, got %s", tt.expectedType, provider.GetType())
			}
		})
	}
}

func TestNewProvider_UnsupportedType(t *testing.T) {
	_, err := NewProvider(providers.ProviderConfig{
		Name:   "mistral",
		Type:   "mistral",
		APIKey: "test-key",
	})
	if err == nil {
		t.Fatal("Expected error for unsupported type, got nil")
	}

	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Field != "type" {
		t.Errorf("Expected field type, got %s", cfgErr.Field)
	}
}

func TestNewProvider_MissingAPIKey(t *testing.T) {
	_, err := NewProvider(providers.ProviderConfig{Name: "openai"})

	var cfgErr *providers.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Expected ConfigError, got %T: %v", err, err)
	}
	if cfgErr.Field != "api_key" {
		t.Errorf("Expected field api_key, got %s", cfgErr.Field)
	}
}

func TestAdapterConfig(t *testing.T) {
	pc := config.ProviderConfig{
		BaseURL: "https://api.deepseek.com/v1",
		APIKey:  "ds-key",
		Model:   "deepseek-chat",
		Timeout: 10 * time.Second,
	}

	got := AdapterConfig("deepseek", pc)
	if got.Name != "deepseek" || got.Type != "deepseek" {
		t.Errorf("Expected deepseek/deepseek, got %s/%s", got.Name, got.Type)
	}
	if got.BaseURL != pc.BaseURL || got.APIKey != pc.APIKey || got.Model != pc.Model || got.Timeout != pc.Timeout {
		t.Errorf("Expected fields copied from section, got %+v", got)
	}
}

func TestInferProviderType(t *testing.T) {
	tests := map[string]string{
		"openai":    "openai",
		"anthropic": "anthropic",
		"claude":    "anthropic",
		"deepseek":  "deepseek",
		"local":     "openai",
	}

	for name, expected := range tests {
		if got := inferProviderType(name); got != expected {
			t.Errorf("inferProviderType(%q): Expected %s, got %s", name, expected, got)
		}
	}
}
