package providers

import (
	"errors"
	"testing"
	"time"

	"chatello/gateway/pkg/providers"
)

// TestConfig returns a test provider configuration.
func TestConfig(name, providerType string) providers.ProviderConfig {
	return providers.ProviderConfig{
		Name:                name,
		Type:                providerType,
		BaseURL:             "http://localhost:8080",
		APIKey:              "test-key",
		Timeout:             5 * time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 5,
		IdleConnTimeout:     30 * time.Second,
	}
}

// TestConfigWithURL returns a test config with a specific base URL.
func TestConfigWithURL(name, providerType, baseURL string) providers.ProviderConfig {
	config := TestConfig(name, providerType)
	config.BaseURL = baseURL
	return config
}

// TestCompletionRequest creates a test completion request.
func TestCompletionRequest(model string, messages ...providers.Message) *providers.CompletionRequest {
	return &providers.CompletionRequest{
		Model:       model,
		Messages:    messages,
		Temperature: 0.7,
		MaxTokens:   100,
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertErrorType fails the test if err does not match the type of target.
func AssertErrorType(t *testing.T, err error, target interface{}) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var ok bool
	switch target.(type) {
	case *providers.AuthError:
		var e *providers.AuthError
		ok = errors.As(err, &e)
	case *providers.RateLimitError:
		var e *providers.RateLimitError
		ok = errors.As(err, &e)
	case *providers.TimeoutError:
		var e *providers.TimeoutError
		ok = errors.As(err, &e)
	case *providers.ProviderError:
		var e *providers.ProviderError
		ok = errors.As(err, &e)
	case *providers.ParseError:
		var e *providers.ParseError
		ok = errors.As(err, &e)
	case *providers.ValidationError:
		var e *providers.ValidationError
		ok = errors.As(err, &e)
	case *providers.ConfigError:
		var e *providers.ConfigError
		ok = errors.As(err, &e)
	default:
		t.Fatalf("unknown error type: %T", target)
	}
	if !ok {
		t.Fatalf("expected %T, got %T: %v", target, err, err)
	}
}
