// Package providers implements a unified abstraction layer for the AI
// providers the gateway proxies to.
//
// # Overview
//
// The providers package provides a consistent interface for interacting with
// OpenAI, Anthropic, and DeepSeek. It normalizes requests and responses,
// manages connections, and tracks provider health from real traffic.
//
// # Architecture
//
// The package is organized into several layers:
//
//  1. Provider Interface - Defines the contract all providers must implement
//  2. Base HTTP Provider - Common HTTP client logic (connection pooling, timeouts, error classification)
//  3. Provider Adapters - openai, anthropic, and deepseek subpackages
//  4. Provider Factory - providerfactory builds adapters from configuration and keys them by name
//
// # Basic Usage
//
//	provider, err := openai.NewProvider(providers.ProviderConfig{
//	    Name:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Timeout: 30 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.SendCompletion(ctx, &providers.CompletionRequest{
//	    Messages: []providers.Message{{Role: "user", Content: "Hello!"}},
//	})
//
// # Single Attempt
//
// A completion is attempted exactly once. The caller bounds it with a
// context deadline; a fired deadline surfaces as a TimeoutError.
//
// # Health
//
// Health is passive. Every request outcome is folded into ProviderHealth and
// a provider reports unhealthy after UnhealthyThreshold consecutive failures
// (network errors, timeouts, 5xx, and rejected credentials). Client errors
// such as 400 and 429 do not count. One success restores it.
//
// # Error Handling
//
// The package defines specific error types for common failure scenarios:
//
//   - ProviderError: Non-2xx answers and network errors
//   - AuthError: Authentication failures (HTTP 401/403)
//   - RateLimitError: Rate limit exceeded (HTTP 429)
//   - TimeoutError: Request timeout
//   - ParseError: Response parsing failure
//   - ValidationError: Invalid request
//   - ConfigError: Invalid adapter configuration
//
// ErrorType maps any of them to a short label for logs and metrics, and
// StatusCode recovers the upstream HTTP status where there was one.
//
// # Thread Safety
//
// All provider implementations are safe for concurrent use.
package providers
