// Package openai implements the OpenAI provider adapter.
//
// This package provides an implementation of the providers.Provider interface
// for OpenAI's chat completions API. The same wire format is used by
// DeepSeek, which wraps this adapter.
//
// # Basic Usage
//
//	config := providers.ProviderConfig{
//	    Name:    "openai",
//	    BaseURL: "https://api.openai.com/v1",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Model:   "gpt-4o-mini",
//	    Timeout: 30 * time.Second,
//	}
//
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	resp, err := provider.SendCompletion(ctx, &providers.CompletionRequest{
//	    Messages:    []providers.Message{{Role: "user", Content: "Hello!"}},
//	    MaxTokens:   1000,
//	    Temperature: 0.7,
//	})
//
// # Token Usage
//
// The total_tokens field of the usage block is reported as the token count.
// A response without a usage block leaves UsageReported false so callers can
// fall back to an estimate.
//
// # Raw Response
//
// The provider's response body is kept in CompletionResponse.Raw and passed
// through to clients unchanged.
package openai
