package providers

import "context"

// Provider is an upstream chat completion API. The gate calls exactly one
// Provider per licensed chat request and meters the reported tokens.
//
// Implementations make a single attempt per SendCompletion and return one of
// the typed errors in this package on failure. A failed call is never metered.
type Provider interface {
	SendCompletion(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// GetName is the configured name the gate routes on ("openai").
	GetName() string
	// GetType selects the wire format ("openai", "anthropic", "deepseek").
	GetType() string
	GetConfig() ProviderConfig

	// IsHealthy and GetHealth expose passive health derived from real
	// request outcomes; there is no background probing.
	IsHealthy() bool
	GetHealth() ProviderHealth

	Close() error
}
