package providers

import (
	"context"
	"encoding/json"
	"sync"

	"chatello/gateway/pkg/providers"
)

// MockProvider is an in-memory implementation of providers.Provider for
// testing callers of the provider layer without HTTP.
type MockProvider struct {
	name string

	mu       sync.Mutex
	calls    int
	lastReq  *providers.CompletionRequest
	response *providers.CompletionResponse
	err      error
	healthy  bool

	// Hook, when set, runs on every call before the canned answer is returned.
	Hook func(ctx context.Context, req *providers.CompletionRequest) error
}

// NewMockProvider creates a mock provider answering with a fixed reply that
// reports 30 tokens.
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{
		name:    name,
		healthy: true,
		response: &providers.CompletionResponse{
			ID:            "mock-1",
			Model:         "mock-model",
			Content:       "mock response",
			FinishReason:  providers.FinishReasonStop,
			Usage:         providers.TokenUsage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
			UsageReported: true,
			Raw:           json.RawMessage(`{"id":"mock-1","content":"mock response"}`),
		},
	}
}

// SetResponse replaces the canned response.
func (m *MockProvider) SetResponse(resp *providers.CompletionResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = resp
	m.err = nil
}

// SetError makes every subsequent call fail with err.
func (m *MockProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// SetHealthy sets the reported health status.
func (m *MockProvider) SetHealthy(healthy bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
}

// Calls returns how many times SendCompletion was invoked.
func (m *MockProvider) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastRequest returns the most recent request, or nil.
func (m *MockProvider) LastRequest() *providers.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastReq
}

// SendCompletion records the call and returns the canned answer.
func (m *MockProvider) SendCompletion(ctx context.Context, req *providers.CompletionRequest) (*providers.CompletionResponse, error) {
	m.mu.Lock()
	m.calls++
	m.lastReq = req
	hook := m.Hook
	resp, err := m.response, m.err
	m.mu.Unlock()

	if hook != nil {
		if hookErr := hook(ctx, req); hookErr != nil {
			return nil, hookErr
		}
	}
	if err != nil {
		return nil, err
	}
	out := *resp
	if out.Model == "" {
		out.Model = req.Model
	}
	return &out, nil
}

// GetName returns the provider name.
func (m *MockProvider) GetName() string {
	return m.name
}

// GetType returns the provider type.
func (m *MockProvider) GetType() string {
	return "mock"
}

// GetConfig returns the provider configuration.
func (m *MockProvider) GetConfig() providers.ProviderConfig {
	return providers.ProviderConfig{Name: m.name, Type: "mock", Model: "mock-model"}
}

// IsHealthy returns the current health status.
func (m *MockProvider) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.healthy
}

// GetHealth returns detailed health information.
func (m *MockProvider) GetHealth() providers.ProviderHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	return providers.ProviderHealth{IsHealthy: m.healthy, TotalRequests: int64(m.calls)}
}

// Close closes the provider.
func (m *MockProvider) Close() error {
	return nil
}
