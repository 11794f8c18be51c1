package providers

import (
	"encoding/json"
	"time"
)

// Message is one chat turn in the gateway's neutral format.
type Message struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content string `json:"content"`
}

// TokenUsage is the upstream's own token accounting.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionRequest is a chat request before adapter translation.
type CompletionRequest struct {
	// Model falls back to the provider's configured model when empty.
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	// Temperature is only forwarded by OpenAI-compatible adapters.
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	// Metadata (license ID, request ID) stays inside the gateway.
	Metadata map[string]string `json:"-"`
}

// CompletionResponse is an upstream answer normalized by its adapter.
type CompletionResponse struct {
	ID           string     `json:"id"`
	Model        string     `json:"model"`
	Content      string     `json:"content"`
	FinishReason string     `json:"finish_reason"`
	Usage        TokenUsage `json:"usage"`
	// UsageReported is false when the upstream sent no usage block.
	UsageReported bool `json:"-"`
	// Raw is returned to the client verbatim.
	Raw     json.RawMessage `json:"-"`
	Created int64           `json:"created"`
}

// ReportedTokens returns the provider-reported token total and whether the
// provider reported one at all.
func (r *CompletionResponse) ReportedTokens() (int64, bool) {
	if r == nil || !r.UsageReported {
		return 0, false
	}
	return int64(r.Usage.TotalTokens), true
}

// ProviderHealth is the passive health of one provider.
type ProviderHealth struct {
	IsHealthy             bool      `json:"is_healthy"`
	LastCheck             time.Time `json:"last_check"`
	LastError             error     `json:"-"`
	ConsecutiveFailures   int       `json:"consecutive_failures"`
	LastSuccessfulRequest time.Time `json:"last_successful_request,omitempty"`
	TotalRequests         int64     `json:"total_requests"`
	FailedRequests        int64     `json:"failed_requests"`
}

// ProviderConfig is the adapter-facing subset of config.ProviderConfig.
type ProviderConfig struct {
	Name string
	Type string
	// BaseURL includes the API version segment.
	BaseURL             string
	APIKey              string
	Model               string
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	IdleConnTimeout     time.Duration
}

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Normalized finish reasons.
const (
	FinishReasonStop          = "stop"
	FinishReasonLength        = "length"
	FinishReasonContentFilter = "content_filter"
)
