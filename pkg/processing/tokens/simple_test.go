package tokens

import (
	"strings"
	"testing"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/providers"
)

func TestSimpleEstimator_EstimateMessages(t *testing.T) {
	estimator := NewSimpleEstimator(config.EstimatorConfig{CharsPerToken: 4, OutputCap: 500, Fallback: 1000})

	tests := []struct {
		name       string
		messages   []providers.Message
		maxTokens  int
		prompt     int
		completion int
		total      int
		fallback   bool
	}{
		{
			name:      "empty conversation",
			maxTokens: 1000,
			total:     1000,
			fallback:  true,
		},
		{
			name:       "output capped",
			messages:   []providers.Message{{Role: "user", Content: strings.Repeat("a", 400)}},
			maxTokens:  1000,
			prompt:     100,
			completion: 500,
			total:      600,
		},
		{
			name: "small max tokens",
			messages: []providers.Message{
				{Role: "system", Content: strings.Repeat("b", 10)},
				{Role: "user", Content: strings.Repeat("c", 11)},
			},
			maxTokens:  50,
			prompt:     5,
			completion: 50,
			total:      55,
		},
		{
			name:       "rounds down",
			messages:   []providers.Message{{Role: "user", Content: "abc"}},
			maxTokens:  0,
			prompt:     0,
			completion: 0,
			total:      0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est := estimator.EstimateMessages(tt.messages, tt.maxTokens)
			if est.PromptTokens != tt.prompt {
				t.Errorf("Expected prompt %d, got %d", tt.prompt, est.PromptTokens)
			}
			if est.EstimatedCompletionTokens != tt.completion {
				t.Errorf("Expected completion %d, got %d", tt.completion, est.EstimatedCompletionTokens)
			}
			if est.TotalTokens != tt.total {
				t.Errorf("Expected total %d, got %d", tt.total, est.TotalTokens)
			}
			if est.Fallback != tt.fallback {
				t.Errorf("Expected fallback %v, got %v", tt.fallback, est.Fallback)
			}
		})
	}
}

func TestSimpleEstimator_CountsRunes(t *testing.T) {
	estimator := NewSimpleEstimator(config.EstimatorConfig{})

	// Eight two-byte runes are 16 bytes but 8 characters.
	if got := estimator.EstimateText("éééééééé"); got != 2 {
		t.Errorf("Expected 2 tokens, got %d", got)
	}
}

func TestNewSimpleEstimator_Defaults(t *testing.T) {
	estimator := NewSimpleEstimator(config.EstimatorConfig{})

	est := estimator.EstimateMessages(nil, 0)
	if est.TotalTokens != config.DefaultEstimatorFallback {
		t.Errorf("Expected fallback %d, got %d", config.DefaultEstimatorFallback, est.TotalTokens)
	}

	est = estimator.EstimateMessages([]providers.Message{{Role: "user", Content: "hi"}}, 10000)
	if est.EstimatedCompletionTokens != config.DefaultEstimatorOutputCap {
		t.Errorf("Expected completion cap %d, got %d", config.DefaultEstimatorOutputCap, est.EstimatedCompletionTokens)
	}
}
