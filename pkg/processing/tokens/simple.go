package tokens

import (
	"unicode/utf8"

	"chatello/gateway/pkg/config"
	"chatello/gateway/pkg/providers"
)

// SimpleEstimator implements character-based token estimation: input
// characters divided by a fixed ratio, plus the requested completion size up
// to a cap.
type SimpleEstimator struct {
	charsPerToken float64
	outputCap     int
	fallback      int
}

// NewSimpleEstimator creates a new character-based token estimator. Zero
// fields in cfg take the package defaults.
func NewSimpleEstimator(cfg config.EstimatorConfig) *SimpleEstimator {
	e := &SimpleEstimator{
		charsPerToken: cfg.CharsPerToken,
		outputCap:     cfg.OutputCap,
		fallback:      cfg.Fallback,
	}
	if e.charsPerToken <= 0 {
		e.charsPerToken = config.DefaultCharsPerToken
	}
	if e.outputCap <= 0 {
		e.outputCap = config.DefaultEstimatorOutputCap
	}
	if e.fallback <= 0 {
		e.fallback = config.DefaultEstimatorFallback
	}
	return e
}

// EstimateText estimates tokens for a single text string, rounding down.
func (e *SimpleEstimator) EstimateText(text string) int {
	return int(float64(utf8.RuneCountInString(text)) / e.charsPerToken)
}

// EstimateMessages estimates tokens for a list of messages and a completion
// of at most maxTokens. An empty conversation is charged the fallback.
func (e *SimpleEstimator) EstimateMessages(messages []providers.Message, maxTokens int) Estimate {
	if len(messages) == 0 {
		return Estimate{TotalTokens: e.fallback, Fallback: true}
	}

	chars := 0
	for _, msg := range messages {
		chars += utf8.RuneCountInString(msg.Content)
	}

	prompt := int(float64(chars) / e.charsPerToken)
	completion := maxTokens
	if completion > e.outputCap {
		completion = e.outputCap
	}
	if completion < 0 {
		completion = 0
	}

	return Estimate{
		PromptTokens:              prompt,
		EstimatedCompletionTokens: completion,
		TotalTokens:               prompt + completion,
	}
}
