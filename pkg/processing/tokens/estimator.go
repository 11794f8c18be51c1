package tokens

import "chatello/gateway/pkg/providers"

// Estimator estimates token counts for a chat request whose provider response
// carried no usage block.
type Estimator interface {
	// EstimateMessages estimates the tokens charged for messages plus a
	// completion of at most maxTokens.
	EstimateMessages(messages []providers.Message, maxTokens int) Estimate
}

// Estimate contains detailed token estimation results.
type Estimate struct {
	// PromptTokens is the estimated number of tokens in the prompt.
	PromptTokens int

	// EstimatedCompletionTokens is the estimated number of completion
	// tokens, derived from max_tokens and capped.
	EstimatedCompletionTokens int

	// TotalTokens is the total estimated tokens (prompt + completion).
	TotalTokens int

	// Fallback is true when nothing could be measured and the flat fallback
	// was charged.
	Fallback bool
}
