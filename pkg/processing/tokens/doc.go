// Package tokens estimates token usage for chat requests.
//
// The estimate is only used when a provider answers without a usage block.
// It is a heuristic: prompt characters (runes, not bytes) divided by
// chars_per_token, plus min(max_tokens, output_cap). A request with no
// messages is charged the flat fallback. Usage records written from an
// estimate are flagged as estimated.
//
//	estimator := tokens.NewSimpleEstimator(cfg.Gate.Estimator)
//	est := estimator.EstimateMessages(messages, 1000)
//	fmt.Println(est.TotalTokens)
package tokens
