// Package anthropic implements the Anthropic provider adapter for the
// Messages API.
//
// Requests are sent to {base_url}/messages with the x-api-key and
// anthropic-version headers. System messages are lifted into the top-level
// system field; temperature is not forwarded. The reported token count is
// input_tokens + output_tokens.
package anthropic
