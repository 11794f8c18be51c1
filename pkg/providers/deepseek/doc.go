// Package deepseek implements the DeepSeek provider adapter on top of the
// OpenAI-compatible adapter.
package deepseek
