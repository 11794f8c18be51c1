package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chatello/gateway/pkg/gate"
	"chatello/gateway/pkg/licensing"
	"chatello/gateway/pkg/providers"
	"chatello/gateway/pkg/proxy"
	"chatello/gateway/pkg/telemetry/logging"
)

// MessageMissingMessages is returned for a chat body without messages.
const MessageMissingMessages = "Missing messages"

// ChatGate is the part of the request gate the chat endpoint drives.
type ChatGate interface {
	Authenticate(ctx context.Context, key string, now time.Time) (*licensing.License, *licensing.Plan, error)
	Chat(ctx context.Context, req *gate.ChatRequest) (*gate.ChatResult, error)
	Now() time.Time
}

// ChatMessage is one message of a chat request. Content is either a string
// or an array of typed content parts.
type ChatMessage struct {
	Role    string `json:"role" validate:"required,oneof=system user assistant"`
	Content any    `json:"content"`
}

// ChatRequest is the body of POST /api/chat. api_provider is accepted as an
// alias of provider.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages" validate:"required,min=1,dive"`
	Provider    string        `json:"provider"`
	APIProvider string        `json:"api_provider"`
	Model       string        `json:"model"`
	MaxTokens   int           `json:"max_tokens" validate:"gte=0"`
	Temperature *float64      `json:"temperature" validate:"omitempty,gte=0,lte=2"`
}

// ValidationMessage implements the proxy message override.
func (r *ChatRequest) ValidationMessage(field, tag string) string {
	if field == "Messages" {
		return MessageMissingMessages
	}
	return ""
}

// providerName returns the requested provider, preferring provider over
// api_provider.
func (r *ChatRequest) providerName() string {
	if r.Provider != "" {
		return r.Provider
	}
	return r.APIProvider
}

// ChatUsage echoes what a chat call was charged.
type ChatUsage struct {
	Tokens         int64 `json:"tokens"`
	Estimated      bool  `json:"estimated,omitempty"`
	ResponseTimeMS int64 `json:"response_time_ms"`
}

// ChatResponse is the success body of POST /api/chat. Response is the
// provider's answer, passed through unchanged.
type ChatResponse struct {
	Success  bool            `json:"success"`
	Provider string          `json:"provider"`
	Model    string          `json:"model"`
	Response json.RawMessage `json:"response"`
	Content  string          `json:"content"`
	Usage    ChatUsage       `json:"usage"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ChatHandler proxies metered chat requests through the gate.
type ChatHandler struct {
	gate   ChatGate
	header string
	logger *slog.Logger
}

// NewChatHandler creates a chat handler reading the license key from header.
func NewChatHandler(g ChatGate, header string, logger *slog.Logger) *ChatHandler {
	return &ChatHandler{gate: g, header: header, logger: logging.OrDefault(logger)}
}

// ServeHTTP implements http.Handler.
//
// The license is checked before the body, so an unauthenticated request is
// answered with 401 even when its body is malformed. Limits are only evaluated
// for a well-formed request; a malformed one never counts as a rejection.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	key := proxy.ExtractLicenseKey(r, h.header)

	var body ChatRequest
	if err := proxy.DecodeAndValidate(r, &body); err != nil {
		if _, _, authErr := h.gate.Authenticate(ctx, key, h.gate.Now()); authErr != nil {
			proxy.HandleError(w, r, authErr, h.logger)
			return
		}
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	res, err := h.gate.Chat(ctx, &gate.ChatRequest{
		LicenseKey:  key,
		Provider:    body.providerName(),
		Model:       body.Model,
		Messages:    convertMessages(body.Messages),
		MaxTokens:   body.MaxTokens,
		Temperature: body.Temperature,
		IPAddress:   proxy.ClientIP(r),
		UserAgent:   r.UserAgent(),
	})
	if err != nil {
		proxy.HandleError(w, r, err, h.logger)
		return
	}

	raw := json.RawMessage(res.Response)
	if len(raw) == 0 || !json.Valid(raw) {
		raw = json.RawMessage("null")
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, &ChatResponse{
		Success:  true,
		Provider: res.Provider,
		Model:    res.Model,
		Response: raw,
		Content:  res.Content,
		Usage: ChatUsage{
			Tokens:         res.Tokens,
			Estimated:      res.Estimated,
			ResponseTimeMS: res.ResponseTimeMS,
		},
		Warnings: res.Warnings,
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to write chat response", "error", err)
	}
}

// convertMessages maps request messages to provider messages, flattening
// multimodal content to text.
func convertMessages(msgs []ChatMessage) []providers.Message {
	out := make([]providers.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, providers.Message{
			Role:    m.Role,
			Content: convertMessageContent(m.Content),
		})
	}
	return out
}

// convertMessageContent converts message content to a string.
// Content can be a string or an array of content parts (multimodal).
func convertMessageContent(content any) string {
	if content == nil {
		return ""
	}

	if str, ok := content.(string); ok {
		return str
	}

	if arr, ok := content.([]any); ok {
		return convertMultimodalContent(arr)
	}

	return fmt.Sprintf("%v", content)
}

// convertMultimodalContent extracts the text parts of a content array and
// joins them with spaces. Images and other media are skipped.
func convertMultimodalContent(parts []any) string {
	var textParts []string

	for _, part := range parts {
		partMap, ok := part.(map[string]any)
		if !ok {
			continue
		}
		if partType, _ := partMap["type"].(string); partType != "text" {
			continue
		}
		if text, ok := partMap["text"].(string); ok {
			textParts = append(textParts, text)
		}
	}

	return strings.Join(textParts, " ")
}
