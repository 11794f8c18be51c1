package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"
)

// MockServer stands in for an upstream AI API. Responses are keyed by path;
// unknown paths answer 404.
type MockServer struct {
	server *httptest.Server

	mu        sync.Mutex
	responses map[string]MockResponse
	requests  int
	last      *RecordedRequest
}

// MockResponse is a canned upstream answer. Body may be a string, raw bytes,
// or any JSON-encodable value.
type MockResponse struct {
	StatusCode int
	Body       any
	Delay      time.Duration
	Headers    map[string]string
}

// RecordedRequest is a captured inbound request.
type RecordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// NewMockServer starts a mock upstream. Callers must Close it.
func NewMockServer() *MockServer {
	ms := &MockServer{responses: make(map[string]MockResponse)}
	ms.server = httptest.NewServer(http.HandlerFunc(ms.serve))
	return ms
}

// URL is the base URL to configure a provider with.
func (ms *MockServer) URL() string { return ms.server.URL }

// Close shuts the server down.
func (ms *MockServer) Close() { ms.server.Close() }

// SetResponse installs the answer for path.
func (ms *MockServer) SetResponse(path string, resp MockResponse) {
	ms.mu.Lock()
	ms.responses[path] = resp
	ms.mu.Unlock()
}

// GetRequestCount returns how many requests reached the server.
func (ms *MockServer) GetRequestCount() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.requests
}

// LastRequest returns the most recent request, or nil.
func (ms *MockServer) LastRequest() *RecordedRequest {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.last
}

func (ms *MockServer) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	ms.mu.Lock()
	ms.requests++
	ms.last = &RecordedRequest{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body}
	resp, ok := ms.responses[r.URL.Path]
	ms.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		t := time.NewTimer(resp.Delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-r.Context().Done():
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	for k, v := range resp.Headers {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.StatusCode)

	switch b := resp.Body.(type) {
	case nil:
	case string:
		_, _ = io.WriteString(w, b)
	case []byte:
		_, _ = w.Write(b)
	default:
		_ = json.NewEncoder(w).Encode(b)
	}
}

// MockOpenAIResponse is a chat.completion body reporting 10 prompt and 20
// completion tokens.
func MockOpenAIResponse(content, model string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 20, "total_tokens": 30},
	}
}

// MockOpenAIResponseNoUsage is MockOpenAIResponse without the usage block,
// which forces the gate onto its token estimate.
func MockOpenAIResponseNoUsage(content, model string) map[string]any {
	resp := MockOpenAIResponse(content, model)
	delete(resp, "usage")
	return resp
}

// MockAnthropicResponse is a messages API body reporting 10 input and 20
// output tokens.
func MockAnthropicResponse(content, model string) map[string]any {
	return map[string]any{
		"id":          "msg_test",
		"type":        "message",
		"role":        "assistant",
		"model":       model,
		"content":     []map[string]any{{"type": "text", "text": content}},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"input_tokens": 10, "output_tokens": 20},
	}
}

// MockErrorResponse is an upstream error in the OpenAI error envelope.
func MockErrorResponse(status int, message string) MockResponse {
	return MockResponse{
		StatusCode: status,
		Body: map[string]any{
			"error": map[string]any{"message": message, "type": "invalid_request_error", "code": status},
		},
	}
}

// MockAuthError is a 401 for a rejected upstream API key.
func MockAuthError() MockResponse {
	return MockErrorResponse(http.StatusUnauthorized, "Invalid API key")
}

// MockRateLimitError is an upstream 429 carrying Retry-After.
func MockRateLimitError(retryAfter int) MockResponse {
	resp := MockErrorResponse(http.StatusTooManyRequests, "Rate limit exceeded")
	resp.Headers = map[string]string{"Retry-After": strconv.Itoa(retryAfter)}
	return resp
}

// MockTimeoutError answers successfully but only after delay.
func MockTimeoutError(delay time.Duration) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       MockOpenAIResponse("late", "gpt-4o-mini"),
		Delay:      delay,
	}
}

// MockServerError is an upstream 500.
func MockServerError() MockResponse {
	return MockErrorResponse(http.StatusInternalServerError, "Internal server error")
}

// ExpectHeader reports an error unless header key contains value.
func ExpectHeader(r *RecordedRequest, key, value string) error {
	if got := r.Header.Get(key); !strings.Contains(got, value) {
		return fmt.Errorf("header %q: expected %q, got %q", key, value, got)
	}
	return nil
}

// DecodeBody unmarshals the recorded JSON body.
func (r *RecordedRequest) DecodeBody() (map[string]any, error) {
	var body map[string]any
	if err := json.Unmarshal(r.Body, &body); err != nil {
		return nil, fmt.Errorf("decode request body: %w", err)
	}
	return body, nil
}
