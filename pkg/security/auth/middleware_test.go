package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware(t *testing.T) {
	v := newTestValidator(t)

	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := KeyFromContext(r.Context())
		if !ok {
			t.Error("Expected admin key in context")
			return
		}
		seen = key.Name
		w.WriteHeader(http.StatusNoContent)
	})
	handler := Middleware(v, "", nil)(next)

	tests := []struct {
		name       string
		header     string
		value      string
		wantStatus int
		wantError  string
	}{
		{"valid key", DefaultHeader, "adm_ops", http.StatusNoContent, ""},
		{"missing key", "", "", http.StatusUnauthorized, "Admin key required"},
		{"wrong key", DefaultHeader, "adm_wrong", http.StatusUnauthorized, "Invalid admin key"},
		{"disabled key", DefaultHeader, "adm_retired", http.StatusUnauthorized, "Invalid admin key"},
		{"key in other header", "X-License-Key", "adm_ops", http.StatusUnauthorized, "Admin key required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/api/admin/plans", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d", tt.wantStatus, rec.Code)
			}
			if tt.wantError == "" {
				if seen != "ops" {
					t.Errorf("Expected handler to see key ops, got %q", seen)
				}
				return
			}

			if seen != "" {
				t.Error("Expected handler not to be called")
			}
			var body struct {
				Error string `json:"error"`
			}
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("Failed to decode body: %v", err)
			}
			if body.Error != tt.wantError {
				t.Errorf("Expected error %q, got %q", tt.wantError, body.Error)
			}
		})
	}
}

func TestMiddleware_CustomHeader(t *testing.T) {
	v := newTestValidator(t)
	handler := Middleware(v, "X-Ops-Key", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/health", nil)
	req.Header.Set("X-Ops-Key", "adm_billing")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}
