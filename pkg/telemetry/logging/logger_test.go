package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"chatello/gateway/pkg/config"
)

func TestNew_InvalidLevel(t *testing.T) {
	if _, err := New(config.LoggingConfig{Level: "loud"}, nil); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestNew_InvalidFormat(t *testing.T) {
	if _, err := New(config.LoggingConfig{Format: "xml"}, nil); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithLicenseID(ctx, "lic-1")
	logger.InfoContext(ctx, "gate decision", "outcome", "allowed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log output is not JSON: %v (%s)", err, buf.String())
	}
	if entry["request_id"] != "req-1" {
		t.Errorf("Expected request_id req-1, got %v", entry["request_id"])
	}
	if entry["license_id"] != "lic-1" {
		t.Errorf("Expected license_id lic-1, got %v", entry["license_id"])
	}
	if entry["outcome"] != "allowed" {
		t.Errorf("Expected outcome allowed, got %v", entry["outcome"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(out, "shown") {
		t.Error("warn message should be logged")
	}
}

func TestLogger_RedactsLicenseKeys(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(config.LoggingConfig{Level: "info", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	logger.Info("validated", "license_key", "CHA-0123ABCD-4567EF01-89ABCDEF-0123BEEF")

	out := buf.String()
	if strings.Contains(out, "0123ABCD") {
		t.Errorf("license key leaked into log: %s", out)
	}
	if !strings.Contains(out, "CHA-****BEEF") {
		t.Errorf("expected masked key, got %s", out)
	}
}

func TestLogger_RedactionDisabled(t *testing.T) {
	var buf bytes.Buffer
	off := false
	logger, err := New(config.LoggingConfig{Level: "info", RedactLicenseKeys: &off}, &buf)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	key := "CHA-0123ABCD-4567EF01-89ABCDEF-0123BEEF"
	logger.Info("validated", "license_key", key)
	if !strings.Contains(buf.String(), key) {
		t.Errorf("expected unmasked key, got %s", buf.String())
	}
}

func TestMaskLicenseKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"CHA-0123ABCD-4567EF01-89ABCDEF-0123BEEF", "CHA-****BEEF"},
		{"key=CHA-AAAAAAAA-BBBBBBBB-CCCCCCCC-DDDD1234 ok", "key=CHA-****1234 ok"},
		{"not-a-key", "not-a-key"},
	}
	for _, tt := range tests {
		if got := MaskLicenseKey(tt.in); got != tt.want {
			t.Errorf("MaskLicenseKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOrDefault(t *testing.T) {
	if OrDefault(nil) == nil {
		t.Fatal("expected default logger")
	}
}
