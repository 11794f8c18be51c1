package auth

import (
	"errors"
	"strings"
	"testing"

	"chatello/gateway/pkg/config"

	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, key string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("GenerateFromPassword failed: %v", err)
	}
	return string(hash)
}

func newTestValidator(t *testing.T) *Validator {
	t.Helper()
	return NewValidator(config.AdminConfig{
		APIKeys: []config.AdminKeyConfig{
			{Name: "ops", KeyHash: mustHash(t, "adm_ops"), Enabled: true},
			{Name: "billing", KeyHash: mustHash(t, "adm_billing"), Enabled: true},
			{Name: "retired", KeyHash: mustHash(t, "adm_retired"), Enabled: false},
		},
	})
}

func TestValidator_Validate(t *testing.T) {
	v := newTestValidator(t)

	tests := []struct {
		name     string
		key      string
		wantName string
		wantErr  error
	}{
		{"first key", "adm_ops", "ops", nil},
		{"second key", "adm_billing", "billing", nil},
		{"disabled key", "adm_retired", "", ErrInvalidKey},
		{"unknown key", "adm_nope", "", ErrInvalidKey},
		{"empty key", "", "", ErrMissingKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Validate(tt.key)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Expected error %v, got %v", tt.wantErr, err)
			}
			if tt.wantErr == nil && got.Name != tt.wantName {
				t.Errorf("Expected key %q, got %q", tt.wantName, got.Name)
			}
		})
	}
}

func TestValidator_RemembersVerifiedKeys(t *testing.T) {
	v := newTestValidator(t)

	first, err := v.Validate("adm_ops")
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if len(v.verified) != 1 {
		t.Fatalf("Expected 1 remembered key, got %d", len(v.verified))
	}

	second, err := v.Validate("adm_ops")
	if err != nil {
		t.Fatalf("Second Validate failed: %v", err)
	}
	if first != second {
		t.Error("Expected the remembered key to be returned")
	}

	if _, err := v.Validate("adm_nope"); err == nil {
		t.Fatal("Expected unknown key to fail")
	}
	if len(v.verified) != 1 {
		t.Errorf("Expected failed keys not to be remembered, got %d entries", len(v.verified))
	}
}

func TestValidator_Enabled(t *testing.T) {
	if NewValidator(config.AdminConfig{}).Enabled() {
		t.Error("Expected validator without keys to be disabled")
	}
	v := NewValidator(config.AdminConfig{APIKeys: []config.AdminKeyConfig{{Name: "x", KeyHash: "$2a$", Enabled: false}}})
	if v.Enabled() {
		t.Error("Expected validator with only disabled keys to be disabled")
	}
	if !newTestValidator(t).Enabled() {
		t.Error("Expected validator to be enabled")
	}
}

func TestHashKeyRoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey failed: %v", err)
	}
	if !strings.HasPrefix(key, keyPrefix) || len(key) != len(keyPrefix)+48 {
		t.Errorf("Unexpected key shape %q", key)
	}

	hash, err := HashKey(key)
	if err != nil {
		t.Fatalf("HashKey failed: %v", err)
	}

	v := NewValidator(config.AdminConfig{APIKeys: []config.AdminKeyConfig{{Name: "generated", KeyHash: hash, Enabled: true}}})
	if _, err := v.Validate(key); err != nil {
		t.Errorf("Expected generated key to validate against its hash: %v", err)
	}

	if _, err := HashKey(""); !errors.Is(err, ErrMissingKey) {
		t.Errorf("Expected ErrMissingKey, got %v", err)
	}
}
