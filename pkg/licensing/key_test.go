package licensing

import (
	"strings"
	"testing"
)

func TestGenerateKey(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := GenerateKey("cha")
		if err != nil {
			t.Fatalf("GenerateKey failed: %v", err)
		}
		if !strings.HasPrefix(key, "CHA-") {
			t.Errorf("Expected CHA- prefix, got %q", key)
		}
		if len(key) != len("CHA")+4*9 {
			t.Errorf("Expected length %d, got %d (%q)", len("CHA")+4*9, len(key), key)
		}
		if !ValidKeyFormat(key) {
			t.Errorf("Generated key %q does not match the key format", key)
		}
		if seen[key] {
			t.Errorf("Duplicate key generated: %q", key)
		}
		seen[key] = true
	}
}

func TestValidKeyFormat(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"CHA-0123ABCD-89EFCDAB-00000000-FFFFFFFF", true},
		{"CHA-0123abcd-89EFCDAB-00000000-FFFFFFFF", false},
		{"CHA-0123ABCD-89EFCDAB-00000000", false},
		{"0123ABCD-89EFCDAB-00000000-FFFFFFFF", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidKeyFormat(tt.key); got != tt.want {
			t.Errorf("ValidKeyFormat(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}
