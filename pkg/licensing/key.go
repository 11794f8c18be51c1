package licensing

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
)

// keySegments is the number of hex segments after the prefix.
const keySegments = 4

var keyPattern = regexp.MustCompile(`^[A-Z0-9]+(-[0-9A-F]{8}){4}$`)

// GenerateKey returns a new license key of the form
// PREFIX-XXXXXXXX-XXXXXXXX-XXXXXXXX-XXXXXXXX with uppercase hex segments.
func GenerateKey(prefix string) (string, error) {
	parts := make([]string, 0, keySegments+1)
	parts = append(parts, strings.ToUpper(prefix))

	buf := make([]byte, 4)
	for i := 0; i < keySegments; i++ {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read random bytes: %w", err)
		}
		parts = append(parts, strings.ToUpper(hex.EncodeToString(buf)))
	}

	return strings.Join(parts, "-"), nil
}

// ValidKeyFormat reports whether key is shaped like a generated license key.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}
