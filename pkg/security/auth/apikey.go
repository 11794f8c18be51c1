package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"chatello/gateway/pkg/config"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrMissingKey is returned when a request carries no admin key.
	ErrMissingKey = errors.New("missing admin key")

	// ErrInvalidKey is returned when no enabled admin key matches.
	ErrInvalidKey = errors.New("invalid admin key")
)

// keyPrefix marks generated admin keys.
const keyPrefix = "adm_"

// AdminKey is a configured admin credential.
type AdminKey struct {
	Name    string
	Hash    string
	Enabled bool
}

// Validator checks admin keys against bcrypt hashes.
type Validator struct {
	keys []AdminKey

	mu       sync.RWMutex
	verified map[[sha256.Size]byte]*AdminKey
}

// NewValidator creates a validator for the configured admin keys.
func NewValidator(cfg config.AdminConfig) *Validator {
	keys := make([]AdminKey, 0, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		keys = append(keys, AdminKey{Name: k.Name, Hash: k.KeyHash, Enabled: k.Enabled})
	}
	return &Validator{
		keys:     keys,
		verified: make(map[[sha256.Size]byte]*AdminKey),
	}
}

// Enabled reports whether at least one admin key can authenticate.
func (v *Validator) Enabled() bool {
	for _, k := range v.keys {
		if k.Enabled {
			return true
		}
	}
	return false
}

// Validate returns the admin key matching key.
func (v *Validator) Validate(key string) (*AdminKey, error) {
	if key == "" {
		return nil, ErrMissingKey
	}

	digest := sha256.Sum256([]byte(key))
	v.mu.RLock()
	known, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return known, nil
	}

	for i := range v.keys {
		k := &v.keys[i]
		if !k.Enabled {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(k.Hash), []byte(key)) == nil {
			v.mu.Lock()
			v.verified[digest] = k
			v.mu.Unlock()
			return k, nil
		}
	}
	return nil, ErrInvalidKey
}

// HashKey returns the bcrypt hash to configure for key.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", ErrMissingKey
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash admin key: %w", err)
	}
	return string(hash), nil
}

// GenerateKey returns a new random admin key.
func GenerateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return keyPrefix + hex.EncodeToString(buf), nil
}
