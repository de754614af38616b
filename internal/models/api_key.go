package models

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	// KeyPrefix is the fixed prefix of every raw API key.
	KeyPrefix = "llm_shield_"

	// KeyRandomLen is the number of random characters after the prefix.
	KeyRandomLen = 40

	// KeyLen is the total length of a raw key.
	KeyLen = len(KeyPrefix) + KeyRandomLen

	// KeyDisplayPrefixLen is how many leading characters of a raw key are
	// persisted for candidate narrowing and display in UIs.
	KeyDisplayPrefixLen = 16

	keyCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

// APIKey represents a stored API key. The raw key value is never persisted;
// only its argon2id hash and a short display prefix are stored.
type APIKey struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Tier      RateLimitTier `json:"tier"`
	HashedKey string        `json:"hashed_key"`
	KeyPrefix string        `json:"key_prefix"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt *time.Time    `json:"expires_at,omitempty"`
	Active    bool          `json:"active"`
}

// IsExpired reports whether the key has passed its expiration time.
func (k *APIKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// IsValid reports whether the key is active and not expired.
func (k *APIKey) IsValid(now time.Time) bool {
	return k.Active && !k.IsExpired(now)
}

// GenerateAPIKey produces a new random API key in the format
// llm_shield_<40 alphanumeric chars>, using a CSPRNG.
func GenerateAPIKey() (string, error) {
	buf := make([]byte, KeyRandomLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	// Map each random byte onto the charset. 62 does not divide 256 evenly,
	// giving a slight bias toward the first few characters; with 40 output
	// characters the key retains well over 200 bits of entropy.
	out := make([]byte, KeyRandomLen)
	for i, b := range buf {
		out[i] = keyCharset[int(b)%len(keyCharset)]
	}
	return KeyPrefix + string(out), nil
}

// ValidKeyFormat reports whether a raw key has the expected prefix, length,
// and charset. It does not touch storage or hashing.
func ValidKeyFormat(raw string) bool {
	if len(raw) != KeyLen {
		return false
	}
	if raw[:len(KeyPrefix)] != KeyPrefix {
		return false
	}
	for i := len(KeyPrefix); i < len(raw); i++ {
		c := raw[i]
		if !('A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9') {
			return false
		}
	}
	return true
}

// DisplayPrefix returns the persisted prefix of a raw key.
func DisplayPrefix(raw string) string {
	if len(raw) < KeyDisplayPrefixLen {
		return raw
	}
	return raw[:KeyDisplayPrefixLen]
}

// NewKeyID generates a new UUID v4 for use as an APIKey ID.
func NewKeyID() string {
	return uuid.New().String()
}

// Secret wraps a raw API key so it cannot leak through logging or
// serialization. The value is surfaced exactly once, from key creation; no
// other API in the system returns it.
type Secret struct {
	value string
}

// NewSecret wraps a raw value.
func NewSecret(value string) *Secret {
	return &Secret{value: value}
}

// Expose returns the wrapped value. Call sites should be the creation
// response path and nothing else.
func (s *Secret) Expose() string {
	if s == nil {
		return ""
	}
	return s.value
}

// String implements fmt.Stringer and always redacts.
func (s *Secret) String() string { return "[REDACTED]" }

// GoString keeps %#v from printing the value.
func (s *Secret) GoString() string { return "models.Secret([REDACTED])" }

// MarshalJSON redacts; handlers that intentionally return the raw key must
// call Expose.
func (s *Secret) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
