package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/argon2"
)

func TestHashAndVerifyKey(t *testing.T) {
	raw := "llm_shield_" + strings.Repeat("a", 40)

	hashed, err := HashKey(raw)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hashed, "$argon2id$v=19$m=19456,t=2,p=1$"))
	assert.NotContains(t, hashed, raw)

	ok, err := VerifyKey(raw, hashed)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyKey("llm_shield_"+strings.Repeat("b", 40), hashed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashKeyUsesRandomSalt(t *testing.T) {
	raw := "llm_shield_" + strings.Repeat("a", 40)

	h1, err := HashKey(raw)
	require.NoError(t, err)
	h2, err := HashKey(raw)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	for _, h := range []string{h1, h2} {
		ok, err := VerifyKey(raw, h)
		require.NoError(t, err)
		assert.True(t, ok)
	}
}

func TestVerifyKeyMalformedHash(t *testing.T) {
	tests := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"not a hash", "hunter2"},
		{"wrong algorithm", "$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing params", "$argon2id$v=19$$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{"bad digest encoding", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyKey("llm_shield_"+strings.Repeat("a", 40), tt.encoded)
			assert.Error(t, err)
		})
	}
}

func TestVerifyKeyHonorsEmbeddedParameters(t *testing.T) {
	// A hash produced with different cost parameters still verifies, since
	// the parameters are read from the hash itself rather than assumed.
	raw := "llm_shield_" + strings.Repeat("c", 40)
	salt := []byte("0123456789abcdef")
	digest := argon2.IDKey([]byte(raw), salt, 3, 8*1024, 2, 32)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		8*1024, 3, 2,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest))

	ok, err := VerifyKey(raw, encoded)
	require.NoError(t, err)
	assert.True(t, ok)
}
