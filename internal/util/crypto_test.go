package util

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerateToken(t *testing.T) {
	t.Run("generates hex token of expected length", func(t *testing.T) {
		token, err := GenerateToken()
		require.NoError(t, err)
		assert.Len(t, token, tokenBytes*2)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]+$`), token)
	})

	t.Run("generates unique tokens", func(t *testing.T) {
		a, _ := GenerateToken()
		b, _ := GenerateToken()
		assert.NotEqual(t, a, b)
	})
}

func TestHashToken(t *testing.T) {
	t.Run("deterministic for same input", func(t *testing.T) {
		assert.Equal(t, HashToken("abc"), HashToken("abc"))
	})

	t.Run("differs for different input", func(t *testing.T) {
		assert.NotEqual(t, HashToken("abc"), HashToken("abd"))
	})
}

func TestGenerateActivationCode(t *testing.T) {
	t.Run("uses only uppercase letters", func(t *testing.T) {
		pattern := regexp.MustCompile(`^[A-Z]+$`)
		for i := 0; i < 50; i++ {
			code := GenerateActivationCode(8)
			assert.Len(t, code, 8)
			assert.True(t, pattern.MatchString(code), "unexpected characters in %q", code)
		}
	})

	t.Run("generates unique codes", func(t *testing.T) {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			code := GenerateActivationCode(8)
			assert.False(t, seen[code], "duplicate code generated: %s", code)
			seen[code] = true
		}
	})
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	assert.True(t, CheckPasswordHash("correct horse", string(hash)))
	assert.False(t, CheckPasswordHash("wrong", string(hash)))
	assert.False(t, CheckPasswordHash("correct horse", "not-a-hash"))
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("same", "same"))
	assert.False(t, ConstantTimeEqual("same", "diff"))
}

func TestMaskCode(t *testing.T) {
	assert.Equal(t, "WXYZ-****", MaskCode("WXYZABCD"))
	assert.Equal(t, "****", MaskCode("AB"))
}
