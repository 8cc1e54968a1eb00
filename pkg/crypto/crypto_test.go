package crypto_test

import (
	"testing"

	"github.com/securecrop/backend/pkg/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := crypto.HashPassword("correct horse battery", 4)
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse battery", hash)

	assert.True(t, crypto.CheckPassword("correct horse battery", hash))
	assert.False(t, crypto.CheckPassword("wrong guess", hash))
}

func TestGenerateResetToken(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		token, err := crypto.GenerateResetToken()
		require.NoError(t, err)
		// 32 bytes of entropy, base64url without padding
		assert.Len(t, token, 43)
		assert.False(t, seen[token], "tokens must never repeat")
		seen[token] = true
	}
}
