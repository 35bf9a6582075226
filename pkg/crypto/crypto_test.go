package crypto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("s3cret-password")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-password", hash)

	assert.True(t, VerifyPassword("s3cret-password", hash))
	assert.False(t, VerifyPassword("wrong-password", hash))
}

func TestGeneratePassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		password, err := GeneratePassword()
		require.NoError(t, err)
		assert.Len(t, password, 16)
		assert.False(t, seen[password], "generated passwords must not repeat")
		seen[password] = true

		assert.True(t, strings.ContainsAny(password, "ABCDEFGHIJKLMNOPQRSTUVWXYZ"))
		assert.True(t, strings.ContainsAny(password, "0123456789"))
	}
}

func TestGenerateRandomString(t *testing.T) {
	s, err := GenerateRandomString(32)
	require.NoError(t, err)
	assert.NotEmpty(t, s)

	other, err := GenerateRandomString(32)
	require.NoError(t, err)
	assert.NotEqual(t, s, other)
}
