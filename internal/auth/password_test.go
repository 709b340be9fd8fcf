package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("my-password")
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, "my-password", hash)

	// Same input must not produce the same hash (random salt).
	again, err := HashPassword("my-password")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestHashPasswordTooLong(t *testing.T) {
	_, err := HashPassword(strings.Repeat("a", 73))
	assert.ErrorIs(t, err, ErrPasswordTooLong)
}

func TestComparePassword(t *testing.T) {
	hash, err := HashPassword("my-password")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		assert.NoError(t, ComparePassword(hash, "my-password"))
	})

	t.Run("wrong password", func(t *testing.T) {
		assert.Error(t, ComparePassword(hash, "wrong-password"))
	})
}
