package realtime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToken(t *testing.T) {
	secret := []byte("secret")

	t.Run("valid token", func(t *testing.T) {
		token, err := NewToken("u1", "doctor", "Dr. Bob", time.Hour, secret)
		require.Nil(t, err)
		require.NotEmpty(t, token)

		claims, err := VerifyToken(token, secret)
		require.Nil(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.Equal(t, "doctor", claims.Role)
		assert.Equal(t, "Dr. Bob", claims.Name)
	})

	t.Run("expired token", func(t *testing.T) {
		token, err := NewToken("u1", "patient", "Alice", -time.Minute, secret)
		require.Nil(t, err)

		_, err = VerifyToken(token, secret)
		assert.ErrorIs(t, err, ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, err := NewToken("u1", "patient", "Alice", time.Hour, secret)
		require.Nil(t, err)

		_, err = VerifyToken(token, []byte("other"))
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := VerifyToken("not-a-token", secret)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}
