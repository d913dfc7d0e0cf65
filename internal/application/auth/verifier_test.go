package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestStandardJWTVerifier(t *testing.T) {
	verifier := NewStandardJWTVerifier("top-secret")

	t.Run("valid token resolves subject", func(t *testing.T) {
		token := signedToken(t, "top-secret", jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		userID, err := verifier.Verify(context.Background(), token)
		require.NoError(t, err)
		assert.Equal(t, "user-42", userID)
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		token := signedToken(t, "other-secret", jwt.MapClaims{"sub": "user-42"})
		_, err := verifier.Verify(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		token := signedToken(t, "top-secret", jwt.MapClaims{
			"sub": "user-42",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})
		_, err := verifier.Verify(context.Background(), token)
		assert.Error(t, err)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		token := signedToken(t, "top-secret", jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		_, err := verifier.Verify(context.Background(), token)
		assert.Error(t, err)
	})
}

type staticVerifier struct {
	userID string
	fail   bool
}

func (v *staticVerifier) Verify(context.Context, string) (string, error) {
	if v.fail {
		return "", assert.AnError
	}
	return v.userID, nil
}

func TestTokenResolverOrder(t *testing.T) {
	t.Run("first match wins", func(t *testing.T) {
		resolver := NewTokenResolverWith(
			&staticVerifier{fail: true},
			&staticVerifier{userID: "from-second"},
		)
		userID, err := resolver.Resolve(context.Background(), "anything")
		require.NoError(t, err)
		assert.Equal(t, "from-second", userID)
	})

	t.Run("all reject", func(t *testing.T) {
		resolver := NewTokenResolverWith(&staticVerifier{fail: true})
		_, err := resolver.Resolve(context.Background(), "anything")
		assert.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		resolver := NewTokenResolverWith(&staticVerifier{userID: "x"})
		_, err := resolver.Resolve(context.Background(), "")
		assert.Error(t, err)
	})
}
