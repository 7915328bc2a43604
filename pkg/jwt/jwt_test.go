package jwt_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingd/pkg/jwt"
)

const testKey = "super-secret-signing-key-at-least-32-bytes"

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("empty key", func(t *testing.T) {
		t.Parallel()

		_, err := jwt.New(nil)
		assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)
	})

	t.Run("valid key", func(t *testing.T) {
		t.Parallel()

		svc, err := jwt.NewFromString(testKey)
		require.NoError(t, err)
		require.NotNil(t, svc)
	})
}

func TestGenerateParse(t *testing.T) {
	t.Parallel()

	svc, err := jwt.NewFromString(testKey)
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		t.Parallel()

		claims := jwt.StandardClaims{
			ID:        "jti-1",
			Subject:   "user-1",
			Audience:  "access",
			ExpiresAt: time.Now().Add(time.Hour).Unix(),
			IssuedAt:  time.Now().Unix(),
		}

		token, err := svc.Generate(claims)
		require.NoError(t, err)
		require.NotEmpty(t, token)

		var parsed jwt.StandardClaims
		require.NoError(t, svc.Parse(token, &parsed))
		assert.Equal(t, claims.ID, parsed.ID)
		assert.Equal(t, claims.Subject, parsed.Subject)
		assert.Equal(t, claims.Audience, parsed.Audience)
	})

	t.Run("nil claims", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Generate(nil)
		assert.ErrorIs(t, err, jwt.ErrMissingClaims)
	})

	t.Run("malformed token", func(t *testing.T) {
		t.Parallel()

		var parsed jwt.StandardClaims
		assert.ErrorIs(t, svc.Parse("not-a-token", &parsed), jwt.ErrInvalidToken)
	})

	t.Run("tampered signature", func(t *testing.T) {
		t.Parallel()

		token, err := svc.Generate(jwt.StandardClaims{Subject: "user-1"})
		require.NoError(t, err)

		var parsed jwt.StandardClaims
		assert.ErrorIs(t, svc.Parse(token+"x", &parsed), jwt.ErrInvalidSignature)
	})

	t.Run("different key rejected", func(t *testing.T) {
		t.Parallel()

		other, err := jwt.NewFromString("another-secret-signing-key-32-bytes-min")
		require.NoError(t, err)

		token, err := svc.Generate(jwt.StandardClaims{Subject: "user-1"})
		require.NoError(t, err)

		var parsed jwt.StandardClaims
		assert.ErrorIs(t, other.Parse(token, &parsed), jwt.ErrInvalidSignature)
	})

	t.Run("expired token reported distinctly", func(t *testing.T) {
		t.Parallel()

		claims := jwt.StandardClaims{
			Subject:   "user-1",
			ExpiresAt: time.Now().Add(-time.Minute).Unix(),
		}

		token, err := svc.Generate(claims)
		require.NoError(t, err)

		var parsed jwt.StandardClaims
		err = svc.Parse(token, &parsed)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
		assert.NotErrorIs(t, err, jwt.ErrInvalidToken)
	})

	t.Run("not yet valid", func(t *testing.T) {
		t.Parallel()

		claims := jwt.StandardClaims{
			Subject:   "user-1",
			NotBefore: time.Now().Add(time.Hour).Unix(),
		}

		token, err := svc.Generate(claims)
		require.NoError(t, err)

		var parsed jwt.StandardClaims
		assert.ErrorIs(t, svc.Parse(token, &parsed), jwt.ErrInvalidToken)
	})
}

func TestStandardClaimsValid(t *testing.T) {
	t.Parallel()

	t.Run("zero values ignored", func(t *testing.T) {
		t.Parallel()
		assert.NoError(t, jwt.StandardClaims{}.Valid())
	})

	t.Run("future expiry valid", func(t *testing.T) {
		t.Parallel()
		c := jwt.StandardClaims{ExpiresAt: time.Now().Add(time.Minute).Unix()}
		assert.NoError(t, c.Valid())
	})

	t.Run("past expiry invalid", func(t *testing.T) {
		t.Parallel()
		c := jwt.StandardClaims{ExpiresAt: time.Now().Add(-time.Minute).Unix()}
		assert.ErrorIs(t, c.Valid(), jwt.ErrExpiredToken)
	})
}
