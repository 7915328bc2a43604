package session_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingd/svc/session"
)

func newTestManager(t *testing.T) (*session.Manager, *session.MemoryStore) {
	t.Helper()
	store := session.NewMemoryStore()
	mgr := session.NewManager(session.Config{
		JWTSecret:       "test-secret-key-0123456789abcdef",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 168 * time.Hour,
	}, store, slog.New(slog.DiscardHandler))
	return mgr, store
}

func TestManager_IssueAndRotate(t *testing.T) {
	t.Parallel()

	t.Run("issue returns a usable pair", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		userID := uuid.New()

		pair, err := mgr.Issue(context.Background(), userID)
		require.NoError(t, err)
		require.NotEmpty(t, pair.AccessToken)
		require.NotEmpty(t, pair.RefreshToken)
		assert.NotEqual(t, pair.AccessToken, pair.RefreshToken)

		got, err := mgr.VerifyAccess(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, userID, got)
	})

	t.Run("rotate returns a new pair for the same user", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		userID := uuid.New()

		pair, err := mgr.Issue(context.Background(), userID)
		require.NoError(t, err)

		next, gotUser, err := mgr.Rotate(context.Background(), pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, userID, gotUser)
		assert.NotEqual(t, pair.RefreshToken, next.RefreshToken)
	})

	t.Run("double rotation of the same token fails", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		require.NoError(t, err)

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("successor still works after consumed token is rejected", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		next, _, err := mgr.Rotate(context.Background(), pair.RefreshToken)
		require.NoError(t, err)

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		require.ErrorIs(t, err, session.ErrInvalidToken)

		_, _, err = mgr.Rotate(context.Background(), next.RefreshToken)
		assert.NoError(t, err)
	})

	t.Run("malformed token is invalid", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		_, _, err := mgr.Rotate(context.Background(), "not.a.token")
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("access token is rejected as refresh token", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		_, _, err = mgr.Rotate(context.Background(), pair.AccessToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("authentic token signed elsewhere is invalid", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		other, _ := newTestManager(t)

		pair, err := other.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		// Same secret, but never persisted in this manager's store.
		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestManager_Expiry(t *testing.T) {
	t.Parallel()

	t.Run("expired unrevoked token reports expiry", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		mgr := session.NewManager(session.Config{
			JWTSecret:       "test-secret-key-0123456789abcdef",
			RefreshTokenTTL: time.Millisecond,
		}, store, slog.New(slog.DiscardHandler))

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrExpiredToken)
	})

	t.Run("revocation wins over expiry", func(t *testing.T) {
		t.Parallel()

		store := session.NewMemoryStore()
		mgr := session.NewManager(session.Config{
			JWTSecret:       "test-secret-key-0123456789abcdef",
			RefreshTokenTTL: time.Millisecond,
		}, store, slog.New(slog.DiscardHandler))

		userID := uuid.New()
		pair, err := mgr.Issue(context.Background(), userID)
		require.NoError(t, err)

		_, err = mgr.RevokeAll(context.Background(), userID)
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestManager_Revoke(t *testing.T) {
	t.Parallel()

	t.Run("revoked token cannot rotate", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		require.NoError(t, mgr.Revoke(context.Background(), pair.RefreshToken))

		_, _, err = mgr.Rotate(context.Background(), pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("revoke is idempotent", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		require.NoError(t, mgr.Revoke(context.Background(), pair.RefreshToken))
		assert.NoError(t, mgr.Revoke(context.Background(), pair.RefreshToken))
	})

	t.Run("revoking an unknown token succeeds", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		assert.NoError(t, mgr.Revoke(context.Background(), "unknown.token.value"))
	})

	t.Run("revoke all invalidates every session of the user", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		userID := uuid.New()

		a, err := mgr.Issue(context.Background(), userID)
		require.NoError(t, err)
		b, err := mgr.Issue(context.Background(), userID)
		require.NoError(t, err)

		otherPair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		n, err := mgr.RevokeAll(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		_, _, err = mgr.Rotate(context.Background(), a.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
		_, _, err = mgr.Rotate(context.Background(), b.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)

		// Unrelated user remains logged in.
		_, _, err = mgr.Rotate(context.Background(), otherPair.RefreshToken)
		assert.NoError(t, err)
	})
}

func TestManager_VerifyAccess(t *testing.T) {
	t.Parallel()

	t.Run("refresh token is rejected as access token", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)

		pair, err := mgr.Issue(context.Background(), uuid.New())
		require.NoError(t, err)

		_, err = mgr.VerifyAccess(pair.RefreshToken)
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})

	t.Run("garbage is invalid", func(t *testing.T) {
		t.Parallel()

		mgr, _ := newTestManager(t)
		_, err := mgr.VerifyAccess("garbage")
		assert.ErrorIs(t, err, session.ErrInvalidToken)
	})
}

func TestManager_Sweep(t *testing.T) {
	t.Parallel()

	store := session.NewMemoryStore()
	short := session.NewManager(session.Config{
		JWTSecret:       "test-secret-key-0123456789abcdef",
		RefreshTokenTTL: time.Millisecond,
	}, store, slog.New(slog.DiscardHandler))
	long := session.NewManager(session.Config{
		JWTSecret:       "test-secret-key-0123456789abcdef",
		RefreshTokenTTL: time.Hour,
	}, store, slog.New(slog.DiscardHandler))

	_, err := short.Issue(context.Background(), uuid.New())
	require.NoError(t, err)
	live, err := long.Issue(context.Background(), uuid.New())
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	n, err := long.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// The unexpired token survives the sweep.
	_, _, err = long.Rotate(context.Background(), live.RefreshToken)
	assert.NoError(t, err)
}
