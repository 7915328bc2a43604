package ratelimiter_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingd/pkg/ratelimiter"
)

func newBucket(t *testing.T, capacity int) *ratelimiter.Bucket {
	t.Helper()

	b, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{
		Capacity:       capacity,
		RefillRate:     capacity,
		RefillInterval: time.Hour,
	})
	require.NoError(t, err)
	return b
}

func TestBucket(t *testing.T) {
	t.Parallel()

	t.Run("allows until capacity then denies", func(t *testing.T) {
		t.Parallel()

		b := newBucket(t, 3)
		for i := 0; i < 3; i++ {
			res, err := b.Allow(context.Background(), "k")
			require.NoError(t, err)
			assert.True(t, res.Allowed(), "request %d", i)
		}

		res, err := b.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.False(t, res.Allowed())
		assert.Greater(t, res.RetryAfter(), time.Duration(0))
	})

	t.Run("keys are independent", func(t *testing.T) {
		t.Parallel()

		b := newBucket(t, 1)
		res, err := b.Allow(context.Background(), "a")
		require.NoError(t, err)
		require.True(t, res.Allowed())

		res, err = b.Allow(context.Background(), "b")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("reset refills the bucket", func(t *testing.T) {
		t.Parallel()

		b := newBucket(t, 1)
		_, err := b.Allow(context.Background(), "k")
		require.NoError(t, err)

		require.NoError(t, b.Reset(context.Background(), "k"))

		res, err := b.Allow(context.Background(), "k")
		require.NoError(t, err)
		assert.True(t, res.Allowed())
	})

	t.Run("invalid config is rejected", func(t *testing.T) {
		t.Parallel()

		_, err := ratelimiter.NewBucket(ratelimiter.NewMemoryStore(), ratelimiter.Config{})
		assert.Error(t, err)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("denies with 429 once exhausted", func(t *testing.T) {
		t.Parallel()

		b := newBucket(t, 2)
		h := ratelimiter.Middleware(b, ratelimiter.KeyByIP())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

		call := func() *httptest.ResponseRecorder {
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.RemoteAddr = "203.0.113.9:1000"
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec
		}

		assert.Equal(t, http.StatusOK, call().Code)
		assert.Equal(t, http.StatusOK, call().Code)

		rec := call()
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})

	t.Run("different clients are limited separately", func(t *testing.T) {
		t.Parallel()

		b := newBucket(t, 1)
		h := ratelimiter.Middleware(b, ratelimiter.KeyByIP())(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))

		call := func(addr string) int {
			req := httptest.NewRequest(http.MethodPost, "/login", nil)
			req.RemoteAddr = addr
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			return rec.Code
		}

		assert.Equal(t, http.StatusOK, call("203.0.113.1:1"))
		assert.Equal(t, http.StatusTooManyRequests, call("203.0.113.1:2"))
		assert.Equal(t, http.StatusOK, call("203.0.113.2:1"))
	})
}
