package ratelimiter

import (
	"net/http"
	"strconv"

	"github.com/dmitrymomot/billingd/pkg/clientip"
)

// KeyFunc extracts a rate limit key from the request.
type KeyFunc func(r *http.Request) string

// KeyByIP keys rate limits by the originating client address, honoring
// proxy headers.
func KeyByIP() KeyFunc {
	return clientip.GetIP
}

// Middleware creates an HTTP middleware that denies requests with 429 once
// the bucket for the request's key is exhausted. Store failures fail open:
// a broken Redis must not take authentication down with it.
func Middleware(b *Bucket, keyFunc KeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			result, err := b.Allow(r.Context(), key)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(result.Remaining, 0)))

			if !result.Allowed() {
				w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter().Seconds())+1))
				http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
