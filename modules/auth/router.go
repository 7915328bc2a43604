package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingd/pkg/ratelimiter"
)

// Router mounts the auth endpoints. The rate limit middleware, when
// provided, guards the credential-accepting endpoints against brute force.
func (m *Module) Router(limit func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	if limit == nil {
		limit = passthrough
	}

	r.With(limit).Post("/register", m.handleRegister)
	r.With(limit).Post("/login", m.handleLogin)
	r.With(limit).Post("/refresh", m.handleRefresh)
	r.Post("/logout", m.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(Middleware(m.sessions))
		r.Get("/me", m.handleMe)
	})

	return r
}

// RateLimitMiddleware builds the per-IP limiter used on auth endpoints.
func RateLimitMiddleware(bucket *ratelimiter.Bucket) func(http.Handler) http.Handler {
	return ratelimiter.Middleware(bucket, ratelimiter.KeyByIP())
}

func passthrough(next http.Handler) http.Handler { return next }
