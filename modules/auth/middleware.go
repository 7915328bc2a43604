package auth

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/billingd/core"
	"github.com/dmitrymomot/billingd/svc/session"
)

// Middleware authenticates requests with a bearer access token and puts
// the user id into the request context. Requests without a valid token
// get 401.
func Middleware(sessions *session.Manager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				core.Render(w, r, core.JSONError(core.ErrUnauthorized))
				return
			}

			userID, err := sessions.VerifyAccess(token)
			if err != nil {
				core.Render(w, r, core.JSONError(core.ErrUnauthorized))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}
