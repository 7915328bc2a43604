package core

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/billingd/pkg/clientip"
	"github.com/dmitrymomot/billingd/pkg/requestid"
)

// RequestLogger logs one line per request with method, path, status,
// duration, client ip, and the correlation id.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.InfoContext(r.Context(), "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration", time.Since(start)),
				slog.String("client_ip", clientip.GetIP(r)),
				slog.String("request_id", requestid.FromContext(r.Context())),
			)
		})
	}
}
