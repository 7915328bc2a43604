package requestid_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingd/pkg/requestid"
)

func TestMiddleware(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, incoming string) (*httptest.ResponseRecorder, string) {
		t.Helper()

		var ctxID string
		h := requestid.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctxID = requestid.FromContext(r.Context())
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if incoming != "" {
			req.Header.Set(requestid.Header, incoming)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec, ctxID
	}

	t.Run("generates one when absent", func(t *testing.T) {
		t.Parallel()

		rec, ctxID := run(t, "")
		require.NotEmpty(t, ctxID)
		assert.Equal(t, ctxID, rec.Header().Get(requestid.Header))
	})

	t.Run("accepts a well formed caller id", func(t *testing.T) {
		t.Parallel()

		_, ctxID := run(t, "trace-abc_123")
		assert.Equal(t, "trace-abc_123", ctxID)
	})

	t.Run("replaces a malformed caller id", func(t *testing.T) {
		t.Parallel()

		_, ctxID := run(t, "bad id\nwith newline")
		assert.NotEqual(t, "bad id\nwith newline", ctxID)
		assert.NotEmpty(t, ctxID)
	})

	t.Run("replaces an oversized caller id", func(t *testing.T) {
		t.Parallel()

		long := strings.Repeat("a", 300)
		_, ctxID := run(t, long)
		assert.NotEqual(t, long, ctxID)
	})
}
