package clientip_test

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/billingd/pkg/clientip"
)

func TestGetIP(t *testing.T) {
	t.Parallel()

	t.Run("remote addr fallback", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:4312"
		assert.Equal(t, "203.0.113.7", clientip.GetIP(r))
	})

	t.Run("forwarded-for first valid entry wins", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Forwarded-For", "garbage, 198.51.100.1, 10.0.0.1")
		assert.Equal(t, "198.51.100.1", clientip.GetIP(r))
	})

	t.Run("real-ip beats remote addr", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.Header.Set("X-Real-IP", "2001:db8::1")
		assert.Equal(t, "2001:db8::1", clientip.GetIP(r))
	})

	t.Run("invalid headers are not trusted", func(t *testing.T) {
		t.Parallel()

		r := httptest.NewRequest("GET", "/", nil)
		r.RemoteAddr = "203.0.113.7:4312"
		r.Header.Set("X-Forwarded-For", "not-an-ip")
		r.Header.Set("X-Real-IP", "also-bad")
		assert.Equal(t, "203.0.113.7", clientip.GetIP(r))
	})
}
