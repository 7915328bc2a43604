package core_test

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/billingd/core"
)

func render(t *testing.T, resp core.Response) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	core.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil), resp)
	return rec
}

func TestResponses(t *testing.T) {
	t.Parallel()

	t.Run("JSON wraps data in the envelope", func(t *testing.T) {
		t.Parallel()

		rec := render(t, core.JSON(map[string]string{"hello": "world"}))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"data": {"hello": "world"}}`, rec.Body.String())
	})

	t.Run("JSONRaw skips the envelope", func(t *testing.T) {
		t.Parallel()

		rec := render(t, core.JSONRaw(http.StatusOK, map[string]bool{"received": true}))
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
	})

	t.Run("NoContent writes nothing", func(t *testing.T) {
		t.Parallel()

		rec := render(t, core.NoContent())
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
	})

	t.Run("JSONError keeps the HTTPError status and key", func(t *testing.T) {
		t.Parallel()

		rec := render(t, core.JSONError(core.NewHTTPError(http.StatusConflict, "email_already_in_use")))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "email_already_in_use")
	})

	t.Run("JSONError unwraps joined errors", func(t *testing.T) {
		t.Parallel()

		err := errors.Join(core.ErrNotFound, errors.New("row missing"))
		rec := render(t, core.JSONError(err))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "not_found")
		assert.NotContains(t, rec.Body.String(), "row missing", "internals never leak")
	})

	t.Run("JSONError hides unknown errors behind 500", func(t *testing.T) {
		t.Parallel()

		rec := render(t, core.JSONError(errors.New("pq: connection refused")))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}
