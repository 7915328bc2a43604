package billing

import (
	"errors"
	"io"
	"net/http"

	"github.com/dmitrymomot/billingd/core"
	"github.com/dmitrymomot/billingd/pkg/logger"
	billingsvc "github.com/dmitrymomot/billingd/svc/billing"
)

// Provider webhooks rarely exceed a few KB; anything near this is abuse.
const maxWebhookBody = 1 << 20

// handleWebhook receives provider events. Response contract:
//
//	200 {"received": true}  applied, duplicate, or deliberately skipped
//	400                     unreadable body or bad signature (no retry)
//	204                     no provider configured
//	500                     transient local failure (provider retries)
//
// The raw body must be read before any parsing since the signature covers
// the exact bytes.
func (m *Module) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if m.provider == nil {
		core.Render(w, r, core.NoContent())
		return
	}

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}

	event, err := m.provider.VerifyWebhook(payload, r.Header.Get("Stripe-Signature"))
	if err != nil {
		m.log.WarnContext(r.Context(), "webhook rejected",
			logger.Component("webhook"),
			logger.Error(err),
		)
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}

	if err := m.reconciler.Apply(r.Context(), event); err != nil {
		if errors.Is(err, billingsvc.ErrProviderNotConfigured) {
			core.Render(w, r, core.NoContent())
			return
		}
		m.log.ErrorContext(r.Context(), "event application failed",
			logger.Component("webhook"),
			logger.EventID(event.ID),
			logger.EventType(event.Type),
			logger.Error(err),
		)
		core.Render(w, r, core.JSONError(core.ErrInternalServerError))
		return
	}

	core.Render(w, r, core.JSONRaw(http.StatusOK, map[string]bool{"received": true}))
}
