package billing

import (
	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/billingd/modules/auth"
	billingsvc "github.com/dmitrymomot/billingd/svc/billing"
	"github.com/dmitrymomot/billingd/svc/session"
)

// Router mounts the billing endpoints. The webhook stays outside the auth
// group; the provider authenticates with its signature header instead.
func (m *Module) Router(sessions *session.Manager) chi.Router {
	r := chi.NewRouter()

	r.Post("/webhook", m.handleWebhook)
	r.Get("/plans", m.handleListPlans)

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(sessions))
		r.Get("/subscription", m.handleCurrentSubscription)
		r.Post("/subscriptions", m.handleCreateSubscription)
		r.Post("/checkout", m.handleCheckout)
		r.Post("/portal", m.handlePortal)
		r.Get("/invoices", m.handleListInvoices)

		r.With(m.RequirePlan(billingsvc.PlanPro)).Get("/reports/summary", m.handleReportSummary)
	})

	return r
}
