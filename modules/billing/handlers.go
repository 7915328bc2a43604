package billing

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingd/core"
	"github.com/dmitrymomot/billingd/modules/auth"
	billingsvc "github.com/dmitrymomot/billingd/svc/billing"
)

// Module bundles the billing HTTP handlers.
type Module struct {
	svc        *billingsvc.Service
	reconciler *billingsvc.Reconciler
	provider   billingsvc.Provider // nil when unconfigured
	log        *slog.Logger
}

// NewModule constructs the billing module. Provider may be nil; the
// webhook endpoint then answers 204 and checkout returns an error.
func NewModule(svc *billingsvc.Service, reconciler *billingsvc.Reconciler, provider billingsvc.Provider, log *slog.Logger) *Module {
	if svc == nil {
		panic("billing: service is required")
	}
	if reconciler == nil {
		panic("billing: reconciler is required")
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Module{svc: svc, reconciler: reconciler, provider: provider, log: log}
}

type planResponse struct {
	Code string `json:"code"`
	Name string `json:"name"`
	Rank int    `json:"rank"`
}

func (m *Module) handleListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := m.svc.ListPlans(r.Context())
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{Code: p.Code, Name: p.Name, Rank: p.Rank})
	}
	core.Render(w, r, core.JSON(out))
}

type subscriptionResponse struct {
	Plan               string     `json:"plan"`
	Status             string     `json:"status"`
	Role               string     `json:"role"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CancelAtPeriodEnd  bool       `json:"cancel_at_period_end"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
}

func (m *Module) handleCurrentSubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	state, err := m.svc.CurrentSubscription(r.Context(), userID)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	resp := subscriptionResponse{Plan: billingsvc.PlanFree, Role: state.Role}
	if state.Subscription != nil {
		resp.Plan = state.Plan.Code
		resp.Status = string(state.Subscription.Status)
		resp.CurrentPeriodStart = state.Subscription.CurrentPeriodStart
		resp.CurrentPeriodEnd = state.Subscription.CurrentPeriodEnd
		resp.TrialEnd = state.Subscription.TrialEnd
		resp.CancelAtPeriodEnd = state.Subscription.CancelAtPeriodEnd
		resp.CanceledAt = state.Subscription.CanceledAt
	}
	core.Render(w, r, core.JSON(resp))
}

type createSubscriptionRequest struct {
	UserID uuid.UUID `json:"user_id"`
	Plan   string    `json:"plan"`
}

// handleCreateSubscription provisions a subscription without the payment
// provider. Intended for admin grants; the route sits behind auth.
func (m *Module) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	callerID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	var req createSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}
	if req.UserID == uuid.Nil {
		req.UserID = callerID
	}
	if req.UserID != callerID {
		core.Render(w, r, core.JSONError(core.ErrForbidden))
		return
	}

	sub, err := m.svc.CreateManualSubscription(r.Context(), req.UserID, req.Plan)
	if err != nil {
		core.Render(w, r, core.JSONError(mapBillingError(err)))
		return
	}

	core.Render(w, r, core.JSONStatus(http.StatusCreated, subscriptionResponse{
		Plan:             req.Plan,
		Status:           string(sub.Status),
		Role:             billingsvc.RoleForPlan(req.Plan),
		CurrentPeriodEnd: sub.CurrentPeriodEnd,
	}))
}

type checkoutRequest struct {
	Plan string `json:"plan"`
}

func (m *Module) handleCheckout(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.Render(w, r, core.JSONError(core.ErrBadRequest))
		return
	}

	sess, err := m.svc.CreateCheckoutSession(r.Context(), userID, req.Plan)
	if err != nil {
		core.Render(w, r, core.JSONError(mapBillingError(err)))
		return
	}

	core.Render(w, r, core.JSON(map[string]string{"id": sess.ID, "url": sess.URL}))
}

func (m *Module) handlePortal(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	sess, err := m.svc.CreatePortalSession(r.Context(), userID)
	if err != nil {
		core.Render(w, r, core.JSONError(mapBillingError(err)))
		return
	}

	core.Render(w, r, core.JSON(map[string]string{"url": sess.URL}))
}

type invoiceResponse struct {
	Status     string    `json:"status"`
	AmountDue  int64     `json:"amount_due"`
	AmountPaid int64     `json:"amount_paid"`
	Currency   string    `json:"currency"`
	HostedURL  *string   `json:"hosted_url,omitempty"`
	PDFURL     *string   `json:"pdf_url,omitempty"`
	IssuedAt   time.Time `json:"issued_at"`
}

func (m *Module) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		core.Render(w, r, core.JSONError(core.ErrUnauthorized))
		return
	}

	invoices, err := m.svc.ListInvoices(r.Context(), userID)
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}

	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, invoiceResponse{
			Status:     string(inv.Status),
			AmountDue:  inv.AmountDue,
			AmountPaid: inv.AmountPaid,
			Currency:   inv.Currency,
			HostedURL:  inv.HostedURL,
			PDFURL:     inv.PDFURL,
			IssuedAt:   inv.IssuedAt,
		})
	}
	core.Render(w, r, core.JSON(out))
}

// handleReportSummary returns aggregate counts across all users. The
// route sits behind the pro plan gate.
func (m *Module) handleReportSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := m.svc.Summary(r.Context())
	if err != nil {
		core.Render(w, r, core.JSONError(err))
		return
	}
	core.Render(w, r, core.JSON(summary))
}

// mapBillingError translates domain sentinels to HTTP errors that carry
// stable keys.
func mapBillingError(err error) error {
	switch {
	case errors.Is(err, billingsvc.ErrPlanNotFound):
		return core.NewHTTPError(http.StatusNotFound, "plan_not_found")
	case errors.Is(err, billingsvc.ErrFreePlanNotBillable):
		return core.NewHTTPError(http.StatusBadRequest, "free_plan_not_billable")
	case errors.Is(err, billingsvc.ErrSubscriptionExists):
		return core.NewHTTPError(http.StatusBadRequest, "subscription_already_active")
	case errors.Is(err, billingsvc.ErrSubscriptionNotFound):
		return core.NewHTTPError(http.StatusNotFound, "subscription_not_found")
	case errors.Is(err, billingsvc.ErrProviderNotConfigured):
		return core.NewHTTPError(http.StatusServiceUnavailable, "billing_not_configured")
	case errors.Is(err, billingsvc.ErrProviderUnavailable):
		return core.NewHTTPError(http.StatusBadGateway, "billing_provider_unavailable")
	default:
		return err
	}
}
