package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingd/pkg/logger"
)

// UserStore is the slice of user storage the billing service needs beyond
// lookups: persisting a freshly created provider customer id and counting
// users for the reporting summary.
type UserStore interface {
	UserDirectory
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	Count(ctx context.Context) (int64, error)
}

// Service exposes the user-facing billing operations: plan listing,
// subscription state, checkout, portal, invoices, and manual subscription
// management.
type Service struct {
	store    Store
	users    UserStore
	provider Provider // nil when unconfigured
	cfg      StripeConfig
	audit    AuditLogger
	log      *slog.Logger

	successURL string
	returnURL  string

	now func() time.Time
}

// ServiceConfig holds checkout redirect targets.
type ServiceConfig struct {
	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"http://localhost:3000/billing/success"`
	CheckoutCancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"http://localhost:3000/billing"`
}

// NewService constructs the billing service. Provider may be nil; billable
// operations then fail with ErrProviderNotConfigured.
func NewService(store Store, users UserStore, provider Provider, cfg StripeConfig, svcCfg ServiceConfig, audit AuditLogger, log *slog.Logger) *Service {
	if store == nil {
		panic("billing: store is required")
	}
	if users == nil {
		panic("billing: user store is required")
	}
	if audit == nil {
		audit = NopAuditLogger{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Service{
		store:      store,
		users:      users,
		provider:   provider,
		cfg:        cfg,
		audit:      audit,
		log:        log,
		successURL: svcCfg.CheckoutSuccessURL,
		returnURL:  svcCfg.CheckoutCancelURL,
		now:        time.Now,
	}
}

// ListPlans returns all purchasable tiers including free.
func (s *Service) ListPlans(ctx context.Context) ([]Plan, error) {
	return s.store.Plans(ctx)
}

// SubscriptionState is the user's current subscription plus the role it
// grants.
type SubscriptionState struct {
	Subscription *Subscription // nil when the user never subscribed
	Plan         *Plan
	Role         string
}

// CurrentSubscription returns the user's subscription state. Users without
// an occupying subscription hold the free role even if a canceled record
// remains visible.
func (s *Service) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*SubscriptionState, error) {
	sub, err := s.store.SubscriptionForUser(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			return &SubscriptionState{Role: RoleForPlan(PlanFree)}, nil
		}
		return nil, err
	}

	plan, err := s.store.PlanByID(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}

	role := RoleForPlan(PlanFree)
	if sub.Status.Occupying() {
		role = RoleForPlan(plan.Code)
	}

	return &SubscriptionState{Subscription: sub, Plan: plan, Role: role}, nil
}

// ListInvoices returns the user's invoices, newest first.
func (s *Service) ListInvoices(ctx context.Context, userID uuid.UUID) ([]Invoice, error) {
	return s.store.InvoicesForUser(ctx, userID)
}

// ReportSummary is an aggregate snapshot across all users.
type ReportSummary struct {
	UsersCount         int64 `json:"users_count"`
	SubscriptionsCount int64 `json:"subscriptions_count"`
	InvoicesCount      int64 `json:"invoices_count"`
}

// Summary returns aggregate counts for reporting.
func (s *Service) Summary(ctx context.Context) (*ReportSummary, error) {
	users, err := s.users.Count(ctx)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	subs, err := s.store.CountSubscriptions(ctx)
	if err != nil {
		return nil, err
	}
	invoices, err := s.store.CountInvoices(ctx)
	if err != nil {
		return nil, err
	}

	return &ReportSummary{
		UsersCount:         users,
		SubscriptionsCount: subs,
		InvoicesCount:      invoices,
	}, nil
}

// CreateManualSubscription provisions a subscription without the payment
// provider, for admin grants and migrations. The free plan is rejected
// before any mutation. Any other occupying subscription of the user is
// canceled in the same transaction that inserts the new one.
func (s *Service) CreateManualSubscription(ctx context.Context, userID uuid.UUID, planCode string) (*Subscription, error) {
	plan, err := s.store.PlanByCode(ctx, planCode)
	if err != nil {
		return nil, err
	}
	if !plan.Billable() {
		return nil, ErrFreePlanNotBillable
	}

	now := s.now().UTC()
	periodEnd := now.AddDate(0, 1, 0)
	sub := &Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		PlanID:           plan.ID,
		Status:           StatusActive,
		CurrentPeriodEnd: &periodEnd,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.store.InTx(ctx, func(tx Tx) error {
		others, err := tx.OccupyingSubscriptionsForUser(ctx, userID)
		if err != nil {
			return err
		}
		for _, other := range others {
			if err := tx.CancelSubscription(ctx, other.ID, now); err != nil {
				return err
			}
		}
		return tx.UpsertSubscription(ctx, sub)
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, AuditEntry{
		UserID: userID,
		Action: "subscription.manual_create",
		Ref:    plan.Code,
	})
	return sub, nil
}

// CreateCheckoutSession starts a hosted checkout for a paid plan. Users
// with an occupying subscription are rejected; they manage the existing
// one through the portal instead.
func (s *Service) CreateCheckoutSession(ctx context.Context, userID uuid.UUID, planCode string) (*CheckoutSession, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	plan, err := s.store.PlanByCode(ctx, planCode)
	if err != nil {
		return nil, err
	}
	if !plan.Billable() {
		return nil, ErrFreePlanNotBillable
	}

	priceID := s.cfg.PriceIDForPlan(plan.Code)
	if priceID == "" {
		return nil, ErrProviderNotConfigured
	}

	if _, err := s.store.OccupyingSubscriptionForUser(ctx, userID); err == nil {
		return nil, ErrSubscriptionExists
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, err
	}

	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.provider.CreateCheckoutSession(ctx, CheckoutRequest{
		CustomerID:        customerID,
		PriceID:           priceID,
		ClientReferenceID: userID.String(),
		SuccessURL:        s.successURL,
		CancelURL:         s.returnURL,
	})
}

// CreatePortalSession opens the provider billing portal for the user.
func (s *Service) CreatePortalSession(ctx context.Context, userID uuid.UUID) (*PortalSession, error) {
	if s.provider == nil {
		return nil, ErrProviderNotConfigured
	}

	customerID, err := s.ensureCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	return s.provider.CreatePortalSession(ctx, customerID, s.returnURL)
}

// EnsureCustomer creates the provider customer for a user if absent. Used
// best-effort at registration so webhooks can resolve the user later.
func (s *Service) EnsureCustomer(ctx context.Context, userID uuid.UUID) error {
	if s.provider == nil {
		return nil
	}
	_, err := s.ensureCustomer(ctx, userID)
	return err
}

func (s *Service) ensureCustomer(ctx context.Context, userID uuid.UUID) (string, error) {
	usr, err := s.users.ByID(ctx, userID)
	if err != nil {
		return "", errors.Join(ErrStorageUnavailable, err)
	}
	if usr.StripeCustomerID != nil && *usr.StripeCustomerID != "" {
		return *usr.StripeCustomerID, nil
	}

	customerID, err := s.provider.CreateCustomer(ctx, usr.Email, usr.Name, usr.ID.String())
	if err != nil {
		return "", err
	}

	if err := s.users.SetStripeCustomerID(ctx, usr.ID, customerID); err != nil {
		// The provider-side customer exists but the mapping write failed.
		// A later attempt creates a duplicate customer, which Stripe
		// tolerates; losing the mapping would not.
		s.log.ErrorContext(ctx, "failed to persist provider customer id",
			logger.Component("billing"),
			logger.UserID(usr.ID.String()),
			logger.CustomerID(customerID),
			logger.Error(err),
		)
		return "", errors.Join(ErrStorageUnavailable, err)
	}

	return customerID, nil
}
