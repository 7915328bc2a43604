package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/billingd/pkg/logger"
	"github.com/dmitrymomot/billingd/svc/user"
)

// UserDirectory resolves provider customers to local users.
type UserDirectory interface {
	ByID(ctx context.Context, id uuid.UUID) (*user.User, error)
	ByStripeCustomerID(ctx context.Context, customerID string) (*user.User, error)
}

// Reconciler applies normalized provider events to local billing state.
// Every applied event takes effect at most once, and after any sequence of
// events a user holds at most one occupying subscription.
type Reconciler struct {
	store    Store
	users    UserDirectory
	provider Provider // nil when unconfigured; only checkout events need it
	cfg      StripeConfig
	audit    AuditLogger
	log      *slog.Logger

	now func() time.Time
}

// NewReconciler constructs the reconciler. Panics on missing store or user
// directory; provider may be nil.
func NewReconciler(store Store, users UserDirectory, provider Provider, cfg StripeConfig, audit AuditLogger, log *slog.Logger) *Reconciler {
	if store == nil {
		panic("billing: store is required")
	}
	if users == nil {
		panic("billing: user directory is required")
	}
	if audit == nil {
		audit = NopAuditLogger{}
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	return &Reconciler{
		store:    store,
		users:    users,
		provider: provider,
		cfg:      cfg,
		audit:    audit,
		log:      log,
		now:      time.Now,
	}
}

// Apply reconciles one event. A nil return means the event was fully
// applied, was a duplicate, or was deliberately skipped; the webhook
// endpoint acknowledges all three the same way. Errors bubble only for
// transient failures worth a provider retry.
func (r *Reconciler) Apply(ctx context.Context, ev *Event) error {
	if ev == nil || ev.Kind == EventKindIgnored {
		return nil
	}

	seen, err := r.store.EventSeen(ctx, ev.ID)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	if seen {
		r.log.DebugContext(ctx, "duplicate event skipped",
			logger.Component("reconciler"),
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
		)
		return nil
	}

	switch ev.Kind {
	case EventKindSubscription:
		err = r.applySubscription(ctx, ev.ID, ev.Type, ev.Subscription)
	case EventKindInvoice:
		err = r.applyInvoice(ctx, ev.ID, ev.Type, ev.Invoice)
	case EventKindCheckout:
		err = r.applyCheckout(ctx, ev.ID, ev.Type, ev.Checkout)
	}

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrEventAlreadyProcessed):
		// A concurrent twin won the marker insert. Its transaction carries
		// the effect; this one rolled back clean.
		r.log.DebugContext(ctx, "lost event race to concurrent delivery",
			logger.Component("reconciler"),
			logger.EventID(ev.ID),
		)
		return nil
	case errors.Is(err, ErrUnresolvedCustomer), errors.Is(err, ErrUnresolvedPlan):
		r.log.WarnContext(ctx, "event skipped, reference unresolved",
			logger.Component("reconciler"),
			logger.EventID(ev.ID),
			logger.EventType(ev.Type),
			logger.Error(err),
		)
		return nil
	default:
		return err
	}
}

func (r *Reconciler) applySubscription(ctx context.Context, eventID, eventType string, se *SubscriptionEvent) error {
	usr, err := r.resolveCustomer(ctx, se.CustomerID)
	if err != nil {
		return err
	}

	plan, err := r.resolvePlan(ctx, se.PriceID)
	if err != nil {
		return err
	}

	if err := r.reconcileSubscription(ctx, eventID, eventType, usr.ID, plan.ID, se); err != nil {
		return err
	}

	r.audit.Record(ctx, AuditEntry{
		UserID:    usr.ID,
		EventID:   eventID,
		EventType: eventType,
		Action:    "subscription." + string(se.Status),
		Ref:       se.SubscriptionID,
	})
	return nil
}

// reconcileSubscription runs the core invariant transaction: claim the
// dedup marker, demote every other occupying subscription of the user,
// then upsert the target.
func (r *Reconciler) reconcileSubscription(ctx context.Context, eventID, eventType string, userID, planID uuid.UUID, se *SubscriptionEvent) error {
	now := r.now().UTC()

	return r.store.InTx(ctx, func(tx Tx) error {
		if err := tx.MarkEventProcessed(ctx, eventID, eventType); err != nil {
			return err
		}

		existing, err := tx.SubscriptionByExternalID(ctx, se.SubscriptionID)
		if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return err
		}

		target := &Subscription{
			ID:                 uuid.New(),
			UserID:             userID,
			PlanID:             planID,
			ExternalID:         &se.SubscriptionID,
			Status:             se.Status,
			CurrentPeriodStart: se.CurrentPeriodStart,
			CurrentPeriodEnd:   se.CurrentPeriodEnd,
			TrialEnd:           se.TrialEnd,
			CancelAtPeriodEnd:  se.CancelAtPeriodEnd,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if existing != nil {
			target.ID = existing.ID
			target.CreatedAt = existing.CreatedAt
			target.CanceledAt = existing.CanceledAt
		}
		if se.Status == StatusCanceled && target.CanceledAt == nil {
			target.CanceledAt = &now
		}

		if se.Status.Occupying() {
			others, err := tx.OccupyingSubscriptionsForUser(ctx, userID)
			if err != nil {
				return err
			}
			for _, other := range others {
				if other.ID == target.ID {
					continue
				}
				if err := tx.CancelSubscription(ctx, other.ID, now); err != nil {
					return err
				}
				r.log.InfoContext(ctx, "superseded occupying subscription",
					logger.Component("reconciler"),
					logger.UserID(userID.String()),
					logger.SubscriptionID(other.ID.String()),
					logger.EventID(eventID),
				)
			}
		}

		return tx.UpsertSubscription(ctx, target)
	})
}

func (r *Reconciler) applyInvoice(ctx context.Context, eventID, eventType string, ie *InvoiceEvent) error {
	usr, err := r.resolveCustomer(ctx, ie.CustomerID)
	if err != nil {
		return err
	}

	now := r.now().UTC()

	err = r.store.InTx(ctx, func(tx Tx) error {
		if err := tx.MarkEventProcessed(ctx, eventID, eventType); err != nil {
			return err
		}

		inv := &Invoice{
			ID:         uuid.New(),
			UserID:     usr.ID,
			ExternalID: ie.InvoiceID,
			Status:     ie.Status,
			AmountDue:  ie.AmountDue,
			AmountPaid: ie.AmountPaid,
			Currency:   ie.Currency,
			IssuedAt:   ie.IssuedAt,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if ie.HostedURL != "" {
			inv.HostedURL = &ie.HostedURL
		}
		if ie.PDFURL != "" {
			inv.PDFURL = &ie.PDFURL
		}
		if ie.PaymentIntentID != "" {
			inv.PaymentIntentID = &ie.PaymentIntentID
		}

		if ie.SubscriptionID != "" {
			sub, err := tx.SubscriptionByExternalID(ctx, ie.SubscriptionID)
			if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
				return err
			}
			if sub != nil {
				inv.SubscriptionID = &sub.ID
			}
		}

		return tx.UpsertInvoice(ctx, inv)
	})
	if err != nil {
		return err
	}

	r.audit.Record(ctx, AuditEntry{
		UserID:    usr.ID,
		EventID:   eventID,
		EventType: eventType,
		Action:    "invoice." + string(ie.Status),
		Ref:       ie.InvoiceID,
	})
	return nil
}

// applyCheckout resolves the checkout's subscription against the provider
// before any transaction opens, then reuses the subscription path.
func (r *Reconciler) applyCheckout(ctx context.Context, eventID, eventType string, ce *CheckoutEvent) error {
	if ce.SubscriptionID == "" {
		// One-time payment sessions carry no subscription to reconcile.
		return nil
	}
	if r.provider == nil {
		return ErrProviderNotConfigured
	}

	usr, err := r.resolveCheckoutUser(ctx, ce)
	if err != nil {
		return err
	}

	se, err := r.provider.FetchSubscription(ctx, ce.SubscriptionID)
	if err != nil {
		return err
	}
	if se.CustomerID == "" {
		se.CustomerID = ce.CustomerID
	}

	plan, err := r.resolvePlan(ctx, se.PriceID)
	if err != nil {
		return err
	}

	if err := r.reconcileSubscription(ctx, eventID, eventType, usr.ID, plan.ID, se); err != nil {
		return err
	}

	r.audit.Record(ctx, AuditEntry{
		UserID:    usr.ID,
		EventID:   eventID,
		EventType: eventType,
		Action:    "checkout.completed",
		Ref:       ce.SessionID,
	})
	return nil
}

// resolveCheckoutUser prefers the client reference id set at session
// creation, falling back to the customer mapping.
func (r *Reconciler) resolveCheckoutUser(ctx context.Context, ce *CheckoutEvent) (*user.User, error) {
	if ce.ClientReferenceID != "" {
		if id, err := uuid.Parse(ce.ClientReferenceID); err == nil {
			usr, err := r.users.ByID(ctx, id)
			if err == nil {
				return usr, nil
			}
			if !errors.Is(err, user.ErrUserNotFound) {
				return nil, errors.Join(ErrStorageUnavailable, err)
			}
		}
	}
	return r.resolveCustomer(ctx, ce.CustomerID)
}

func (r *Reconciler) resolveCustomer(ctx context.Context, customerID string) (*user.User, error) {
	if customerID == "" {
		return nil, ErrUnresolvedCustomer
	}

	usr, err := r.users.ByStripeCustomerID(ctx, customerID)
	if err != nil {
		if errors.Is(err, user.ErrUserNotFound) {
			return nil, errors.Join(ErrUnresolvedCustomer, err)
		}
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return usr, nil
}

func (r *Reconciler) resolvePlan(ctx context.Context, priceID string) (*Plan, error) {
	code := r.cfg.PlanCodeForPrice(priceID)
	if code == "" {
		return nil, ErrUnresolvedPlan
	}

	plan, err := r.store.PlanByCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			return nil, errors.Join(ErrUnresolvedPlan, err)
		}
		return nil, err
	}
	return plan, nil
}
