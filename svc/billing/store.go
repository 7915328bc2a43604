package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists billing state. Multi-record mutations go through InTx so
// the single-occupying-subscription invariant and event dedup hold under
// concurrent webhook delivery.
type Store interface {
	Plans(ctx context.Context) ([]Plan, error)
	PlanByCode(ctx context.Context, code string) (*Plan, error)
	PlanByID(ctx context.Context, id uuid.UUID) (*Plan, error)

	// SubscriptionForUser returns the user's most recent subscription,
	// occupying or not. Returns ErrSubscriptionNotFound when none exists.
	SubscriptionForUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// OccupyingSubscriptionForUser returns the user's occupying
	// subscription, or ErrSubscriptionNotFound.
	OccupyingSubscriptionForUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	InvoicesForUser(ctx context.Context, userID uuid.UUID) ([]Invoice, error)

	// CountSubscriptions and CountInvoices back the reporting summary.
	CountSubscriptions(ctx context.Context) (int64, error)
	CountInvoices(ctx context.Context) (int64, error)

	// EventSeen reports whether the dedup marker for the event exists.
	EventSeen(ctx context.Context, eventID string) (bool, error)

	// InTx runs fn inside a single transaction. A non-nil error from fn
	// rolls everything back.
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the transactional slice of the store used by reconciliation.
type Tx interface {
	// SubscriptionByExternalID returns the subscription with the provider
	// id, or ErrSubscriptionNotFound.
	SubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error)

	// OccupyingSubscriptionsForUser returns every occupying subscription of
	// the user, locked for update.
	OccupyingSubscriptionsForUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error)

	// CancelSubscription flips a subscription to CANCELED with the given
	// cancellation time.
	CancelSubscription(ctx context.Context, id uuid.UUID, canceledAt time.Time) error

	// UpsertSubscription inserts the subscription or, when its external id
	// already exists, updates that row in place.
	UpsertSubscription(ctx context.Context, sub *Subscription) error

	// UpsertInvoice inserts the invoice or updates the row with the same
	// external id.
	UpsertInvoice(ctx context.Context, inv *Invoice) error

	// MarkEventProcessed inserts the dedup marker. A duplicate marker,
	// including one raced in by a concurrent twin, returns
	// ErrEventAlreadyProcessed.
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}
