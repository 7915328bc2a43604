package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billingd/pkg/pg"
)

// PgStore implements Store backed by PostgreSQL.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PostgreSQL-backed billing store.
// Panics on nil pool to fail fast during initialization.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	if pool == nil {
		panic("billing: pgx pool is required")
	}
	return &PgStore{pool: pool}
}

const (
	planColumns = `id, code, name, stripe_price_id, rank, created_at`
	subColumns  = `id, user_id, plan_id, stripe_subscription_id, status, current_period_start,
		current_period_end, trial_end, cancel_at_period_end, canceled_at, created_at, updated_at`
	invoiceColumns = `id, user_id, subscription_id, stripe_invoice_id, status, amount_due,
		amount_paid, currency, hosted_url, pdf_url, stripe_payment_intent_id,
		issued_at, created_at, updated_at`
)

func (s *PgStore) Plans(ctx context.Context) ([]Plan, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+planColumns+` FROM plans ORDER BY rank`)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var plans []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.StripePriceID, &p.Rank, &p.CreatedAt); err != nil {
			return nil, errors.Join(ErrStorageUnavailable, err)
		}
		plans = append(plans, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return plans, nil
}

func (s *PgStore) PlanByCode(ctx context.Context, code string) (*Plan, error) {
	return scanPlan(s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE code = $1`, code))
}

func (s *PgStore) PlanByID(ctx context.Context, id uuid.UUID) (*Plan, error) {
	return scanPlan(s.pool.QueryRow(ctx,
		`SELECT `+planColumns+` FROM plans WHERE id = $1`, id))
}

func (s *PgStore) SubscriptionForUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY updated_at DESC LIMIT 1`, userID))
}

func (s *PgStore) OccupyingSubscriptionForUser(ctx context.Context, userID uuid.UUID) (*Subscription, error) {
	return scanSubscription(s.pool.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status IN ('ACTIVE', 'TRIALING', 'PAST_DUE')
		 ORDER BY updated_at DESC LIMIT 1`, userID))
}

func (s *PgStore) InvoicesForUser(ctx context.Context, userID uuid.UUID) ([]Invoice, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE user_id = $1 ORDER BY issued_at DESC`, userID)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(
			&inv.ID, &inv.UserID, &inv.SubscriptionID, &inv.ExternalID, &inv.Status,
			&inv.AmountDue, &inv.AmountPaid, &inv.Currency, &inv.HostedURL,
			&inv.PDFURL, &inv.PaymentIntentID,
			&inv.IssuedAt, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, errors.Join(ErrStorageUnavailable, err)
		}
		invoices = append(invoices, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return invoices, nil
}

func (s *PgStore) CountSubscriptions(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT count(*) FROM subscriptions`)
}

func (s *PgStore) CountInvoices(ctx context.Context) (int64, error) {
	return s.count(ctx, `SELECT count(*) FROM invoices`)
}

func (s *PgStore) count(ctx context.Context, query string) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, errors.Join(ErrStorageUnavailable, err)
	}
	return n, nil
}

func (s *PgStore) EventSeen(ctx context.Context, eventID string) (bool, error) {
	var seen bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM processed_events WHERE event_id = $1)`, eventID,
	).Scan(&seen)
	if err != nil {
		return false, errors.Join(ErrStorageUnavailable, err)
	}
	return seen, nil
}

func (s *PgStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

// pgTx implements Tx over one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) SubscriptionByExternalID(ctx context.Context, externalID string) (*Subscription, error) {
	return scanSubscription(t.tx.QueryRow(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE stripe_subscription_id = $1 FOR UPDATE`, externalID))
}

func (t *pgTx) OccupyingSubscriptionsForUser(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT `+subColumns+` FROM subscriptions
		 WHERE user_id = $1 AND status IN ('ACTIVE', 'TRIALING', 'PAST_DUE')
		 FOR UPDATE`, userID)
	if err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(
			&sub.ID, &sub.UserID, &sub.PlanID, &sub.ExternalID, &sub.Status,
			&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEnd,
			&sub.CancelAtPeriodEnd, &sub.CanceledAt,
			&sub.CreatedAt, &sub.UpdatedAt,
		); err != nil {
			return nil, errors.Join(ErrStorageUnavailable, err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return subs, nil
}

func (t *pgTx) CancelSubscription(ctx context.Context, id uuid.UUID, canceledAt time.Time) error {
	_, err := t.tx.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2, canceled_at = $3, updated_at = $3
		 WHERE id = $1`,
		id, StatusCanceled, canceledAt)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (t *pgTx) UpsertSubscription(ctx context.Context, sub *Subscription) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO subscriptions
		 (id, user_id, plan_id, stripe_subscription_id, status, current_period_start,
		  current_period_end, trial_end, cancel_at_period_end, canceled_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 ON CONFLICT (stripe_subscription_id) WHERE stripe_subscription_id IS NOT NULL
		 DO UPDATE SET
		   plan_id = EXCLUDED.plan_id,
		   status = EXCLUDED.status,
		   current_period_start = EXCLUDED.current_period_start,
		   current_period_end = EXCLUDED.current_period_end,
		   trial_end = EXCLUDED.trial_end,
		   cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		   canceled_at = EXCLUDED.canceled_at,
		   updated_at = EXCLUDED.updated_at`,
		sub.ID, sub.UserID, sub.PlanID, sub.ExternalID, sub.Status, sub.CurrentPeriodStart,
		sub.CurrentPeriodEnd, sub.TrialEnd, sub.CancelAtPeriodEnd, sub.CanceledAt,
		sub.CreatedAt, sub.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (t *pgTx) UpsertInvoice(ctx context.Context, inv *Invoice) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO invoices
		 (id, user_id, subscription_id, stripe_invoice_id, status, amount_due,
		  amount_paid, currency, hosted_url, pdf_url, stripe_payment_intent_id,
		  issued_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		 ON CONFLICT (stripe_invoice_id) DO UPDATE SET
		   subscription_id = EXCLUDED.subscription_id,
		   status = EXCLUDED.status,
		   amount_due = EXCLUDED.amount_due,
		   amount_paid = EXCLUDED.amount_paid,
		   hosted_url = EXCLUDED.hosted_url,
		   pdf_url = EXCLUDED.pdf_url,
		   stripe_payment_intent_id = EXCLUDED.stripe_payment_intent_id,
		   updated_at = EXCLUDED.updated_at`,
		inv.ID, inv.UserID, inv.SubscriptionID, inv.ExternalID, inv.Status, inv.AmountDue,
		inv.AmountPaid, inv.Currency, inv.HostedURL, inv.PDFURL, inv.PaymentIntentID,
		inv.IssuedAt, inv.CreatedAt, inv.UpdatedAt)
	if err != nil {
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func (t *pgTx) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO processed_events (event_id, event_type, processed_at)
		 VALUES ($1, $2, $3)`,
		eventID, eventType, time.Now().UTC())
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return ErrEventAlreadyProcessed
		}
		return errors.Join(ErrStorageUnavailable, err)
	}
	return nil
}

func scanPlan(row pgx.Row) (*Plan, error) {
	var p Plan
	err := row.Scan(&p.ID, &p.Code, &p.Name, &p.StripePriceID, &p.Rank, &p.CreatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrPlanNotFound
		}
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return &p, nil
}

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.ExternalID, &sub.Status,
		&sub.CurrentPeriodStart, &sub.CurrentPeriodEnd, &sub.TrialEnd,
		&sub.CancelAtPeriodEnd, &sub.CanceledAt,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, errors.Join(ErrStorageUnavailable, err)
	}
	return &sub, nil
}
