package billing

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEvent(t *testing.T) {
	t.Parallel()

	t.Run("subscription with inline customer id", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{
			"id": "sub_1",
			"customer": "cus_1",
			"status": "active",
			"cancel_at_period_end": true,
			"current_period_start": 1764547200,
			"current_period_end": 1767225600,
			"trial_end": 1765152000,
			"items": {"data": [{"price": {"id": "price_pro"}}]}
		}`)

		ev, err := normalizeEvent("evt_1", "customer.subscription.updated", data)
		require.NoError(t, err)
		require.Equal(t, EventKindSubscription, ev.Kind)
		assert.Equal(t, "sub_1", ev.Subscription.SubscriptionID)
		assert.Equal(t, "cus_1", ev.Subscription.CustomerID)
		assert.Equal(t, "price_pro", ev.Subscription.PriceID)
		assert.Equal(t, StatusActive, ev.Subscription.Status)
		assert.True(t, ev.Subscription.CancelAtPeriodEnd)
		require.NotNil(t, ev.Subscription.CurrentPeriodStart)
		assert.Equal(t, time.Unix(1764547200, 0).UTC(), *ev.Subscription.CurrentPeriodStart)
		require.NotNil(t, ev.Subscription.CurrentPeriodEnd)
		assert.Equal(t, time.Unix(1767225600, 0).UTC(), *ev.Subscription.CurrentPeriodEnd)
		require.NotNil(t, ev.Subscription.TrialEnd)
		assert.Equal(t, time.Unix(1765152000, 0).UTC(), *ev.Subscription.TrialEnd)
	})

	t.Run("expanded customer object is flattened", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{
			"id": "sub_2",
			"customer": {"id": "cus_2", "email": "x@example.com"},
			"status": "trialing",
			"items": {"data": [{"current_period_start": 1764547200, "current_period_end": 1767225600, "price": {"id": "price_pro"}}]}
		}`)

		ev, err := normalizeEvent("evt_2", "customer.subscription.created", data)
		require.NoError(t, err)
		assert.Equal(t, "cus_2", ev.Subscription.CustomerID)
		assert.Equal(t, StatusTrialing, ev.Subscription.Status)

		// Period lives on the item in newer payload generations.
		require.NotNil(t, ev.Subscription.CurrentPeriodStart)
		assert.Equal(t, time.Unix(1764547200, 0).UTC(), *ev.Subscription.CurrentPeriodStart)
		require.NotNil(t, ev.Subscription.CurrentPeriodEnd)
	})

	t.Run("deleted subscription forces canceled", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{"id": "sub_3", "customer": "cus_3", "status": "active"}`)

		ev, err := normalizeEvent("evt_3", "customer.subscription.deleted", data)
		require.NoError(t, err)
		assert.Equal(t, StatusCanceled, ev.Subscription.Status)
		assert.True(t, ev.Subscription.Deleted)
	})

	t.Run("invoice with nested subscription reference", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{
			"id": "in_1",
			"customer": "cus_1",
			"status": "paid",
			"amount_due": 1900,
			"amount_paid": 1900,
			"currency": "usd",
			"hosted_invoice_url": "https://invoice.example/in_1",
			"invoice_pdf": "https://invoice.example/in_1.pdf",
			"payment_intent": "pi_1",
			"created": 1767225600,
			"parent": {"subscription_details": {"subscription": "sub_1"}}
		}`)

		ev, err := normalizeEvent("evt_4", "invoice.paid", data)
		require.NoError(t, err)
		require.Equal(t, EventKindInvoice, ev.Kind)
		assert.Equal(t, "sub_1", ev.Invoice.SubscriptionID)
		assert.Equal(t, InvoicePaid, ev.Invoice.Status)
		assert.Equal(t, int64(1900), ev.Invoice.AmountPaid)
		assert.Equal(t, "https://invoice.example/in_1.pdf", ev.Invoice.PDFURL)
		assert.Equal(t, "pi_1", ev.Invoice.PaymentIntentID)
	})

	t.Run("expanded payment intent object is flattened", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{
			"id": "in_2",
			"customer": "cus_1",
			"status": "open",
			"payment_intent": {"id": "pi_2", "status": "requires_payment_method"},
			"created": 1767225600
		}`)

		ev, err := normalizeEvent("evt_4b", "invoice.payment_failed", data)
		require.NoError(t, err)
		assert.Equal(t, "pi_2", ev.Invoice.PaymentIntentID)
	})

	t.Run("checkout session", func(t *testing.T) {
		t.Parallel()

		data := json.RawMessage(`{
			"id": "cs_1",
			"customer": "cus_1",
			"subscription": "sub_1",
			"client_reference_id": "7c9e6679-7425-40de-944b-e07fc1f90ae7"
		}`)

		ev, err := normalizeEvent("evt_5", "checkout.session.completed", data)
		require.NoError(t, err)
		require.Equal(t, EventKindCheckout, ev.Kind)
		assert.Equal(t, "sub_1", ev.Checkout.SubscriptionID)
		assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", ev.Checkout.ClientReferenceID)
	})

	t.Run("unhandled type is ignored", func(t *testing.T) {
		t.Parallel()

		ev, err := normalizeEvent("evt_6", "customer.updated", json.RawMessage(`{"id": "cus_1"}`))
		require.NoError(t, err)
		assert.Equal(t, EventKindIgnored, ev.Kind)
	})
}

func TestStatusFromProvider(t *testing.T) {
	t.Parallel()

	cases := map[string]Status{
		"active":             StatusActive,
		"trialing":           StatusTrialing,
		"past_due":           StatusPastDue,
		"canceled":           StatusCanceled,
		"unpaid":             StatusUnpaid,
		"incomplete":         StatusIncomplete,
		"incomplete_expired": StatusIncompleteExpired,
		"paused":             StatusCanceled, // unknown statuses must not occupy
		"":                   StatusCanceled,
	}
	for in, want := range cases {
		assert.Equal(t, want, StatusFromProvider(in), "status %q", in)
	}
}

func TestPlanRank(t *testing.T) {
	t.Parallel()

	assert.Greater(t, PlanRank(PlanPremium), PlanRank(PlanPro))
	assert.Greater(t, PlanRank(PlanPro), PlanRank(PlanFree))
	assert.Equal(t, PlanRank(PlanFree), PlanRank("mystery"))
}

func TestStatusOccupying(t *testing.T) {
	t.Parallel()

	occupying := []Status{StatusActive, StatusTrialing, StatusPastDue}
	for _, s := range occupying {
		assert.True(t, s.Occupying(), string(s))
	}

	free := []Status{StatusCanceled, StatusUnpaid, StatusIncomplete, StatusIncompleteExpired}
	for _, s := range free {
		assert.False(t, s.Occupying(), string(s))
	}
}
