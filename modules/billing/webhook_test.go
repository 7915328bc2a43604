package billing_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	billingmod "github.com/dmitrymomot/billingd/modules/billing"
	"github.com/dmitrymomot/billingd/svc/billing"
	"github.com/dmitrymomot/billingd/svc/session"
	"github.com/dmitrymomot/billingd/svc/user"
)

// fakeProvider verifies webhooks by decoding the payload as a pre-built
// event whenever the signature header matches the expected value.
type fakeProvider struct {
	signature     string
	subscriptions map[string]*billing.SubscriptionEvent
}

func (p *fakeProvider) VerifyWebhook(payload []byte, sigHeader string) (*billing.Event, error) {
	if sigHeader != p.signature {
		return nil, billing.ErrInvalidSignature
	}
	var ev billing.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, billing.ErrInvalidSignature
	}
	return &ev, nil
}

func (p *fakeProvider) FetchSubscription(_ context.Context, id string) (*billing.SubscriptionEvent, error) {
	se, ok := p.subscriptions[id]
	if !ok {
		return nil, billing.ErrProviderUnavailable
	}
	return se, nil
}

func (p *fakeProvider) CreateCustomer(context.Context, string, string, string) (string, error) {
	return "cus_fake", nil
}

func (p *fakeProvider) CreateCheckoutSession(context.Context, billing.CheckoutRequest) (*billing.CheckoutSession, error) {
	return &billing.CheckoutSession{ID: "cs_fake", URL: "https://checkout.example"}, nil
}

func (p *fakeProvider) CreatePortalSession(context.Context, string, string) (*billing.PortalSession, error) {
	return &billing.PortalSession{URL: "https://portal.example"}, nil
}

type fixture struct {
	handler  http.Handler
	store    *billing.MemoryStore
	users    *user.MemoryStore
	sessions *session.Manager
}

func newFixture(t *testing.T, provider billing.Provider) *fixture {
	t.Helper()

	store := billing.NewMemoryStore()
	users := user.NewMemoryStore()
	log := slog.New(slog.DiscardHandler)

	cfg := billing.StripeConfig{SecretKey: "sk_test_x", PriceIDPro: "price_pro", PriceIDPremium: "price_premium"}
	svc := billing.NewService(store, users, provider, cfg, billing.ServiceConfig{}, nil, log)
	rec := billing.NewReconciler(store, users, provider, cfg, nil, log)

	sessions := session.NewManager(session.Config{
		JWTSecret: "test-secret-key-0123456789abcdef",
	}, session.NewMemoryStore(), log)

	m := billingmod.NewModule(svc, rec, provider, log)
	return &fixture{handler: m.Router(sessions), store: store, users: users, sessions: sessions}
}

// bearer issues an access token for the user, ready for the
// Authorization header.
func (f *fixture) bearer(t *testing.T, userID uuid.UUID) string {
	t.Helper()

	pair, err := f.sessions.Issue(context.Background(), userID)
	require.NoError(t, err)
	return "Bearer " + pair.AccessToken
}

func (f *fixture) seedUser(t *testing.T, customerID string) *user.User {
	t.Helper()

	u := &user.User{ID: uuid.New(), Email: uuid.NewString() + "@example.com"}
	require.NoError(t, f.users.Create(context.Background(), u))
	require.NoError(t, f.users.SetStripeCustomerID(context.Background(), u.ID, customerID))
	return u
}

func postWebhook(t *testing.T, h http.Handler, sig string, event any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(event))

	req := httptest.NewRequest(http.MethodPost, "/webhook", &buf)
	if sig != "" {
		req.Header.Set("Stripe-Signature", sig)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestWebhook(t *testing.T) {
	t.Parallel()

	t.Run("unconfigured provider answers 204", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		rec := postWebhook(t, f.handler, "whatever", map[string]any{})
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("missing signature is a 400", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})
		rec := postWebhook(t, f.handler, "", map[string]any{})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("applied subscription event answers received", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})
		u := f.seedUser(t, "cus_w1")

		end := time.Now().Add(30 * 24 * time.Hour).UTC()
		rec := postWebhook(t, f.handler, "sig_ok", billing.Event{
			ID:   "evt_w1",
			Type: "customer.subscription.created",
			Kind: billing.EventKindSubscription,
			Subscription: &billing.SubscriptionEvent{
				SubscriptionID:   "sub_w1",
				CustomerID:       "cus_w1",
				PriceID:          "price_pro",
				Status:           billing.StatusActive,
				CurrentPeriodEnd: &end,
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())

		sub, err := f.store.OccupyingSubscriptionForUser(context.Background(), u.ID)
		require.NoError(t, err)
		assert.Equal(t, "sub_w1", *sub.ExternalID)
	})

	t.Run("invoice for unknown customer is acknowledged without a row", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})

		rec := postWebhook(t, f.handler, "sig_ok", billing.Event{
			ID:   "evt_w2",
			Type: "invoice.paid",
			Kind: billing.EventKindInvoice,
			Invoice: &billing.InvoiceEvent{
				InvoiceID:  "in_w2",
				CustomerID: "cus_nobody",
				Status:     billing.InvoicePaid,
				IssuedAt:   time.Now().UTC(),
			},
		})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"received": true}`, rec.Body.String())
	})

	t.Run("redelivered event answers received without a second effect", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})
		f.seedUser(t, "cus_w3")

		ev := billing.Event{
			ID:   "evt_w3",
			Type: "customer.subscription.created",
			Kind: billing.EventKindSubscription,
			Subscription: &billing.SubscriptionEvent{
				SubscriptionID: "sub_w3",
				CustomerID:     "cus_w3",
				PriceID:        "price_pro",
				Status:         billing.StatusActive,
			},
		}
		require.Equal(t, http.StatusOK, postWebhook(t, f.handler, "sig_ok", ev).Code)
		assert.Equal(t, http.StatusOK, postWebhook(t, f.handler, "sig_ok", ev).Code)
	})

	t.Run("ignored event type is acknowledged", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})
		rec := postWebhook(t, f.handler, "sig_ok", billing.Event{
			ID:   "evt_w4",
			Type: "customer.updated",
			Kind: billing.EventKindIgnored,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestBillingEndpoints(t *testing.T) {
	t.Parallel()

	t.Run("plans are public", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		req := httptest.NewRequest(http.MethodGet, "/plans", nil)
		rec := httptest.NewRecorder()
		f.handler.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "free")
		assert.Contains(t, rec.Body.String(), "premium")
	})

	t.Run("subscription endpoints require auth", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		for _, route := range []string{"/subscription", "/invoices", "/reports/summary"} {
			req := httptest.NewRequest(http.MethodGet, route, nil)
			rec := httptest.NewRecorder()
			f.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, route)
		}
	})
}

func getReportSummary(t *testing.T, f *fixture, authorization string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/reports/summary", nil)
	req.Header.Set("Authorization", authorization)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestReportSummary(t *testing.T) {
	t.Parallel()

	t.Run("free user is rejected", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		u := f.seedUser(t, "cus_r1")

		rec := getReportSummary(t, f, f.bearer(t, u.ID))
		require.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, rec.Body.String(), "insufficient_plan")
	})

	t.Run("pro subscriber gets the counts", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		u := f.seedUser(t, "cus_r2")
		f.seedUser(t, "cus_r3")

		req := httptest.NewRequest(http.MethodPost, "/subscriptions",
			bytes.NewBufferString(`{"plan": "pro"}`))
		req.Header.Set("Authorization", f.bearer(t, u.ID))
		created := httptest.NewRecorder()
		f.handler.ServeHTTP(created, req)
		require.Equal(t, http.StatusCreated, created.Code)

		rec := getReportSummary(t, f, f.bearer(t, u.ID))
		require.Equal(t, http.StatusOK, rec.Code)

		var summary struct {
			UsersCount         int64 `json:"users_count"`
			SubscriptionsCount int64 `json:"subscriptions_count"`
			InvoicesCount      int64 `json:"invoices_count"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
		assert.Equal(t, int64(2), summary.UsersCount)
		assert.Equal(t, int64(1), summary.SubscriptionsCount)
		assert.Equal(t, int64(0), summary.InvoicesCount)
	})

	t.Run("premium clears the pro gate", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, nil)
		u := f.seedUser(t, "cus_r4")

		req := httptest.NewRequest(http.MethodPost, "/subscriptions",
			bytes.NewBufferString(`{"plan": "premium"}`))
		req.Header.Set("Authorization", f.bearer(t, u.ID))
		created := httptest.NewRecorder()
		f.handler.ServeHTTP(created, req)
		require.Equal(t, http.StatusCreated, created.Code)

		rec := getReportSummary(t, f, f.bearer(t, u.ID))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("canceled subscription loses access", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t, &fakeProvider{signature: "sig_ok"})
		u := f.seedUser(t, "cus_r5")

		require.Equal(t, http.StatusOK, postWebhook(t, f.handler, "sig_ok", billing.Event{
			ID:   "evt_r5",
			Type: "customer.subscription.deleted",
			Kind: billing.EventKindSubscription,
			Subscription: &billing.SubscriptionEvent{
				SubscriptionID: "sub_r5",
				CustomerID:     "cus_r5",
				PriceID:        "price_pro",
				Status:         billing.StatusCanceled,
				Deleted:        true,
			},
		}).Code)

		rec := getReportSummary(t, f, f.bearer(t, u.ID))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
