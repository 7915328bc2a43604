package billing

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeConfig holds Stripe credentials and the price-to-plan mapping.
// Empty SecretKey means billing runs without a provider: webhooks answer
// 204 and checkout/portal return ErrProviderNotConfigured.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	PriceIDPro     string `env:"STRIPE_PRICE_ID_PRO"`
	PriceIDPremium string `env:"STRIPE_PRICE_ID_PREMIUM"`
}

// Configured reports whether Stripe credentials are present.
func (c StripeConfig) Configured() bool {
	return c.SecretKey != ""
}

// PriceIDForPlan returns the configured Stripe price for a plan code, or
// empty when unmapped.
func (c StripeConfig) PriceIDForPlan(code string) string {
	switch code {
	case PlanPro:
		return c.PriceIDPro
	case PlanPremium:
		return c.PriceIDPremium
	default:
		return ""
	}
}

// PlanCodeForPrice is the inverse mapping, used when reconciling events.
func (c StripeConfig) PlanCodeForPrice(priceID string) string {
	switch {
	case priceID == "":
		return ""
	case priceID == c.PriceIDPro:
		return PlanPro
	case priceID == c.PriceIDPremium:
		return PlanPremium
	default:
		return ""
	}
}

// StripeProvider implements Provider against the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
}

// NewStripeProvider creates a Stripe-backed provider. Panics on missing
// secret key; callers check Configured first.
func NewStripeProvider(cfg StripeConfig) *StripeProvider {
	if cfg.SecretKey == "" {
		panic("billing: stripe secret key is required")
	}

	api := &client.API{}
	api.Init(cfg.SecretKey, nil)

	return &StripeProvider{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
	}
}

func (p *StripeProvider) VerifyWebhook(payload []byte, sigHeader string) (*Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, errors.Join(ErrInvalidSignature, err)
	}

	return normalizeEvent(event.ID, string(event.Type), event.Data.Raw)
}

// FetchSubscription loads the subscription from Stripe and decodes the raw
// response body, so both payload generations of the period fields are
// handled by the same normalizer the webhook path uses.
func (p *StripeProvider) FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionEvent, error) {
	sub, err := p.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}

	var raw subscriptionPayload
	if sub.LastResponse != nil && len(sub.LastResponse.RawJSON) > 0 {
		if err := json.Unmarshal(sub.LastResponse.RawJSON, &raw); err != nil {
			return nil, errors.Join(ErrProviderUnavailable, err)
		}
	} else {
		raw.ID = sub.ID
		if sub.Customer != nil {
			raw.Customer = externalRef(sub.Customer.ID)
		}
		raw.Status = string(sub.Status)
		raw.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	}

	return &SubscriptionEvent{
		SubscriptionID:     raw.ID,
		CustomerID:         string(raw.Customer),
		PriceID:            raw.priceID(),
		Status:             StatusFromProvider(raw.Status),
		CurrentPeriodStart: raw.periodStart(),
		CurrentPeriodEnd:   raw.periodEnd(),
		TrialEnd:           raw.trialEnd(),
		CancelAtPeriodEnd:  raw.CancelAtPeriodEnd,
	}, nil
}

func (p *StripeProvider) CreateCustomer(ctx context.Context, email, name, userID string) (string, error) {
	params := &stripe.CustomerParams{
		Params: stripe.Params{Context: ctx},
		Email:  stripe.String(email),
	}
	if name != "" {
		params.Name = stripe.String(name)
	}
	params.AddMetadata("user_id", userID)

	c, err := p.api.Customers.New(params)
	if err != nil {
		return "", errors.Join(ErrProviderUnavailable, err)
	}
	return c.ID, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		Customer:          stripe.String(req.CustomerID),
		ClientReferenceID: stripe.String(req.ClientReferenceID),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Price:    stripe.String(req.PriceID),
			Quantity: stripe.Int64(1),
		}},
	}

	s, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
}

func (p *StripeProvider) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error) {
	s, err := p.api.BillingPortalSessions.New(&stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	})
	if err != nil {
		return nil, errors.Join(ErrProviderUnavailable, err)
	}
	return &PortalSession{URL: s.URL}, nil
}
