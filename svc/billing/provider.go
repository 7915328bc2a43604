package billing

import "context"

// CheckoutRequest describes a hosted checkout session to create.
type CheckoutRequest struct {
	CustomerID        string
	PriceID           string
	ClientReferenceID string // our user id, echoed back in checkout.session.completed
	SuccessURL        string
	CancelURL         string
}

// CheckoutSession is a created hosted checkout session.
type CheckoutSession struct {
	ID  string
	URL string
}

// PortalSession is a created customer billing portal session.
type PortalSession struct {
	URL string
}

// Provider abstracts the payment provider. A nil or unconfigured provider
// makes billable operations fail with ErrProviderNotConfigured.
type Provider interface {
	// VerifyWebhook checks the payload signature and returns the normalized
	// event. Signature failures return ErrInvalidSignature.
	VerifyWebhook(payload []byte, sigHeader string) (*Event, error)

	// FetchSubscription loads the current provider-side state of a
	// subscription as a normalized event payload.
	FetchSubscription(ctx context.Context, subscriptionID string) (*SubscriptionEvent, error)

	// CreateCustomer creates a provider customer for the user and returns
	// its id.
	CreateCustomer(ctx context.Context, email, name, userID string) (string, error)

	// CreateCheckoutSession creates a hosted checkout session for a
	// subscription purchase.
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)

	// CreatePortalSession creates a customer billing portal session.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*PortalSession, error)
}
