package billing

import (
	"encoding/json"
	"time"
)

// EventKind discriminates the normalized webhook event variants.
type EventKind string

const (
	EventKindSubscription EventKind = "subscription"
	EventKindInvoice      EventKind = "invoice"
	EventKindCheckout     EventKind = "checkout"
	EventKindIgnored      EventKind = "ignored"
)

// Event is a provider webhook event normalized at the boundary. Exactly
// one of the payload fields matching Kind is set.
type Event struct {
	ID   string
	Type string // raw provider event type, kept for logging and audit
	Kind EventKind

	Subscription *SubscriptionEvent
	Invoice      *InvoiceEvent
	Checkout     *CheckoutEvent
}

// SubscriptionEvent carries the subscription fields the reconciler needs,
// already flattened out of the provider payload.
type SubscriptionEvent struct {
	SubscriptionID     string
	CustomerID         string
	PriceID            string
	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	Deleted            bool // customer.subscription.deleted forces CANCELED
}

// InvoiceEvent carries the invoice fields the reconciler persists.
type InvoiceEvent struct {
	InvoiceID       string
	CustomerID      string
	SubscriptionID  string // may be empty
	Status          InvoiceStatus
	AmountDue       int64
	AmountPaid      int64
	Currency        string
	HostedURL       string
	PDFURL          string
	PaymentIntentID string
	IssuedAt        time.Time
}

// CheckoutEvent carries a completed checkout session. The referenced
// subscription is fetched from the provider before reconciliation.
type CheckoutEvent struct {
	SessionID         string
	CustomerID        string
	SubscriptionID    string
	ClientReferenceID string // our user id, set when the session was created
}

// externalRef decodes a provider field that arrives either as a bare id
// string or as an expanded object with an "id" key.
type externalRef string

func (r *externalRef) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = externalRef(s)
		return nil
	}

	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*r = externalRef(obj.ID)
	return nil
}

// Raw payload shapes decoded from provider webhook JSON. Only the fields
// the reconciler consumes are declared; everything else is ignored.

type subscriptionPayload struct {
	ID                 string      `json:"id"`
	Customer           externalRef `json:"customer"`
	Status             string      `json:"status"`
	CancelAtPeriodEnd  bool        `json:"cancel_at_period_end"`
	CurrentPeriodStart int64       `json:"current_period_start"`
	CurrentPeriodEnd   int64       `json:"current_period_end"`
	TrialEnd           int64       `json:"trial_end"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

func (p *subscriptionPayload) priceID() string {
	if len(p.Items.Data) == 0 {
		return ""
	}
	return p.Items.Data[0].Price.ID
}

// periodStart and periodEnd tolerate both payload generations: the period
// moved from the subscription onto its items in newer provider API versions.
func (p *subscriptionPayload) periodStart() *time.Time {
	ts := p.CurrentPeriodStart
	if ts == 0 && len(p.Items.Data) > 0 {
		ts = p.Items.Data[0].CurrentPeriodStart
	}
	return unixTime(ts)
}

func (p *subscriptionPayload) periodEnd() *time.Time {
	ts := p.CurrentPeriodEnd
	if ts == 0 && len(p.Items.Data) > 0 {
		ts = p.Items.Data[0].CurrentPeriodEnd
	}
	return unixTime(ts)
}

func (p *subscriptionPayload) trialEnd() *time.Time {
	return unixTime(p.TrialEnd)
}

func unixTime(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

type invoicePayload struct {
	ID            string      `json:"id"`
	Customer      externalRef `json:"customer"`
	Subscription  externalRef `json:"subscription"`
	Status        string      `json:"status"`
	AmountDue     int64       `json:"amount_due"`
	AmountPaid    int64       `json:"amount_paid"`
	Currency      string      `json:"currency"`
	HostedURL     string      `json:"hosted_invoice_url"`
	InvoicePDF    string      `json:"invoice_pdf"`
	PaymentIntent externalRef `json:"payment_intent"`
	Created       int64       `json:"created"`
	Parent        struct {
		SubscriptionDetails struct {
			Subscription externalRef `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return string(p.Subscription)
	}
	return string(p.Parent.SubscriptionDetails.Subscription)
}

type checkoutSessionPayload struct {
	ID                string      `json:"id"`
	Customer          externalRef `json:"customer"`
	Subscription      externalRef `json:"subscription"`
	ClientReferenceID string      `json:"client_reference_id"`
}

// normalizeEvent converts a provider event type plus its raw data object
// into the tagged Event variant. Unhandled event types come back with
// EventKindIgnored so the webhook endpoint can acknowledge them untouched.
func normalizeEvent(id, eventType string, data json.RawMessage) (*Event, error) {
	ev := &Event{ID: id, Type: eventType, Kind: EventKindIgnored}

	switch eventType {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var p subscriptionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		deleted := eventType == "customer.subscription.deleted"
		status := StatusFromProvider(p.Status)
		if deleted {
			status = StatusCanceled
		}
		ev.Kind = EventKindSubscription
		ev.Subscription = &SubscriptionEvent{
			SubscriptionID:     p.ID,
			CustomerID:         string(p.Customer),
			PriceID:            p.priceID(),
			Status:             status,
			CurrentPeriodStart: p.periodStart(),
			CurrentPeriodEnd:   p.periodEnd(),
			TrialEnd:           p.trialEnd(),
			CancelAtPeriodEnd:  p.CancelAtPeriodEnd,
			Deleted:            deleted,
		}

	case "invoice.paid",
		"invoice.payment_succeeded",
		"invoice.payment_failed",
		"invoice.finalized",
		"invoice.voided",
		"invoice.marked_uncollectible":
		var p invoicePayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		ev.Kind = EventKindInvoice
		ev.Invoice = &InvoiceEvent{
			InvoiceID:       p.ID,
			CustomerID:      string(p.Customer),
			SubscriptionID:  p.subscriptionID(),
			Status:          InvoiceStatusFromProvider(p.Status),
			AmountDue:       p.AmountDue,
			AmountPaid:      p.AmountPaid,
			Currency:        p.Currency,
			HostedURL:       p.HostedURL,
			PDFURL:          p.InvoicePDF,
			PaymentIntentID: string(p.PaymentIntent),
			IssuedAt:        time.Unix(p.Created, 0).UTC(),
		}

	case "checkout.session.completed":
		var p checkoutSessionPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		ev.Kind = EventKindCheckout
		ev.Checkout = &CheckoutEvent{
			SessionID:         p.ID,
			CustomerID:        string(p.Customer),
			SubscriptionID:    string(p.Subscription),
			ClientReferenceID: p.ClientReferenceID,
		}
	}

	return ev, nil
}
