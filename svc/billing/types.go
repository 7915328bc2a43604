package billing

import (
	"time"

	"github.com/google/uuid"
)

// Status is the canonical subscription lifecycle status. Provider statuses
// are normalized into this set at the webhook boundary.
type Status string

const (
	StatusIncomplete        Status = "INCOMPLETE"
	StatusIncompleteExpired Status = "INCOMPLETE_EXPIRED"
	StatusTrialing          Status = "TRIALING"
	StatusActive            Status = "ACTIVE"
	StatusPastDue           Status = "PAST_DUE"
	StatusCanceled          Status = "CANCELED"
	StatusUnpaid            Status = "UNPAID"
)

// Occupying reports whether a subscription in this status counts against
// the one-occupying-subscription-per-user invariant. PAST_DUE occupies so
// a payment hiccup does not let a second subscription slip in.
func (s Status) Occupying() bool {
	switch s {
	case StatusActive, StatusTrialing, StatusPastDue:
		return true
	default:
		return false
	}
}

// providerStatuses maps provider status strings to canonical statuses.
var providerStatuses = map[string]Status{
	"incomplete":         StatusIncomplete,
	"incomplete_expired": StatusIncompleteExpired,
	"trialing":           StatusTrialing,
	"active":             StatusActive,
	"past_due":           StatusPastDue,
	"canceled":           StatusCanceled,
	"unpaid":             StatusUnpaid,
}

// StatusFromProvider normalizes a provider status string. Unknown statuses
// map to CANCELED: a status we cannot interpret must not occupy the user's
// single subscription slot.
func StatusFromProvider(s string) Status {
	if st, ok := providerStatuses[s]; ok {
		return st
	}
	return StatusCanceled
}

// Plan is a purchasable tier. The free plan exists as a role baseline and
// is never billable.
type Plan struct {
	ID            uuid.UUID
	Code          string // "free", "pro", "premium"
	Name          string
	StripePriceID *string // nil for free
	Rank          int     // role hierarchy position, higher grants more
	CreatedAt     time.Time
}

// Billable reports whether the plan can back a paid subscription.
func (p *Plan) Billable() bool {
	return p.Code != PlanFree
}

// Well-known plan codes. Rank order: free < pro < premium.
const (
	PlanFree    = "free"
	PlanPro     = "pro"
	PlanPremium = "premium"
)

// Subscription is the local projection of a provider subscription, or a
// manually created one (nil ExternalID).
type Subscription struct {
	ID                 uuid.UUID
	UserID             uuid.UUID
	PlanID             uuid.UUID
	ExternalID         *string // provider subscription id, unique when set
	Status             Status
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEnd           *time.Time
	CancelAtPeriodEnd  bool
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Invoice is the local projection of a provider invoice.
type Invoice struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	SubscriptionID  *uuid.UUID // resolved when the invoice references a known subscription
	ExternalID      string     // provider invoice id, unique
	Status          InvoiceStatus
	AmountDue       int64 // minor currency units
	AmountPaid      int64
	Currency        string
	HostedURL       *string
	PDFURL          *string
	PaymentIntentID *string // provider payment intent id, when the invoice carries one
	IssuedAt        time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InvoiceStatus mirrors the provider invoice lifecycle.
type InvoiceStatus string

const (
	InvoiceDraft         InvoiceStatus = "DRAFT"
	InvoiceOpen          InvoiceStatus = "OPEN"
	InvoicePaid          InvoiceStatus = "PAID"
	InvoiceVoid          InvoiceStatus = "VOID"
	InvoiceUncollectible InvoiceStatus = "UNCOLLECTIBLE"
)

var providerInvoiceStatuses = map[string]InvoiceStatus{
	"draft":         InvoiceDraft,
	"open":          InvoiceOpen,
	"paid":          InvoicePaid,
	"void":          InvoiceVoid,
	"uncollectible": InvoiceUncollectible,
}

// InvoiceStatusFromProvider normalizes a provider invoice status. Unknown
// statuses map to OPEN so the invoice stays visible without claiming payment.
func InvoiceStatusFromProvider(s string) InvoiceStatus {
	if st, ok := providerInvoiceStatuses[s]; ok {
		return st
	}
	return InvoiceOpen
}

// RoleForPlan returns the access role granted by a plan code. Users without
// an occupying subscription hold the free role.
func RoleForPlan(code string) string {
	switch code {
	case PlanPro, PlanPremium:
		return code
	default:
		return PlanFree
	}
}

// PlanRank returns the hierarchy position of a plan code. Higher ranks
// grant everything lower ranks do. Unknown codes rank with free.
func PlanRank(code string) int {
	switch code {
	case PlanPremium:
		return 2
	case PlanPro:
		return 1
	default:
		return 0
	}
}
