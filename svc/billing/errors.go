package billing

import "errors"

var (
	// ErrPlanNotFound is returned when no plan matches the requested code
	// or provider price.
	ErrPlanNotFound = errors.New("plan not found")

	// ErrSubscriptionNotFound is returned when the user has no current
	// subscription record.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrSubscriptionExists is returned when an operation requires the user
	// to have no occupying subscription but one exists.
	ErrSubscriptionExists = errors.New("user already has an active subscription")

	// ErrFreePlanNotBillable is returned when a billable operation names the
	// free plan.
	ErrFreePlanNotBillable = errors.New("free plan cannot be subscribed to")

	// ErrEventAlreadyProcessed marks a webhook event whose dedup marker is
	// already present. Callers treat it as success.
	ErrEventAlreadyProcessed = errors.New("event already processed")

	// ErrUnresolvedCustomer marks an event whose provider customer maps to
	// no known user. The event is acknowledged and skipped.
	ErrUnresolvedCustomer = errors.New("provider customer does not map to a user")

	// ErrUnresolvedPlan marks an event whose provider price maps to no
	// known plan. The event is acknowledged and skipped.
	ErrUnresolvedPlan = errors.New("provider price does not map to a plan")

	// ErrProviderNotConfigured is returned when no payment provider
	// credentials are set.
	ErrProviderNotConfigured = errors.New("payment provider not configured")

	// ErrProviderUnavailable wraps transient payment provider failures.
	ErrProviderUnavailable = errors.New("payment provider unavailable")

	// ErrInvalidSignature is returned for webhook payloads that fail
	// signature verification.
	ErrInvalidSignature = errors.New("invalid webhook signature")

	// ErrStorageUnavailable wraps database failures underneath billing
	// operations.
	ErrStorageUnavailable = errors.New("billing storage unavailable")
)
