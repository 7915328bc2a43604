// Package billing keeps local subscription and invoice state in sync with
// the payment provider and exposes the user-facing billing operations.
//
// Provider webhook events are normalized at the boundary into a tagged
// Event variant, then applied by the Reconciler under two guarantees: an
// event takes effect at most once (a unique-constrained marker claimed
// inside the reconciliation transaction), and a user holds at most one
// occupying subscription (ACTIVE, TRIALING, or PAST_DUE) at any time. The
// provider's webhook stream carries no ordering promise, so every handler
// converges on the state the event describes instead of assuming a
// lifecycle sequence.
//
// The Provider interface abstracts the payment provider; StripeProvider is
// the production implementation. Running without provider credentials is
// supported: webhook delivery is declined and checkout is unavailable, but
// plan listing and manual subscriptions still work.
package billing
