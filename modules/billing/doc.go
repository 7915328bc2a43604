// Package billing exposes the billing HTTP surface: plan listing, the
// current subscription, checkout and portal session creation, invoice
// history, and the provider webhook endpoint.
package billing
