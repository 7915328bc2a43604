// Package core provides shared HTTP primitives: the Response interface,
// JSON response envelopes, and HTTPError values that map domain failures
// to client-visible status codes.
package core
