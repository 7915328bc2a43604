// Package pg provides PostgreSQL helpers used across the service: pooled
// connection setup with retries, goose migration running, a health check
// closure, and error classifiers for unique-key and not-found conditions
// that the domain layer relies on as its concurrency backstop.
package pg
