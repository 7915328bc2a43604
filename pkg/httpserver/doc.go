// Package httpserver wraps net/http with graceful shutdown on context
// cancellation or SIGINT/SIGTERM, plus environment-driven configuration.
package httpserver
