// Package redis wraps the go-redis client with connection retry logic
// and a health-check helper. The rate limiter store builds on the client
// returned by Connect.
package redis
