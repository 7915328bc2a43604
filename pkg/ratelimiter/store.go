package ratelimiter

import (
	"context"
	"time"
)

// Store is a token bucket backend. The Redis implementation shares
// buckets across replicas; the memory one keeps them per process.
type Store interface {
	// ConsumeTokens takes tokens from the bucket identified by key,
	// refilling it per config first. A negative remaining count means
	// the bucket was empty and the caller should reject the request.
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)

	// Reset drops the bucket state for key, restoring full capacity.
	Reset(ctx context.Context, key string) error
}
