package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// bucketState holds per-key token bucket state.
type bucketState struct {
	tokens     int
	lastRefill time.Time
}

// MemoryStore implements Store with an in-process map. Used in tests and
// single-replica deployments where shared limits are not required.
type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucketState
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucketState),
	}
}

// ConsumeTokens attempts to consume tokens from the bucket.
func (ms *MemoryStore) ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (int, time.Time, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	b, exists := ms.buckets[key]
	if !exists {
		b = &bucketState{
			tokens:     config.Capacity,
			lastRefill: now,
		}
		ms.buckets[key] = b
	}

	elapsed := now.Sub(b.lastRefill)
	// Cap intervals to prevent overflow in high-capacity/low-rate setups.
	maxIntervals := int64(config.Capacity/config.RefillRate + 1)
	intervalsElapsed := int(min(int64(elapsed/config.RefillInterval), maxIntervals))

	if intervalsElapsed > 0 {
		b.tokens = min(b.tokens+intervalsElapsed*config.RefillRate, config.Capacity)
		b.lastRefill = now
	}

	b.tokens -= tokens

	return b.tokens, b.lastRefill.Add(config.RefillInterval), nil
}

// Reset clears the bucket state for key.
func (ms *MemoryStore) Reset(ctx context.Context, key string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	delete(ms.buckets, key)
	return nil
}
