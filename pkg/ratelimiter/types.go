package ratelimiter

import "time"

// Result is the outcome of one bucket consumption. The middleware maps
// it onto the X-RateLimit response headers.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left after this request
	ResetAt   time.Time // next refill
}

// Allowed reports whether the bucket had a token for this request.
func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter returns the wait until the next refill, or 0 when the
// request went through.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return time.Until(r.ResetAt)
}

// Config shapes a token bucket. Capacity bounds the burst a client can
// spend at once; RefillRate tokens return every RefillInterval. Login
// and refresh endpoints get tight buckets, the rest of the API none.
type Config struct {
	Capacity       int
	RefillRate     int
	RefillInterval time.Duration
}
