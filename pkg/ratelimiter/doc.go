// Package ratelimiter implements token bucket rate limiting with pluggable
// storage backends. The Redis store shares limits across replicas; the
// memory store serves tests and single-instance deployments. An HTTP
// middleware guards brute-forceable endpoints such as login and refresh.
package ratelimiter
