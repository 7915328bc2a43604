// Package requestid assigns every HTTP request a correlation id,
// propagated through the context and the X-Request-ID header.
package requestid
