// Package clientip extracts the originating client address from proxied
// HTTP requests. Used for rate-limit keying and request logs.
package clientip
