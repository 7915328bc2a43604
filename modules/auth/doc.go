// Package auth exposes the HTTP surface for accounts and sessions:
// registration, login, refresh rotation, logout, and the authenticated
// profile endpoint. The refresh token travels in an HttpOnly cookie; the
// access token travels in the response body and comes back as a bearer
// header.
package auth
