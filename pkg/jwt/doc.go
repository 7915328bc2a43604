// Package jwt provides stateless HMAC-SHA256 token signing and
// verification. Access and refresh credentials are both encoded as
// HS256 JWTs; the session layer distinguishes them by audience claim.
//
// Parse reports expired-but-authentic tokens as ErrExpiredToken,
// distinct from signature or shape failures, so callers can surface
// the two conditions differently.
package jwt
