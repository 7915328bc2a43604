package session

import "errors"

var (
	// ErrInvalidToken is returned for refresh tokens that are malformed,
	// carry a bad signature, were never issued, or were already consumed
	// or revoked. Callers cannot distinguish these cases.
	ErrInvalidToken = errors.New("invalid refresh token")

	// ErrExpiredToken is returned for an authentic, still-unrevoked refresh
	// token whose lifetime has elapsed.
	ErrExpiredToken = errors.New("refresh token expired")

	// ErrTokenNotFound is returned by stores when no row matches the lookup.
	ErrTokenNotFound = errors.New("refresh token not found")

	// ErrTokenRevoked is returned by stores when a rotation target was
	// already consumed by a concurrent request.
	ErrTokenRevoked = errors.New("refresh token already revoked")

	// ErrStorageUnavailable wraps database failures underneath session
	// operations.
	ErrStorageUnavailable = errors.New("session storage unavailable")
)
