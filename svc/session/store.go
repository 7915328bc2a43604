package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store persists refresh token records.
type Store interface {
	// Create inserts a new refresh token row.
	Create(ctx context.Context, token RefreshToken) error

	// ByToken returns the record matching the exact signed token value,
	// revoked or not. Returns ErrTokenNotFound when absent.
	ByToken(ctx context.Context, token string) (*RefreshToken, error)

	// Rotate atomically revokes the consumed token and inserts its
	// successor. If the consumed token was already revoked by a concurrent
	// rotation, it returns ErrTokenRevoked and inserts nothing.
	Rotate(ctx context.Context, consumedID uuid.UUID, next RefreshToken) error

	// Revoke marks a single token revoked. Revoking an already-revoked
	// token is a no-op.
	Revoke(ctx context.Context, id uuid.UUID) error

	// RevokeAllForUser marks every active token of the user revoked and
	// returns how many rows were flipped.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)

	// DeleteStale removes rows that expired before the cutoff, regardless
	// of revocation state, and returns the number deleted.
	DeleteStale(ctx context.Context, cutoff time.Time) (int64, error)
}
