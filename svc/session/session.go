package session

import (
	"time"

	"github.com/google/uuid"
)

// RefreshToken represents one issued long-lived session credential.
// A row is mutated only to flip Revoked; it never reverts, and physical
// deletion happens only through the periodic sweep.
type RefreshToken struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	Token     string // exact signed token value, unique
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	CreatedAt time.Time
}

// Expired reports whether the credential's lifetime has elapsed at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return t.ExpiresAt.Before(now)
}

// TokenPair is the result of issuing or rotating a session: a short-lived
// access credential and a long-lived refresh credential.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}
