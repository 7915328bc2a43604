package auth

import (
	"context"

	"github.com/google/uuid"
)

type contextKey struct{ name string }

var userIDKey = contextKey{"user_id"}

// WithUserID returns a context carrying the authenticated user's id.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserIDFromContext extracts the authenticated user's id set by the
// middleware. The second return is false on unauthenticated requests.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(userIDKey).(uuid.UUID)
	return id, ok
}
