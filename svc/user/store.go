package user

import (
	"context"

	"github.com/google/uuid"
)

// Store defines user persistence. Email uniqueness is enforced by the
// storage layer; Create returns ErrEmailAlreadyExists when violated.
type Store interface {
	Create(ctx context.Context, u *User) error
	ByID(ctx context.Context, id uuid.UUID) (*User, error)
	ByEmail(ctx context.Context, email string) (*User, error)
	ByStripeCustomerID(ctx context.Context, customerID string) (*User, error)
	SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error
	Count(ctx context.Context) (int64, error)
}
