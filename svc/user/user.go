package user

import (
	"time"

	"github.com/google/uuid"
)

// User represents a registered account. StripeCustomerID is the persisted
// mapping from the payment provider's customer namespace to ours; it is
// set at first customer creation and used to resolve inbound events.
type User struct {
	ID               uuid.UUID
	Email            string
	Name             string
	PasswordHash     []byte
	StripeCustomerID *string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}
