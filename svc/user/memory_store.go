package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements Store with an in-process map. Test use only.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]*User
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[uuid.UUID]*User)}
}

func (s *MemoryStore) Create(ctx context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return ErrEmailAlreadyExists
		}
	}

	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) ByID(ctx context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *MemoryStore) ByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) ByStripeCustomerID(ctx context.Context, customerID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if u.StripeCustomerID != nil && *u.StripeCustomerID == customerID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrUserNotFound
}

func (s *MemoryStore) Count(ctx context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.users)), nil
}

func (s *MemoryStore) SetStripeCustomerID(ctx context.Context, id uuid.UUID, customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.StripeCustomerID = &customerID
	u.UpdatedAt = time.Now().UTC()
	return nil
}
