package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Safe for concurrent use.
type MemoryStore struct {
	mu     sync.Mutex
	tokens map[uuid.UUID]RefreshToken
}

// NewMemoryStore creates an empty in-memory refresh token store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tokens: make(map[uuid.UUID]RefreshToken)}
}

func (s *MemoryStore) Create(_ context.Context, t RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[t.ID] = t
	return nil
}

func (s *MemoryStore) ByToken(_ context.Context, token string) (*RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.tokens {
		if t.Token == token {
			cp := t
			return &cp, nil
		}
	}
	return nil, ErrTokenNotFound
}

func (s *MemoryStore) Rotate(_ context.Context, consumedID uuid.UUID, next RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	consumed, ok := s.tokens[consumedID]
	if !ok || consumed.Revoked {
		return ErrTokenRevoked
	}

	now := time.Now().UTC()
	consumed.Revoked = true
	consumed.RevokedAt = &now
	s.tokens[consumedID] = consumed
	s.tokens[next.ID] = next
	return nil
}

func (s *MemoryStore) Revoke(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[id]
	if !ok || t.Revoked {
		return nil
	}

	now := time.Now().UTC()
	t.Revoked = true
	t.RevokedAt = &now
	s.tokens[id] = t
	return nil
}

func (s *MemoryStore) RevokeAllForUser(_ context.Context, userID uuid.UUID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	var n int64
	for id, t := range s.tokens {
		if t.UserID == userID && !t.Revoked {
			t.Revoked = true
			t.RevokedAt = &now
			s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(s.tokens, id)
			n++
		}
	}
	return n, nil
}
