package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store implementation for tests and local
// development. Transactions buffer their writes and publish them on
// commit under the store lock, so concurrent InTx calls serialize the way
// the PostgreSQL store does.
type MemoryStore struct {
	mu            sync.Mutex
	plans         map[uuid.UUID]Plan
	subscriptions map[uuid.UUID]Subscription
	invoices      map[uuid.UUID]Invoice
	events        map[string]time.Time
}

// NewMemoryStore creates an in-memory billing store seeded with the
// standard plan tiers.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		plans:         make(map[uuid.UUID]Plan),
		subscriptions: make(map[uuid.UUID]Subscription),
		invoices:      make(map[uuid.UUID]Invoice),
		events:        make(map[string]time.Time),
	}
	for rank, code := range []string{PlanFree, PlanPro, PlanPremium} {
		p := Plan{ID: uuid.New(), Code: code, Name: code, Rank: rank, CreatedAt: time.Now().UTC()}
		s.plans[p.ID] = p
	}
	return s
}

func (s *MemoryStore) Plans(_ context.Context) ([]Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	plans := make([]Plan, 0, len(s.plans))
	for _, p := range s.plans {
		plans = append(plans, p)
	}
	sort.Slice(plans, func(i, j int) bool { return plans[i].Rank < plans[j].Rank })
	return plans, nil
}

func (s *MemoryStore) PlanByCode(_ context.Context, code string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.plans {
		if p.Code == code {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (s *MemoryStore) PlanByID(_ context.Context, id uuid.UUID) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.plans[id]
	if !ok {
		return nil, ErrPlanNotFound
	}
	cp := p
	return &cp, nil
}

func (s *MemoryStore) SubscriptionForUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID != userID {
			continue
		}
		if latest == nil || sub.UpdatedAt.After(latest.UpdatedAt) {
			cp := sub
			latest = &cp
		}
	}
	if latest == nil {
		return nil, ErrSubscriptionNotFound
	}
	return latest, nil
}

func (s *MemoryStore) OccupyingSubscriptionForUser(_ context.Context, userID uuid.UUID) (*Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.Status.Occupying() {
			cp := sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *MemoryStore) InvoicesForUser(_ context.Context, userID uuid.UUID) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var invoices []Invoice
	for _, inv := range s.invoices {
		if inv.UserID == userID {
			invoices = append(invoices, inv)
		}
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].IssuedAt.After(invoices[j].IssuedAt) })
	return invoices, nil
}

func (s *MemoryStore) CountSubscriptions(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.subscriptions)), nil
}

func (s *MemoryStore) CountInvoices(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.invoices)), nil
}

func (s *MemoryStore) EventSeen(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, seen := s.events[eventID]
	return seen, nil
}

func (s *MemoryStore) InTx(_ context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{store: s, staged: make(map[uuid.UUID]Subscription)}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// memoryTx buffers writes against the locked store and applies them on
// commit. Reads see staged writes first, matching read-your-writes inside
// a real transaction.
type memoryTx struct {
	store         *MemoryStore
	staged        map[uuid.UUID]Subscription
	stagedInvoice []Invoice
	stagedEvents  []string
}

func (t *memoryTx) SubscriptionByExternalID(_ context.Context, externalID string) (*Subscription, error) {
	for _, sub := range t.staged {
		if sub.ExternalID != nil && *sub.ExternalID == externalID {
			cp := sub
			return &cp, nil
		}
	}
	for _, sub := range t.store.subscriptions {
		if _, shadowed := t.staged[sub.ID]; shadowed {
			continue
		}
		if sub.ExternalID != nil && *sub.ExternalID == externalID {
			cp := sub
			return &cp, nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (t *memoryTx) OccupyingSubscriptionsForUser(_ context.Context, userID uuid.UUID) ([]Subscription, error) {
	var subs []Subscription
	for _, sub := range t.staged {
		if sub.UserID == userID && sub.Status.Occupying() {
			subs = append(subs, sub)
		}
	}
	for _, sub := range t.store.subscriptions {
		if _, shadowed := t.staged[sub.ID]; shadowed {
			continue
		}
		if sub.UserID == userID && sub.Status.Occupying() {
			subs = append(subs, sub)
		}
	}
	return subs, nil
}

func (t *memoryTx) CancelSubscription(_ context.Context, id uuid.UUID, canceledAt time.Time) error {
	sub, ok := t.staged[id]
	if !ok {
		sub, ok = t.store.subscriptions[id]
		if !ok {
			return ErrSubscriptionNotFound
		}
	}

	sub.Status = StatusCanceled
	sub.CanceledAt = &canceledAt
	sub.UpdatedAt = canceledAt
	t.staged[sub.ID] = sub
	return nil
}

func (t *memoryTx) UpsertSubscription(_ context.Context, sub *Subscription) error {
	cp := *sub
	if cp.ExternalID != nil {
		if existing, err := t.SubscriptionByExternalID(context.Background(), *cp.ExternalID); err == nil {
			cp.ID = existing.ID
		}
	}
	t.staged[cp.ID] = cp
	return nil
}

func (t *memoryTx) UpsertInvoice(_ context.Context, inv *Invoice) error {
	cp := *inv
	for _, existing := range t.store.invoices {
		if existing.ExternalID == cp.ExternalID {
			cp.ID = existing.ID
			break
		}
	}
	t.stagedInvoice = append(t.stagedInvoice, cp)
	return nil
}

func (t *memoryTx) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	if _, seen := t.store.events[eventID]; seen {
		return ErrEventAlreadyProcessed
	}
	for _, staged := range t.stagedEvents {
		if staged == eventID {
			return ErrEventAlreadyProcessed
		}
	}
	t.stagedEvents = append(t.stagedEvents, eventID)
	return nil
}

func (t *memoryTx) commit() {
	for id, sub := range t.staged {
		t.store.subscriptions[id] = sub
	}
	for _, inv := range t.stagedInvoice {
		t.store.invoices[inv.ID] = inv
	}
	now := time.Now().UTC()
	for _, eventID := range t.stagedEvents {
		t.store.events[eventID] = now
	}
}
