package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/akarels/giftregistry/internal/model"
)

// MemoryStore is an in-memory implementation of the item store with the
// same semantics as ItemStore: per-item atomic mutations, server-assigned
// identifiers and timestamps, change broadcasts.  Mutations on the same
// item are serialized by the store lock, so the optimistic protocol's
// guarantees hold trivially.  It backs tests and local development without
// a MySQL instance.
type MemoryStore struct {
	mu       sync.Mutex
	items    map[string]model.WishlistItem
	order    []string
	notifier *Notifier
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.  notifier may be nil.
func NewMemoryStore(notifier *Notifier) *MemoryStore {
	return &MemoryStore{
		items:    make(map[string]model.WishlistItem),
		notifier: notifier,
		now:      time.Now,
	}
}

// Insert stores a new item and assigns ID and timestamps.
func (m *MemoryStore) Insert(ctx context.Context, item *model.WishlistItem) (*model.WishlistItem, error) {
	m.mu.Lock()
	stored := item.Clone()
	stored.ID = uuid.NewString()
	now := m.now().UTC()
	stored.CreatedAt = now
	stored.UpdatedAt = now
	m.items[stored.ID] = stored
	m.order = append(m.order, stored.ID)
	m.mu.Unlock()
	m.broadcast(ctx)
	out := stored.Clone()
	return &out, nil
}

// Get returns a copy of the item or ErrNoSuchItem.
func (m *MemoryStore) Get(ctx context.Context, id string) (*model.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, ErrNoSuchItem
	}
	out := it.Clone()
	return &out, nil
}

// List returns the collection in insertion order.
func (m *MemoryStore) List(ctx context.Context) ([]model.WishlistItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WishlistItem, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.items[id].Clone())
	}
	return out, nil
}

// Mutate applies fn atomically to the identified item.  The decide step
// runs under the store lock, so no concurrent writer can interleave; the
// updated timestamp never moves backwards.
func (m *MemoryStore) Mutate(ctx context.Context, id string, fn MutateFunc) (*model.WishlistItem, error) {
	m.mu.Lock()
	it, ok := m.items[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNoSuchItem
	}
	cur := it.Clone()
	next, err := fn(&cur)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	stored := next.Clone()
	stored.ID = it.ID
	stored.CreatedAt = it.CreatedAt
	stored.UpdatedAt = laterOf(m.now().UTC(), it.UpdatedAt)
	m.items[id] = stored
	m.mu.Unlock()
	m.broadcast(ctx)
	out := stored.Clone()
	return &out, nil
}

// Delete removes the item; missing items are a silent success.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	_, ok := m.items[id]
	if ok {
		delete(m.items, id)
		for i, oid := range m.order {
			if oid == id {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}
	m.mu.Unlock()
	if ok {
		m.broadcast(ctx)
	}
	return nil
}

func (m *MemoryStore) broadcast(ctx context.Context) {
	if m.notifier != nil {
		m.notifier.Broadcast(ctx)
	}
}

func laterOf(a, b time.Time) time.Time {
	if a.Before(b) {
		return b
	}
	return a
}
