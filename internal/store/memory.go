package store

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	records map[string]PendingTransaction
	mu      sync.RWMutex
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]PendingTransaction)}
}

func (m *MemoryStore) Put(ctx context.Context, p *PendingTransaction) error {
	prepare(p)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[p.ID] = clone(p)
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*PendingTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.records[id]
	if !ok {
		return nil, &NotFoundError{ID: id}
	}
	c := clone(&p)
	return &c, nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[id]; !ok {
		return &NotFoundError{ID: id}
	}
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*PendingTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*PendingTransaction, 0, len(m.records))
	for _, p := range m.records {
		c := clone(&p)
		out = append(out, &c)
	}
	sortByAge(out)
	return out, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func clone(p *PendingTransaction) PendingTransaction {
	c := *p
	c.Args = append([]string(nil), p.Args...)
	return c
}

var _ Store = (*MemoryStore)(nil)
