package vip

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	grants map[string]Grant
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{grants: make(map[string]Grant)}
}

func (m *MemoryStore) Get(_ context.Context, uid string) (*Grant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	g, ok := m.grants[uid]
	if !ok {
		return nil, ErrGrantNotFound
	}
	cp := g
	return &cp, nil
}

func (m *MemoryStore) Put(_ context.Context, grant *Grant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.grants[grant.UID] = *grant
	return nil
}
