package keystore

import (
	"context"
	"slices"
	"sync"
)

// memoryStore keeps records in process memory. It is only shared by the
// issuers of a single process and is meant for development and tests.
type memoryStore struct {
	records map[string]*Record
	order   []string
	mu      sync.Mutex
}

func NewMemoryStore() Store {
	return &memoryStore{
		records: make(map[string]*Record),
	}
}

func (m *memoryStore) AddKey(ctx context.Context, r *Record) error {
	keyID := r.KeyID()
	if keyID == "" {
		return ErrMissingKeyID
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[keyID]; ok {
		return ErrKeyExists
	}
	m.records[keyID] = &Record{Key: r.Key, CreatedAt: r.CreatedAt}
	m.order = append(m.order, keyID)
	return nil
}

func (m *memoryStore) ListKeys(ctx context.Context) ([]*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	records := make([]*Record, 0, len(m.order))
	for _, keyID := range m.order {
		r := m.records[keyID]
		records = append(records, &Record{Key: r.Key, CreatedAt: r.CreatedAt})
	}
	slices.SortStableFunc(records, func(a, b *Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return records, nil
}

func (m *memoryStore) RemoveKeys(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, keyID := range ids {
		delete(m.records, keyID)
	}
	m.order = slices.DeleteFunc(m.order, func(keyID string) bool {
		_, ok := m.records[keyID]
		return !ok
	})
	return nil
}

func (m *memoryStore) Close() error {
	return nil
}
