package store

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore implements Store with an in-process map, grounded on the
// teacher's MemoryCache: useful for tests and single-process runs without a
// Redis/DragonflyDB instance.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string][]Document
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string][]Document{}}
}

func (m *MemoryStore) Connect(ctx context.Context) error { return nil }

func (m *MemoryStore) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *MemoryStore) Put(ctx context.Context, doc Document, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[collection] = append(m.data[collection], doc)
	return nil
}

func (m *MemoryStore) GetOne(ctx context.Context, q Query, collection string) (Document, bool, error) {
	docs, err := m.Query(ctx, q, ByIndexDescending, 1, collection)
	if err != nil {
		return Document{}, false, err
	}
	if len(docs) == 0 {
		return Document{}, false, nil
	}
	return docs[0], true, nil
}

func (m *MemoryStore) Query(ctx context.Context, q Query, sort_ SortField, limit int, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []Document
	for _, d := range m.data[collection] {
		if matches(d, q) {
			matched = append(matched, d)
		}
	}

	if sort_ == ByIndexDescending {
		sort.SliceStable(matched, func(i, j int) bool {
			return matched[i].Index > matched[j].Index
		})
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *MemoryStore) EnsureIndex(ctx context.Context, field string, collection string) error {
	// No-op: the in-memory backend scans linearly; this exists to satisfy
	// the Store contract the way a real backend's index creation would.
	return nil
}

func matches(d Document, q Query) bool {
	if q.UUID != nil && d.UUID != *q.UUID {
		return false
	}
	for k, v := range q.Fields {
		if d.Metadata == nil {
			return false
		}
		if got, ok := d.Metadata[k]; !ok || got != v {
			return false
		}
	}
	return true
}
