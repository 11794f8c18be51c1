package analytics

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in memory. It is meant for tests and
// single-process deployments without analytics persistence.
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]DailySnapshot
}

// NewMemoryStore creates an empty in-memory snapshot store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]DailySnapshot)}
}

// SaveSnapshot implements SnapshotStore.
func (m *MemoryStore) SaveSnapshot(_ context.Context, s *DailySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.Date] = *s
	return nil
}

// GetSnapshot implements SnapshotStore.
func (m *MemoryStore) GetSnapshot(_ context.Context, date string) (*DailySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.snapshots[date]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return &s, nil
}

// ListSnapshots implements SnapshotStore.
func (m *MemoryStore) ListSnapshots(_ context.Context, from, to string) ([]*DailySnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []*DailySnapshot{}
	for date, s := range m.snapshots {
		if date >= from && date <= to {
			s := s
			out = append(out, &s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

// PruneSnapshots implements SnapshotStore.
func (m *MemoryStore) PruneSnapshots(_ context.Context, before string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for date := range m.snapshots {
		if date < before {
			delete(m.snapshots, date)
			n++
		}
	}
	return n, nil
}

// Close implements SnapshotStore.
func (m *MemoryStore) Close() error {
	return nil
}
