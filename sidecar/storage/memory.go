package storage

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/x-research-team/dtx-sync/sidecar"
)

// MemoryStorage хранит данные в памяти процесса.
type MemoryStorage struct {
	mu       sync.RWMutex
	sidecars map[string]sidecar.Sidecar
	actions  map[string]*Actions
}

// NewMemoryStorage создает пустое хранилище.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		sidecars: make(map[string]sidecar.Sidecar),
		actions:  make(map[string]*Actions),
	}
}

// SaveSidecar реализует Storage.
func (m *MemoryStorage) SaveSidecar(ctx context.Context, s sidecar.Sidecar) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Collectors = slices.Clone(s.Collectors)
	m.sidecars[s.NodeID] = s
	return nil
}

// ListSidecars реализует Storage.
func (m *MemoryStorage) ListSidecars(ctx context.Context, f Filter) ([]sidecar.Sidecar, int, error) {
	m.mu.RLock()
	matched := make([]sidecar.Sidecar, 0, len(m.sidecars))
	for _, s := range m.sidecars {
		if f.Match(s) {
			matched = append(matched, s)
		}
	}
	m.mu.RUnlock()

	slices.SortFunc(matched, func(a, b sidecar.Sidecar) int {
		return cmp.Or(cmp.Compare(a.NodeName, b.NodeName), cmp.Compare(a.NodeID, b.NodeID))
	})

	total := len(matched)
	start := min(max(f.Offset, 0), total)
	end := total
	if f.Limit > 0 {
		end = min(start+f.Limit, total)
	}

	page := make([]sidecar.Sidecar, 0, end-start)
	for _, s := range matched[start:end] {
		s.Collectors = slices.Clone(s.Collectors)
		page = append(page, s)
	}
	return page, total, nil
}

// SaveActions реализует Storage.
func (m *MemoryStorage) SaveActions(ctx context.Context, actions ...*Actions) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range actions {
		stored := *a
		stored.Actions = slices.Clone(a.Actions)
		m.actions[a.SidecarID] = &stored
	}
	return nil
}

// FindActions реализует Storage.
func (m *MemoryStorage) FindActions(ctx context.Context, sidecarID string, remove bool) (*Actions, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.actions[sidecarID]
	if !ok {
		return nil, ErrNotFound
	}
	if remove {
		delete(m.actions, sidecarID)
	}
	out := *a
	out.Actions = slices.Clone(a.Actions)
	return &out, nil
}
