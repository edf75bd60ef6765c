package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store used in simulation mode and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	attrs map[string]Attribute
	now   func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attrs: make(map[string]Attribute),
		now:   time.Now,
	}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, name string) (Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	attr, ok := m.attrs[name]
	if !ok {
		return Attribute{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return attr, nil
}

// Set implements Store.
func (m *MemoryStore) Set(_ context.Context, name string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.attrs[name] = Attribute{Name: name, Value: value, UpdatedAt: m.now().UTC()}
	return nil
}

// List implements Store.
func (m *MemoryStore) List(_ context.Context) ([]Attribute, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Attribute, 0, len(m.attrs))
	for _, attr := range m.attrs {
		out = append(out, attr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
