package store

import (
	"context"
	"sync"
)

// MemorySlots keeps slots in process memory.
type MemorySlots struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemorySlots returns an empty store.
func NewMemorySlots() *MemorySlots {
	return &MemorySlots{data: make(map[string][]byte)}
}

func (m *MemorySlots) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}

func (m *MemorySlots) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.data[key]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return append([]byte(nil), data...), nil
}
