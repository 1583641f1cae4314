package storage

import (
	"context"
	"sync"
)

// Memory keeps records in a map. Used by tests and by the host when
// DW_STORAGE_BACKEND=memory.
type Memory struct {
	mu      sync.RWMutex
	records map[string]string
}

// NewMemory creates an empty in-memory provider
func NewMemory() *Memory {
	return &Memory{records: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.records[key]
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[key] = value
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, key)
	return nil
}
