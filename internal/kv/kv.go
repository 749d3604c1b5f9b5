// Package kv provides the local durable key-value storage used for the
// session registry and the active session pointer.
package kv

import "sync"

// Store is a string key-value store. Get reports whether the key exists.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
}

// Memory is a non-persistent Store, suitable for tests.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]string
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.entries[key]
	return v, ok, nil
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = value
	return nil
}
