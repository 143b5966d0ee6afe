package storage

import (
	"bytes"
	"io"
	"sync"
)

// Memory is an in-memory blob store, mainly for tests.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte)}
}

// Save writes data under key and returns a locator for it.
func (m *Memory) Save(key string, data []byte) (Locator, error) {
	if key == "" {
		return Locator{}, ErrEmptyKey
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.blobs[key] = buf
	m.mu.Unlock()
	return Locator{key: key}, nil
}

// Open returns a reader over the blob a locator references.
func (m *Memory) Open(loc Locator) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.blobs[loc.Key()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes the blob a locator references.
func (m *Memory) Delete(loc Locator) error {
	m.mu.Lock()
	delete(m.blobs, loc.Key())
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored blobs.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

// Has reports whether a blob exists for key.
func (m *Memory) Has(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[key]
	return ok
}

// Verify Memory implements Backend at compile time.
var _ Backend = (*Memory)(nil)
