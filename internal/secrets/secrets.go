// Package secrets provides the opaque secure key-value storage used for
// credential profiles. Backends overwrite whole values under fixed keys;
// callers serialize anything structured before saving.
package secrets

import "sync"

// Store is the secure storage collaborator. Save overwrites any existing
// value (delete-then-insert is acceptable). Load reports whether the key
// existed so an absent key is distinguishable from an empty value.
type Store interface {
	Save(key string, data []byte) error
	Load(key string) ([]byte, bool, error)
	Delete(key string) error
}

// Memory is an in-process Store used in tests and as a last-resort fallback
// when no system backend is available. Contents are lost on exit.
type Memory struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string][]byte)}
}

// Save stores a copy of data under key.
func (m *Memory) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.values[key] = buf
	return nil
}

// Load returns a copy of the value stored under key.
func (m *Memory) Load(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.values[key]
	if !ok {
		return nil, false, nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, true, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
