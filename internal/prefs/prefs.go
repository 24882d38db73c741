// Package prefs provides the non-secret preference storage collaborator:
// a flat string key-value store for settings like the active profile ID,
// the selected account ID, and the diagnostics toggle.
package prefs

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Well-known preference keys.
const (
	KeyActiveProfileID   = "active_profile_id"
	KeySelectedAccountID = "selected_account_id"
	KeyDiagnosticsEnable = "diagnostics_enabled"
)

// Store is the preference storage collaborator. Get reports whether the key
// is set; Set and Delete persist immediately (no write buffering).
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

// Memory is an in-process Store for tests.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an empty in-memory preference store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

// File is a Store persisted as a JSON object in a single file. The whole map
// is rewritten on every mutation via a temp-file rename so readers never see
// a partial write.
type File struct {
	mu     sync.Mutex
	path   string
	values map[string]string
}

// NewFile opens (or initializes) a file-backed preference store at path.
// A missing or unreadable file starts empty; a later Set creates it.
func NewFile(path string) *File {
	f := &File{path: path, values: make(map[string]string)}

	data, err := os.ReadFile(path)
	if err != nil {
		return f
	}
	// Corrupt preferences start over rather than failing startup.
	_ = json.Unmarshal(data, &f.values)
	if f.values == nil {
		f.values = make(map[string]string)
	}
	return f
}

// Path returns the backing file path.
func (f *File) Path() string { return f.path }

func (f *File) Get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return f.flush()
}

func (f *File) Delete(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return f.flush()
}

// flush writes the full map. Caller holds f.mu.
func (f *File) flush() error {
	data, err := json.MarshalIndent(f.values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding preferences: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating preferences dir: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing preferences: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing preferences: %w", err)
	}
	return nil
}
