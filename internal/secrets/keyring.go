package secrets

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultKeyringService is the service name entries are filed under in the
// OS keychain (macOS Keychain, Windows Credential Manager, Secret Service).
const DefaultKeyringService = "CloudflareStatusBar"

// Keyring is a Store backed by the operating system keychain.
type Keyring struct {
	service string
}

// NewKeyring creates a keychain-backed store. An empty service falls back to
// DefaultKeyringService.
func NewKeyring(service string) *Keyring {
	if service == "" {
		service = DefaultKeyringService
	}
	return &Keyring{service: service}
}

// Save overwrites the keychain entry for key.
func (k *Keyring) Save(key string, data []byte) error {
	if err := keyring.Set(k.service, key, string(data)); err != nil {
		return fmt.Errorf("keyring set %s: %w", key, err)
	}
	return nil
}

// Load reads the keychain entry for key. A missing entry is not an error.
func (k *Keyring) Load(key string) ([]byte, bool, error) {
	value, err := keyring.Get(k.service, key)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("keyring get %s: %w", key, err)
	}
	return []byte(value), true, nil
}

// Delete removes the keychain entry for key. Deleting an absent entry is
// not an error.
func (k *Keyring) Delete(key string) error {
	if err := keyring.Delete(k.service, key); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("keyring delete %s: %w", key, err)
	}
	return nil
}
