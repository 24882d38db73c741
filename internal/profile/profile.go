// Package profile manages named API-token profiles persisted in the secure
// secret store, plus the pointer to the currently active profile.
package profile

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/secrets"
)

// StorageKey is the fixed secret-store key holding the serialized profile list.
const StorageKey = "cloudflarestatusbar.profiles"

// Profile is a named, user-managed credential bundle.
type Profile struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	APIToken string `json:"apiToken"`
}

// Store persists profiles as a whole-list overwrite on every mutation. The
// active-profile pointer lives in the (non-secret) preference store so the
// secret payload stays a plain profile list.
type Store struct {
	secrets secrets.Store
	prefs   prefs.Store
	logger  *slog.Logger
}

// StoreOptions configures the profile store.
type StoreOptions struct {
	Secrets secrets.Store
	Prefs   prefs.Store
	Logger  *slog.Logger
}

// NewStore creates a profile store over the given collaborators.
func NewStore(opts StoreOptions) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		secrets: opts.Secrets,
		prefs:   opts.Prefs,
		logger:  logger,
	}
}

// List returns all stored profiles. Unreadable or corrupt storage yields an
// empty list rather than an error so a damaged keychain entry never wedges
// the app.
func (s *Store) List() []Profile {
	data, ok, err := s.secrets.Load(StorageKey)
	if err != nil {
		s.logger.Warn("failed to load profiles", "error", err)
		return nil
	}
	if !ok {
		return nil
	}

	var profiles []Profile
	if err := json.Unmarshal(data, &profiles); err != nil {
		s.logger.Warn("failed to parse stored profiles, starting empty", "error", err)
		return nil
	}
	return profiles
}

// Add stores a new profile, assigning a UUID when the ID is empty, and
// returns the stored value.
func (s *Store) Add(p Profile) (Profile, error) {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	profiles := append(s.List(), p)
	if err := s.save(profiles); err != nil {
		return Profile{}, err
	}
	s.logger.Info("profile added", "id", p.ID, "name", p.Name)
	return p, nil
}

// Update replaces the profile with the same ID. Unknown IDs are a no-op.
func (s *Store) Update(p Profile) error {
	profiles := s.List()
	replaced := false
	for i := range profiles {
		if profiles[i].ID == p.ID {
			profiles[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		return nil
	}
	return s.save(profiles)
}

// Delete removes the profile with the given ID. When it was the active
// profile, the active pointer is cleared as well.
func (s *Store) Delete(id string) error {
	profiles := s.List()
	kept := profiles[:0]
	for _, p := range profiles {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if err := s.save(kept); err != nil {
		return err
	}

	if s.ActiveID() == id {
		if err := s.SetActiveID(""); err != nil {
			return err
		}
	}
	s.logger.Info("profile deleted", "id", id)
	return nil
}

// ActiveID returns the active profile ID, or "" when none is set.
func (s *Store) ActiveID() string {
	id, _ := s.prefs.Get(prefs.KeyActiveProfileID)
	return id
}

// SetActiveID records the active profile. An empty ID clears the pointer.
func (s *Store) SetActiveID(id string) error {
	if id == "" {
		return s.prefs.Delete(prefs.KeyActiveProfileID)
	}
	return s.prefs.Set(prefs.KeyActiveProfileID, id)
}

// Active returns the active profile, if one is set and still exists.
func (s *Store) Active() (Profile, bool) {
	id := s.ActiveID()
	if id == "" {
		return Profile{}, false
	}
	for _, p := range s.List() {
		if p.ID == id {
			return p, true
		}
	}
	return Profile{}, false
}

func (s *Store) save(profiles []Profile) error {
	data, err := json.Marshal(profiles)
	if err != nil {
		return fmt.Errorf("encoding profiles: %w", err)
	}
	if err := s.secrets.Save(StorageKey, data); err != nil {
		return fmt.Errorf("saving profiles: %w", err)
	}
	return nil
}
