package registration

import (
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/scorm"
	"github.com/felixgeelhaar/lectern/internal/storage/local"
)

const (
	collectionRegistrations = "registrations"
	collectionSnapshots     = "snapshots"
)

// SavedState is the persisted form of a runtime snapshot. Only the most
// recent one is kept per registration; history goes to the event journal.
type SavedState struct {
	RegistrationID string            `json:"registration_id"`
	AttemptID      string            `json:"attempt_id"`
	Version        scorm.Version     `json:"version"`
	Data           map[string]string `json:"data"`
	SessionTime    time.Duration     `json:"session_time"`
	AutoSave       bool              `json:"auto_save"`
	Final          bool              `json:"final"`
	TakenAt        time.Time         `json:"taken_at"`
}

// Store handles registration persistence over the local JSON store
type Store struct {
	store *local.Store
}

// NewStore creates a new registration store
func NewStore(basePath string) (*Store, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, fmt.Errorf("create local store: %w", err)
	}
	return &Store{store: store}, nil
}

// Save persists a registration
func (s *Store) Save(reg *Registration) error {
	return s.store.Save(collectionRegistrations, reg.ID, reg)
}

// Get retrieves a registration by ID
func (s *Store) Get(id string) (*Registration, error) {
	var reg Registration
	if err := s.store.Load(collectionRegistrations, id, &reg); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, err
	}
	return &reg, nil
}

// Delete removes a registration and its saved state
func (s *Store) Delete(id string) error {
	if err := s.store.Delete(collectionRegistrations, id); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return domain.ErrRegistrationNotFound
		}
		return err
	}
	// Saved state is optional; a registration that never launched has none.
	if err := s.store.Delete(collectionSnapshots, id); err != nil && !errors.Is(err, local.ErrNotFound) {
		return err
	}
	return nil
}

// List returns all registration IDs
func (s *Store) List() ([]string, error) {
	return s.store.List(collectionRegistrations)
}

// ListAll returns all registrations
func (s *Store) ListAll() ([]*Registration, error) {
	ids, err := s.store.List(collectionRegistrations)
	if err != nil {
		return nil, err
	}

	regs := make([]*Registration, 0, len(ids))
	for _, id := range ids {
		reg, err := s.Get(id)
		if err != nil {
			continue
		}
		regs = append(regs, reg)
	}
	return regs, nil
}

// Exists checks if a registration exists
func (s *Store) Exists(id string) bool {
	return s.store.Exists(collectionRegistrations, id)
}

// SaveState persists the latest runtime snapshot for a registration
func (s *Store) SaveState(state *SavedState) error {
	return s.store.Save(collectionSnapshots, state.RegistrationID, state)
}

// GetState retrieves the latest runtime snapshot for a registration
func (s *Store) GetState(registrationID string) (*SavedState, error) {
	var state SavedState
	if err := s.store.Load(collectionSnapshots, registrationID, &state); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	return &state, nil
}
