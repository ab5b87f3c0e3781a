package registration

import (
	"context"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// RegistrationService defines the interface for registration management
// operations used by the daemon handlers
type RegistrationService interface {
	// Create enrolls a learner in a package
	Create(ctx context.Context, req CreateRequest) (*Registration, error)

	// Get retrieves a registration by ID
	Get(ctx context.Context, id string) (*Registration, error)

	// List returns all registrations
	List(ctx context.Context) ([]*Registration, error)

	// Delete removes a registration
	Delete(ctx context.Context, id string) error

	// BeginAttempt prepares a launch: bumps the attempt counter and
	// returns the saved state the runtime session starts from
	BeginAttempt(ctx context.Context, id string) (*Attempt, error)

	// RecordSnapshot persists a runtime snapshot and updates the rollup
	RecordSnapshot(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error

	// SavedState returns the latest persisted snapshot
	SavedState(ctx context.Context, registrationID string) (*SavedState, error)
}

// Ensure Service implements RegistrationService
var _ RegistrationService = (*Service)(nil)

// RegistrationStore defines the persistence interface for registrations.
// Both the JSON file store and SQLite store implement this.
type RegistrationStore interface {
	Save(reg *Registration) error
	Get(id string) (*Registration, error)
	Delete(id string) error
	List() ([]string, error)
	ListAll() ([]*Registration, error)
	Exists(id string) bool

	SaveState(state *SavedState) error
	GetState(registrationID string) (*SavedState, error)
}

// Ensure Store (JSON) implements RegistrationStore
var _ RegistrationStore = (*Store)(nil)

// PackageSource resolves package IDs at enrollment time. The content
// registry implements this.
type PackageSource interface {
	Get(id domain.PackageID) (*domain.Package, error)
}
