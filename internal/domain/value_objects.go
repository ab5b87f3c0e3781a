package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/google/uuid"
)

// ErrInvalidID indicates an invalid identifier format
var ErrInvalidID = errors.New("invalid identifier format")

// -----------------------------------------------------------------------------
// RegistrationID - Typed identifier for registrations
// -----------------------------------------------------------------------------

// RegistrationID is a typed identifier for registrations (one learner
// enrolled in one package)
type RegistrationID struct {
	value uuid.UUID
}

// NewRegistrationID creates a new RegistrationID from a UUID
func NewRegistrationID(id uuid.UUID) RegistrationID {
	return RegistrationID{value: id}
}

// NewRegistrationIDFromString creates a RegistrationID from a string
func NewRegistrationIDFromString(s string) (RegistrationID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return RegistrationID{}, fmt.Errorf("invalid registration ID: %w", err)
	}
	return RegistrationID{value: id}, nil
}

// GenerateRegistrationID creates a new random RegistrationID
func GenerateRegistrationID() RegistrationID {
	return RegistrationID{value: uuid.New()}
}

// UUID returns the underlying uuid.UUID
func (id RegistrationID) UUID() uuid.UUID {
	return id.value
}

// String returns the string representation
func (id RegistrationID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id RegistrationID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal compares two RegistrationIDs
func (id RegistrationID) Equal(other RegistrationID) bool {
	return id.value == other.value
}

// -----------------------------------------------------------------------------
// AttemptID - Typed identifier for runtime attempts
// -----------------------------------------------------------------------------

// AttemptID is a typed identifier for runtime attempts (one launch of a
// package under a registration)
type AttemptID struct {
	value uuid.UUID
}

// NewAttemptID creates a new AttemptID from a UUID
func NewAttemptID(id uuid.UUID) AttemptID {
	return AttemptID{value: id}
}

// NewAttemptIDFromString creates an AttemptID from a string
func NewAttemptIDFromString(s string) (AttemptID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return AttemptID{}, fmt.Errorf("invalid attempt ID: %w", err)
	}
	return AttemptID{value: id}, nil
}

// GenerateAttemptID creates a new random AttemptID
func GenerateAttemptID() AttemptID {
	return AttemptID{value: uuid.New()}
}

// UUID returns the underlying uuid.UUID
func (id AttemptID) UUID() uuid.UUID {
	return id.value
}

// String returns the string representation
func (id AttemptID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id AttemptID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal compares two AttemptIDs
func (id AttemptID) Equal(other AttemptID) bool {
	return id.value == other.value
}

// -----------------------------------------------------------------------------
// PackageID - Value object for content package identifiers
// -----------------------------------------------------------------------------

// packageIDPattern validates package ID format: manifest identifiers are
// XML NMTOKEN-ish; we accept letters, digits, dot, dash, underscore
var packageIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// PackageID is a value object for content package identifiers, taken from
// the manifest's identifier attribute (e.g., "golf-sample-12")
type PackageID struct {
	value string
}

// NewPackageID creates a new PackageID from a string
func NewPackageID(s string) (PackageID, error) {
	if s == "" {
		return PackageID{}, fmt.Errorf("%w: package ID cannot be empty", ErrInvalidID)
	}
	if !packageIDPattern.MatchString(s) {
		return PackageID{}, fmt.Errorf("%w: package ID must start alphanumeric and contain only [a-zA-Z0-9._-]", ErrInvalidID)
	}
	return PackageID{value: s}, nil
}

// MustPackageID creates a new PackageID, panicking on error
func MustPackageID(s string) PackageID {
	id, err := NewPackageID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation
func (id PackageID) String() string {
	return id.value
}

// IsZero returns true if this is a zero value
func (id PackageID) IsZero() bool {
	return id.value == ""
}

// Equal compares two PackageIDs
func (id PackageID) Equal(other PackageID) bool {
	return id.value == other.value
}

// MarshalJSON encodes the ID as a plain string. Packages cross the daemon
// API, so the value object must not leak its struct shape.
func (id PackageID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.value)
}

// UnmarshalJSON decodes and validates a plain string ID
func (id *PackageID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewPackageID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// -----------------------------------------------------------------------------
// LearnerID - Value object for learner identifiers
// -----------------------------------------------------------------------------

// learnerIDPattern accepts roster-style identifiers: no whitespace, no
// commas (the CMIIdentifier character set)
var learnerIDPattern = regexp.MustCompile(`^[\x21-\x2b\x2d-\x7e]+$`)

// LearnerID is a value object for learner identifiers. These come from the
// enrolling system's roster, not from us, so the format is opaque beyond
// basic character restrictions.
type LearnerID struct {
	value string
}

// NewLearnerID creates a new LearnerID from a string
func NewLearnerID(s string) (LearnerID, error) {
	if s == "" {
		return LearnerID{}, fmt.Errorf("%w: learner ID cannot be empty", ErrInvalidID)
	}
	if !learnerIDPattern.MatchString(s) {
		return LearnerID{}, fmt.Errorf("%w: learner ID must be printable ASCII without spaces or commas", ErrInvalidID)
	}
	return LearnerID{value: s}, nil
}

// MustLearnerID creates a new LearnerID, panicking on error
func MustLearnerID(s string) LearnerID {
	id, err := NewLearnerID(s)
	if err != nil {
		panic(err)
	}
	return id
}

// String returns the string representation
func (id LearnerID) String() string {
	return id.value
}

// IsZero returns true if this is a zero value
func (id LearnerID) IsZero() bool {
	return id.value == ""
}

// Equal compares two LearnerIDs
func (id LearnerID) Equal(other LearnerID) bool {
	return id.value == other.value
}

