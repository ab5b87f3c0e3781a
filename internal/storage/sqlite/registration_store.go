package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
)

// RegistrationStore implements registration persistence backed by SQLite.
// Snapshot state lives in its own table and store; this type composes the
// two so it satisfies the full registration.RegistrationStore interface.
type RegistrationStore struct {
	db        *DB
	snapshots *SnapshotStore
}

// NewRegistrationStore creates a new SQLite-backed registration store.
func NewRegistrationStore(db *DB) *RegistrationStore {
	return &RegistrationStore{db: db, snapshots: NewSnapshotStore(db)}
}

// Save persists a registration (insert or update).
func (s *RegistrationStore) Save(reg *registration.Registration) error {
	_, err := s.db.Exec(`
		INSERT INTO registrations (id, package_id, version, learner_id, learner_name,
			status, score, attempts, total_time_ms, created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			package_id=excluded.package_id, version=excluded.version,
			learner_id=excluded.learner_id, learner_name=excluded.learner_name,
			status=excluded.status, score=excluded.score,
			attempts=excluded.attempts, total_time_ms=excluded.total_time_ms,
			updated_at=excluded.updated_at, completed_at=excluded.completed_at`,
		reg.ID, reg.PackageID, string(reg.Version), reg.LearnerID, reg.LearnerName,
		string(reg.Status), reg.Score, reg.Attempts, reg.TotalTime.Milliseconds(),
		reg.CreatedAt, reg.UpdatedAt, nullTime(reg.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("upsert registration: %w", err)
	}
	return nil
}

// Get retrieves a registration by ID.
func (s *RegistrationStore) Get(id string) (*registration.Registration, error) {
	row := s.db.QueryRow(`
		SELECT id, package_id, version, learner_id, learner_name,
			status, score, attempts, total_time_ms, created_at, updated_at, completed_at
		FROM registrations WHERE id = ?`, id)

	reg, err := scanRegistration(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("scan registration: %w", err)
	}
	return reg, nil
}

// Delete removes a registration; the snapshot row cascades.
func (s *RegistrationStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM registrations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete registration: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// List returns all registration IDs, newest first.
func (s *RegistrationStore) List() ([]string, error) {
	rows, err := s.db.Query("SELECT id FROM registrations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan registration id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListAll returns all registrations, newest first.
func (s *RegistrationStore) ListAll() ([]*registration.Registration, error) {
	rows, err := s.db.Query(`
		SELECT id, package_id, version, learner_id, learner_name,
			status, score, attempts, total_time_ms, created_at, updated_at, completed_at
		FROM registrations ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	defer rows.Close()

	var regs []*registration.Registration
	for rows.Next() {
		reg, err := scanRegistration(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan registration row: %w", err)
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Exists checks if a registration exists.
func (s *RegistrationStore) Exists(id string) bool {
	var count int
	s.db.QueryRow("SELECT COUNT(*) FROM registrations WHERE id = ?", id).Scan(&count)
	return count > 0
}

// SaveState persists the latest runtime snapshot for a registration.
func (s *RegistrationStore) SaveState(state *registration.SavedState) error {
	return s.snapshots.Save(state)
}

// GetState retrieves the latest runtime snapshot for a registration.
func (s *RegistrationStore) GetState(registrationID string) (*registration.SavedState, error) {
	return s.snapshots.Get(registrationID)
}

// scanRegistration reads one registrations row via the given scan func,
// which lets it serve both QueryRow and Query loops.
func scanRegistration(scan func(dest ...interface{}) error) (*registration.Registration, error) {
	var reg registration.Registration
	var version, status string
	var totalTimeMs int64
	var completedAt sql.NullTime

	err := scan(
		&reg.ID, &reg.PackageID, &version, &reg.LearnerID, &reg.LearnerName,
		&status, &reg.Score, &reg.Attempts, &totalTimeMs,
		&reg.CreatedAt, &reg.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	reg.Version = domain.RuntimeVersion(version)
	reg.Status = registration.Status(status)
	reg.TotalTime = time.Duration(totalTimeMs) * time.Millisecond
	if completedAt.Valid {
		reg.CompletedAt = &completedAt.Time
	}

	return &reg, nil
}

// nullTime converts a *time.Time to sql.NullTime for storage.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
