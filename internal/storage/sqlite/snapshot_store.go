package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// SnapshotStore persists the latest CMI snapshot per registration. The
// element map goes into a single JSON TEXT column; the runtime reads the
// whole map back on resume, so there is nothing to query inside it.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SQLite-backed snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// Save persists a snapshot (insert or replace the registration's row).
func (s *SnapshotStore) Save(state *registration.SavedState) error {
	data, err := json.Marshal(state.Data)
	if err != nil {
		return fmt.Errorf("marshal snapshot data: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO cmi_snapshots (registration_id, attempt_id, version, data,
			session_time_ms, auto_save, final, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(registration_id) DO UPDATE SET
			attempt_id=excluded.attempt_id, version=excluded.version,
			data=excluded.data, session_time_ms=excluded.session_time_ms,
			auto_save=excluded.auto_save, final=excluded.final,
			taken_at=excluded.taken_at`,
		state.RegistrationID, state.AttemptID, string(state.Version), string(data),
		state.SessionTime.Milliseconds(), state.AutoSave, state.Final, state.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("upsert snapshot: %w", err)
	}
	return nil
}

// Get retrieves the latest snapshot for a registration.
func (s *SnapshotStore) Get(registrationID string) (*registration.SavedState, error) {
	row := s.db.QueryRow(`
		SELECT registration_id, attempt_id, version, data,
			session_time_ms, auto_save, final, taken_at
		FROM cmi_snapshots WHERE registration_id = ?`, registrationID)

	var state registration.SavedState
	var version, dataJSON string
	var sessionTimeMs int64
	var takenAt time.Time

	err := row.Scan(
		&state.RegistrationID, &state.AttemptID, &version, &dataJSON,
		&sessionTimeMs, &state.AutoSave, &state.Final, &takenAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("scan snapshot: %w", err)
	}

	state.Version = scorm.Version(version)
	state.SessionTime = time.Duration(sessionTimeMs) * time.Millisecond
	state.TakenAt = takenAt
	if err := json.Unmarshal([]byte(dataJSON), &state.Data); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot data: %w", err)
	}

	return &state, nil
}

// Delete removes a registration's snapshot. Missing rows are not an error;
// a registration that never launched has no snapshot.
func (s *SnapshotStore) Delete(registrationID string) error {
	if _, err := s.db.Exec("DELETE FROM cmi_snapshots WHERE registration_id = ?", registrationID); err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	return nil
}
