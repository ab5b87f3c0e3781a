package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// SnapshotRepository persists the latest CMI snapshot per registration
// in Postgres. One row per registration; each commit replaces it.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new snapshot repository
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

// Save upserts the registration's snapshot
func (r *SnapshotRepository) Save(ctx context.Context, state *registration.SavedState) error {
	data, err := json.Marshal(state.Data)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cmi_snapshots (registration_id, attempt_id, version, data,
			session_time_ms, auto_save, final, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (registration_id) DO UPDATE SET
			attempt_id      = EXCLUDED.attempt_id,
			version         = EXCLUDED.version,
			data            = EXCLUDED.data,
			session_time_ms = EXCLUDED.session_time_ms,
			auto_save       = EXCLUDED.auto_save,
			final           = EXCLUDED.final,
			taken_at        = EXCLUDED.taken_at
	`
	_, err = r.pool.Exec(ctx, query,
		state.RegistrationID, state.AttemptID, string(state.Version), data,
		state.SessionTime.Milliseconds(), state.AutoSave, state.Final, state.TakenAt,
	)
	return err
}

// Get retrieves the registration's snapshot
func (r *SnapshotRepository) Get(ctx context.Context, registrationID string) (*registration.SavedState, error) {
	query := `
		SELECT registration_id, attempt_id, version, data, session_time_ms,
			auto_save, final, taken_at
		FROM cmi_snapshots WHERE registration_id = $1
	`
	return r.scanState(r.pool.QueryRow(ctx, query, registrationID))
}

// Delete removes the registration's snapshot. Missing rows are not an
// error: a fresh registration has nothing to clear.
func (r *SnapshotRepository) Delete(ctx context.Context, registrationID string) error {
	query := `DELETE FROM cmi_snapshots WHERE registration_id = $1`
	_, err := r.pool.Exec(ctx, query, registrationID)
	return err
}

func (r *SnapshotRepository) scanState(row pgx.Row) (*registration.SavedState, error) {
	var state registration.SavedState
	var version string
	var data []byte
	var sessionTimeMs int64

	err := row.Scan(
		&state.RegistrationID, &state.AttemptID, &version, &data,
		&sessionTimeMs, &state.AutoSave, &state.Final, &state.TakenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, &state.Data); err != nil {
		return nil, err
	}

	state.Version = scorm.Version(version)
	state.SessionTime = time.Duration(sessionTimeMs) * time.Millisecond
	return &state, nil
}
