package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
)

// RegistrationRepository persists registrations in Postgres
type RegistrationRepository struct {
	pool *pgxpool.Pool
}

// NewRegistrationRepository creates a new registration repository
func NewRegistrationRepository(pool *pgxpool.Pool) *RegistrationRepository {
	return &RegistrationRepository{pool: pool}
}

// Create inserts a new registration
func (r *RegistrationRepository) Create(ctx context.Context, reg *registration.Registration) error {
	query := `
		INSERT INTO registrations (id, package_id, version, learner_id, learner_name,
			status, score, attempts, total_time_ms, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.pool.Exec(ctx, query,
		reg.ID, reg.PackageID, string(reg.Version), reg.LearnerID, reg.LearnerName,
		string(reg.Status), reg.Score, reg.Attempts, reg.TotalTime.Milliseconds(),
		reg.CreatedAt, reg.UpdatedAt, reg.CompletedAt,
	)
	return err
}

// Save upserts a registration. Attempt commits update the rollup columns
// in place, so the write has to tolerate both first contact and replays.
func (r *RegistrationRepository) Save(ctx context.Context, reg *registration.Registration) error {
	query := `
		INSERT INTO registrations (id, package_id, version, learner_id, learner_name,
			status, score, attempts, total_time_ms, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			learner_name  = EXCLUDED.learner_name,
			status        = EXCLUDED.status,
			score         = EXCLUDED.score,
			attempts      = EXCLUDED.attempts,
			total_time_ms = EXCLUDED.total_time_ms,
			updated_at    = EXCLUDED.updated_at,
			completed_at  = EXCLUDED.completed_at
	`
	_, err := r.pool.Exec(ctx, query,
		reg.ID, reg.PackageID, string(reg.Version), reg.LearnerID, reg.LearnerName,
		string(reg.Status), reg.Score, reg.Attempts, reg.TotalTime.Milliseconds(),
		reg.CreatedAt, reg.UpdatedAt, reg.CompletedAt,
	)
	return err
}

// GetByID retrieves a registration by ID
func (r *RegistrationRepository) GetByID(ctx context.Context, id string) (*registration.Registration, error) {
	query := `
		SELECT id, package_id, version, learner_id, learner_name, status, score,
			attempts, total_time_ms, created_at, updated_at, completed_at
		FROM registrations WHERE id = $1
	`
	return r.scanRegistration(r.pool.QueryRow(ctx, query, id))
}

// ListByLearner retrieves registrations for one learner, newest first
func (r *RegistrationRepository) ListByLearner(ctx context.Context, learnerID string, limit, offset int) ([]*registration.Registration, error) {
	query := `
		SELECT id, package_id, version, learner_id, learner_name, status, score,
			attempts, total_time_ms, created_at, updated_at, completed_at
		FROM registrations WHERE learner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`
	rows, err := r.pool.Query(ctx, query, learnerID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*registration.Registration
	for rows.Next() {
		reg, err := r.scanRegistrationRow(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// List retrieves registrations across all learners, newest first
func (r *RegistrationRepository) List(ctx context.Context, limit, offset int) ([]*registration.Registration, error) {
	query := `
		SELECT id, package_id, version, learner_id, learner_name, status, score,
			attempts, total_time_ms, created_at, updated_at, completed_at
		FROM registrations ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regs []*registration.Registration
	for rows.Next() {
		reg, err := r.scanRegistrationRow(rows)
		if err != nil {
			return nil, err
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// Delete removes a registration. The snapshot row goes with it via the
// foreign key cascade.
func (r *RegistrationRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM registrations WHERE id = $1`
	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrRegistrationNotFound
	}
	return nil
}

// Count returns the number of registrations
func (r *RegistrationRepository) Count(ctx context.Context) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM registrations`).Scan(&count)
	return count, err
}

func (r *RegistrationRepository) scanRegistration(row pgx.Row) (*registration.Registration, error) {
	var reg registration.Registration
	var version, status string
	var totalTimeMs int64

	err := row.Scan(
		&reg.ID, &reg.PackageID, &version, &reg.LearnerID, &reg.LearnerName,
		&status, &reg.Score, &reg.Attempts, &totalTimeMs,
		&reg.CreatedAt, &reg.UpdatedAt, &reg.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRegistrationNotFound
	}
	if err != nil {
		return nil, err
	}

	reg.Version = domain.RuntimeVersion(version)
	reg.Status = registration.Status(status)
	reg.TotalTime = time.Duration(totalTimeMs) * time.Millisecond
	return &reg, nil
}

func (r *RegistrationRepository) scanRegistrationRow(rows pgx.Rows) (*registration.Registration, error) {
	var reg registration.Registration
	var version, status string
	var totalTimeMs int64

	err := rows.Scan(
		&reg.ID, &reg.PackageID, &version, &reg.LearnerID, &reg.LearnerName,
		&status, &reg.Score, &reg.Attempts, &totalTimeMs,
		&reg.CreatedAt, &reg.UpdatedAt, &reg.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	reg.Version = domain.RuntimeVersion(version)
	reg.Status = registration.Status(status)
	reg.TotalTime = time.Duration(totalTimeMs) * time.Millisecond
	return &reg, nil
}
