package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lectern/internal/progress"
)

// ReportStore implements progress report persistence backed by SQLite.
type ReportStore struct {
	db *DB
}

// NewReportStore creates a new SQLite-backed report store.
func NewReportStore(db *DB) *ReportStore {
	return &ReportStore{db: db}
}

// Save persists a report (insert or update).
func (s *ReportStore) Save(report *progress.Report) error {
	report.UpdatedAt = time.Now()

	_, err := s.db.Exec(`
		INSERT INTO reports (registration_id, package_id, learner_id, learner_name,
			status, attempts, commits, best_score, latest_score, total_time_seconds,
			location, suspend_data_bytes, objectives, interactions,
			first_activity, last_activity, completed_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(registration_id) DO UPDATE SET
			package_id=excluded.package_id, learner_id=excluded.learner_id,
			learner_name=excluded.learner_name, status=excluded.status,
			attempts=excluded.attempts, commits=excluded.commits,
			best_score=excluded.best_score, latest_score=excluded.latest_score,
			total_time_seconds=excluded.total_time_seconds, location=excluded.location,
			suspend_data_bytes=excluded.suspend_data_bytes,
			objectives=excluded.objectives, interactions=excluded.interactions,
			first_activity=excluded.first_activity, last_activity=excluded.last_activity,
			completed_at=excluded.completed_at, updated_at=excluded.updated_at`,
		report.RegistrationID, report.PackageID, report.LearnerID, report.LearnerName,
		report.Status, report.Attempts, report.Commits, report.BestScore, report.LatestScore,
		report.TotalTimeSeconds, report.Location, report.SuspendDataBytes,
		report.Objectives, report.Interactions,
		zeroNullTime(report.FirstActivity), zeroNullTime(report.LastActivity),
		nullTime(report.CompletedAt), report.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert report: %w", err)
	}
	return nil
}

// Get retrieves the report for a registration.
func (s *ReportStore) Get(registrationID string) (*progress.Report, error) {
	row := s.db.QueryRow(`
		SELECT registration_id, package_id, learner_id, learner_name,
			status, attempts, commits, best_score, latest_score, total_time_seconds,
			location, suspend_data_bytes, objectives, interactions,
			first_activity, last_activity, completed_at, updated_at
		FROM reports WHERE registration_id = ?`, registrationID)

	report, err := scanReport(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, progress.ErrNotFound
		}
		return nil, fmt.Errorf("scan report: %w", err)
	}
	return report, nil
}

// List returns all reports, most recently active first.
func (s *ReportStore) List() ([]*progress.Report, error) {
	rows, err := s.db.Query(`
		SELECT registration_id, package_id, learner_id, learner_name,
			status, attempts, commits, best_score, latest_score, total_time_seconds,
			location, suspend_data_bytes, objectives, interactions,
			first_activity, last_activity, completed_at, updated_at
		FROM reports ORDER BY last_activity DESC`)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*progress.Report
	for rows.Next() {
		report, err := scanReport(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Delete removes the report for a registration.
func (s *ReportStore) Delete(registrationID string) error {
	result, err := s.db.Exec("DELETE FROM reports WHERE registration_id = ?", registrationID)
	if err != nil {
		return fmt.Errorf("delete report: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return progress.ErrNotFound
	}
	return nil
}

func scanReport(scan func(dest ...interface{}) error) (*progress.Report, error) {
	var report progress.Report
	var firstActivity, lastActivity, completedAt sql.NullTime

	err := scan(
		&report.RegistrationID, &report.PackageID, &report.LearnerID, &report.LearnerName,
		&report.Status, &report.Attempts, &report.Commits,
		&report.BestScore, &report.LatestScore, &report.TotalTimeSeconds,
		&report.Location, &report.SuspendDataBytes,
		&report.Objectives, &report.Interactions,
		&firstActivity, &lastActivity, &completedAt, &report.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if firstActivity.Valid {
		report.FirstActivity = firstActivity.Time
	}
	if lastActivity.Valid {
		report.LastActivity = lastActivity.Time
	}
	if completedAt.Valid {
		report.CompletedAt = &completedAt.Time
	}

	return &report, nil
}

// zeroNullTime converts a zero time.Time to a NULL column value.
func zeroNullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
