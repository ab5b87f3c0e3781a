package progress

import (
	"errors"
	"sort"
	"time"

	"github.com/felixgeelhaar/lectern/internal/storage/local"
)

const collectionReports = "reports"

var ErrNotFound = errors.New("report not found")

// Report is the accumulated rollup for one registration. One row per
// registration, updated on every commit and terminate.
type Report struct {
	RegistrationID   string     `json:"registration_id"`
	PackageID        string     `json:"package_id"`
	LearnerID        string     `json:"learner_id"`
	LearnerName      string     `json:"learner_name,omitempty"`
	Status           string     `json:"status"`
	Attempts         int        `json:"attempts"`
	Commits          int        `json:"commits"`
	BestScore        string     `json:"best_score,omitempty"`
	LatestScore      string     `json:"latest_score,omitempty"`
	TotalTimeSeconds float64    `json:"total_time_seconds"`
	Location         string     `json:"location,omitempty"`
	SuspendDataBytes int        `json:"suspend_data_bytes"`
	Objectives       int        `json:"objectives"`
	Interactions     int        `json:"interactions"`
	FirstActivity    time.Time  `json:"first_activity"`
	LastActivity     time.Time  `json:"last_activity"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Store handles report persistence
type Store struct {
	store *local.Store
}

// NewStore creates a new report store
func NewStore(basePath string) (*Store, error) {
	store, err := local.NewStore(basePath)
	if err != nil {
		return nil, err
	}
	return &Store{store: store}, nil
}

// Save persists a report
func (s *Store) Save(report *Report) error {
	report.UpdatedAt = time.Now()
	return s.store.Save(collectionReports, report.RegistrationID, report)
}

// Get retrieves the report for a registration
func (s *Store) Get(registrationID string) (*Report, error) {
	var report Report
	if err := s.store.Load(collectionReports, registrationID, &report); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &report, nil
}

// List returns all reports sorted by last activity, most recent first
func (s *Store) List() ([]*Report, error) {
	ids, err := s.store.List(collectionReports)
	if err != nil {
		return nil, err
	}

	reports := make([]*Report, 0, len(ids))
	for _, id := range ids {
		report, err := s.Get(id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		reports = append(reports, report)
	}

	sort.Slice(reports, func(i, j int) bool {
		return reports[i].LastActivity.After(reports[j].LastActivity)
	})

	return reports, nil
}

// Delete removes the report for a registration
func (s *Store) Delete(registrationID string) error {
	if err := s.store.Delete(collectionReports, registrationID); err != nil {
		if errors.Is(err, local.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Exists checks if a report exists for a registration
func (s *Store) Exists(registrationID string) bool {
	return s.store.Exists(collectionReports, registrationID)
}
