package progress

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// ReportStore is the persistence boundary for reports. Satisfied by the
// JSON-backed Store here and the sqlite ReportStore.
type ReportStore interface {
	Save(report *Report) error
	Get(registrationID string) (*Report, error)
	List() ([]*Report, error)
	Delete(registrationID string) error
}

var _ ReportStore = (*Store)(nil)

// Activity identifies the registration a snapshot belongs to. The daemon
// fills it from the registration entity; the queue consumer fills it from
// the message envelope.
type Activity struct {
	RegistrationID string `json:"registration_id"`
	PackageID      string `json:"package_id"`
	LearnerID      string `json:"learner_id"`
	LearnerName    string `json:"learner_name,omitempty"`
}

// Service folds CMI snapshots into per-registration reports
type Service struct {
	store ReportStore
}

// NewService creates a new progress service
func NewService(store ReportStore) *Service {
	return &Service{store: store}
}

// Record folds one snapshot into the registration's report, creating the
// report on first contact. Terminal statuses stick: a later attempt that
// ends incomplete does not reopen a passed registration.
func (s *Service) Record(ctx context.Context, act Activity, snap scorm.Snapshot) (*Report, error) {
	report, err := s.store.Get(act.RegistrationID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		report = &Report{
			RegistrationID: act.RegistrationID,
			PackageID:      act.PackageID,
			LearnerID:      act.LearnerID,
			LearnerName:    act.LearnerName,
			Status:         "in-progress",
		}
	}

	sum := ParseSummary(snap.Version, snap.Data)

	report.Commits++
	if snap.Final {
		report.Attempts++
		report.TotalTimeSeconds += snap.SessionTime.Seconds()
	}

	if score := sum.Score(); score != "" {
		report.LatestScore = score
		report.BestScore = betterScore(report.BestScore, score)
	}
	report.Location = sum.Location
	report.SuspendDataBytes = sum.SuspendDataBytes
	report.Objectives = sum.Objectives
	report.Interactions = sum.Interactions

	taken := snap.TakenAt
	if taken.IsZero() {
		taken = time.Now()
	}
	if report.FirstActivity.IsZero() {
		report.FirstActivity = taken
	}
	report.LastActivity = taken

	if !terminal(report.Status) {
		report.Status = sum.Status
		if sum.Terminal() && report.CompletedAt == nil {
			completed := taken
			report.CompletedAt = &completed
		}
	}

	if err := s.store.Save(report); err != nil {
		return nil, err
	}
	return report, nil
}

// Report returns the rollup for one registration
func (s *Service) Report(ctx context.Context, registrationID string) (*Report, error) {
	return s.store.Get(registrationID)
}

// List returns all reports, most recently active first
func (s *Service) List(ctx context.Context) ([]*Report, error) {
	return s.store.List()
}

// Delete removes the rollup for a registration
func (s *Service) Delete(ctx context.Context, registrationID string) error {
	return s.store.Delete(registrationID)
}

// Overview aggregates the report table for the status command
type Overview struct {
	Registrations  int     `json:"registrations"`
	Learners       int     `json:"learners"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	CompletionRate float64 `json:"completion_rate"`
	TotalTime      string  `json:"total_time"`
}

// GetOverview returns aggregate statistics across all reports
func (s *Service) GetOverview(ctx context.Context) (*Overview, error) {
	reports, err := s.store.List()
	if err != nil {
		return nil, err
	}

	overview := &Overview{Registrations: len(reports)}

	learners := make(map[string]bool)
	var totalSeconds float64
	for _, report := range reports {
		learners[report.LearnerID] = true
		totalSeconds += report.TotalTimeSeconds

		switch report.Status {
		case "completed":
			overview.Completed++
		case "passed":
			overview.Passed++
		case "failed":
			overview.Failed++
		default:
			overview.InProgress++
		}
	}
	overview.Learners = len(learners)

	if len(reports) > 0 {
		finished := overview.Completed + overview.Passed + overview.Failed
		overview.CompletionRate = float64(finished) / float64(len(reports))
	}
	overview.TotalTime = formatDuration(time.Duration(totalSeconds * float64(time.Second)))

	return overview, nil
}

func terminal(status string) bool {
	switch status {
	case "passed", "failed", "completed":
		return true
	}
	return false
}

// betterScore keeps the numerically higher of two score strings. Falls back
// to the newer value when either side does not parse.
func betterScore(current, candidate string) string {
	if current == "" {
		return candidate
	}
	cur, err1 := strconv.ParseFloat(current, 64)
	cand, err2 := strconv.ParseFloat(candidate, 64)
	if err1 != nil || err2 != nil {
		return candidate
	}
	if cand > cur {
		return candidate
	}
	return current
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Hour {
		return d.Round(time.Second).String()
	}
	return d.Round(time.Minute).String()
}
