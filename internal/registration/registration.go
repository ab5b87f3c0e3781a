// Package registration tracks which learner is enrolled in which content
// package and what their attempts have reported so far. A registration is
// the durable record; runtime sessions come and go per attempt and feed
// their snapshots back into it.
package registration

import (
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Status is the registration's rollup state, derived from what the
// content reported on its most recent attempt.
type Status string

const (
	StatusCreated    Status = "created"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusPassed     Status = "passed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends the registration's lifecycle.
// Learners may still relaunch for review; the rollup no longer regresses
// to in-progress once terminal.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusPassed || s == StatusFailed
}

// Registration enrolls one learner in one package
type Registration struct {
	ID          string                `json:"id"`
	PackageID   string                `json:"package_id"`
	Version     domain.RuntimeVersion `json:"version"`
	LearnerID   string                `json:"learner_id"`
	LearnerName string                `json:"learner_name,omitempty"`
	Status      Status                `json:"status"`
	Score       string                `json:"score,omitempty"` // last reported score, version syntax
	Attempts    int                   `json:"attempts"`
	TotalTime   time.Duration         `json:"total_time"` // accumulated across attempts

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// New creates a registration for a learner in a package
func New(pkg *domain.Package, learnerID, learnerName string) *Registration {
	now := time.Now()
	return &Registration{
		ID:          domain.GenerateRegistrationID().String(),
		PackageID:   pkg.ID.String(),
		Version:     pkg.Version,
		LearnerID:   learnerID,
		LearnerName: learnerName,
		Status:      StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// RuntimeVersion maps the package's declared version onto the runtime's.
func (r *Registration) RuntimeVersion() scorm.Version {
	if r.Version == domain.Runtime2004 {
		return scorm.V2004
	}
	return scorm.V12
}

// ApplyOutcome folds a derived attempt outcome into the rollup. Terminal
// statuses stick: a review launch that reports "incomplete" does not
// reopen a passed registration.
func (r *Registration) ApplyOutcome(status Status, score string) {
	if !r.Status.Terminal() || status.Terminal() {
		r.Status = status
	}
	if score != "" {
		r.Score = score
	}
	if r.Status.Terminal() && r.CompletedAt == nil {
		now := time.Now()
		r.CompletedAt = &now
	}
	r.UpdatedAt = time.Now()
}

// DeriveStatus rolls a CMI snapshot up into a registration status. For
// 1.2 the lesson_status element carries both completion and success; for
// 2004 they are split across completion_status and success_status.
func DeriveStatus(v scorm.Version, data map[string]string) Status {
	if v == scorm.V2004 {
		switch data["cmi.success_status"] {
		case "passed":
			return StatusPassed
		case "failed":
			return StatusFailed
		}
		if data["cmi.completion_status"] == "completed" {
			return StatusCompleted
		}
		return StatusInProgress
	}

	switch data["cmi.core.lesson_status"] {
	case "passed":
		return StatusPassed
	case "failed":
		return StatusFailed
	case "completed":
		return StatusCompleted
	default:
		// "incomplete", "browsed", "not attempted": the learner has
		// launched but the content has not concluded anything.
		return StatusInProgress
	}
}

// DeriveScore pulls the headline score out of a snapshot: the scaled
// score for 2004 (raw as fallback), raw for 1.2.
func DeriveScore(v scorm.Version, data map[string]string) string {
	if v == scorm.V2004 {
		if s := data["cmi.score.scaled"]; s != "" {
			return s
		}
		return data["cmi.score.raw"]
	}
	return data["cmi.core.score.raw"]
}
