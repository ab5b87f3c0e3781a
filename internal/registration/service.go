package registration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Service manages registrations and folds attempt snapshots into them
type Service struct {
	store      RegistrationStore
	packages   PackageSource
	dispatcher *domain.EventDispatcher // optional: fans out lifecycle events
}

// NewService creates a new registration service
func NewService(store RegistrationStore, packages PackageSource) *Service {
	return &Service{
		store:    store,
		packages: packages,
	}
}

// SetDispatcher wires an event dispatcher for lifecycle notifications
func (s *Service) SetDispatcher(d *domain.EventDispatcher) {
	s.dispatcher = d
}

// CreateRequest contains data for enrolling a learner
type CreateRequest struct {
	PackageID   string
	LearnerID   string
	LearnerName string
}

// Create enrolls a learner in a package
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Registration, error) {
	learnerID, err := domain.NewLearnerID(req.LearnerID)
	if err != nil {
		return nil, err
	}

	pkgID, err := domain.NewPackageID(req.PackageID)
	if err != nil {
		return nil, err
	}
	pkg, err := s.packages.Get(pkgID)
	if err != nil {
		return nil, err
	}

	reg := New(pkg, learnerID.String(), req.LearnerName)
	if err := s.store.Save(reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}

	s.publish(func() domain.Event {
		return domain.NewRegistrationCreatedEvent(s.uuidOf(reg.ID), reg.LearnerID, reg.PackageID)
	})
	return reg, nil
}

// Get retrieves a registration by ID
func (s *Service) Get(ctx context.Context, id string) (*Registration, error) {
	return s.store.Get(id)
}

// List returns all registrations
func (s *Service) List(ctx context.Context) ([]*Registration, error) {
	return s.store.ListAll()
}

// Delete removes a registration and its saved state
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Delete(id)
}

// Attempt is a launch-ready view of a registration: the saved CMI state
// to seed the runtime session with and whether the learner resumes a
// suspended attempt or starts over.
type Attempt struct {
	ID           domain.AttemptID
	Registration *Registration
	SavedData    map[string]string
	Resumed      bool
}

// BeginAttempt prepares a new attempt. A prior attempt that exited with
// "suspend" resumes with its full element state; otherwise the attempt is
// fresh and only the accumulated total time carries over.
func (s *Service) BeginAttempt(ctx context.Context, id string) (*Attempt, error) {
	reg, err := s.store.Get(id)
	if err != nil {
		return nil, err
	}

	attempt := &Attempt{
		ID:           domain.GenerateAttemptID(),
		Registration: reg,
	}

	state, err := s.store.GetState(id)
	switch {
	case err == nil:
		attempt.SavedData, attempt.Resumed = carryOver(reg.RuntimeVersion(), state)
	case !errors.Is(err, domain.ErrSnapshotNotFound):
		return nil, fmt.Errorf("load saved state: %w", err)
	}

	reg.Attempts++
	if reg.Status == StatusCreated {
		reg.Status = StatusInProgress
	}
	reg.UpdatedAt = time.Now()
	if err := s.store.Save(reg); err != nil {
		return nil, fmt.Errorf("save registration: %w", err)
	}

	s.publish(func() domain.Event {
		return domain.NewAttemptStartedEvent(
			attempt.ID.UUID(), s.uuidOf(reg.ID),
			reg.PackageID, string(reg.Version), attempt.Resumed,
		)
	})
	return attempt, nil
}

// FoldSnapshot builds the saved state for one snapshot and, when the
// snapshot concludes the attempt, folds the outcome into the registration:
// accumulated total time, derived status and headline score. The returned
// state carries the rewritten total_time element the next attempt resumes
// with. Shared by the local service and the server plane's ingest handler.
func FoldSnapshot(reg *Registration, attemptID domain.AttemptID, snap scorm.Snapshot) *SavedState {
	state := &SavedState{
		RegistrationID: reg.ID,
		AttemptID:      attemptID.String(),
		Version:        snap.Version,
		Data:           snap.Data,
		SessionTime:    snap.SessionTime,
		AutoSave:       snap.AutoSave,
		Final:          snap.Final,
		TakenAt:        snap.TakenAt,
	}

	if snap.Final {
		reg.TotalTime += snap.SessionTime
		state.Data = withTotalTime(snap.Version, state.Data, reg.TotalTime)
		reg.ApplyOutcome(DeriveStatus(snap.Version, snap.Data), DeriveScore(snap.Version, snap.Data))
	} else {
		reg.UpdatedAt = time.Now()
	}
	return state
}

// RecordSnapshot persists a runtime snapshot and, for final snapshots,
// folds the outcome into the registration: derived status, headline
// score and the accumulated total time the next attempt will see.
func (s *Service) RecordSnapshot(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error {
	reg, err := s.store.Get(registrationID)
	if err != nil {
		return err
	}

	state := FoldSnapshot(reg, attemptID, snap)

	if err := s.store.SaveState(state); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	if err := s.store.Save(reg); err != nil {
		return fmt.Errorf("save registration: %w", err)
	}

	if snap.Final {
		s.publish(func() domain.Event {
			return domain.NewAttemptTerminatedEvent(
				attemptID.UUID(), s.uuidOf(reg.ID),
				snap.SessionTime, string(reg.Status),
			)
		})
		if reg.Status.Terminal() {
			s.publish(func() domain.Event {
				return domain.NewRegistrationCompletedEvent(
					s.uuidOf(reg.ID), reg.LearnerID, reg.PackageID,
					string(reg.Status), reg.Score,
				)
			})
		}
	} else {
		s.publish(func() domain.Event {
			return domain.NewAttemptCommittedEvent(
				attemptID.UUID(), s.uuidOf(reg.ID),
				len(snap.Data), snap.AutoSave,
			)
		})
	}
	return nil
}

// SavedState returns the latest persisted snapshot for a registration.
func (s *Service) SavedState(ctx context.Context, registrationID string) (*SavedState, error) {
	return s.store.GetState(registrationID)
}

// carryOver decides what the next attempt starts from. Suspended attempts
// resume with everything except the per-attempt write-only elements;
// concluded attempts start fresh, keeping only total_time.
func carryOver(v scorm.Version, state *SavedState) (map[string]string, bool) {
	exitElement := "cmi.core.exit"
	sessionElement := "cmi.core.session_time"
	totalElement := "cmi.core.total_time"
	if v == scorm.V2004 {
		exitElement = "cmi.exit"
		sessionElement = "cmi.session_time"
		totalElement = "cmi.total_time"
	}

	if state.Data[exitElement] == "suspend" {
		saved := make(map[string]string, len(state.Data))
		for k, val := range state.Data {
			if k == exitElement || k == sessionElement {
				continue
			}
			saved[k] = val
		}
		return saved, true
	}

	if total, ok := state.Data[totalElement]; ok {
		return map[string]string{totalElement: total}, false
	}
	return nil, false
}

// withTotalTime returns a copy of data with the total_time element set to
// the accumulated duration in the version's syntax.
func withTotalTime(v scorm.Version, data map[string]string, total time.Duration) map[string]string {
	out := make(map[string]string, len(data)+1)
	for k, val := range data {
		out[k] = val
	}
	if v == scorm.V2004 {
		out["cmi.total_time"] = scorm.FormatTimeinterval2004(total)
	} else {
		out["cmi.core.total_time"] = scorm.FormatTimespan12(total)
	}
	return out
}

// publish sends an event through the dispatcher when one is wired.
func (s *Service) publish(build func() domain.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Publish(build())
}

// uuidOf parses a stored registration ID back into its UUID form for
// event payloads. Stored IDs are always generated, so a parse failure is
// a programming error worth logging, not propagating.
func (s *Service) uuidOf(id string) uuid.UUID {
	rid, err := domain.NewRegistrationIDFromString(id)
	if err != nil {
		slog.Warn("registration id is not a uuid", "id", id, "error", err)
		return uuid.Nil
	}
	return rid.UUID()
}
