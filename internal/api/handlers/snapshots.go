package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/queue"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// SnapshotArchive persists the latest CMI snapshot per registration.
// Satisfied by repository.SnapshotRepository.
type SnapshotArchive interface {
	Save(ctx context.Context, state *registration.SavedState) error
	Get(ctx context.Context, registrationID string) (*registration.SavedState, error)
}

// AttemptPublisher queues committed snapshots for the rollup workers.
// Satisfied by queue.Producer.
type AttemptPublisher interface {
	PublishAttempt(ctx context.Context, msg *queue.AttemptMessage) error
}

// SnapshotHandler ingests committed CMI snapshots and serves the state
// and reports they fold into
type SnapshotHandler struct {
	directory RegistrationDirectory
	archive   SnapshotArchive
	journal   EventJournal
	publisher AttemptPublisher
	reports   ReportSource
	notifier  EventNotifier
}

// NewSnapshotHandler creates a new snapshot handler
func NewSnapshotHandler(directory RegistrationDirectory, archive SnapshotArchive, journal EventJournal, publisher AttemptPublisher, reports ReportSource, notifier EventNotifier) *SnapshotHandler {
	return &SnapshotHandler{
		directory: directory,
		archive:   archive,
		journal:   journal,
		publisher: publisher,
		reports:   reports,
		notifier:  notifier,
	}
}

// IngestSnapshotRequest is the request body for one committed snapshot.
// An edge runtime posts one per commit or terminate.
type IngestSnapshotRequest struct {
	AttemptID          string            `json:"attempt_id,omitempty"`
	Version            string            `json:"version,omitempty"`
	Data               map[string]string `json:"data"`
	SessionTimeSeconds float64           `json:"session_time_seconds,omitempty"`
	AutoSave           bool              `json:"auto_save,omitempty"`
	Final              bool              `json:"final,omitempty"`
	TakenAt            time.Time         `json:"taken_at,omitempty"`
}

// IngestSnapshotResponse confirms the snapshot was stored and queued
type IngestSnapshotResponse struct {
	Registration RegistrationResponse `json:"registration"`
	AttemptID    string               `json:"attempt_id"`
	Queued       bool                 `json:"queued"`
}

// Ingest stores one snapshot, folds a final one into the registration
// rollup and queues it for the report workers
func (h *SnapshotHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	reg, err := h.directory.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			h.jsonError(w, http.StatusNotFound, "registration not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to load registration")
		return
	}

	var req IngestSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Data) == 0 {
		h.jsonError(w, http.StatusBadRequest, "data is required")
		return
	}

	attemptID := domain.GenerateAttemptID()
	if req.AttemptID != "" {
		attemptID, err = domain.NewAttemptIDFromString(req.AttemptID)
		if err != nil {
			h.jsonError(w, http.StatusBadRequest, "invalid attempt_id")
			return
		}
	}

	version := reg.RuntimeVersion()
	if req.Version != "" {
		version = scorm.Version(req.Version)
		if !version.Valid() {
			h.jsonError(w, http.StatusBadRequest, "version must be 1.2 or 2004")
			return
		}
	}

	snap := scorm.Snapshot{
		Version:     version,
		Data:        req.Data,
		SessionTime: time.Duration(req.SessionTimeSeconds * float64(time.Second)),
		TakenAt:     req.TakenAt,
		AutoSave:    req.AutoSave,
		Final:       req.Final,
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now()
	}

	state := registration.FoldSnapshot(reg, attemptID, snap)

	if err := h.archive.Save(r.Context(), state); err != nil {
		h.jsonError(w, http.StatusInternalServerError, "failed to save snapshot")
		return
	}
	if err := h.directory.Save(r.Context(), reg); err != nil {
		h.jsonError(w, http.StatusInternalServerError, "failed to update registration")
		return
	}

	regUUID := aggregateUUID(reg.ID)
	if snap.Final {
		recordEvent(r.Context(), h.journal, h.notifier,
			domain.NewAttemptTerminatedEvent(attemptID.UUID(), regUUID, snap.SessionTime, string(reg.Status)), reg.ID)
		if reg.Status.Terminal() {
			recordEvent(r.Context(), h.journal, h.notifier,
				domain.NewRegistrationCompletedEvent(regUUID, reg.LearnerID, reg.PackageID, string(reg.Status), reg.Score), reg.ID)
		}
	} else {
		recordEvent(r.Context(), h.journal, h.notifier,
			domain.NewAttemptCommittedEvent(attemptID.UUID(), regUUID, len(snap.Data), snap.AutoSave), reg.ID)
	}

	// The registration rollup is already durable; queueing only feeds the
	// report workers, so a broker outage degrades reports rather than
	// failing the commit.
	act := progress.Activity{
		RegistrationID: reg.ID,
		PackageID:      reg.PackageID,
		LearnerID:      reg.LearnerID,
		LearnerName:    reg.LearnerName,
	}
	queued := true
	if err := h.publisher.PublishAttempt(r.Context(), queue.CreateAttemptMessage(act, attemptID.String(), snap)); err != nil {
		queued = false
		slog.Error("queue attempt snapshot",
			"registration_id", reg.ID,
			"final", snap.Final,
			"error", err,
		)
	}

	h.jsonResponse(w, http.StatusAccepted, IngestSnapshotResponse{
		Registration: newRegistrationResponse(reg),
		AttemptID:    attemptID.String(),
		Queued:       queued,
	})
}

// Latest returns the registration's most recent stored snapshot
func (h *SnapshotHandler) Latest(w http.ResponseWriter, r *http.Request) {
	state, err := h.archive.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			h.jsonError(w, http.StatusNotFound, "snapshot not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to load snapshot")
		return
	}

	h.jsonResponse(w, http.StatusOK, state)
}

// Report returns the progress rollup the workers folded for a registration
func (h *SnapshotHandler) Report(w http.ResponseWriter, r *http.Request) {
	report, err := h.reports.Report(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			h.jsonError(w, http.StatusNotFound, "report not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to load report")
		return
	}

	h.jsonResponse(w, http.StatusOK, report)
}

// Overview returns aggregate statistics across all reports
func (h *SnapshotHandler) Overview(w http.ResponseWriter, r *http.Request) {
	overview, err := h.reports.GetOverview(r.Context())
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, "failed to build overview")
		return
	}

	h.jsonResponse(w, http.StatusOK, overview)
}

func (h *SnapshotHandler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *SnapshotHandler) jsonError(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
