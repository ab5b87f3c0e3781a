// Package handlers implements the server mode HTTP endpoints. Handlers
// accept narrow interfaces over the Postgres repositories, the queue
// producer and the report service so they can be exercised without live
// backends.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
)

// RegistrationDirectory is the slice of the registration plane the
// handlers need. Satisfied by repository.RegistrationRepository.
type RegistrationDirectory interface {
	Create(ctx context.Context, reg *registration.Registration) error
	Save(ctx context.Context, reg *registration.Registration) error
	GetByID(ctx context.Context, id string) (*registration.Registration, error)
	List(ctx context.Context, limit, offset int) ([]*registration.Registration, error)
	ListByLearner(ctx context.Context, learnerID string, limit, offset int) ([]*registration.Registration, error)
	Delete(ctx context.Context, id string) error
}

// EventJournal records and reads attempt lifecycle events. Satisfied by
// repository.EventJournal.
type EventJournal interface {
	Record(ctx context.Context, event domain.Event, registrationID string) error
	ListByRegistration(ctx context.Context, registrationID string) ([]domain.Event, error)
}

// EventNotifier pushes events to the configured webhook. Satisfied by
// notify.Notifier.
type EventNotifier interface {
	Notify(ctx context.Context, event domain.Event) error
	Enabled() bool
}

// ReportSource reads and clears progress rollups. Satisfied by
// progress.Service.
type ReportSource interface {
	Report(ctx context.Context, registrationID string) (*progress.Report, error)
	GetOverview(ctx context.Context) (*progress.Overview, error)
	Delete(ctx context.Context, registrationID string) error
}

// RegistrationHandler handles registration CRUD endpoints
type RegistrationHandler struct {
	directory RegistrationDirectory
	journal   EventJournal
	reports   ReportSource
	notifier  EventNotifier
}

// NewRegistrationHandler creates a new registration handler
func NewRegistrationHandler(directory RegistrationDirectory, journal EventJournal, reports ReportSource, notifier EventNotifier) *RegistrationHandler {
	return &RegistrationHandler{
		directory: directory,
		journal:   journal,
		reports:   reports,
		notifier:  notifier,
	}
}

// RegistrationResponse represents a registration in API responses
type RegistrationResponse struct {
	ID               string  `json:"id"`
	PackageID        string  `json:"package_id"`
	Version          string  `json:"version"`
	LearnerID        string  `json:"learner_id"`
	LearnerName      string  `json:"learner_name,omitempty"`
	Status           string  `json:"status"`
	Score            string  `json:"score,omitempty"`
	Attempts         int     `json:"attempts"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	CompletedAt      *string `json:"completed_at,omitempty"`
}

func newRegistrationResponse(reg *registration.Registration) RegistrationResponse {
	resp := RegistrationResponse{
		ID:               reg.ID,
		PackageID:        reg.PackageID,
		Version:          string(reg.Version),
		LearnerID:        reg.LearnerID,
		LearnerName:      reg.LearnerName,
		Status:           string(reg.Status),
		Score:            reg.Score,
		Attempts:         reg.Attempts,
		TotalTimeSeconds: reg.TotalTime.Seconds(),
		CreatedAt:        reg.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        reg.UpdatedAt.Format(time.RFC3339),
	}
	if reg.CompletedAt != nil {
		completed := reg.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &completed
	}
	return resp
}

// CreateRegistrationRequest is the request body for enrolling a learner
type CreateRegistrationRequest struct {
	PackageID   string `json:"package_id"`
	Version     string `json:"version,omitempty"`
	LearnerID   string `json:"learner_id"`
	LearnerName string `json:"learner_name,omitempty"`
}

// EventResponse represents a journaled event in API responses. The
// journal returns envelope fields plus the raw payload; the concrete
// event type does not survive the round trip.
type EventResponse struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	OccurredAt string          `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// List returns registrations, optionally filtered by learner
func (h *RegistrationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if limit <= 0 {
		limit = 50
	}

	var (
		regs []*registration.Registration
		err  error
	)
	if learnerID := r.URL.Query().Get("learner_id"); learnerID != "" {
		regs, err = h.directory.ListByLearner(r.Context(), learnerID, limit, offset)
	} else {
		regs, err = h.directory.List(r.Context(), limit, offset)
	}
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, "failed to list registrations")
		return
	}

	response := make([]RegistrationResponse, 0, len(regs))
	for _, reg := range regs {
		response = append(response, newRegistrationResponse(reg))
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"registrations": response,
		"total":         len(response),
	})
}

// Create enrolls a learner in a package
func (h *RegistrationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := domain.NewPackageID(req.PackageID); err != nil {
		h.jsonError(w, http.StatusBadRequest, "valid package_id is required")
		return
	}
	if _, err := domain.NewLearnerID(req.LearnerID); err != nil {
		h.jsonError(w, http.StatusBadRequest, "valid learner_id is required")
		return
	}

	// Server mode has no content catalog to consult, so the caller names
	// the runtime version the package speaks. 1.2 is the fleet default.
	version := domain.RuntimeVersion(req.Version)
	if req.Version == "" {
		version = domain.Runtime12
	}
	if !version.Valid() {
		h.jsonError(w, http.StatusBadRequest, "version must be 1.2 or 2004")
		return
	}

	now := time.Now()
	reg := &registration.Registration{
		ID:          domain.GenerateRegistrationID().String(),
		PackageID:   req.PackageID,
		Version:     version,
		LearnerID:   req.LearnerID,
		LearnerName: req.LearnerName,
		Status:      registration.StatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.directory.Create(r.Context(), reg); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			h.jsonError(w, http.StatusConflict, "registration already exists")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to create registration")
		return
	}

	event := domain.NewRegistrationCreatedEvent(aggregateUUID(reg.ID), reg.LearnerID, reg.PackageID)
	recordEvent(r.Context(), h.journal, h.notifier, event, reg.ID)

	h.jsonResponse(w, http.StatusCreated, newRegistrationResponse(reg))
}

// Get retrieves a registration by ID
func (h *RegistrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	reg, err := h.directory.GetByID(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			h.jsonError(w, http.StatusNotFound, "registration not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to load registration")
		return
	}

	h.jsonResponse(w, http.StatusOK, newRegistrationResponse(reg))
}

// Delete removes a registration, its snapshot and its report
func (h *RegistrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.directory.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			h.jsonError(w, http.StatusNotFound, "registration not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to delete registration")
		return
	}

	// The snapshot row cascades with the registration; the report lives
	// in its own store and is cleared here.
	if err := h.reports.Delete(r.Context(), id); err != nil && !errors.Is(err, progress.ErrNotFound) {
		slog.Warn("delete report", "registration_id", id, "error", err)
	}

	h.jsonResponse(w, http.StatusOK, map[string]string{"message": "registration deleted"})
}

// Events returns a registration's journaled lifecycle events, oldest first
func (h *RegistrationHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if _, err := h.directory.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			h.jsonError(w, http.StatusNotFound, "registration not found")
			return
		}
		h.jsonError(w, http.StatusInternalServerError, "failed to load registration")
		return
	}

	events, err := h.journal.ListByRegistration(r.Context(), id)
	if err != nil {
		h.jsonError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	response := make([]EventResponse, 0, len(events))
	for _, event := range events {
		item := EventResponse{
			ID:         event.EventID().String(),
			Type:       event.EventType(),
			OccurredAt: event.OccurredAt().Format(time.RFC3339),
		}
		if carrier, ok := event.(interface{ Payload() json.RawMessage }); ok {
			item.Payload = carrier.Payload()
		}
		response = append(response, item)
	}

	h.jsonResponse(w, http.StatusOK, map[string]any{
		"events": response,
		"total":  len(response),
	})
}

// recordEvent journals an event and pushes it to the webhook. Both are
// audit paths: a failure is logged, never surfaced to the request that
// already committed.
func recordEvent(ctx context.Context, journal EventJournal, notifier EventNotifier, event domain.Event, registrationID string) {
	if journal != nil {
		if err := journal.Record(ctx, event, registrationID); err != nil {
			slog.Warn("journal event",
				"type", event.EventType(),
				"registration_id", registrationID,
				"error", err,
			)
		}
	}
	if notifier != nil && notifier.Enabled() {
		if err := notifier.Notify(ctx, event); err != nil {
			slog.Warn("webhook event",
				"type", event.EventType(),
				"registration_id", registrationID,
				"error", err,
			)
		}
	}
}

// aggregateUUID parses a registration ID for event envelopes. IDs the
// server minted always parse; foreign ones fall back to the nil UUID.
func aggregateUUID(id string) uuid.UUID {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil
	}
	return parsed
}

func (h *RegistrationHandler) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (h *RegistrationHandler) jsonError(w http.ResponseWriter, status int, message string) {
	h.jsonResponse(w, status, map[string]string{"error": message})
}
