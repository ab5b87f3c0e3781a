package daemon

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/schedule"
)

// Package handlers

func (s *Server) handleListPackages(w http.ResponseWriter, r *http.Request) {
	packs := s.packages.List()

	result := make([]map[string]interface{}, 0, len(packs))
	for _, pkg := range packs {
		result = append(result, map[string]interface{}{
			"id":          pkg.ID.String(),
			"title":       pkg.Title,
			"version":     string(pkg.Version),
			"launch_href": pkg.LaunchHref,
		})
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"packages": result,
	})
}

func (s *Server) handleInstallPackage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"` // directory holding imsmanifest.xml
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Path == "" {
		s.jsonError(w, http.StatusBadRequest, "path is required", nil)
		return
	}

	pkg, err := s.packages.Install(req.Path)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrPackageAlreadyKnown):
			s.jsonError(w, http.StatusConflict, "package already installed", err)
		case errors.Is(err, domain.ErrPackageInvalid):
			s.jsonError(w, http.StatusUnprocessableEntity, "package manifest invalid", err)
		case errors.Is(err, os.ErrNotExist):
			s.jsonError(w, http.StatusNotFound, "no manifest at path", err)
		default:
			s.jsonError(w, http.StatusInternalServerError, "failed to install package", err)
		}
		return
	}

	s.dispatcher.Publish(domain.NewPackageInstalledEvent(
		uuid.New(), pkg.ID.String(), pkg.Title, string(pkg.Version),
	))
	slog.Info("package installed", "package_id", pkg.ID, "version", pkg.Version)

	s.jsonResponse(w, http.StatusCreated, pkg)
}

func (s *Server) handleGetPackage(w http.ResponseWriter, r *http.Request) {
	id, err := domain.NewPackageID(r.PathValue("id"))
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid package id", err)
		return
	}

	pkg, err := s.packages.Get(id)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, "package not found", nil)
		return
	}

	s.jsonResponse(w, http.StatusOK, pkg)
}

// Registration handlers

func (s *Server) handleCreateRegistration(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PackageID   string `json:"package_id"`
		LearnerID   string `json:"learner_id"`
		LearnerName string `json:"learner_name,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.PackageID == "" || req.LearnerID == "" {
		s.jsonError(w, http.StatusBadRequest, "package_id and learner_id are required", nil)
		return
	}

	reg, err := s.registrations.Create(r.Context(), registration.CreateRequest{
		PackageID:   req.PackageID,
		LearnerID:   req.LearnerID,
		LearnerName: req.LearnerName,
	})
	if err != nil {
		if errors.Is(err, domain.ErrPackageNotFound) {
			s.jsonError(w, http.StatusNotFound, "package not found", err)
			return
		}
		if errors.Is(err, domain.ErrInvalidID) {
			s.jsonError(w, http.StatusBadRequest, "invalid identifier", err)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to create registration", err)
		return
	}

	s.jsonResponse(w, http.StatusCreated, reg)
}

func (s *Server) handleListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := s.registrations.List(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to list registrations", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"registrations": regs,
	})
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	reg, err := s.registrations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			s.jsonError(w, http.StatusNotFound, "registration not found", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to get registration", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, reg)
}

func (s *Server) handleDeleteRegistration(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	// A live session would keep writing to a registration that no longer
	// exists; close it first.
	if sess, err := s.sessions.Lookup(id); err == nil {
		sess.Close()
		s.sessions.Detach(id)
		slog.Info("closed live session for deleted registration", "registration_id", id)
	}

	if err := s.registrations.Delete(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			s.jsonError(w, http.StatusNotFound, "registration not found", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to delete registration", err)
		return
	}

	// The report is derived state; drop it with its registration.
	if err := s.progress.Delete(r.Context(), id); err != nil && !errors.Is(err, progress.ErrNotFound) {
		slog.Warn("failed to delete report", "registration_id", id, "error", err)
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"deleted": true,
	})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	report, err := s.progress.Report(r.Context(), id)
	if err != nil {
		if errors.Is(err, progress.ErrNotFound) {
			s.jsonError(w, http.StatusNotFound, "no report for registration", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to get report", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, report)
}

// handleLaunch mints a launch token and returns what the player needs to
// boot: which resource to frame and where the runtime endpoints live. The
// attempt itself starts when content calls initialize.
func (s *Server) handleLaunch(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	reg, err := s.registrations.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRegistrationNotFound) {
			s.jsonError(w, http.StatusNotFound, "registration not found", nil)
			return
		}
		s.jsonError(w, http.StatusInternalServerError, "failed to get registration", err)
		return
	}

	pkgID, err := domain.NewPackageID(reg.PackageID)
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "registration has invalid package id", err)
		return
	}
	pkg, err := s.packages.Get(pkgID)
	if err != nil {
		s.jsonError(w, http.StatusConflict, "package no longer installed", err)
		return
	}

	ttl := s.cfg.TokenTTL()
	token := s.issuer.Issue(reg.ID, ttl)

	slog.Info("launch token issued",
		"registration_id", reg.ID,
		"package_id", reg.PackageID,
		"ttl", ttl,
	)

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"registration_id": reg.ID,
		"token":           token,
		"expires_in":      int(ttl.Seconds()),
		"version":         string(reg.Version),
		"title":           pkg.Title,
		"launch_href":     pkg.LaunchHref,
		"endpoint":        "/v1/sessions/" + reg.ID,
	})
}

// Schedule handlers

func (s *Server) handleAssignLanes(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Events []schedule.Event `json:"events"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	lanes := schedule.AssignLanes(req.Events)

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"lanes":      lanes,
		"placements": schedule.Flatten(lanes),
	})
}
