package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// persistTimeout bounds the store writes a commit or terminate triggers.
// The handlers run under the session lock, so a hung store would otherwise
// hold the whole session.
const persistTimeout = 10 * time.Second

// protocolResponse is the JSON shape every runtime bridge endpoint
// returns. Result carries the protocol string verbatim ("true", "false",
// an element value); ErrorCode is what GetLastError would say, so the
// player shim can relay both without another round trip.
type protocolResponse struct {
	Result    string `json:"result"`
	ErrorCode string `json:"errorCode"`
}

func (s *Server) writeProtocol(w http.ResponseWriter, sess *scorm.Session, result string) {
	// Runtime responses are per-call state; a cached GetValue would hand
	// content a stale element.
	w.Header().Set("Cache-Control", "no-store")
	s.jsonResponse(w, http.StatusOK, protocolResponse{
		Result:    result,
		ErrorCode: sess.GetLastError(),
	})
}

// authorizeSession checks the bearer token and that it was issued for this
// registration.
func (s *Server) authorizeSession(r *http.Request, registrationID string) error {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return domain.ErrTokenInvalid
	}
	issued, err := s.issuer.Verify(token)
	if err != nil {
		return err
	}
	if issued != registrationID {
		return domain.ErrTokenInvalid
	}
	return nil
}

// lookupSession authorizes the request and resolves the live session. On
// failure it has already written the response.
func (s *Server) lookupSession(w http.ResponseWriter, r *http.Request) (*scorm.Session, string, bool) {
	id := r.PathValue("id")
	if err := s.authorizeSession(r, id); err != nil {
		s.jsonError(w, http.StatusUnauthorized, "launch token rejected", err)
		return nil, "", false
	}

	sess, err := s.sessions.Lookup(id)
	if err != nil {
		s.jsonError(w, http.StatusNotFound, "no live session for registration", nil)
		return nil, "", false
	}
	return sess, id, true
}

// Runtime bridge handlers

// handleSessionInitialize starts (or resumes) the attempt and runs the
// protocol Initialize. A second initialize against a live session reaches
// the session itself, which answers with the protocol's own error.
func (s *Server) handleSessionInitialize(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.authorizeSession(r, id); err != nil {
		s.jsonError(w, http.StatusUnauthorized, "launch token rejected", err)
		return
	}

	sess, err := s.sessions.Lookup(id)
	if err != nil {
		sess, err = s.startSession(r.Context(), id)
		if err != nil {
			if errors.Is(err, domain.ErrRegistrationNotFound) {
				s.jsonError(w, http.StatusNotFound, "registration not found", nil)
				return
			}
			s.jsonError(w, http.StatusInternalServerError, "failed to start session", err)
			return
		}
	}

	s.writeProtocol(w, sess, sess.Initialize(""))
}

func (s *Server) handleSessionGetValue(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	element := r.URL.Query().Get("element")
	s.writeProtocol(w, sess, sess.GetValue(element))
}

func (s *Server) handleSessionSetValue(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	var req struct {
		Element string `json:"element"`
		Value   string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	s.writeProtocol(w, sess, sess.SetValue(req.Element, req.Value))
}

func (s *Server) handleSessionCommit(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	s.writeProtocol(w, sess, sess.Commit(""))
}

func (s *Server) handleSessionTerminate(w http.ResponseWriter, r *http.Request) {
	sess, id, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	result := sess.Terminate("")

	// Terminate moves the lifecycle forward even when the persist handler
	// failed, so the detach follows the session state, not the result.
	if sess.Terminated() {
		s.sessions.Detach(id)
		sess.Close()
		slog.Info("runtime session finished", "registration_id", id, "result", result)
	}

	s.writeProtocol(w, sess, result)
}

func (s *Server) handleSessionError(w http.ResponseWriter, r *http.Request) {
	sess, _, ok := s.lookupSession(w, r)
	if !ok {
		return
	}

	code := sess.GetLastError()
	w.Header().Set("Cache-Control", "no-store")
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"errorCode":   code,
		"errorString": sess.GetErrorString(code),
		"diagnostic":  sess.GetDiagnostic(code),
	})
}

// startSession begins a new attempt and wires its session into the stores:
// every commit and the final terminate snapshot go to the registration
// service and are folded into the progress report, synchronously, so the
// protocol result tells content whether its data is actually saved.
func (s *Server) startSession(ctx context.Context, registrationID string) (*scorm.Session, error) {
	attempt, err := s.registrations.BeginAttempt(ctx, registrationID)
	if err != nil {
		return nil, err
	}
	reg := attempt.Registration

	var launchData string
	if pkgID, err := domain.NewPackageID(reg.PackageID); err == nil {
		if pkg, err := s.packages.Get(pkgID); err == nil {
			launchData = pkg.LaunchData
		}
	}

	attemptID := attempt.ID
	activity := progress.Activity{
		RegistrationID: reg.ID,
		PackageID:      reg.PackageID,
		LearnerID:      reg.LearnerID,
		LearnerName:    reg.LearnerName,
	}

	// The handler runs under the session lock, detached from any single
	// HTTP request; auto-saves arrive with no request at all.
	persist := func(snap scorm.Snapshot) error {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()

		if err := s.registrations.RecordSnapshot(ctx, reg.ID, attemptID, snap); err != nil {
			return err
		}
		if _, err := s.progress.Record(ctx, activity, snap); err != nil {
			return fmt.Errorf("fold report: %w", err)
		}
		return nil
	}

	sess, err := scorm.NewSession(scorm.Options{
		Version:          reg.RuntimeVersion(),
		LearnerID:        reg.LearnerID,
		LearnerName:      reg.LearnerName,
		SavedData:        attempt.SavedData,
		LaunchData:       launchData,
		AutoSaveInterval: s.cfg.AutoSaveInterval(),
		OnCommit:         scorm.CommitHandlerFunc(persist),
		OnTerminate:      scorm.TerminateHandlerFunc(persist),
		Debug:            s.cfg.Daemon.LogLevel == "debug",
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime session: %w", err)
	}

	if err := s.sessions.Attach(registrationID, sess); err != nil {
		sess.Close()
		return nil, err
	}

	slog.Info("runtime session started",
		"registration_id", reg.ID,
		"attempt", reg.Attempts,
		"version", reg.Version,
		"resumed", attempt.Resumed,
	)
	return sess, nil
}
