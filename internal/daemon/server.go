// Package daemon hosts the local lectern server: a localhost HTTP bridge
// the CLI and player frames talk to. It owns the package registry, the
// registration store, the progress reports and the live runtime sessions.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lectern/internal/auth"
	"github.com/felixgeelhaar/lectern/internal/config"
	"github.com/felixgeelhaar/lectern/internal/content"
	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/notify"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
	"github.com/felixgeelhaar/lectern/internal/storage/sqlite"
)

// Version is what the status endpoint reports
const Version = "0.1.0"

// Server is the lectern daemon HTTP server
type Server struct {
	cfg    *config.LocalConfig
	server *http.Server
	router *http.ServeMux

	// Services
	packages      *content.Registry
	registrations registration.RegistrationService
	progress      *progress.Service
	sessions      *scorm.Registry
	issuer        *auth.Issuer
	notifier      *notify.Notifier
	dispatcher    *domain.EventDispatcher

	db        *sqlite.DB // nil on the json backend
	startedAt time.Time
}

// ServerConfig holds configuration for creating a new server
type ServerConfig struct {
	Config      *config.LocalConfig
	ContentPath string // overrides the configured package directory
	DataPath    string // overrides the configured state location
}

// NewServer creates a new daemon server
func NewServer(ctx context.Context, cfg ServerConfig) (*Server, error) {
	s := &Server{
		cfg:        cfg.Config,
		router:     http.NewServeMux(),
		sessions:   scorm.NewRegistry(),
		dispatcher: domain.NewEventDispatcher(),
		startedAt:  time.Now(),
	}

	lecternDir, err := config.LecternDir()
	if err != nil {
		return nil, fmt.Errorf("locate lectern dir: %w", err)
	}

	// Package registry. A daemon with nothing installed yet has no
	// catalog file, which is not an error.
	contentPath := cfg.ContentPath
	if contentPath == "" {
		contentPath = cfg.Config.ContentPath(lecternDir)
	}
	s.packages = content.NewRegistry(content.NewLoader(contentPath))
	if err := s.packages.Load(); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load package catalog: %w", err)
		}
		slog.Info("no package catalog yet", "path", contentPath)
	}

	// Persistence backend
	dataPath := cfg.DataPath
	if dataPath == "" {
		dataPath = cfg.Config.StoragePath(lecternDir)
	}

	var regStore registration.RegistrationStore
	var reportStore progress.ReportStore
	switch cfg.Config.Storage.Backend {
	case "sqlite":
		db, err := sqlite.Open(dataPath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite store: %w", err)
		}
		s.db = db
		regStore = sqlite.NewRegistrationStore(db)
		reportStore = sqlite.NewReportStore(db)

		// The sqlite backend also journals domain events.
		events := sqlite.NewEventStore(db)
		s.dispatcher.SubscribeAll(func(event domain.Event) {
			if err := events.Record(event, aggregateOf(event)); err != nil {
				slog.Warn("record event", "type", event.EventType(), "error", err)
			}
		})
	default:
		store, err := registration.NewStore(dataPath)
		if err != nil {
			return nil, fmt.Errorf("create registration store: %w", err)
		}
		regStore = store

		reports, err := progress.NewStore(dataPath)
		if err != nil {
			return nil, fmt.Errorf("create report store: %w", err)
		}
		reportStore = reports
	}

	regService := registration.NewService(regStore, s.packages)
	regService.SetDispatcher(s.dispatcher)
	s.registrations = regService
	s.progress = progress.NewService(reportStore)

	// Launch tokens. Without a persisted secret the issuer signs with an
	// ephemeral key and tokens stop verifying across restarts.
	secret, err := config.LoadLaunchSecret()
	if err != nil {
		return nil, fmt.Errorf("load launch secret: %w", err)
	}
	s.issuer = auth.NewIssuer(secret)

	// Webhook fan-out. Delivery retries and breaks on its own; it runs off
	// the dispatcher's goroutine so a slow endpoint never stalls a commit.
	s.notifier = notify.New(notify.Config{
		URL:     cfg.Config.Webhook.URL,
		Timeout: time.Duration(cfg.Config.Webhook.TimeoutSeconds) * time.Second,
	})
	if s.notifier.Enabled() {
		s.dispatcher.SubscribeAll(func(event domain.Event) {
			go s.deliverWebhook(event)
		})
	}

	// Setup routes
	s.setupRoutes()

	// Create HTTP server with middleware chain
	addr := fmt.Sprintf("%s:%d", cfg.Config.Daemon.Bind, cfg.Config.Daemon.Port)
	handler := correlationIDMiddleware(recoveryMiddleware(loggingMiddleware(s.router)))
	s.server = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	// Health & status
	s.router.HandleFunc("GET /health", s.handleHealth)
	s.router.HandleFunc("GET /v1/status", s.handleStatus)

	// Config
	s.router.HandleFunc("GET /v1/config", s.handleGetConfig)
	s.router.HandleFunc("PUT /v1/config", s.handlePutConfig)

	// Packages
	s.router.HandleFunc("GET /v1/packages", s.handleListPackages)
	s.router.HandleFunc("POST /v1/packages", s.handleInstallPackage)
	s.router.HandleFunc("GET /v1/packages/{id}", s.handleGetPackage)

	// Registrations
	s.router.HandleFunc("POST /v1/registrations", s.handleCreateRegistration)
	s.router.HandleFunc("GET /v1/registrations", s.handleListRegistrations)
	s.router.HandleFunc("GET /v1/registrations/{id}", s.handleGetRegistration)
	s.router.HandleFunc("DELETE /v1/registrations/{id}", s.handleDeleteRegistration)
	s.router.HandleFunc("GET /v1/registrations/{id}/report", s.handleGetReport)
	s.router.HandleFunc("POST /v1/registrations/{id}/launch", s.handleLaunch)

	// Runtime protocol bridge. The player shim drives these with the
	// launch token; one live session per registration.
	s.router.HandleFunc("POST /v1/sessions/{id}/initialize", s.handleSessionInitialize)
	s.router.HandleFunc("GET /v1/sessions/{id}/value", s.handleSessionGetValue)
	s.router.HandleFunc("POST /v1/sessions/{id}/value", s.handleSessionSetValue)
	s.router.HandleFunc("POST /v1/sessions/{id}/commit", s.handleSessionCommit)
	s.router.HandleFunc("POST /v1/sessions/{id}/terminate", s.handleSessionTerminate)
	s.router.HandleFunc("GET /v1/sessions/{id}/error", s.handleSessionError)

	// Calendar lane layout
	s.router.HandleFunc("POST /v1/schedule/lanes", s.handleAssignLanes)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("starting lectern daemon",
		"addr", s.server.Addr,
		"packages", s.packages.Len(),
		"storage", s.storageBackend(),
	)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server. Live sessions are closed
// without running the protocol terminate path; a suspended attempt picks
// up from its last committed snapshot.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down daemon...")

	s.sessions.DetachAll()

	err := s.server.Shutdown(ctx)

	if s.db != nil {
		if cerr := s.db.Close(); cerr != nil {
			slog.Warn("failed to close sqlite store", "error", cerr)
		}
	}
	if nerr := s.notifier.Close(); nerr != nil {
		slog.Warn("failed to close notifier", "error", nerr)
	}

	return err
}

func (s *Server) storageBackend() string {
	if s.db != nil {
		return "sqlite"
	}
	return "json"
}

func (s *Server) deliverWebhook(event domain.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, event); err != nil {
		slog.Warn("webhook delivery failed", "event", event.EventType(), "error", err)
	}
}

// aggregateOf extracts the registration ID an event belongs to, or empty
// for events without one.
func aggregateOf(event domain.Event) string {
	if id := event.AggregateID(); id != uuid.Nil {
		return id.String()
	}
	return ""
}

// Health & status handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	regs, err := s.registrations.List(r.Context())
	if err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to read registrations", err)
		return
	}

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":         "running",
		"version":        Version,
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"storage":        s.storageBackend(),
		"packages":       s.packages.Len(),
		"registrations":  len(regs),
		"live_sessions":  s.sessions.Len(),
	})
}

// Config handlers

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	// The launch secret lives in secrets.yaml and never crosses this
	// endpoint.
	s.jsonResponse(w, http.StatusOK, s.cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	updated := *s.cfg
	if err := json.NewDecoder(r.Body).Decode(&updated); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := config.SaveLocalConfig(&updated); err != nil {
		s.jsonError(w, http.StatusInternalServerError, "failed to save config", err)
		return
	}

	// Daemon, storage and content settings bind at startup; the rest take
	// effect immediately.
	restart := updated.Daemon != s.cfg.Daemon ||
		updated.Storage != s.cfg.Storage ||
		updated.Content != s.cfg.Content
	s.cfg = &updated

	s.jsonResponse(w, http.StatusOK, map[string]interface{}{
		"saved":            true,
		"restart_required": restart,
	})
}

// Helper methods

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func (s *Server) jsonError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.jsonResponse(w, status, response)
}
