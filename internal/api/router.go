package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/felixgeelhaar/lectern/internal/api/handlers"
	"github.com/felixgeelhaar/lectern/internal/api/middleware"
)

// requestTimeout bounds every request. Nothing on this API streams; the
// slowest path is a snapshot ingest that touches Postgres twice.
const requestTimeout = 30 * time.Second

// Router wraps the HTTP multiplexer with middleware and handlers
type Router struct {
	mux   *http.ServeMux
	app   *App
	regs  *handlers.RegistrationHandler
	snaps *handlers.SnapshotHandler
	sched *handlers.ScheduleHandler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(app *App) (http.Handler, error) {
	r := &Router{
		mux: http.NewServeMux(),
		app: app,
	}

	// Initialize handlers
	r.regs = handlers.NewRegistrationHandler(app.Registrations, app.Journal, app.Reports, app.Notifier)
	r.snaps = handlers.NewSnapshotHandler(app.Registrations, app.Snapshots, app.Journal, app.Producer, app.Reports, app.Notifier)
	r.sched = handlers.NewScheduleHandler()

	// Register routes
	r.registerRoutes()

	// Build middleware chain
	handler := r.buildMiddlewareChain(r.mux, app)

	return handler, nil
}

func (r *Router) registerRoutes() {
	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /ready", r.handleReady)

	// Registrations
	r.mux.HandleFunc("GET /api/v1/registrations", r.secure(r.regs.List))
	r.mux.HandleFunc("POST /api/v1/registrations", r.secure(r.regs.Create))
	r.mux.HandleFunc("GET /api/v1/registrations/{id}", r.secure(r.regs.Get))
	r.mux.HandleFunc("DELETE /api/v1/registrations/{id}", r.secure(r.regs.Delete))
	r.mux.HandleFunc("GET /api/v1/registrations/{id}/events", r.secure(r.regs.Events))

	// Snapshot ingest and saved state
	r.mux.HandleFunc("POST /api/v1/registrations/{id}/snapshots", r.secure(r.snaps.Ingest))
	r.mux.HandleFunc("GET /api/v1/registrations/{id}/snapshots/latest", r.secure(r.snaps.Latest))

	// Progress reports
	r.mux.HandleFunc("GET /api/v1/registrations/{id}/report", r.secure(r.snaps.Report))
	r.mux.HandleFunc("GET /api/v1/reports/overview", r.secure(r.snaps.Overview))

	// Calendar lane layout
	r.mux.HandleFunc("POST /api/v1/schedule/lanes", r.secure(r.sched.AssignLanes))
}

func (r *Router) buildMiddlewareChain(handler http.Handler, app *App) http.Handler {
	// Apply middleware in reverse order (last applied = first executed).
	// Timeout sits closest to the handlers so Recovery still catches its
	// panics and Logger records the 504.
	handler = middleware.Timeout(requestTimeout)(handler)
	handler = middleware.Recovery(handler)
	handler = middleware.Logger(handler)

	// Apply rate limiting (skip in debug mode for easier development)
	if !app.Config.Debug {
		cfg := middleware.DefaultRateLimitConfig()
		if app.Config.RateLimitPerMinute > 0 {
			cfg.RequestsPerMinute = app.Config.RateLimitPerMinute
		}
		handler = middleware.RateLimitMiddleware(cfg)(handler)
	}

	handler = middleware.RequestID(handler)
	handler = middleware.CORS(handler)

	return handler
}

// secure wraps a handler with API key authentication. The key comes from
// X-API-Key or an Authorization bearer token. An empty configured key
// (debug setups only, config.Load enforces that) leaves the route open.
func (r *Router) secure(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if r.app.Config.APIKey == "" {
			next(w, req)
			return
		}

		key := req.Header.Get("X-API-Key")
		if key == "" {
			if auth := req.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(r.app.Config.APIKey)) != 1 {
			slog.Warn("rejected API key",
				"request_id", middleware.GetRequestID(req.Context()),
				"remote_addr", req.RemoteAddr,
			)
			Unauthorized(w, req, "invalid or missing API key")
			return
		}

		next(w, req)
	}
}

// Health check handlers
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	r.jsonResponse(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	checks := map[string]string{
		"postgres": "healthy",
		"journal":  "healthy",
		"rabbitmq": "healthy",
	}
	ready := true

	if err := r.app.Pool.Ping(req.Context()); err != nil {
		slog.Error("postgres health check failed",
			"error", err,
			"request_id", middleware.GetRequestID(req.Context()),
		)
		checks["postgres"] = "unhealthy"
		ready = false
	}

	if err := r.app.JournalDB.PingContext(req.Context()); err != nil {
		slog.Error("journal health check failed",
			"error", err,
			"request_id", middleware.GetRequestID(req.Context()),
		)
		checks["journal"] = "unhealthy"
		ready = false
	}

	if !r.app.Queue.IsConnected() {
		checks["rabbitmq"] = "unhealthy"
		ready = false
	}

	if !ready {
		r.jsonResponse(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"checks": checks,
		})
		return
	}

	r.jsonResponse(w, http.StatusOK, map[string]any{
		"status": "ready",
		"checks": checks,
	})
}

// Helper for JSON responses
func (r *Router) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}
