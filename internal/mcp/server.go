package mcp

import (
	"context"
	"fmt"
	"time"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/felixgeelhaar/lectern/internal/content"
	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/schedule"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Server wraps the MCP server with lectern functionality
type Server struct {
	mcpServer     *server.Server
	registrations registration.RegistrationService
	packages      *content.Registry
	progress      *progress.Service
}

// Config contains configuration for the MCP server
type Config struct {
	Registrations registration.RegistrationService
	Packages      *content.Registry
	Progress      *progress.Service
}

// NewServer creates a new MCP server for lectern
func NewServer(cfg Config) *Server {
	s := &Server{
		registrations: cfg.Registrations,
		packages:      cfg.Packages,
		progress:      cfg.Progress,
	}

	// Create MCP server
	s.mcpServer = server.New(server.Info{
		Name:    "lectern",
		Version: "0.1.0",
	}, server.WithInstructions(`
Lectern is a local SCORM runtime and registration manager.
It installs content packages, enrolls learners and folds committed
CMI snapshots into per-registration progress reports.

Available tools:
- lectern_packages: List installed content packages
- lectern_register: Enroll a learner in a package
- lectern_registrations: List registrations and their outcomes
- lectern_attempt: Begin an attempt and fetch its resume state
- lectern_commit: Commit a CMI snapshot (interim or final)
- lectern_report: Get the progress report for one registration
- lectern_overview: Aggregate progress across all registrations
- lectern_lanes: Lay calendar events out into non-overlapping lanes

Snapshots use raw CMI element names (cmi.core.* for 1.2 packages,
cmi.* for 2004); the runtime version comes from the registration's
package. A final commit ends the attempt and rolls its outcome into
the registration.
`))

	// Register tools
	s.registerTools()

	return s
}

// registerTools registers all lectern MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("lectern_packages").
		Description("List installed SCORM content packages.").
		Handler(s.handlePackages)

	s.mcpServer.Tool("lectern_register").
		Description("Enroll a learner in an installed package.").
		Handler(s.handleRegister)

	s.mcpServer.Tool("lectern_registrations").
		Description("List registrations with their status, score and attempt counts.").
		Handler(s.handleRegistrations)

	s.mcpServer.Tool("lectern_attempt").
		Description("Begin an attempt for a registration and return the saved state it resumes from.").
		Handler(s.handleAttempt)

	s.mcpServer.Tool("lectern_commit").
		Description("Commit a CMI snapshot for an attempt. Set final to end the attempt.").
		Handler(s.handleCommit)

	s.mcpServer.Tool("lectern_report").
		Description("Get the accumulated progress report for a registration.").
		Handler(s.handleReport)

	s.mcpServer.Tool("lectern_overview").
		Description("Aggregate progress statistics across all registrations.").
		Handler(s.handleOverview)

	s.mcpServer.Tool("lectern_lanes").
		Description("Assign calendar lanes to date-span events so overlapping bars never stack.").
		Handler(s.handleLanes)
}

// Input/Output types for tools

type PackagesInput struct{}

type PackageInfo struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Version    string `json:"version"`
	LaunchHref string `json:"launch_href"`
}

type PackagesOutput struct {
	Packages []PackageInfo `json:"packages"`
	Total    int           `json:"total"`
}

type RegisterInput struct {
	PackageID   string `json:"package_id" jsonschema:"description=ID of an installed package"`
	LearnerID   string `json:"learner_id" jsonschema:"description=Learner identifier (no spaces or commas)"`
	LearnerName string `json:"learner_name,omitempty" jsonschema:"description=Display name reported to content"`
}

type RegisterOutput struct {
	RegistrationID string `json:"registration_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
}

type RegistrationsInput struct {
	LearnerID string `json:"learner_id,omitempty" jsonschema:"description=Only registrations for this learner"`
	PackageID string `json:"package_id,omitempty" jsonschema:"description=Only registrations for this package"`
}

type RegistrationInfo struct {
	RegistrationID   string  `json:"registration_id"`
	PackageID        string  `json:"package_id"`
	LearnerID        string  `json:"learner_id"`
	LearnerName      string  `json:"learner_name,omitempty"`
	Status           string  `json:"status"`
	Score            string  `json:"score,omitempty"`
	Attempts         int     `json:"attempts"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
}

type RegistrationsOutput struct {
	Registrations []RegistrationInfo `json:"registrations"`
	Total         int                `json:"total"`
}

type AttemptInput struct {
	RegistrationID string `json:"registration_id" jsonschema:"description=Registration ID from lectern_register"`
}

type AttemptOutput struct {
	AttemptID string            `json:"attempt_id"`
	Resumed   bool              `json:"resumed"`
	SavedData map[string]string `json:"saved_data,omitempty"`
	Message   string            `json:"message"`
}

type CommitInput struct {
	RegistrationID     string            `json:"registration_id" jsonschema:"description=Registration ID from lectern_register"`
	AttemptID          string            `json:"attempt_id,omitempty" jsonschema:"description=Attempt ID from lectern_attempt"`
	Data               map[string]string `json:"data" jsonschema:"description=CMI elements as element name -> value map"`
	SessionTimeSeconds float64           `json:"session_time_seconds,omitempty" jsonschema:"description=Seconds spent in the attempt since launch"`
	Final              bool              `json:"final,omitempty" jsonschema:"description=End the attempt and roll its outcome up"`
}

type CommitOutput struct {
	Status           string  `json:"status"`
	Score            string  `json:"score,omitempty"`
	Attempts         int     `json:"attempts"`
	Commits          int     `json:"commits"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	Message          string  `json:"message"`
}

type ReportInput struct {
	RegistrationID string `json:"registration_id" jsonschema:"description=Registration ID from lectern_register"`
}

type ReportOutput struct {
	RegistrationID   string  `json:"registration_id"`
	Status           string  `json:"status"`
	Attempts         int     `json:"attempts"`
	Commits          int     `json:"commits"`
	BestScore        string  `json:"best_score,omitempty"`
	LatestScore      string  `json:"latest_score,omitempty"`
	TotalTimeSeconds float64 `json:"total_time_seconds"`
	Location         string  `json:"location,omitempty"`
}

type OverviewInput struct{}

type OverviewOutput struct {
	Registrations  int     `json:"registrations"`
	Learners       int     `json:"learners"`
	InProgress     int     `json:"in_progress"`
	Completed      int     `json:"completed"`
	Passed         int     `json:"passed"`
	Failed         int     `json:"failed"`
	CompletionRate float64 `json:"completion_rate"`
	TotalTime      string  `json:"total_time"`
}

type LanesInput struct {
	Events []schedule.Event `json:"events" jsonschema:"description=Date-span events with id, title, start and end timestamps"`
}

type LanesOutput struct {
	LaneCount  int               `json:"lane_count"`
	Placements []schedule.Placed `json:"placements"`
	Dropped    []string          `json:"dropped,omitempty"`
}

// Tool handlers

func (s *Server) handlePackages(ctx context.Context, input PackagesInput) (PackagesOutput, error) {
	pkgs := s.packages.List()

	out := PackagesOutput{Total: len(pkgs)}
	for _, pkg := range pkgs {
		out.Packages = append(out.Packages, PackageInfo{
			ID:         pkg.ID.String(),
			Title:      pkg.Title,
			Version:    string(pkg.Version),
			LaunchHref: pkg.LaunchHref,
		})
	}
	return out, nil
}

func (s *Server) handleRegister(ctx context.Context, input RegisterInput) (RegisterOutput, error) {
	reg, err := s.registrations.Create(ctx, registration.CreateRequest{
		PackageID:   input.PackageID,
		LearnerID:   input.LearnerID,
		LearnerName: input.LearnerName,
	})
	if err != nil {
		return RegisterOutput{}, fmt.Errorf("failed to create registration: %w", err)
	}

	return RegisterOutput{
		RegistrationID: reg.ID,
		Status:         string(reg.Status),
		Message:        fmt.Sprintf("Registered %s for %s (SCORM %s)", reg.LearnerID, reg.PackageID, reg.Version),
	}, nil
}

func (s *Server) handleRegistrations(ctx context.Context, input RegistrationsInput) (RegistrationsOutput, error) {
	regs, err := s.registrations.List(ctx)
	if err != nil {
		return RegistrationsOutput{}, fmt.Errorf("failed to list registrations: %w", err)
	}

	var out RegistrationsOutput
	for _, reg := range regs {
		if input.LearnerID != "" && reg.LearnerID != input.LearnerID {
			continue
		}
		if input.PackageID != "" && reg.PackageID != input.PackageID {
			continue
		}
		out.Registrations = append(out.Registrations, RegistrationInfo{
			RegistrationID:   reg.ID,
			PackageID:        reg.PackageID,
			LearnerID:        reg.LearnerID,
			LearnerName:      reg.LearnerName,
			Status:           string(reg.Status),
			Score:            reg.Score,
			Attempts:         reg.Attempts,
			TotalTimeSeconds: reg.TotalTime.Seconds(),
		})
	}
	out.Total = len(out.Registrations)
	return out, nil
}

func (s *Server) handleAttempt(ctx context.Context, input AttemptInput) (AttemptOutput, error) {
	attempt, err := s.registrations.BeginAttempt(ctx, input.RegistrationID)
	if err != nil {
		return AttemptOutput{}, fmt.Errorf("failed to begin attempt: %w", err)
	}

	msg := fmt.Sprintf("Attempt %d started fresh", attempt.Registration.Attempts)
	if attempt.Resumed {
		msg = fmt.Sprintf("Attempt %d resumed from saved state (%d elements)",
			attempt.Registration.Attempts, len(attempt.SavedData))
	}

	return AttemptOutput{
		AttemptID: attempt.ID.String(),
		Resumed:   attempt.Resumed,
		SavedData: attempt.SavedData,
		Message:   msg,
	}, nil
}

func (s *Server) handleCommit(ctx context.Context, input CommitInput) (CommitOutput, error) {
	if len(input.Data) == 0 {
		return CommitOutput{}, fmt.Errorf("data is required")
	}

	attemptID := domain.GenerateAttemptID()
	if input.AttemptID != "" {
		parsed, err := domain.NewAttemptIDFromString(input.AttemptID)
		if err != nil {
			return CommitOutput{}, fmt.Errorf("invalid attempt_id: %w", err)
		}
		attemptID = parsed
	}

	reg, err := s.registrations.Get(ctx, input.RegistrationID)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("registration not found: %w", err)
	}

	snap := scorm.Snapshot{
		Version:     reg.RuntimeVersion(),
		Data:        input.Data,
		SessionTime: time.Duration(input.SessionTimeSeconds * float64(time.Second)),
		TakenAt:     time.Now(),
		Final:       input.Final,
	}

	if err := s.registrations.RecordSnapshot(ctx, input.RegistrationID, attemptID, snap); err != nil {
		return CommitOutput{}, fmt.Errorf("failed to record snapshot: %w", err)
	}

	report, err := s.progress.Record(ctx, progress.Activity{
		RegistrationID: reg.ID,
		PackageID:      reg.PackageID,
		LearnerID:      reg.LearnerID,
		LearnerName:    reg.LearnerName,
	}, snap)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("failed to fold report: %w", err)
	}

	// Re-read for the post-fold rollup state
	reg, err = s.registrations.Get(ctx, input.RegistrationID)
	if err != nil {
		return CommitOutput{}, fmt.Errorf("registration not found: %w", err)
	}

	msg := fmt.Sprintf("Snapshot committed (%d elements)", len(input.Data))
	if input.Final {
		msg = fmt.Sprintf("Attempt finished: %s", reg.Status)
		if reg.Score != "" {
			msg += fmt.Sprintf(", score %s", reg.Score)
		}
	}

	return CommitOutput{
		Status:           string(reg.Status),
		Score:            reg.Score,
		Attempts:         report.Attempts,
		Commits:          report.Commits,
		TotalTimeSeconds: reg.TotalTime.Seconds(),
		Message:          msg,
	}, nil
}

func (s *Server) handleReport(ctx context.Context, input ReportInput) (ReportOutput, error) {
	report, err := s.progress.Report(ctx, input.RegistrationID)
	if err != nil {
		return ReportOutput{}, fmt.Errorf("report not found: %w", err)
	}

	return ReportOutput{
		RegistrationID:   report.RegistrationID,
		Status:           report.Status,
		Attempts:         report.Attempts,
		Commits:          report.Commits,
		BestScore:        report.BestScore,
		LatestScore:      report.LatestScore,
		TotalTimeSeconds: report.TotalTimeSeconds,
		Location:         report.Location,
	}, nil
}

func (s *Server) handleOverview(ctx context.Context, input OverviewInput) (OverviewOutput, error) {
	overview, err := s.progress.GetOverview(ctx)
	if err != nil {
		return OverviewOutput{}, fmt.Errorf("failed to aggregate reports: %w", err)
	}

	return OverviewOutput{
		Registrations:  overview.Registrations,
		Learners:       overview.Learners,
		InProgress:     overview.InProgress,
		Completed:      overview.Completed,
		Passed:         overview.Passed,
		Failed:         overview.Failed,
		CompletionRate: overview.CompletionRate,
		TotalTime:      overview.TotalTime,
	}, nil
}

func (s *Server) handleLanes(ctx context.Context, input LanesInput) (LanesOutput, error) {
	lanes := schedule.AssignLanes(input.Events)
	placements := schedule.Flatten(lanes)

	placed := make(map[string]bool, len(placements))
	for _, p := range placements {
		placed[p.ID] = true
	}
	var dropped []string
	for _, ev := range input.Events {
		if !placed[ev.ID] {
			dropped = append(dropped, ev.ID)
		}
	}

	return LanesOutput{
		LaneCount:  len(lanes),
		Placements: placements,
		Dropped:    dropped,
	}, nil
}

// ServeStdio starts the MCP server on stdio (for agent integration)
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}
