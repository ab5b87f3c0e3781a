package daemon

import (
	"context"
	"errors"
	"net/http"

	"github.com/felixgeelhaar/lectern/internal/auth"
	"github.com/felixgeelhaar/lectern/internal/config"
	"github.com/felixgeelhaar/lectern/internal/content"
	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

var errNotImplemented = errors.New("mock: not implemented")

// mockRegistrationService implements registration.RegistrationService for
// isolated handler testing
type mockRegistrationService struct {
	createFn         func(ctx context.Context, req registration.CreateRequest) (*registration.Registration, error)
	getFn            func(ctx context.Context, id string) (*registration.Registration, error)
	listFn           func(ctx context.Context) ([]*registration.Registration, error)
	deleteFn         func(ctx context.Context, id string) error
	beginAttemptFn   func(ctx context.Context, id string) (*registration.Attempt, error)
	recordSnapshotFn func(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error
	savedStateFn     func(ctx context.Context, registrationID string) (*registration.SavedState, error)
}

func (m *mockRegistrationService) Create(ctx context.Context, req registration.CreateRequest) (*registration.Registration, error) {
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockRegistrationService) Get(ctx context.Context, id string) (*registration.Registration, error) {
	if m.getFn != nil {
		return m.getFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockRegistrationService) List(ctx context.Context) ([]*registration.Registration, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, errNotImplemented
}

func (m *mockRegistrationService) Delete(ctx context.Context, id string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return errNotImplemented
}

func (m *mockRegistrationService) BeginAttempt(ctx context.Context, id string) (*registration.Attempt, error) {
	if m.beginAttemptFn != nil {
		return m.beginAttemptFn(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockRegistrationService) RecordSnapshot(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error {
	if m.recordSnapshotFn != nil {
		return m.recordSnapshotFn(ctx, registrationID, attemptID, snap)
	}
	return errNotImplemented
}

func (m *mockRegistrationService) SavedState(ctx context.Context, registrationID string) (*registration.SavedState, error) {
	if m.savedStateFn != nil {
		return m.savedStateFn(ctx, registrationID)
	}
	return nil, errNotImplemented
}

var _ registration.RegistrationService = (*mockRegistrationService)(nil)

// failingReportStore fails every operation, for report error paths
type failingReportStore struct{}

func (failingReportStore) Save(*progress.Report) error { return errNotImplemented }
func (failingReportStore) Get(string) (*progress.Report, error) {
	return nil, errNotImplemented
}
func (failingReportStore) List() ([]*progress.Report, error) { return nil, errNotImplemented }
func (failingReportStore) Delete(string) error               { return errNotImplemented }

var _ progress.ReportStore = failingReportStore{}

// serverWithMocks bundles a Server with its injected mocks
type serverWithMocks struct {
	server        *Server
	registrations *mockRegistrationService
}

// newServerWithMocks creates a minimal Server with a mock registration
// service. The other collaborators are cheap real instances; only the
// persistence seam needs faking to reach the error paths.
func newServerWithMocks() *serverWithMocks {
	registrations := &mockRegistrationService{}

	srv := &Server{
		cfg:           config.DefaultLocalConfig(),
		router:        http.NewServeMux(),
		packages:      content.NewRegistry(content.NewLoader("")),
		registrations: registrations,
		progress:      progress.NewService(failingReportStore{}),
		sessions:      scorm.NewRegistry(),
		issuer:        auth.NewIssuer([]byte("test-secret")),
		dispatcher:    domain.NewEventDispatcher(),
	}
	srv.setupRoutes()

	return &serverWithMocks{
		server:        srv,
		registrations: registrations,
	}
}
