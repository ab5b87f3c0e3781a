package daemon

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

func testRegistration(id string) *registration.Registration {
	return &registration.Registration{
		ID:          id,
		PackageID:   "golf-sample",
		Version:     domain.Runtime12,
		LearnerID:   "learner-1",
		LearnerName: "Pat Learner",
		Status:      registration.StatusCreated,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
}

func TestListRegistrations_StoreError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.listFn = func(ctx context.Context) ([]*registration.Registration, error) {
		return nil, errors.New("store unavailable")
	}

	w := do(t, mocks.server, http.MethodGet, "/v1/registrations", "", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestGetRegistration_StoreError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.getFn = func(ctx context.Context, id string) (*registration.Registration, error) {
		return nil, errors.New("store unavailable")
	}

	w := do(t, mocks.server, http.MethodGet, "/v1/registrations/reg-1", "", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestCreateRegistration_StoreError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.createFn = func(ctx context.Context, req registration.CreateRequest) (*registration.Registration, error) {
		return nil, errors.New("store unavailable")
	}

	w := do(t, mocks.server, http.MethodPost, "/v1/registrations", `{"package_id": "p", "learner_id": "l"}`, "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestCreateRegistration_InvalidID(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.createFn = func(ctx context.Context, req registration.CreateRequest) (*registration.Registration, error) {
		return nil, domain.ErrInvalidID
	}

	w := do(t, mocks.server, http.MethodPost, "/v1/registrations", `{"package_id": "p", "learner_id": "l"}`, "")

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected status %d, got %d", http.StatusBadRequest, w.Code)
	}
}

func TestDeleteRegistration_StoreError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.deleteFn = func(ctx context.Context, id string) error {
		return errors.New("store unavailable")
	}

	w := do(t, mocks.server, http.MethodDelete, "/v1/registrations/reg-1", "", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestLaunch_StoreError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.getFn = func(ctx context.Context, id string) (*registration.Registration, error) {
		return nil, errors.New("store unavailable")
	}

	w := do(t, mocks.server, http.MethodPost, "/v1/registrations/reg-1/launch", "", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestLaunch_PackageGone(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.getFn = func(ctx context.Context, id string) (*registration.Registration, error) {
		return testRegistration(id), nil
	}

	// The registry is empty, so the registration points at a package that
	// is no longer installed.
	w := do(t, mocks.server, http.MethodPost, "/v1/registrations/reg-1/launch", "", "")

	if w.Code != http.StatusConflict {
		t.Errorf("expected status %d, got %d", http.StatusConflict, w.Code)
	}
}

func TestInitialize_BeginAttemptError(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.beginAttemptFn = func(ctx context.Context, id string) (*registration.Attempt, error) {
		return nil, errors.New("store unavailable")
	}

	token := mocks.server.issuer.Issue("reg-1", time.Minute)
	w := do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/initialize", "", token)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}

func TestInitialize_RegistrationGone(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.beginAttemptFn = func(ctx context.Context, id string) (*registration.Attempt, error) {
		return nil, domain.ErrRegistrationNotFound
	}

	token := mocks.server.issuer.Issue("reg-1", time.Minute)
	w := do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/initialize", "", token)

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
}

// A failing persist keeps the protocol contract: commit answers "false"
// with the general exception instead of an HTTP error, and the session
// stays live so content can retry.
func TestCommit_PersistFailure(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.beginAttemptFn = func(ctx context.Context, id string) (*registration.Attempt, error) {
		return &registration.Attempt{
			ID:           domain.GenerateAttemptID(),
			Registration: testRegistration(id),
		}, nil
	}
	mocks.registrations.recordSnapshotFn = func(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error {
		return errors.New("disk full")
	}

	token := mocks.server.issuer.Issue("reg-1", time.Minute)

	w := do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/initialize", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize: status %d: %s", w.Code, w.Body.String())
	}

	w = do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/value", `{"element": "cmi.core.lesson_status", "value": "incomplete"}`, token)
	if w.Code != http.StatusOK {
		t.Fatalf("set value: status %d", w.Code)
	}

	w = do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/commit", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("commit: status %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["result"] != "false" {
		t.Errorf("result = %v, want false", resp["result"])
	}
	if resp["errorCode"] != "101" {
		t.Errorf("errorCode = %v, want 101", resp["errorCode"])
	}

	if n := mocks.server.sessions.Len(); n != 1 {
		t.Errorf("live sessions = %d, want 1", n)
	}
}

// Terminate concludes the attempt even when the final persist fails; the
// bridge must still detach the session.
func TestTerminate_PersistFailureDetaches(t *testing.T) {
	mocks := newServerWithMocks()
	mocks.registrations.beginAttemptFn = func(ctx context.Context, id string) (*registration.Attempt, error) {
		return &registration.Attempt{
			ID:           domain.GenerateAttemptID(),
			Registration: testRegistration(id),
		}, nil
	}
	mocks.registrations.recordSnapshotFn = func(ctx context.Context, registrationID string, attemptID domain.AttemptID, snap scorm.Snapshot) error {
		return errors.New("disk full")
	}

	token := mocks.server.issuer.Issue("reg-1", time.Minute)

	w := do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/initialize", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("initialize: status %d", w.Code)
	}

	w = do(t, mocks.server, http.MethodPost, "/v1/sessions/reg-1/terminate", "", token)
	if w.Code != http.StatusOK {
		t.Fatalf("terminate: status %d", w.Code)
	}
	resp := decodeBody(t, w)
	if resp["result"] != "false" {
		t.Errorf("result = %v, want false", resp["result"])
	}

	if n := mocks.server.sessions.Len(); n != 0 {
		t.Errorf("live sessions after terminate = %d, want 0", n)
	}
}

func TestGetReport_StoreError(t *testing.T) {
	mocks := newServerWithMocks()

	w := do(t, mocks.server, http.MethodGet, "/v1/registrations/reg-1/report", "", "")

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
}
