package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// mockPackages implements PackageSource for testing
type mockPackages struct {
	packages map[string]*domain.Package
}

func (m *mockPackages) Get(id domain.PackageID) (*domain.Package, error) {
	pkg, ok := m.packages[id.String()]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	return pkg, nil
}

func testPackage(id string, version domain.RuntimeVersion) *domain.Package {
	return &domain.Package{
		ID:         domain.MustPackageID(id),
		Title:      "Test Course",
		Version:    version,
		LaunchHref: "index.html",
	}
}

func setupTestService(t *testing.T) (*Service, *Store) {
	t.Helper()

	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	packages := &mockPackages{packages: map[string]*domain.Package{
		"golf-basics": testPackage("golf-basics", domain.Runtime12),
		"runtime-04":  testPackage("runtime-04", domain.Runtime2004),
	}}

	return NewService(store, packages), store
}

func createTestRegistration(t *testing.T, svc *Service, pkgID string) *Registration {
	t.Helper()
	reg, err := svc.Create(context.Background(), CreateRequest{
		PackageID:   pkgID,
		LearnerID:   "learner-001",
		LearnerName: "Doe, Jan",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return reg
}

func TestService_Create(t *testing.T) {
	svc, _ := setupTestService(t)

	reg := createTestRegistration(t, svc, "golf-basics")

	if reg.ID == "" {
		t.Error("registration has no ID")
	}
	if reg.Status != StatusCreated {
		t.Errorf("Status = %q, want created", reg.Status)
	}
	if reg.Version != domain.Runtime12 {
		t.Errorf("Version = %q, want 1.2", reg.Version)
	}
	if reg.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", reg.Attempts)
	}
}

func TestService_CreateUnknownPackage(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Create(context.Background(), CreateRequest{
		PackageID: "missing",
		LearnerID: "learner-001",
	})
	if !errors.Is(err, domain.ErrPackageNotFound) {
		t.Errorf("Create() error = %v, want ErrPackageNotFound", err)
	}
}

func TestService_CreateInvalidLearner(t *testing.T) {
	svc, _ := setupTestService(t)

	_, err := svc.Create(context.Background(), CreateRequest{
		PackageID: "golf-basics",
		LearnerID: "has space",
	})
	if !errors.Is(err, domain.ErrInvalidID) {
		t.Errorf("Create() error = %v, want ErrInvalidID", err)
	}
}

func TestService_GetAndList(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	created := createTestRegistration(t, svc, "golf-basics")
	createTestRegistration(t, svc, "runtime-04")

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.PackageID != "golf-basics" {
		t.Errorf("PackageID = %q", got.PackageID)
	}

	all, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() = %d registrations, want 2", len(all))
	}

	if _, err := svc.Get(ctx, "unknown"); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrRegistrationNotFound", err)
	}
}

func TestService_Delete(t *testing.T) {
	svc, store := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")

	if err := svc.Delete(ctx, reg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if store.Exists(reg.ID) {
		t.Error("registration still exists after Delete()")
	}
	if err := svc.Delete(ctx, reg.ID); !errors.Is(err, domain.ErrRegistrationNotFound) {
		t.Errorf("second Delete() error = %v, want ErrRegistrationNotFound", err)
	}
}

func TestService_BeginAttempt(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")

	attempt, err := svc.BeginAttempt(ctx, reg.ID)
	if err != nil {
		t.Fatalf("BeginAttempt() error = %v", err)
	}

	if attempt.ID.IsZero() {
		t.Error("attempt has no ID")
	}
	if attempt.Resumed {
		t.Error("first attempt must not resume")
	}
	if attempt.SavedData != nil {
		t.Errorf("first attempt SavedData = %v, want nil", attempt.SavedData)
	}
	if attempt.Registration.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", attempt.Registration.Attempts)
	}
	if attempt.Registration.Status != StatusInProgress {
		t.Errorf("Status = %q, want in-progress", attempt.Registration.Status)
	}
}

func TestService_RecordSnapshotCommit(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")
	attempt, _ := svc.BeginAttempt(ctx, reg.ID)

	snap := scorm.Snapshot{
		Version: scorm.V12,
		Data: map[string]string{
			"cmi.core.lesson_status": "incomplete",
			"cmi.suspend_data":       "page=3",
		},
		SessionTime: 90 * time.Second,
		TakenAt:     time.Now(),
	}
	if err := svc.RecordSnapshot(ctx, reg.ID, attempt.ID, snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	state, err := svc.SavedState(ctx, reg.ID)
	if err != nil {
		t.Fatalf("SavedState() error = %v", err)
	}
	if state.Data["cmi.suspend_data"] != "page=3" {
		t.Errorf("saved suspend_data = %q", state.Data["cmi.suspend_data"])
	}
	if state.Final {
		t.Error("commit snapshot marked final")
	}

	got, _ := svc.Get(ctx, reg.ID)
	if got.Status != StatusInProgress {
		t.Errorf("Status = %q, want in-progress after a commit", got.Status)
	}
	if got.TotalTime != 0 {
		t.Errorf("TotalTime = %v, want 0 before any terminate", got.TotalTime)
	}
}

func TestService_RecordSnapshotFinal(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")
	attempt, _ := svc.BeginAttempt(ctx, reg.ID)

	snap := scorm.Snapshot{
		Version: scorm.V12,
		Data: map[string]string{
			"cmi.core.lesson_status": "passed",
			"cmi.core.score.raw":     "92",
			"cmi.core.total_time":    "00:00:00",
		},
		SessionTime: 10 * time.Minute,
		TakenAt:     time.Now(),
		Final:       true,
	}
	if err := svc.RecordSnapshot(ctx, reg.ID, attempt.ID, snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	got, _ := svc.Get(ctx, reg.ID)
	if got.Status != StatusPassed {
		t.Errorf("Status = %q, want passed", got.Status)
	}
	if got.Score != "92" {
		t.Errorf("Score = %q, want 92", got.Score)
	}
	if got.TotalTime != 10*time.Minute {
		t.Errorf("TotalTime = %v, want 10m", got.TotalTime)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set on terminal status")
	}

	state, _ := svc.SavedState(ctx, reg.ID)
	if state.Data["cmi.core.total_time"] != "00:10:00" {
		t.Errorf("stored total_time = %q, want accumulated 00:10:00", state.Data["cmi.core.total_time"])
	}
}

func TestService_ResumeSuspendedAttempt(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")
	first, _ := svc.BeginAttempt(ctx, reg.ID)

	snap := scorm.Snapshot{
		Version: scorm.V12,
		Data: map[string]string{
			"cmi.core.lesson_status": "incomplete",
			"cmi.core.exit":          "suspend",
			"cmi.core.session_time":  "00:05:00",
			"cmi.suspend_data":       "page=7",
			"cmi.core.total_time":    "00:00:00",
		},
		SessionTime: 5 * time.Minute,
		TakenAt:     time.Now(),
		Final:       true,
	}
	if err := svc.RecordSnapshot(ctx, reg.ID, first.ID, snap); err != nil {
		t.Fatalf("RecordSnapshot() error = %v", err)
	}

	second, err := svc.BeginAttempt(ctx, reg.ID)
	if err != nil {
		t.Fatalf("BeginAttempt() error = %v", err)
	}

	if !second.Resumed {
		t.Fatal("suspended attempt must resume")
	}
	if second.SavedData["cmi.suspend_data"] != "page=7" {
		t.Errorf("resumed suspend_data = %q", second.SavedData["cmi.suspend_data"])
	}
	if _, ok := second.SavedData["cmi.core.exit"]; ok {
		t.Error("exit element must not carry into the next attempt")
	}
	if _, ok := second.SavedData["cmi.core.session_time"]; ok {
		t.Error("session_time must not carry into the next attempt")
	}
	if second.SavedData["cmi.core.total_time"] != "00:05:00" {
		t.Errorf("resumed total_time = %q, want accumulated 00:05:00", second.SavedData["cmi.core.total_time"])
	}
	if second.Registration.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", second.Registration.Attempts)
	}
}

func TestService_FreshAttemptAfterCompletion(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")
	first, _ := svc.BeginAttempt(ctx, reg.ID)

	snap := scorm.Snapshot{
		Version: scorm.V12,
		Data: map[string]string{
			"cmi.core.lesson_status": "completed",
			"cmi.suspend_data":       "should-not-carry",
			"cmi.core.total_time":    "00:00:00",
		},
		SessionTime: 3 * time.Minute,
		TakenAt:     time.Now(),
		Final:       true,
	}
	svc.RecordSnapshot(ctx, reg.ID, first.ID, snap)

	second, err := svc.BeginAttempt(ctx, reg.ID)
	if err != nil {
		t.Fatalf("BeginAttempt() error = %v", err)
	}

	if second.Resumed {
		t.Error("completed attempt must not resume")
	}
	if _, ok := second.SavedData["cmi.suspend_data"]; ok {
		t.Error("suspend_data must not carry into a fresh attempt")
	}
	if second.SavedData["cmi.core.total_time"] != "00:03:00" {
		t.Errorf("fresh attempt total_time = %q, want 00:03:00", second.SavedData["cmi.core.total_time"])
	}
}

func TestService_TerminalStatusSticks(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	reg := createTestRegistration(t, svc, "golf-basics")
	first, _ := svc.BeginAttempt(ctx, reg.ID)

	svc.RecordSnapshot(ctx, reg.ID, first.ID, scorm.Snapshot{
		Version: scorm.V12,
		Data:    map[string]string{"cmi.core.lesson_status": "passed", "cmi.core.score.raw": "95"},
		Final:   true,
		TakenAt: time.Now(),
	})

	// A review launch that ends incomplete must not reopen the rollup.
	second, _ := svc.BeginAttempt(ctx, reg.ID)
	svc.RecordSnapshot(ctx, reg.ID, second.ID, scorm.Snapshot{
		Version: scorm.V12,
		Data:    map[string]string{"cmi.core.lesson_status": "incomplete"},
		Final:   true,
		TakenAt: time.Now(),
	})

	got, _ := svc.Get(ctx, reg.ID)
	if got.Status != StatusPassed {
		t.Errorf("Status = %q, want passed to stick", got.Status)
	}
}

func TestService_EventsPublished(t *testing.T) {
	svc, _ := setupTestService(t)
	ctx := context.Background()

	dispatcher := domain.NewEventDispatcher()
	var types []string
	dispatcher.SubscribeAll(func(event domain.Event) {
		types = append(types, event.EventType())
	})
	svc.SetDispatcher(dispatcher)

	reg := createTestRegistration(t, svc, "runtime-04")
	attempt, _ := svc.BeginAttempt(ctx, reg.ID)

	svc.RecordSnapshot(ctx, reg.ID, attempt.ID, scorm.Snapshot{
		Version: scorm.V2004,
		Data:    map[string]string{"cmi.location": "p1"},
		TakenAt: time.Now(),
	})
	svc.RecordSnapshot(ctx, reg.ID, attempt.ID, scorm.Snapshot{
		Version: scorm.V2004,
		Data: map[string]string{
			"cmi.completion_status": "completed",
			"cmi.success_status":    "passed",
			"cmi.score.scaled":      "0.95",
		},
		Final:   true,
		TakenAt: time.Now(),
	})

	want := []string{
		"registration.created",
		"attempt.started",
		"attempt.committed",
		"attempt.terminated",
		"registration.completed",
	}
	if len(types) != len(want) {
		t.Fatalf("published events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, types[i], want[i])
		}
	}
}

func TestDeriveStatus(t *testing.T) {
	tests := []struct {
		name    string
		version scorm.Version
		data    map[string]string
		want    Status
	}{
		{"1.2 passed", scorm.V12, map[string]string{"cmi.core.lesson_status": "passed"}, StatusPassed},
		{"1.2 failed", scorm.V12, map[string]string{"cmi.core.lesson_status": "failed"}, StatusFailed},
		{"1.2 completed", scorm.V12, map[string]string{"cmi.core.lesson_status": "completed"}, StatusCompleted},
		{"1.2 incomplete", scorm.V12, map[string]string{"cmi.core.lesson_status": "incomplete"}, StatusInProgress},
		{"1.2 browsed", scorm.V12, map[string]string{"cmi.core.lesson_status": "browsed"}, StatusInProgress},
		{"1.2 empty", scorm.V12, map[string]string{}, StatusInProgress},
		{"2004 passed", scorm.V2004, map[string]string{"cmi.success_status": "passed", "cmi.completion_status": "completed"}, StatusPassed},
		{"2004 failed wins over completed", scorm.V2004, map[string]string{"cmi.success_status": "failed", "cmi.completion_status": "completed"}, StatusFailed},
		{"2004 completed unknown success", scorm.V2004, map[string]string{"cmi.success_status": "unknown", "cmi.completion_status": "completed"}, StatusCompleted},
		{"2004 incomplete", scorm.V2004, map[string]string{"cmi.completion_status": "incomplete"}, StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveStatus(tt.version, tt.data); got != tt.want {
				t.Errorf("DeriveStatus() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDeriveScore(t *testing.T) {
	tests := []struct {
		name    string
		version scorm.Version
		data    map[string]string
		want    string
	}{
		{"1.2 raw", scorm.V12, map[string]string{"cmi.core.score.raw": "88"}, "88"},
		{"1.2 missing", scorm.V12, map[string]string{}, ""},
		{"2004 scaled preferred", scorm.V2004, map[string]string{"cmi.score.scaled": "0.9", "cmi.score.raw": "90"}, "0.9"},
		{"2004 raw fallback", scorm.V2004, map[string]string{"cmi.score.raw": "90"}, "90"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveScore(tt.version, tt.data); got != tt.want {
				t.Errorf("DeriveScore() = %q, want %q", got, tt.want)
			}
		})
	}
}
