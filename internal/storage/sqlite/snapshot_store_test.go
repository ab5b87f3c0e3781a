package sqlite

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
	"github.com/felixgeelhaar/lectern/internal/registration"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

func testSavedState(regID string) *registration.SavedState {
	return &registration.SavedState{
		RegistrationID: regID,
		AttemptID:      "attempt-1",
		Version:        scorm.V2004,
		Data: map[string]string{
			"cmi.completion_status": "incomplete",
			"cmi.location":          "module-2",
			"cmi.suspend_data":      "bookmark=7;answers=abc",
		},
		SessionTime: 90 * time.Second,
		AutoSave:    true,
		TakenAt:     time.Now().UTC().Truncate(time.Second),
	}
}

func TestSnapshotStore_Save_Get(t *testing.T) {
	db := openTestDB(t)
	regStore := NewRegistrationStore(db)
	store := NewSnapshotStore(db)

	reg := testRegistration()
	if err := regStore.Save(reg); err != nil {
		t.Fatalf("Save registration: %v", err)
	}

	state := testSavedState(reg.ID)
	if err := store.Save(state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Get(reg.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.AttemptID != "attempt-1" {
		t.Errorf("AttemptID = %q", loaded.AttemptID)
	}
	if loaded.Version != scorm.V2004 {
		t.Errorf("Version = %q; want 2004", loaded.Version)
	}
	if loaded.Data["cmi.suspend_data"] != "bookmark=7;answers=abc" {
		t.Errorf("Data[suspend_data] = %q", loaded.Data["cmi.suspend_data"])
	}
	if loaded.SessionTime != 90*time.Second {
		t.Errorf("SessionTime = %v; want 90s", loaded.SessionTime)
	}
	if !loaded.AutoSave {
		t.Error("AutoSave flag lost")
	}
	if loaded.Final {
		t.Error("Final should be false")
	}
}

func TestSnapshotStore_Save_ReplacesRow(t *testing.T) {
	db := openTestDB(t)
	regStore := NewRegistrationStore(db)
	store := NewSnapshotStore(db)

	reg := testRegistration()
	regStore.Save(reg)

	state := testSavedState(reg.ID)
	store.Save(state)

	state.AttemptID = "attempt-2"
	state.Data["cmi.completion_status"] = "completed"
	state.Final = true
	if err := store.Save(state); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}

	loaded, err := store.Get(reg.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if loaded.AttemptID != "attempt-2" {
		t.Errorf("AttemptID = %q; want attempt-2", loaded.AttemptID)
	}
	if loaded.Data["cmi.completion_status"] != "completed" {
		t.Errorf("Data[completion_status] = %q", loaded.Data["cmi.completion_status"])
	}
	if !loaded.Final {
		t.Error("Final flag lost on upsert")
	}

	var count int
	db.QueryRow("SELECT COUNT(*) FROM cmi_snapshots WHERE registration_id = ?", reg.ID).Scan(&count)
	if count != 1 {
		t.Errorf("cmi_snapshots rows = %d after upsert; want 1", count)
	}
}

func TestSnapshotStore_Get_NotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewSnapshotStore(db)

	_, err := store.Get("nonexistent")
	if err != domain.ErrSnapshotNotFound {
		t.Errorf("Get() error = %v; want ErrSnapshotNotFound", err)
	}
}

func TestSnapshotStore_Delete(t *testing.T) {
	db := openTestDB(t)
	regStore := NewRegistrationStore(db)
	store := NewSnapshotStore(db)

	reg := testRegistration()
	regStore.Save(reg)
	store.Save(testSavedState(reg.ID))

	if err := store.Delete(reg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(reg.ID); err != domain.ErrSnapshotNotFound {
		t.Errorf("Get() after delete error = %v; want ErrSnapshotNotFound", err)
	}

	// Deleting a registration that never launched is not an error.
	if err := store.Delete("never-launched"); err != nil {
		t.Errorf("Delete() of missing row error = %v; want nil", err)
	}
}
