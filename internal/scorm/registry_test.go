package scorm

import (
	"errors"
	"testing"
	"time"
)

func TestRegistry(t *testing.T) {
	t.Run("attach and lookup", func(t *testing.T) {
		r := NewRegistry()
		s := newTestSession(t, Options{Version: V12})

		if err := r.Attach("att-1", s); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}
		got, err := r.Lookup("att-1")
		if err != nil {
			t.Fatalf("Lookup() error = %v", err)
		}
		if got != s {
			t.Error("Lookup() returned a different session")
		}
		if r.Len() != 1 {
			t.Errorf("Len() = %d, want 1", r.Len())
		}
	})

	t.Run("lookup of unknown key", func(t *testing.T) {
		r := NewRegistry()
		if _, err := r.Lookup("missing"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Lookup() error = %v, want ErrSessionNotFound", err)
		}
	})

	t.Run("live session under the same key refused", func(t *testing.T) {
		r := NewRegistry()
		first := newTestSession(t, Options{Version: V12})
		first.Initialize("")
		if err := r.Attach("att-1", first); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}

		second := newTestSession(t, Options{Version: V12})
		if err := r.Attach("att-1", second); !errors.Is(err, ErrSessionAttached) {
			t.Errorf("Attach() over live session error = %v, want ErrSessionAttached", err)
		}

		got, _ := r.Lookup("att-1")
		if got != first {
			t.Error("refused attach must leave the live session in place")
		}
	})

	t.Run("terminated session replaced", func(t *testing.T) {
		r := NewRegistry()
		first := newTestSession(t, Options{Version: V12})
		first.Initialize("")
		first.Terminate("")
		if err := r.Attach("att-1", first); err != nil {
			t.Fatalf("Attach() error = %v", err)
		}

		second := newTestSession(t, Options{Version: V12})
		if err := r.Attach("att-1", second); err != nil {
			t.Fatalf("Attach() replacing terminated session error = %v", err)
		}
		got, _ := r.Lookup("att-1")
		if got != second {
			t.Error("terminated session must give way to the new one")
		}
	})

	t.Run("detach removes the session", func(t *testing.T) {
		r := NewRegistry()
		s := newTestSession(t, Options{Version: V12})
		r.Attach("att-1", s)

		r.Detach("att-1")
		if _, err := r.Lookup("att-1"); !errors.Is(err, ErrSessionNotFound) {
			t.Errorf("Lookup() after Detach error = %v, want ErrSessionNotFound", err)
		}
		r.Detach("att-1") // second detach is a no-op
	})

	t.Run("detach all empties the registry", func(t *testing.T) {
		r := NewRegistry()
		live := newTestSession(t, Options{Version: V12, AutoSaveInterval: time.Hour})
		live.Initialize("")
		r.Attach("a", live)
		r.Attach("b", newTestSession(t, Options{Version: V2004}))

		r.DetachAll()
		if r.Len() != 0 {
			t.Errorf("Len() after DetachAll = %d, want 0", r.Len())
		}
		if live.ticker != nil {
			t.Error("DetachAll must stop a live session's auto-save ticker")
		}
	})

	t.Run("range visits every session", func(t *testing.T) {
		r := NewRegistry()
		r.Attach("a", newTestSession(t, Options{Version: V12}))
		r.Attach("b", newTestSession(t, Options{Version: V2004}))

		seen := map[string]bool{}
		r.Range(func(key string, s *Session) bool {
			seen[key] = true
			return true
		})
		if !seen["a"] || !seen["b"] {
			t.Errorf("Range() visited %v, want both a and b", seen)
		}
	})

	t.Run("range stops when fn returns false", func(t *testing.T) {
		r := NewRegistry()
		r.Attach("a", newTestSession(t, Options{Version: V12}))
		r.Attach("b", newTestSession(t, Options{Version: V12}))

		visits := 0
		r.Range(func(key string, s *Session) bool {
			visits++
			return false
		})
		if visits != 1 {
			t.Errorf("Range() visits = %d, want 1", visits)
		}
	})
}
