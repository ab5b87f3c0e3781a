package domain

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestBaseEvent(t *testing.T) {
	aggregateID := uuid.New()
	event := NewBaseEvent("test.created", "TestAggregate", aggregateID)

	t.Run("EventID is unique", func(t *testing.T) {
		if event.EventID() == uuid.Nil {
			t.Error("EventID() should not be nil")
		}
	})

	t.Run("EventType", func(t *testing.T) {
		if event.EventType() != "test.created" {
			t.Errorf("EventType() = %q, want test.created", event.EventType())
		}
	})

	t.Run("OccurredAt is set", func(t *testing.T) {
		if event.OccurredAt().IsZero() {
			t.Error("OccurredAt() should not be zero")
		}
		if event.OccurredAt().After(time.Now()) {
			t.Error("OccurredAt() should not be in the future")
		}
	})

	t.Run("AggregateID", func(t *testing.T) {
		if event.AggregateID() != aggregateID {
			t.Errorf("AggregateID() = %v, want %v", event.AggregateID(), aggregateID)
		}
	})

	t.Run("AggregateType", func(t *testing.T) {
		if event.AggregateType() != "TestAggregate" {
			t.Errorf("AggregateType() = %q, want TestAggregate", event.AggregateType())
		}
	})
}

func TestEventDispatcher(t *testing.T) {
	t.Run("Subscribe and Publish", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		var received Event

		dispatcher.Subscribe("test.event", func(e Event) {
			received = e
		})

		event := NewBaseEvent("test.event", "Test", uuid.New())
		dispatcher.Publish(event)

		if received == nil {
			t.Fatal("Event handler was not called")
		}
		if received.EventType() != "test.event" {
			t.Errorf("Received event type = %q, want test.event", received.EventType())
		}
	})

	t.Run("Multiple handlers for same event type", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		callCount := 0
		mu := sync.Mutex{}

		for i := 0; i < 3; i++ {
			dispatcher.Subscribe("test.event", func(e Event) {
				mu.Lock()
				callCount++
				mu.Unlock()
			})
		}

		event := NewBaseEvent("test.event", "Test", uuid.New())
		dispatcher.Publish(event)

		if callCount != 3 {
			t.Errorf("Handler call count = %d, want 3", callCount)
		}
	})

	t.Run("SubscribeAll receives all events", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		var receivedEvents []Event
		mu := sync.Mutex{}

		dispatcher.SubscribeAll(func(e Event) {
			mu.Lock()
			receivedEvents = append(receivedEvents, e)
			mu.Unlock()
		})

		event1 := NewBaseEvent("event.type1", "Test", uuid.New())
		event2 := NewBaseEvent("event.type2", "Test", uuid.New())
		dispatcher.Publish(event1)
		dispatcher.Publish(event2)

		if len(receivedEvents) != 2 {
			t.Errorf("Received events count = %d, want 2", len(receivedEvents))
		}
	})

	t.Run("PublishAll dispatches multiple events", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		callCount := 0
		mu := sync.Mutex{}

		dispatcher.SubscribeAll(func(e Event) {
			mu.Lock()
			callCount++
			mu.Unlock()
		})

		events := []Event{
			NewBaseEvent("event.1", "Test", uuid.New()),
			NewBaseEvent("event.2", "Test", uuid.New()),
			NewBaseEvent("event.3", "Test", uuid.New()),
		}
		dispatcher.PublishAll(events)

		if callCount != 3 {
			t.Errorf("Handler call count = %d, want 3", callCount)
		}
	})

	t.Run("Unsubscribed events are ignored", func(t *testing.T) {
		dispatcher := NewEventDispatcher()
		called := false

		dispatcher.Subscribe("other.event", func(e Event) {
			called = true
		})

		event := NewBaseEvent("test.event", "Test", uuid.New())
		dispatcher.Publish(event)

		if called {
			t.Error("Handler should not be called for unsubscribed event type")
		}
	})
}

func TestAggregateRoot(t *testing.T) {
	t.Run("RecordEvent and RecordedEvents", func(t *testing.T) {
		root := &AggregateRoot{}
		event := NewBaseEvent("test.event", "Test", uuid.New())

		root.RecordEvent(event)

		events := root.RecordedEvents()
		if len(events) != 1 {
			t.Fatalf("RecordedEvents() len = %d, want 1", len(events))
		}
		if events[0].EventType() != "test.event" {
			t.Errorf("Event type = %q, want test.event", events[0].EventType())
		}
	})

	t.Run("ClearEvents", func(t *testing.T) {
		root := &AggregateRoot{}
		root.RecordEvent(NewBaseEvent("event.1", "Test", uuid.New()))
		root.RecordEvent(NewBaseEvent("event.2", "Test", uuid.New()))

		if len(root.RecordedEvents()) != 2 {
			t.Fatal("Should have 2 events before clear")
		}

		root.ClearEvents()

		if len(root.RecordedEvents()) != 0 {
			t.Errorf("RecordedEvents() len = %d, want 0 after clear", len(root.RecordedEvents()))
		}
	})

	t.Run("Multiple events recorded in order", func(t *testing.T) {
		root := &AggregateRoot{}
		root.RecordEvent(NewBaseEvent("event.first", "Test", uuid.New()))
		root.RecordEvent(NewBaseEvent("event.second", "Test", uuid.New()))
		root.RecordEvent(NewBaseEvent("event.third", "Test", uuid.New()))

		events := root.RecordedEvents()
		if len(events) != 3 {
			t.Fatalf("RecordedEvents() len = %d, want 3", len(events))
		}
		if events[0].EventType() != "event.first" {
			t.Errorf("First event type = %q, want event.first", events[0].EventType())
		}
		if events[2].EventType() != "event.third" {
			t.Errorf("Third event type = %q, want event.third", events[2].EventType())
		}
	})
}

func TestRegistrationEvents(t *testing.T) {
	registrationID := uuid.New()

	t.Run("RegistrationCreatedEvent", func(t *testing.T) {
		event := NewRegistrationCreatedEvent(registrationID, "learner-001", "golf-sample-12")

		if event.EventType() != "registration.created" {
			t.Errorf("EventType() = %q, want registration.created", event.EventType())
		}
		if event.AggregateType() != "Registration" {
			t.Errorf("AggregateType() = %q, want Registration", event.AggregateType())
		}
		if event.AggregateID() != registrationID {
			t.Errorf("AggregateID() = %v, want %v", event.AggregateID(), registrationID)
		}
		if event.LearnerID != "learner-001" {
			t.Errorf("LearnerID = %q, want learner-001", event.LearnerID)
		}
		if event.PackageID != "golf-sample-12" {
			t.Errorf("PackageID = %q, want golf-sample-12", event.PackageID)
		}
	})

	t.Run("RegistrationCompletedEvent", func(t *testing.T) {
		event := NewRegistrationCompletedEvent(registrationID, "learner-001", "golf-sample-12", "passed", "85")

		if event.EventType() != "registration.completed" {
			t.Errorf("EventType() = %q, want registration.completed", event.EventType())
		}
		if event.Status != "passed" {
			t.Errorf("Status = %q, want passed", event.Status)
		}
		if event.Score != "85" {
			t.Errorf("Score = %q, want 85", event.Score)
		}
	})
}

func TestAttemptEvents(t *testing.T) {
	attemptID := uuid.New()
	registrationID := uuid.New()

	t.Run("AttemptStartedEvent", func(t *testing.T) {
		event := NewAttemptStartedEvent(attemptID, registrationID, "golf-sample-12", "2004", true)

		if event.EventType() != "attempt.started" {
			t.Errorf("EventType() = %q, want attempt.started", event.EventType())
		}
		if event.AggregateType() != "Attempt" {
			t.Errorf("AggregateType() = %q, want Attempt", event.AggregateType())
		}
		if event.RegistrationID != registrationID {
			t.Errorf("RegistrationID = %v, want %v", event.RegistrationID, registrationID)
		}
		if event.Version != "2004" {
			t.Errorf("Version = %q, want 2004", event.Version)
		}
		if !event.Resumed {
			t.Error("Resumed should be true")
		}
	})

	t.Run("AttemptCommittedEvent", func(t *testing.T) {
		event := NewAttemptCommittedEvent(attemptID, registrationID, 12, true)

		if event.EventType() != "attempt.committed" {
			t.Errorf("EventType() = %q, want attempt.committed", event.EventType())
		}
		if event.ElementCount != 12 {
			t.Errorf("ElementCount = %d, want 12", event.ElementCount)
		}
		if !event.AutoSave {
			t.Error("AutoSave should be true")
		}
	})

	t.Run("AttemptTerminatedEvent", func(t *testing.T) {
		event := NewAttemptTerminatedEvent(attemptID, registrationID, 42*time.Minute, "completed")

		if event.EventType() != "attempt.terminated" {
			t.Errorf("EventType() = %q, want attempt.terminated", event.EventType())
		}
		if event.SessionTime != 42*time.Minute {
			t.Errorf("SessionTime = %v, want 42m", event.SessionTime)
		}
		if event.Status != "completed" {
			t.Errorf("Status = %q, want completed", event.Status)
		}
	})
}

func TestPackageEvents(t *testing.T) {
	entryID := uuid.New()

	t.Run("PackageInstalledEvent", func(t *testing.T) {
		event := NewPackageInstalledEvent(entryID, "golf-sample-12", "Golf Explained", "1.2")

		if event.EventType() != "package.installed" {
			t.Errorf("EventType() = %q, want package.installed", event.EventType())
		}
		if event.AggregateType() != "Package" {
			t.Errorf("AggregateType() = %q, want Package", event.AggregateType())
		}
		if event.PackageID != "golf-sample-12" {
			t.Errorf("PackageID = %q, want golf-sample-12", event.PackageID)
		}
		if event.Title != "Golf Explained" {
			t.Errorf("Title = %q, want Golf Explained", event.Title)
		}
		if event.Version != "1.2" {
			t.Errorf("Version = %q, want 1.2", event.Version)
		}
	})
}
