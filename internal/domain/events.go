package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Event Interface and Base Event
// -----------------------------------------------------------------------------

// Event represents a domain event
type Event interface {
	// EventID returns the unique identifier for this event
	EventID() uuid.UUID
	// EventType returns the type name of this event
	EventType() string
	// OccurredAt returns when this event occurred
	OccurredAt() time.Time
	// AggregateID returns the ID of the aggregate that produced this event
	AggregateID() uuid.UUID
	// AggregateType returns the type of aggregate that produced this event
	AggregateType() string
}

// BaseEvent provides common event fields
type BaseEvent struct {
	ID            uuid.UUID `json:"id"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateUUID uuid.UUID `json:"aggregate_id"`
	AggregateName string    `json:"aggregate_type"`
}

// NewBaseEvent creates a new BaseEvent
func NewBaseEvent(eventType, aggregateType string, aggregateID uuid.UUID) BaseEvent {
	return BaseEvent{
		ID:            uuid.New(),
		Type:          eventType,
		Timestamp:     time.Now(),
		AggregateUUID: aggregateID,
		AggregateName: aggregateType,
	}
}

func (e BaseEvent) EventID() uuid.UUID     { return e.ID }
func (e BaseEvent) EventType() string      { return e.Type }
func (e BaseEvent) OccurredAt() time.Time  { return e.Timestamp }
func (e BaseEvent) AggregateID() uuid.UUID { return e.AggregateUUID }
func (e BaseEvent) AggregateType() string  { return e.AggregateName }

// -----------------------------------------------------------------------------
// Event Handler and Dispatcher
// -----------------------------------------------------------------------------

// EventHandler processes domain events
type EventHandler func(event Event)

// EventDispatcher manages event subscriptions and publishing
type EventDispatcher struct {
	mu          sync.RWMutex
	handlers    map[string][]EventHandler
	allHandlers []EventHandler // handlers for all events
}

// NewEventDispatcher creates a new event dispatcher
func NewEventDispatcher() *EventDispatcher {
	return &EventDispatcher{
		handlers: make(map[string][]EventHandler),
	}
}

// Subscribe registers a handler for a specific event type
func (d *EventDispatcher) Subscribe(eventType string, handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventType] = append(d.handlers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (d *EventDispatcher) SubscribeAll(handler EventHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.allHandlers = append(d.allHandlers, handler)
}

// Publish dispatches an event to all registered handlers
func (d *EventDispatcher) Publish(event Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	// Call type-specific handlers
	if handlers, ok := d.handlers[event.EventType()]; ok {
		for _, h := range handlers {
			h(event)
		}
	}

	// Call all-event handlers
	for _, h := range d.allHandlers {
		h(event)
	}
}

// PublishAll dispatches multiple events
func (d *EventDispatcher) PublishAll(events []Event) {
	for _, event := range events {
		d.Publish(event)
	}
}

// -----------------------------------------------------------------------------
// Aggregate Root with Event Support
// -----------------------------------------------------------------------------

// EventRecorder is an interface for aggregates that record events
type EventRecorder interface {
	// RecordedEvents returns events recorded since last clear
	RecordedEvents() []Event
	// ClearEvents clears recorded events (typically after persistence)
	ClearEvents()
}

// AggregateRoot provides base functionality for aggregates with event recording
type AggregateRoot struct {
	events []Event
}

// RecordEvent adds an event to the aggregate's recorded events
func (a *AggregateRoot) RecordEvent(event Event) {
	a.events = append(a.events, event)
}

// RecordedEvents returns all recorded events
func (a *AggregateRoot) RecordedEvents() []Event {
	return a.events
}

// ClearEvents clears recorded events
func (a *AggregateRoot) ClearEvents() {
	a.events = nil
}

// -----------------------------------------------------------------------------
// Registration Events
// -----------------------------------------------------------------------------

// RegistrationCreatedEvent is published when a learner is enrolled in a package
type RegistrationCreatedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	PackageID string `json:"package_id"`
}

// NewRegistrationCreatedEvent creates a new registration created event
func NewRegistrationCreatedEvent(registrationID uuid.UUID, learnerID, packageID string) RegistrationCreatedEvent {
	return RegistrationCreatedEvent{
		BaseEvent: NewBaseEvent("registration.created", "Registration", registrationID),
		LearnerID: learnerID,
		PackageID: packageID,
	}
}

// RegistrationCompletedEvent is published when a registration reaches a
// terminal status (completed, passed, failed)
type RegistrationCompletedEvent struct {
	BaseEvent
	LearnerID string `json:"learner_id"`
	PackageID string `json:"package_id"`
	Status    string `json:"status"`
	Score     string `json:"score,omitempty"`
}

// NewRegistrationCompletedEvent creates a new registration completed event
func NewRegistrationCompletedEvent(registrationID uuid.UUID, learnerID, packageID, status, score string) RegistrationCompletedEvent {
	return RegistrationCompletedEvent{
		BaseEvent: NewBaseEvent("registration.completed", "Registration", registrationID),
		LearnerID: learnerID,
		PackageID: packageID,
		Status:    status,
		Score:     score,
	}
}

// -----------------------------------------------------------------------------
// Attempt Events
// -----------------------------------------------------------------------------

// AttemptStartedEvent is published when content initializes the runtime API
type AttemptStartedEvent struct {
	BaseEvent
	RegistrationID uuid.UUID `json:"registration_id"`
	PackageID      string    `json:"package_id"`
	Version        string    `json:"version"`
	Resumed        bool      `json:"resumed"`
}

// NewAttemptStartedEvent creates a new attempt started event
func NewAttemptStartedEvent(attemptID, registrationID uuid.UUID, packageID, version string, resumed bool) AttemptStartedEvent {
	return AttemptStartedEvent{
		BaseEvent:      NewBaseEvent("attempt.started", "Attempt", attemptID),
		RegistrationID: registrationID,
		PackageID:      packageID,
		Version:        version,
		Resumed:        resumed,
	}
}

// AttemptCommittedEvent is published when a runtime commit persists a
// CMI snapshot
type AttemptCommittedEvent struct {
	BaseEvent
	RegistrationID uuid.UUID `json:"registration_id"`
	ElementCount   int       `json:"element_count"`
	AutoSave       bool      `json:"auto_save"`
}

// NewAttemptCommittedEvent creates a new attempt committed event
func NewAttemptCommittedEvent(attemptID, registrationID uuid.UUID, elementCount int, autoSave bool) AttemptCommittedEvent {
	return AttemptCommittedEvent{
		BaseEvent:      NewBaseEvent("attempt.committed", "Attempt", attemptID),
		RegistrationID: registrationID,
		ElementCount:   elementCount,
		AutoSave:       autoSave,
	}
}

// AttemptTerminatedEvent is published when content terminates the runtime API
type AttemptTerminatedEvent struct {
	BaseEvent
	RegistrationID uuid.UUID     `json:"registration_id"`
	SessionTime    time.Duration `json:"session_time"`
	Status         string        `json:"status"`
}

// NewAttemptTerminatedEvent creates a new attempt terminated event
func NewAttemptTerminatedEvent(attemptID, registrationID uuid.UUID, sessionTime time.Duration, status string) AttemptTerminatedEvent {
	return AttemptTerminatedEvent{
		BaseEvent:      NewBaseEvent("attempt.terminated", "Attempt", attemptID),
		RegistrationID: registrationID,
		SessionTime:    sessionTime,
		Status:         status,
	}
}

// -----------------------------------------------------------------------------
// Package Events
// -----------------------------------------------------------------------------

// PackageInstalledEvent is published when a content package is registered
// in the catalog
type PackageInstalledEvent struct {
	BaseEvent
	PackageID string `json:"package_id"`
	Title     string `json:"title"`
	Version   string `json:"version"`
}

// NewPackageInstalledEvent creates a new package installed event
func NewPackageInstalledEvent(catalogEntryID uuid.UUID, packageID, title, version string) PackageInstalledEvent {
	return PackageInstalledEvent{
		BaseEvent: NewBaseEvent("package.installed", "Package", catalogEntryID),
		PackageID: packageID,
		Title:     title,
		Version:   version,
	}
}
