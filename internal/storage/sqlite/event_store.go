package sqlite

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// StoredEvent is one row of the attempt event log.
type StoredEvent struct {
	ID             int64     `json:"id"`
	EventID        string    `json:"event_id"`
	EventType      string    `json:"event_type"`
	RegistrationID string    `json:"registration_id,omitempty"`
	Payload        string    `json:"payload"`
	CreatedAt      time.Time `json:"created_at"`
}

// EventStore records domain events in the local audit log. The UNIQUE
// event_id column makes replays from the queue consumer idempotent.
type EventStore struct {
	db *DB
}

// NewEventStore creates a new SQLite-backed event store.
func NewEventStore(db *DB) *EventStore {
	return &EventStore{db: db}
}

// Record stores one domain event. Duplicate event IDs are ignored.
func (s *EventStore) Record(event domain.Event, registrationID string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO attempt_events (event_id, event_type, registration_id, payload, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		event.EventID().String(), event.EventType(), registrationID,
		string(payload), event.OccurredAt(),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListByRegistration returns a registration's events, oldest first.
func (s *EventStore) ListByRegistration(registrationID string) ([]StoredEvent, error) {
	rows, err := s.db.Query(`
		SELECT id, event_id, event_type, registration_id, payload, created_at
		FROM attempt_events WHERE registration_id = ? ORDER BY created_at, id`,
		registrationID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []StoredEvent
	for rows.Next() {
		var e StoredEvent
		if err := rows.Scan(&e.ID, &e.EventID, &e.EventType, &e.RegistrationID, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Count returns the number of events of the given type.
func (s *EventStore) Count(eventType string) (int, error) {
	var count int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM attempt_events WHERE event_type = ?", eventType,
	).Scan(&count)
	return count, err
}

// Prune deletes events older than the given duration and returns how many
// rows went away.
func (s *EventStore) Prune(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := s.db.Exec("DELETE FROM attempt_events WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune events: %w", err)
	}
	return result.RowsAffected()
}
