package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the postgres driver for the journal handle
	"github.com/sqlc-dev/pqtype"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// EventJournal appends attempt lifecycle events to Postgres. It runs on
// its own database/sql handle rather than the pgx pool so journal writes
// never compete with the request path for pooled connections.
type EventJournal struct {
	db *sql.DB
}

// OpenJournal opens a database/sql handle for the journal
func OpenJournal(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}
	return db, nil
}

// NewEventJournal creates a new event journal
func NewEventJournal(db *sql.DB) *EventJournal {
	return &EventJournal{db: db}
}

// Record appends one event. The event ID is unique, so replaying a
// message that was already journaled is a no-op.
func (j *EventJournal) Record(ctx context.Context, event domain.Event, registrationID string) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	query := `
		INSERT INTO attempt_events (event_id, event_type, registration_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err = j.db.ExecContext(ctx, query,
		event.EventID(), event.EventType(), registrationID,
		pqtype.NullRawMessage{RawMessage: payload, Valid: true},
		event.OccurredAt(),
	)
	return err
}

// ListByRegistration retrieves a registration's events, oldest first
func (j *EventJournal) ListByRegistration(ctx context.Context, registrationID string) ([]domain.Event, error) {
	query := `
		SELECT event_id, event_type, registration_id, payload, created_at
		FROM attempt_events WHERE registration_id = $1 ORDER BY created_at, id
	`
	rows, err := j.db.QueryContext(ctx, query, registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return j.scanEvents(rows)
}

// ListByType retrieves the most recent events of one type
func (j *EventJournal) ListByType(ctx context.Context, eventType string, limit int) ([]domain.Event, error) {
	query := `
		SELECT event_id, event_type, registration_id, payload, created_at
		FROM attempt_events WHERE event_type = $1 ORDER BY created_at DESC, id DESC LIMIT $2
	`
	rows, err := j.db.QueryContext(ctx, query, eventType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return j.scanEvents(rows)
}

// Count returns how many events of one type have been journaled
func (j *EventJournal) Count(ctx context.Context, eventType string) (int, error) {
	var count int
	err := j.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM attempt_events WHERE event_type = $1`, eventType,
	).Scan(&count)
	return count, err
}

// Prune deletes events older than the retention window and reports how
// many rows went
func (j *EventJournal) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result, err := j.db.ExecContext(ctx,
		`DELETE FROM attempt_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func (j *EventJournal) scanEvents(rows *sql.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		var e journaledEvent
		var payload pqtype.NullRawMessage
		if err := rows.Scan(&e.id, &e.eventType, &e.registrationID, &payload, &e.occurredAt); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.payload = payload.RawMessage
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

// journaledEvent is an event read back from the journal. The concrete
// type is gone; consumers get the envelope fields plus the raw payload.
type journaledEvent struct {
	id             uuid.UUID
	eventType      string
	registrationID string
	payload        json.RawMessage
	occurredAt     time.Time
}

func (e *journaledEvent) EventID() uuid.UUID    { return e.id }
func (e *journaledEvent) EventType() string     { return e.eventType }
func (e *journaledEvent) OccurredAt() time.Time { return e.occurredAt }
func (e *journaledEvent) AggregateType() string { return "registration" }

// AggregateID parses the registration column; events journaled without
// one report the nil UUID.
func (e *journaledEvent) AggregateID() uuid.UUID {
	id, err := uuid.Parse(e.registrationID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// Payload returns the event's original JSON document
func (e *journaledEvent) Payload() json.RawMessage { return e.payload }

var _ domain.Event = (*journaledEvent)(nil)
