package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Producer publishes attempt snapshots and report updates
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishAttempt publishes a committed snapshot for the rollup workers
func (p *Producer) PublishAttempt(ctx context.Context, msg *AttemptMessage) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.PublishedAt.IsZero() {
		msg.PublishedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, AttemptQueueName, msg); err != nil {
		return fmt.Errorf("publish attempt: %w", err)
	}

	slog.Info("published attempt snapshot",
		"message_id", msg.ID,
		"registration_id", msg.RegistrationID,
		"package_id", msg.PackageID,
		"final", msg.Final,
	)

	return nil
}

// PublishReport publishes the report a worker just folded a snapshot into
func (p *Producer) PublishReport(ctx context.Context, report *progress.Report) error {
	if err := p.conn.PublishJSON(ctx, ReportQueueName, report); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}

	slog.Info("published report update",
		"registration_id", report.RegistrationID,
		"status", report.Status,
		"attempts", report.Attempts,
	)

	return nil
}

// CreateAttemptMessage builds the wire envelope for one snapshot
func CreateAttemptMessage(act progress.Activity, attemptID string, snap scorm.Snapshot) *AttemptMessage {
	return &AttemptMessage{
		ID:             uuid.New(),
		RegistrationID: act.RegistrationID,
		PackageID:      act.PackageID,
		LearnerID:      act.LearnerID,
		LearnerName:    act.LearnerName,
		AttemptID:      attemptID,
		Version:        string(snap.Version),
		Data:           snap.Data,
		SessionTime:    snap.SessionTime,
		AutoSave:       snap.AutoSave,
		Final:          snap.Final,
		TakenAt:        snap.TakenAt,
		PublishedAt:    time.Now(),
	}
}
