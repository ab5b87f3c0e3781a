// Package queue moves committed CMI snapshots between the API plane and
// the progress rollup workers over RabbitMQ. Every commit and terminate
// becomes one AttemptMessage on lectern.attempts; workers fold them into
// reports and publish the updated report on lectern.reports for anything
// downstream that wants to follow along.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/scorm"
)

// Queue names
const (
	AttemptQueueName = "lectern.attempts"
	ReportQueueName  = "lectern.reports"
)

// AttemptMessage is the wire envelope for one committed snapshot. It
// carries everything the rollup worker needs so the worker never has to
// call back into the registration store.
type AttemptMessage struct {
	ID             uuid.UUID         `json:"id"`
	RegistrationID string            `json:"registration_id"`
	PackageID      string            `json:"package_id"`
	LearnerID      string            `json:"learner_id"`
	LearnerName    string            `json:"learner_name,omitempty"`
	AttemptID      string            `json:"attempt_id,omitempty"`
	Version        string            `json:"version"`
	Data           map[string]string `json:"data"`
	SessionTime    time.Duration     `json:"session_time"`
	AutoSave       bool              `json:"auto_save"`
	Final          bool              `json:"final"`
	TakenAt        time.Time         `json:"taken_at"`
	PublishedAt    time.Time         `json:"published_at"`
}

// Activity identifies the registration for the progress plane
func (m *AttemptMessage) Activity() progress.Activity {
	return progress.Activity{
		RegistrationID: m.RegistrationID,
		PackageID:      m.PackageID,
		LearnerID:      m.LearnerID,
		LearnerName:    m.LearnerName,
	}
}

// Snapshot rebuilds the runtime snapshot the message was cut from
func (m *AttemptMessage) Snapshot() scorm.Snapshot {
	return scorm.Snapshot{
		Version:     scorm.Version(m.Version),
		Data:        m.Data,
		SessionTime: m.SessionTime,
		TakenAt:     m.TakenAt,
		AutoSave:    m.AutoSave,
		Final:       m.Final,
	}
}

// Connection manages the RabbitMQ connection with automatic reconnection
type Connection struct {
	url        string
	conn       *amqp.Connection
	channel    *amqp.Channel
	mu         sync.RWMutex
	closed     bool
	reconnects int
}

// NewConnection creates a new RabbitMQ connection
func NewConnection(url string) (*Connection, error) {
	c := &Connection{
		url: url,
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes connection and channel
func (c *Connection) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	c.conn, err = amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("connect to RabbitMQ: %w", err)
	}

	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.declareQueues(); err != nil {
		c.channel.Close()
		c.conn.Close()
		return err
	}

	go c.handleReconnect()

	slog.Info("connected to RabbitMQ", "url", sanitizeURL(c.url))
	return nil
}

// declareQueues creates the necessary queues
func (c *Connection) declareQueues() error {
	// Snapshots stay queued for a day: the rollup worker may lag or
	// restart, and a dropped commit is a lost score.
	_, err := c.channel.QueueDeclare(
		AttemptQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(86400000),
		},
	)
	if err != nil {
		return fmt.Errorf("declare attempt queue: %w", err)
	}

	// Report updates are notifications; the durable copy lives in the
	// report store, so stale ones can expire quickly.
	_, err = c.channel.QueueDeclare(
		ReportQueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		amqp.Table{
			"x-message-ttl": int32(60000),
		},
	)
	if err != nil {
		return fmt.Errorf("declare report queue: %w", err)
	}

	return nil
}

// handleReconnect listens for connection close and attempts to reconnect
func (c *Connection) handleReconnect() {
	notifyClose := c.conn.NotifyClose(make(chan *amqp.Error, 1))

	err := <-notifyClose
	if err == nil {
		return // normal close
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	slog.Warn("RabbitMQ connection closed, attempting to reconnect",
		"error", err,
		"reconnects", c.reconnects,
	)

	// Exponential backoff
	for i := 0; i < 10; i++ {
		c.reconnects++
		backoff := time.Duration(1<<i) * time.Second
		if backoff > 30*time.Second {
			backoff = 30 * time.Second
		}
		time.Sleep(backoff)

		if err := c.connect(); err != nil {
			slog.Error("reconnection failed", "error", err, "attempt", i+1)
			continue
		}

		slog.Info("reconnected to RabbitMQ", "attempts", i+1)
		return
	}

	slog.Error("failed to reconnect to RabbitMQ after 10 attempts")
}

// Channel returns the current channel (thread-safe)
func (c *Connection) Channel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// Close closes the connection
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true

	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected checks if the connection is active
func (c *Connection) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && !c.conn.IsClosed()
}

// PublishJSON publishes a JSON message to a queue
func (c *Connection) PublishJSON(ctx context.Context, queue string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.mu.RLock()
	ch := c.channel
	c.mu.RUnlock()

	return ch.PublishWithContext(
		ctx,
		"",    // exchange
		queue, // routing key
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

// sanitizeURL masks the password so connection URLs can be logged
func sanitizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, has := u.User.Password(); has {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
