package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/lectern/internal/progress"
)

// AttemptHandler folds one snapshot into its registration's report.
// Normally this is progress.Service.Record behind a closure.
type AttemptHandler func(ctx context.Context, msg *AttemptMessage) (*progress.Report, error)

// Consumer consumes attempt snapshots from the queue
type Consumer struct {
	conn       *Connection
	handler    AttemptHandler
	producer   *Producer
	workers    int
	prefetch   int
	timeout    time.Duration
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Workers  int           // Number of concurrent workers
	Prefetch int           // Prefetch count per worker
	Timeout  time.Duration // Per-message processing budget
}

// DefaultConsumerConfig returns sensible defaults
func DefaultConsumerConfig() ConsumerConfig {
	return ConsumerConfig{
		Workers:  3,
		Prefetch: 1, // Process one at a time per worker for fairness
		Timeout:  30 * time.Second,
	}
}

// NewConsumer creates a new queue consumer
func NewConsumer(conn *Connection, handler AttemptHandler, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 3
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Consumer{
		conn:     conn,
		handler:  handler,
		producer: NewProducer(conn),
		workers:  cfg.Workers,
		prefetch: cfg.Prefetch,
		timeout:  cfg.Timeout,
	}
}

// Start begins consuming messages
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	ch := c.conn.Channel()

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return fmt.Errorf("set QoS: %w", err)
	}

	msgs, err := ch.Consume(
		AttemptQueueName,
		"",    // consumer tag (auto-generated)
		false, // auto-ack (manual ack for reliability)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.Info("starting attempt queue consumer", "workers", c.workers, "prefetch", c.prefetch)

	for i := 0; i < c.workers; i++ {
		c.wg.Add(1)
		go c.worker(ctx, i, msgs)
	}

	return nil
}

// worker processes messages from the queue
func (c *Consumer) worker(ctx context.Context, id int, msgs <-chan amqp.Delivery) {
	defer c.wg.Done()

	slog.Info("worker started", "worker_id", id)

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping", "worker_id", id)
			return

		case msg, ok := <-msgs:
			if !ok {
				slog.Info("message channel closed", "worker_id", id)
				return
			}

			c.processMessage(ctx, id, msg)
		}
	}
}

// processMessage handles a single delivery. Malformed messages are
// rejected without requeue; handler failures get one redelivery before
// the message is dropped, so a poison snapshot cannot wedge the queue.
func (c *Consumer) processMessage(ctx context.Context, workerID int, msg amqp.Delivery) {
	start := time.Now()

	var attempt AttemptMessage
	if err := json.Unmarshal(msg.Body, &attempt); err != nil {
		slog.Error("failed to unmarshal attempt message",
			"worker_id", workerID,
			"error", err,
		)
		_ = msg.Reject(false)
		return
	}

	slog.Info("processing attempt snapshot",
		"worker_id", workerID,
		"message_id", attempt.ID,
		"registration_id", attempt.RegistrationID,
		"final", attempt.Final,
	)

	msgCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	report, err := c.handler(msgCtx, &attempt)
	duration := time.Since(start)

	if err != nil {
		if msg.Redelivered {
			slog.Error("dropping attempt message after redelivery",
				"worker_id", workerID,
				"message_id", attempt.ID,
				"registration_id", attempt.RegistrationID,
				"error", err,
			)
			_ = msg.Reject(false)
			return
		}

		slog.Warn("requeueing attempt message",
			"worker_id", workerID,
			"message_id", attempt.ID,
			"registration_id", attempt.RegistrationID,
			"error", err,
			"duration", duration,
		)
		_ = msg.Reject(true)
		return
	}

	slog.Info("attempt snapshot folded",
		"worker_id", workerID,
		"message_id", attempt.ID,
		"registration_id", attempt.RegistrationID,
		"status", report.Status,
		"duration", duration,
	)

	// Report fan-out is best effort: the store already holds the truth.
	if err := c.producer.PublishReport(ctx, report); err != nil {
		slog.Error("failed to publish report update",
			"worker_id", workerID,
			"registration_id", attempt.RegistrationID,
			"error", err,
		)
	}

	if err := msg.Ack(false); err != nil {
		slog.Error("failed to ack message",
			"worker_id", workerID,
			"message_id", attempt.ID,
			"error", err,
		)
	}
}

// Stop gracefully stops the consumer
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.wg.Wait()
	slog.Info("consumer stopped")
}
