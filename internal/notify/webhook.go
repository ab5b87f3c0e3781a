// Package notify posts attempt lifecycle events to a configured webhook.
// Delivery goes through the full fortify stack so a slow or dead endpoint
// cannot stall the runtime: circuit breaker, retry with backoff, bulkhead,
// and a client-side rate limit.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/lectern/internal/domain"
)

// Delivery is the result of one webhook POST
type Delivery struct {
	StatusCode int
}

// Config holds webhook notifier configuration
type Config struct {
	// URL is the webhook endpoint. Empty disables the notifier entirely.
	URL string

	// Timeout per HTTP request (default: 10s)
	Timeout time.Duration

	// MaxConcurrent deliveries for the bulkhead (default: 4)
	MaxConcurrent int

	// RatePerSecond for client-side rate limiting (default: 10)
	RatePerSecond int

	// Logger for delivery and breaker events
	Logger *slog.Logger
}

// Notifier delivers domain events to a webhook endpoint
type Notifier struct {
	url            string
	client         *http.Client
	circuitBreaker circuitbreaker.CircuitBreaker[*Delivery]
	retrier        retry.Retry[*Delivery]
	bulkhead       bulkhead.Bulkhead[*Delivery]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// New creates a webhook notifier. With an empty URL every Notify call is a
// no-op, so callers can wire the notifier unconditionally.
func New(cfg Config) *Notifier {
	n := &Notifier{
		url:    cfg.URL,
		logger: cfg.Logger,
	}
	if n.url == "" {
		return n
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	n.client = &http.Client{Timeout: timeout}

	n.circuitBreaker = circuitbreaker.New[*Delivery](circuitbreaker.Config{
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			if n.logger != nil {
				n.logger.Warn("webhook circuit breaker state change",
					"url", n.url,
					"from", from.String(),
					"to", to.String())
			}
		},
	})

	n.retrier = retry.New[*Delivery](retry.Config{
		MaxAttempts:   3,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   isRetryable,
	})

	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	n.bulkhead = bulkhead.New[*Delivery](bulkhead.Config{
		MaxConcurrent: maxConcurrent,
		MaxQueue:      maxConcurrent * 4,
		QueueTimeout:  15 * time.Second,
	})

	rate := cfg.RatePerSecond
	if rate <= 0 {
		rate = 10
	}
	n.rateLimit = ratelimit.New(&ratelimit.Config{
		Rate:     rate,
		Burst:    rate * 2,
		Interval: time.Second,
	})

	return n
}

// Enabled reports whether a webhook URL is configured
func (n *Notifier) Enabled() bool {
	return n.url != ""
}

// Notify delivers one event to the webhook. Returns nil immediately when no
// URL is configured.
func (n *Notifier) Notify(ctx context.Context, event domain.Event) error {
	if !n.Enabled() {
		return nil
	}

	if !n.rateLimit.Allow(ctx, n.url) {
		return fmt.Errorf("webhook rate limit exceeded")
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	operation := func(ctx context.Context) (*Delivery, error) {
		return n.bulkhead.Execute(ctx, func(ctx context.Context) (*Delivery, error) {
			return n.post(ctx, event.EventType(), body)
		})
	}

	_, err = n.circuitBreaker.Execute(ctx, func(ctx context.Context) (*Delivery, error) {
		return n.retrier.Do(ctx, operation)
	})
	if err != nil {
		if n.logger != nil {
			n.logger.Warn("webhook delivery failed",
				"url", n.url,
				"event", event.EventType(),
				"error", err)
		}
		return fmt.Errorf("deliver %s: %w", event.EventType(), err)
	}

	return nil
}

// Close releases the rate limiter's resources
func (n *Notifier) Close() error {
	if n.rateLimit != nil {
		return n.rateLimit.Close()
	}
	return nil
}

func (n *Notifier) post(ctx context.Context, eventType string, body []byte) (*Delivery, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Lectern-Event", eventType)

	resp, err := n.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{code: resp.StatusCode}
	}
	return &Delivery{StatusCode: resp.StatusCode}, nil
}

// statusError carries the HTTP status of a rejected delivery
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("webhook status %d", e.code)
}

// isRetryable allows retries on timeouts, 429 and server errors. Client
// errors mean the payload or endpoint is wrong; retrying will not help.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
