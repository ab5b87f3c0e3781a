package api

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/felixgeelhaar/lectern/internal/config"
	"github.com/felixgeelhaar/lectern/internal/notify"
	"github.com/felixgeelhaar/lectern/internal/progress"
	"github.com/felixgeelhaar/lectern/internal/queue"
	"github.com/felixgeelhaar/lectern/internal/repository"
	"github.com/felixgeelhaar/lectern/internal/storage/sqlite"
)

// App holds the server mode dependencies: the Postgres planes, the
// RabbitMQ connection, the report rollup workers and the webhook
// notifier.
type App struct {
	Config *config.Config

	Pool      *pgxpool.Pool
	JournalDB *sql.DB

	Registrations *repository.RegistrationRepository
	Snapshots     *repository.SnapshotRepository
	Journal       *repository.EventJournal

	Queue    *queue.Connection
	Producer *queue.Producer
	Consumer *queue.Consumer

	Reports  *progress.Service
	Notifier *notify.Notifier

	reportDB *sqlite.DB
}

// NewApp connects to Postgres and RabbitMQ, opens the local report store
// and wires every dependency server mode needs. On any failure the
// resources opened so far are released.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	app.Pool = pool

	if err := pool.Ping(ctx); err != nil {
		app.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := repository.EnsureSchema(ctx, pool); err != nil {
		app.Close()
		return nil, err
	}
	app.Registrations = repository.NewRegistrationRepository(pool)
	app.Snapshots = repository.NewSnapshotRepository(pool)

	// The journal gets its own handle so audit writes never compete with
	// the request path for pooled connections.
	journalDB, err := repository.OpenJournal(cfg.DatabaseURL)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.JournalDB = journalDB
	app.Journal = repository.NewEventJournal(journalDB)

	reportDB, err := sqlite.Open(cfg.ReportDBPath)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("open report store: %w", err)
	}
	app.reportDB = reportDB
	if err := reportDB.Migrate(); err != nil {
		app.Close()
		return nil, fmt.Errorf("migrate report store: %w", err)
	}
	app.Reports = progress.NewService(sqlite.NewReportStore(reportDB))

	conn, err := queue.NewConnection(cfg.RabbitMQURL)
	if err != nil {
		app.Close()
		return nil, err
	}
	app.Queue = conn
	app.Producer = queue.NewProducer(conn)

	consumerCfg := queue.DefaultConsumerConfig()
	consumerCfg.Workers = cfg.ConsumerWorkers
	app.Consumer = queue.NewConsumer(conn, app.foldAttempt, consumerCfg)

	app.Notifier = notify.New(notify.Config{
		URL:    cfg.WebhookURL,
		Logger: slog.Default(),
	})

	return app, nil
}

// foldAttempt is the consumer handler: one queued snapshot becomes one
// report update in the local store.
func (a *App) foldAttempt(ctx context.Context, msg *queue.AttemptMessage) (*progress.Report, error) {
	return a.Reports.Record(ctx, msg.Activity(), msg.Snapshot())
}

// StartWorkers begins consuming attempt snapshots from the queue
func (a *App) StartWorkers(ctx context.Context) error {
	return a.Consumer.Start(ctx)
}

// Close releases every resource the app holds. Safe to call on a
// partially constructed app.
func (a *App) Close() error {
	if a.Consumer != nil {
		a.Consumer.Stop()
	}
	if a.Notifier != nil {
		a.Notifier.Close()
	}

	var firstErr error
	if a.Queue != nil {
		if err := a.Queue.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.reportDB != nil {
		if err := a.reportDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.JournalDB != nil {
		if err := a.JournalDB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	return firstErr
}
