// Package repository is the Postgres persistence plane used by server
// mode. The daemon keeps its state in local JSON or SQLite stores; a
// multi-tenant deployment points lecternd at Postgres instead and the
// API handlers work through these repositories.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS registrations (
    id            TEXT PRIMARY KEY,
    package_id    TEXT NOT NULL,
    version       TEXT NOT NULL,
    learner_id    TEXT NOT NULL,
    learner_name  TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    score         TEXT NOT NULL DEFAULT '',
    attempts      INTEGER NOT NULL DEFAULT 0,
    total_time_ms BIGINT NOT NULL DEFAULT 0,
    created_at    TIMESTAMPTZ NOT NULL,
    updated_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_registrations_learner ON registrations(learner_id);
CREATE INDEX IF NOT EXISTS idx_registrations_package ON registrations(package_id);

CREATE TABLE IF NOT EXISTS cmi_snapshots (
    registration_id TEXT PRIMARY KEY REFERENCES registrations(id) ON DELETE CASCADE,
    attempt_id      TEXT NOT NULL,
    version         TEXT NOT NULL,
    data            JSONB NOT NULL,
    session_time_ms BIGINT NOT NULL DEFAULT 0,
    auto_save       BOOLEAN NOT NULL DEFAULT FALSE,
    final           BOOLEAN NOT NULL DEFAULT FALSE,
    taken_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS attempt_events (
    id              BIGSERIAL PRIMARY KEY,
    event_id        UUID NOT NULL UNIQUE,
    event_type      TEXT NOT NULL,
    registration_id TEXT NOT NULL DEFAULT '',
    payload         JSONB,
    created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_attempt_events_registration ON attempt_events(registration_id);
CREATE INDEX IF NOT EXISTS idx_attempt_events_type ON attempt_events(event_type);
`

// EnsureSchema creates the tables server mode needs. Statements are
// idempotent so it runs on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
