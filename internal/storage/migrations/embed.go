package migrations

import "embed"

// FS holds the SQL migration files applied by sqlite.DB.Migrate. Filenames
// carry the schema version: 001_initial.sql, 002_events.sql.
//
//go:embed *.sql
var FS embed.FS
