package archive

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs a single statement. *pgxpool.Pool satisfies it.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// schema is applied statement by statement; every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS realtime_messages (
		id            UUID PRIMARY KEY,
		connection_id TEXT NOT NULL DEFAULT '',
		kind          TEXT NOT NULL,
		channel       TEXT NOT NULL DEFAULT '',
		payload       JSONB NOT NULL,
		received_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS realtime_messages_channel_received_at_idx
		ON realtime_messages (channel, received_at)`,
	`CREATE TABLE IF NOT EXISTS realtime_events (
		id            UUID PRIMARY KEY,
		connection_id TEXT NOT NULL DEFAULT '',
		event_type    TEXT NOT NULL,
		state         TEXT NOT NULL DEFAULT '',
		prev_state    TEXT NOT NULL DEFAULT '',
		channel       TEXT NOT NULL DEFAULT '',
		attempt       INTEGER NOT NULL DEFAULT 0,
		close_code    INTEGER NOT NULL DEFAULT 0,
		detail        TEXT NOT NULL DEFAULT '',
		occurred_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS realtime_events_occurred_at_idx
		ON realtime_events (occurred_at)`,
}

// EnsureSchema creates the archive tables if they do not exist.
func EnsureSchema(ctx context.Context, db Execer) error {
	for i, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
