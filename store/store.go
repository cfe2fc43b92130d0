// Package store implements the persistence layer: a single embedded
// sqlite database (via the pure-Go modernc.org/sqlite driver and
// jmoiron/sqlx) holding tasks, cache entries, hooks, and settings.
// The file-backed trust store lives in package approval.
package store

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/localfirst/agentcore/core"
)

const schema = `
CREATE TABLE IF NOT EXISTS tasks (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	description TEXT NOT NULL,
	priority INTEGER NOT NULL,
	status TEXT NOT NULL,
	progress REAL NOT NULL,
	current_step INTEGER NOT NULL,
	steps_json TEXT NOT NULL,
	context_json TEXT NOT NULL,
	requires_approval INTEGER NOT NULL,
	auto_approve INTEGER NOT NULL,
	auto_resume INTEGER NOT NULL,
	retry_count INTEGER NOT NULL,
	max_retries INTEGER NOT NULL,
	failure_reason TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	completed_at TEXT
);

CREATE TABLE IF NOT EXISTS cache_entries (
	cache_key TEXT PRIMARY KEY,
	provider TEXT NOT NULL,
	model TEXT NOT NULL,
	prompt_hash TEXT NOT NULL,
	response TEXT NOT NULL,
	tokens INTEGER,
	cost REAL,
	temperature REAL,
	max_tokens INTEGER,
	hit_count INTEGER NOT NULL DEFAULT 0,
	tokens_saved INTEGER NOT NULL DEFAULT 0,
	cost_saved REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	last_used_at TEXT NOT NULL,
	expires_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS hooks (
	name TEXT PRIMARY KEY,
	events_json TEXT NOT NULL,
	priority INTEGER NOT NULL,
	command TEXT NOT NULL,
	enabled INTEGER NOT NULL,
	timeout_ms INTEGER NOT NULL,
	env_json TEXT NOT NULL,
	working_dir TEXT NOT NULL,
	continue_on_error INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	encrypted INTEGER NOT NULL DEFAULT 0
);
`

// DB wraps a sqlx handle opened against the pure-Go modernc.org/sqlite
// driver (no cgo) and owns schema migration.
type DB struct {
	*sqlx.DB
}

// Open opens (creating if absent) the sqlite database at path and
// applies the schema. Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, core.NewFrameworkError("store.Open", "persistence", err)
	}
	conn.SetMaxOpenConns(1) // sqlite: single writer, avoid SQLITE_BUSY races

	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, core.NewFrameworkError("store.Open", "persistence", err).WithMessage("schema migration failed")
	}
	return &DB{DB: conn}, nil
}

// Close closes the underlying connection.
func (d *DB) Close() error { return d.DB.Close() }

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return core.NewFrameworkError(op, "persistence", err)
}
