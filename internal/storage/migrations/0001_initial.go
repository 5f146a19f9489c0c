// Package migrations holds BuildPulse's numbered, append-only schema
// migrations: each migration is idempotent (CREATE TABLE IF NOT EXISTS) and
// previous migrations are never edited once shipped.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const schema0001 = `
CREATE TABLE IF NOT EXISTS jobs (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	name              TEXT NOT NULL UNIQUE,
	url               TEXT NOT NULL,
	last_build_number INTEGER
);

CREATE TABLE IF NOT EXISTS builds (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	url        TEXT NOT NULL UNIQUE,
	status     TEXT,
	number     INTEGER NOT NULL,
	timestamp_ms INTEGER NOT NULL,
	job_id     INTEGER NOT NULL REFERENCES jobs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_builds_job_number ON builds(job_id, number);

CREATE TABLE IF NOT EXISTS runs (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	url          TEXT NOT NULL UNIQUE,
	status       TEXT,
	display_name TEXT NOT NULL,
	log          TEXT,
	tag_schema   INTEGER,
	build_id     INTEGER NOT NULL REFERENCES builds(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_runs_build ON runs(build_id);
CREATE INDEX IF NOT EXISTS idx_runs_tag_schema ON runs(tag_schema);

CREATE TABLE IF NOT EXISTS artifacts (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	path     TEXT NOT NULL,
	contents BLOB NOT NULL,
	run_id   INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_artifacts_run ON artifacts(run_id);

CREATE TABLE IF NOT EXISTS tags (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL UNIQUE,
	description TEXT NOT NULL DEFAULT '',
	pattern     TEXT NOT NULL,
	"from"      TEXT NOT NULL,
	severity    TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS issues (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	snippet_start INTEGER NOT NULL,
	snippet_end   INTEGER NOT NULL,
	run_id        INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	artifact_id   INTEGER REFERENCES artifacts(id) ON DELETE CASCADE,
	tag_id        INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	duplicates    INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_issues_run ON issues(run_id);
CREATE INDEX IF NOT EXISTS idx_issues_tag ON issues(tag_id);

CREATE TABLE IF NOT EXISTS similarities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	hash       INTEGER NOT NULL,
	finding_id INTEGER NOT NULL UNIQUE REFERENCES issues(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_similarities_hash ON similarities(hash);

CREATE TABLE IF NOT EXISTS schema_meta (
	id      INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);
`

// Apply brings a freshly opened connection up to the current schema
// version. It is safe to call on every Open: every statement is either
// "IF NOT EXISTS" or an "INSERT OR IGNORE".
func Apply(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, schema0001); err != nil {
		return fmt.Errorf("migrations: applying 0001_initial: %w", err)
	}
	if _, err := conn.ExecContext(ctx, `INSERT OR IGNORE INTO schema_meta (id, version) VALUES (1, 1)`); err != nil {
		return fmt.Errorf("migrations: seeding schema_meta: %w", err)
	}
	return nil
}
