package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "capabilities: user skill catalog",
		SQL: `
CREATE TABLE capabilities (
    id             INTEGER PRIMARY KEY,
    user_id        TEXT NOT NULL,
    name           TEXT NOT NULL,
    description    TEXT NOT NULL DEFAULT '',
    strength       REAL NOT NULL DEFAULT 0,
    source_project TEXT NOT NULL DEFAULT '',
    created_at     INTEGER NOT NULL,
    updated_at     INTEGER NOT NULL,

    UNIQUE (user_id, name)
);

CREATE INDEX idx_capabilities_user ON capabilities(user_id, strength DESC);
`,
	},
	{
		Version:     2,
		Description: "notes and topic_mentions: raw material for interests",
		SQL: `
CREATE TABLE notes (
    id         INTEGER PRIMARY KEY,
    user_id    TEXT NOT NULL,
    body       TEXT NOT NULL,
    created_at INTEGER NOT NULL
);

CREATE INDEX idx_notes_user ON notes(user_id, created_at DESC);

CREATE TABLE topic_mentions (
    id         INTEGER PRIMARY KEY,
    user_id    TEXT NOT NULL,
    note_id    INTEGER,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL DEFAULT 'topic',
    created_at INTEGER NOT NULL,

    FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE SET NULL
);

CREATE INDEX idx_mentions_user_created ON topic_mentions(user_id, created_at DESC);
`,
	},
	{
		Version:     3,
		Description: "note_vectors: embedding vectors for notes",
		SQL: `
CREATE TABLE note_vectors (
    note_id    INTEGER PRIMARY KEY,
    embedding  BLOB NOT NULL,
    model      TEXT NOT NULL,
    dimensions INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    FOREIGN KEY (note_id) REFERENCES notes(id) ON DELETE CASCADE
);
`,
	},
	{
		Version:     4,
		Description: "interests: interest markers written back by the extractor",
		SQL: `
CREATE TABLE interests (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    name       TEXT NOT NULL,
    type       TEXT NOT NULL,
    strength   REAL NOT NULL,
    mentions   INTEGER NOT NULL,
    memory_ids TEXT NOT NULL DEFAULT '[]',
    updated_at INTEGER NOT NULL
);

CREATE INDEX idx_interests_user ON interests(user_id, strength DESC);
`,
	},
	{
		Version:     5,
		Description: "synthesis_runs and suggestions",
		SQL: `
CREATE TABLE synthesis_runs (
    id         TEXT PRIMARY KEY,
    user_id    TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    ended_at   INTEGER,
    status     TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'failed')),
    requested  INTEGER NOT NULL DEFAULT 0,
    accepted   INTEGER NOT NULL DEFAULT 0,
    skipped    INTEGER NOT NULL DEFAULT 0,
    error      TEXT
);

CREATE INDEX idx_runs_user ON synthesis_runs(user_id, started_at DESC);

CREATE TABLE suggestions (
    id                TEXT PRIMARY KEY,
    user_id           TEXT NOT NULL,
    run_id            TEXT,
    title             TEXT NOT NULL,
    description       TEXT NOT NULL,
    reasoning         TEXT NOT NULL DEFAULT '',
    capability_ids    TEXT NOT NULL DEFAULT '[]',
    memory_ids        TEXT NOT NULL DEFAULT '[]',
    novelty_score     REAL NOT NULL,
    feasibility_score REAL NOT NULL,
    interest_score    REAL NOT NULL,
    total_points      INTEGER NOT NULL CHECK (total_points BETWEEN 0 AND 100),
    is_wildcard       INTEGER NOT NULL DEFAULT 0,
    slot_type         TEXT NOT NULL DEFAULT 'standard',
    status            TEXT NOT NULL DEFAULT 'pending',
    embedding         BLOB,
    embedding_model   TEXT,
    created_at        INTEGER NOT NULL,

    FOREIGN KEY (run_id) REFERENCES synthesis_runs(id) ON DELETE SET NULL
);

CREATE INDEX idx_suggestions_user_created ON suggestions(user_id, created_at DESC);
`,
	},
	{
		Version:     6,
		Description: "capability_combinations: novelty history per capability set",
		SQL: `
CREATE TABLE capability_combinations (
    id                   INTEGER PRIMARY KEY,
    user_id              TEXT NOT NULL,
    capability_key       TEXT NOT NULL,
    capability_ids       TEXT NOT NULL,
    times_suggested      INTEGER NOT NULL DEFAULT 0,
    times_rated_negative INTEGER NOT NULL DEFAULT 0,
    penalty_score        REAL NOT NULL DEFAULT 0,
    first_suggested_at   INTEGER NOT NULL,
    last_suggested_at    INTEGER NOT NULL,

    UNIQUE (user_id, capability_key)
);
`,
	},
}

func (db *DB) migrate() error {
	// Create schema_versions table if it doesn't exist
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now') * 1000)
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (db *DB) SchemaVersion() (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}
