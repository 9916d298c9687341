// Package index provides a SQLite-backed registry of exposed artifacts and
// their sections, with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS artifacts (
	name        TEXT PRIMARY KEY,
	hash        TEXT NOT NULL,
	grammar     TEXT NOT NULL DEFAULT '',
	mirror_path TEXT NOT NULL,
	source      TEXT NOT NULL DEFAULT 'generated',
	size        INTEGER NOT NULL DEFAULT 0,
	body        TEXT NOT NULL DEFAULT '',
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS sections (
	artifact     TEXT NOT NULL,
	position     INTEGER NOT NULL,
	marker_index INTEGER NOT NULL,
	marker       TEXT NOT NULL DEFAULT '',
	start_offset INTEGER NOT NULL,
	byte_length  INTEGER NOT NULL,
	header       TEXT NOT NULL DEFAULT '',
	UNIQUE(artifact, position)
);

CREATE INDEX IF NOT EXISTS idx_artifacts_hash ON artifacts(hash);
CREATE INDEX IF NOT EXISTS idx_sections_artifact ON sections(artifact);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping() error {
	return db.conn.Ping()
}
