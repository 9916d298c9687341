package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/livetext/internal/apperr"
)

// ArtifactRow represents a row in the artifacts table.
type ArtifactRow struct {
	Name       string
	Hash       string
	Grammar    string
	MirrorPath string
	Source     string
	Size       int
	UpdatedAt  time.Time
}

// SectionRow represents one section of an artifact's current text.
type SectionRow struct {
	Position    int
	MarkerIndex int
	Marker      string
	Offset      int
	Length      int
	Header      string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Name    string `json:"name"`
	Hash    string `json:"hash"`
	Snippet string `json:"snippet"`
}

// UpsertArtifact inserts or replaces an artifact, its FTS entry and its
// sections within a transaction.
func (db *DB) UpsertArtifact(a ArtifactRow, body string, sections []SectionRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	_, err = tx.Exec(`
		INSERT INTO artifacts (name, hash, grammar, mirror_path, source, size, body, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			hash        = excluded.hash,
			grammar     = excluded.grammar,
			mirror_path = excluded.mirror_path,
			source      = excluded.source,
			size        = excluded.size,
			body        = excluded.body,
			updated_at  = excluded.updated_at
	`, a.Name, a.Hash, a.Grammar, a.MirrorPath, a.Source, a.Size, body, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert artifact: %w", err)
	}

	if err := ftsUpsert(tx, a.Name, a.Hash, body); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM sections WHERE artifact = ?`, a.Name); err != nil {
		return fmt.Errorf("index: clear sections: %w", err)
	}
	if len(sections) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO sections (artifact, position, marker_index, marker, start_offset, byte_length, header)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare section insert: %w", err)
		}
		defer stmt.Close()
		for _, s := range sections {
			if _, err := stmt.Exec(a.Name, s.Position, s.MarkerIndex, s.Marker, s.Offset, s.Length, s.Header); err != nil {
				return fmt.Errorf("index: insert section: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteArtifact removes an artifact, its FTS entry and its sections.
func (db *DB) DeleteArtifact(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsDelete(tx, name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM sections WHERE artifact = ?`, name); err != nil {
		return fmt.Errorf("index: delete sections: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM artifacts WHERE name = ?`, name); err != nil {
		return fmt.Errorf("index: delete artifact: %w", err)
	}

	return tx.Commit()
}

// GetArtifact returns one artifact row or apperr.ErrNotFound.
func (db *DB) GetArtifact(name string) (*ArtifactRow, error) {
	var a ArtifactRow
	err := db.conn.QueryRow(`
		SELECT name, hash, grammar, mirror_path, source, size, updated_at
		FROM artifacts WHERE name = ?`, name).
		Scan(&a.Name, &a.Hash, &a.Grammar, &a.MirrorPath, &a.Source, &a.Size, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get artifact: %w", err)
	}
	return &a, nil
}

// ListArtifacts returns artifacts ordered by name, optionally filtered by grammar.
func (db *DB) ListArtifacts(grammar string) ([]ArtifactRow, error) {
	query := `SELECT name, hash, grammar, mirror_path, source, size, updated_at FROM artifacts`
	var args []any
	if grammar != "" {
		query += ` WHERE grammar = ?`
		args = append(args, grammar)
	}
	query += ` ORDER BY name`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list artifacts: %w", err)
	}
	defer rows.Close()

	var out []ArtifactRow
	for rows.Next() {
		var a ArtifactRow
		if err := rows.Scan(&a.Name, &a.Hash, &a.Grammar, &a.MirrorPath, &a.Source, &a.Size, &a.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Sections returns the stored sections of an artifact in order.
func (db *DB) Sections(name string) ([]SectionRow, error) {
	rows, err := db.conn.Query(`
		SELECT position, marker_index, marker, start_offset, byte_length, header
		FROM sections WHERE artifact = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("index: sections: %w", err)
	}
	defer rows.Close()

	var out []SectionRow
	for rows.Next() {
		var s SectionRow
		if err := rows.Scan(&s.Position, &s.MarkerIndex, &s.Marker, &s.Offset, &s.Length, &s.Header); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AllHashes returns the content hash of every indexed artifact keyed by name.
func (db *DB) AllHashes() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT name, hash FROM artifacts`)
	if err != nil {
		return nil, fmt.Errorf("index: all hashes: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var name, hash string
		if err := rows.Scan(&name, &hash); err != nil {
			return nil, err
		}
		out[name] = hash
	}
	return out, rows.Err()
}
