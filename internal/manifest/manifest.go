// Package manifest keeps a local SQLite ledger of ingested documents: one
// row per (collection, document) with the content hash and chunk count of
// the last successful ingest. The pipeline consults it to skip documents
// whose bytes have not changed.
package manifest

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Entry records one successfully ingested document.
type Entry struct {
	// Collection is the vector collection the points were written to.
	Collection string
	// DocumentID is the document identifier.
	DocumentID string
	// ContentHash is the hex SHA-256 of the source file.
	ContentHash string
	// SourcePath is where the document was read from.
	SourcePath string
	// Chunks is the number of chunks the document produced.
	Chunks int
	// IngestedAt is when the entry was recorded.
	IngestedAt time.Time
}

// Store is a manifest backed by a local SQLite database.
type Store struct {
	db *sql.DB
}

// DefaultDBPath resolves to ~/.pdfrag/manifest.db, creating the directory
// if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("manifest: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".pdfrag")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("manifest: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "manifest.db"), nil
}

// Open opens (or creates) a manifest at path. Use ":memory:" in tests.
func Open(path string) (*Store, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("manifest: open %s: %w", path, err)
	}
	// Single connection: writes come from concurrent ingest workers and an
	// in-memory database is per-connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS documents (
    collection   TEXT    NOT NULL,
    document_id  TEXT    NOT NULL,
    content_hash TEXT    NOT NULL,
    source_path  TEXT    NOT NULL DEFAULT '',
    chunks       INTEGER NOT NULL,
    ingested_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (collection, document_id)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("manifest: migrate: %w", err)
	}
	return nil
}

// Lookup returns the entry for a document. ok is false when none exists.
func (s *Store) Lookup(ctx context.Context, collection, documentID string) (Entry, bool, error) {
	const q = `
SELECT content_hash, source_path, chunks, ingested_at
FROM   documents
WHERE  collection = ? AND document_id = ?`

	e := Entry{Collection: collection, DocumentID: documentID}
	var ts int64
	err := s.db.QueryRowContext(ctx, q, collection, documentID).Scan(&e.ContentHash, &e.SourcePath, &e.Chunks, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("manifest: lookup: %w", err)
	}
	e.IngestedAt = time.Unix(ts, 0)
	return e, true, nil
}

// Record inserts or replaces the entry for e's document.
func (s *Store) Record(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now()
	}
	const q = `
INSERT INTO documents (collection, document_id, content_hash, source_path, chunks, ingested_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT (collection, document_id) DO UPDATE SET
    content_hash = excluded.content_hash,
    source_path  = excluded.source_path,
    chunks       = excluded.chunks,
    ingested_at  = excluded.ingested_at`
	if _, err := s.db.ExecContext(ctx, q, e.Collection, e.DocumentID, e.ContentHash, e.SourcePath, e.Chunks, e.IngestedAt.Unix()); err != nil {
		return fmt.Errorf("manifest: record: %w", err)
	}
	return nil
}

// Forget removes the entry for one document.
func (s *Store) Forget(ctx context.Context, collection, documentID string) error {
	const q = `DELETE FROM documents WHERE collection = ? AND document_id = ?`
	if _, err := s.db.ExecContext(ctx, q, collection, documentID); err != nil {
		return fmt.Errorf("manifest: forget: %w", err)
	}
	return nil
}

// ForgetCollection removes every entry of a collection. Call it after the
// collection itself is deleted.
func (s *Store) ForgetCollection(ctx context.Context, collection string) error {
	const q = `DELETE FROM documents WHERE collection = ?`
	if _, err := s.db.ExecContext(ctx, q, collection); err != nil {
		return fmt.Errorf("manifest: forget collection: %w", err)
	}
	return nil
}

// List returns the entries of a collection ordered by document ID.
func (s *Store) List(ctx context.Context, collection string) ([]Entry, error) {
	const q = `
SELECT document_id, content_hash, source_path, chunks, ingested_at
FROM   documents
WHERE  collection = ?
ORDER  BY document_id ASC`

	rows, err := s.db.QueryContext(ctx, q, collection)
	if err != nil {
		return nil, fmt.Errorf("manifest: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e := Entry{Collection: collection}
		var ts int64
		if err := rows.Scan(&e.DocumentID, &e.ContentHash, &e.SourcePath, &e.Chunks, &ts); err != nil {
			return nil, fmt.Errorf("manifest: list scan: %w", err)
		}
		e.IngestedAt = time.Unix(ts, 0)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("manifest: list rows: %w", err)
	}
	return out, nil
}

// Close releases the database connection pool.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("manifest: close: %w", err)
	}
	return nil
}

// HashFile returns the hex SHA-256 of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("manifest: hash: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("manifest: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
