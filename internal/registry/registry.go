// Package registry tracks ingested documents in a local SQLite database.
// The registry is the document inventory: which files were ingested, as
// what type, into how many chunks, and when. The vector index stores only
// chunks, so status reporting and re-ingestion bookkeeping live here.
package registry

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Entry is one ingested document.
type Entry struct {
	DocID      string
	DocType    string
	SourceFile string
	ChunkCount int
	IngestedAt time.Time
}

// Registry is a SQLite-backed document inventory.
type Registry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path and applies
// pending migrations.
func Open(path string) (*Registry, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := migrateDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Registry{db: db}, nil
}

func migrateDB(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	// Don't defer m.Close(): the sqlite driver does not own the DB
	// connection but Close() can still disturb its state.

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// Record upserts a document entry keyed by doc ID.
func (r *Registry) Record(ctx context.Context, e Entry) error {
	if e.IngestedAt.IsZero() {
		e.IngestedAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (doc_id, doc_type, source_file, chunk_count, ingested_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (doc_id) DO UPDATE SET
			doc_type = excluded.doc_type,
			source_file = excluded.source_file,
			chunk_count = excluded.chunk_count,
			ingested_at = excluded.ingested_at`,
		e.DocID, e.DocType, e.SourceFile, e.ChunkCount, e.IngestedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("record document %s: %w", e.DocID, err)
	}
	return nil
}

// Get returns the entry for a doc ID, or sql.ErrNoRows if absent.
func (r *Registry) Get(ctx context.Context, docID string) (Entry, error) {
	var (
		e          Entry
		ingestedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT doc_id, doc_type, source_file, chunk_count, ingested_at
		FROM documents WHERE doc_id = ?`, docID).
		Scan(&e.DocID, &e.DocType, &e.SourceFile, &e.ChunkCount, &ingestedAt)
	if err != nil {
		return Entry{}, err
	}

	e.IngestedAt, err = time.Parse(time.RFC3339, ingestedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("parse ingested_at for %s: %w", docID, err)
	}
	return e, nil
}

// List returns all entries ordered by doc ID.
func (r *Registry) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_id, doc_type, source_file, chunk_count, ingested_at
		FROM documents ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			ingestedAt string
		)
		if err := rows.Scan(&e.DocID, &e.DocType, &e.SourceFile, &e.ChunkCount, &ingestedAt); err != nil {
			return nil, fmt.Errorf("scan document row: %w", err)
		}
		e.IngestedAt, err = time.Parse(time.RFC3339, ingestedAt)
		if err != nil {
			return nil, fmt.Errorf("parse ingested_at for %s: %w", e.DocID, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CountByType returns document counts grouped by doc type.
func (r *Registry) CountByType(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT doc_type, COUNT(*) FROM documents GROUP BY doc_type`)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			docType string
			count   int
		)
		if err := rows.Scan(&docType, &count); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		out[docType] = count
	}
	return out, rows.Err()
}

// Clear removes all entries.
func (r *Registry) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM documents`); err != nil {
		return fmt.Errorf("clear registry: %w", err)
	}
	return nil
}
