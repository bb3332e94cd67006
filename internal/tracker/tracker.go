// Package tracker records which files have been ingested into the corpus,
// keyed by content hash so re-ingesting unchanged content is a no-op.
package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lorein/lore/internal/log"
)

// ErrNotFound indicates no tracked file matches the given content hash.
var ErrNotFound = errors.New("tracked file not found")

// File is one tracked ingestion record.
type File struct {
	ID          int64     `json:"id"`
	Path        string    `json:"path"`
	ContentHash string    `json:"content_hash"`
	Indexed     bool      `json:"indexed"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Tracker persists ingestion records in SQLite.
type Tracker struct {
	db     *sql.DB
	logger log.Logger
}

// New creates a tracker on an open, migrated database.
func New(db *sql.DB, logger log.Logger) *Tracker {
	return &Tracker{db: db, logger: logger}
}

// AddFile records a file by content hash.
// The insert-or-ignore is a single atomic statement, so two concurrent calls
// with the same hash produce exactly one record. Returns true when a new
// record was created, false when the hash was already tracked. A previously
// seen hash never changes the stored path.
func (t *Tracker) AddFile(ctx context.Context, path, contentHash string) (bool, error) {
	result, err := t.db.ExecContext(ctx,
		"INSERT INTO files (path, content_hash, indexed, ingested_at) VALUES (?, ?, 0, ?) ON CONFLICT(content_hash) DO NOTHING",
		path, contentHash, time.Now().UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to track file: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	added := rows > 0
	if added {
		t.logger.Debug("file tracked", "path", path, "hash", contentHash)
	}
	return added, nil
}

// FileExists reports whether a content hash is already tracked.
func (t *Tracker) FileExists(ctx context.Context, contentHash string) (bool, error) {
	var one int
	err := t.db.QueryRowContext(ctx,
		"SELECT 1 FROM files WHERE content_hash = ?", contentHash,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// MarkIndexed flags a tracked file as indexed. The transition is one-way and
// idempotent: marking an already-indexed file succeeds without change.
// Returns ErrNotFound when the hash is not tracked.
func (t *Tracker) MarkIndexed(ctx context.Context, contentHash string) error {
	result, err := t.db.ExecContext(ctx,
		"UPDATE files SET indexed = 1 WHERE content_hash = ?", contentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to mark file indexed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// The update matches already-indexed rows too, so zero rows means
		// the hash is genuinely absent.
		exists, existsErr := t.FileExists(ctx, contentHash)
		if existsErr != nil {
			return existsErr
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrNotFound, contentHash)
		}
	}

	return nil
}

// ListFiles returns tracked files, optionally filtered by indexed state.
// A nil filter returns everything.
func (t *Tracker) ListFiles(ctx context.Context, indexed *bool) ([]*File, error) {
	query := "SELECT id, path, content_hash, indexed, ingested_at FROM files"
	var args []any
	if indexed != nil {
		query += " WHERE indexed = ?"
		args = append(args, *indexed)
	}
	query += " ORDER BY id ASC"

	rows, err := t.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	defer rows.Close()

	files := []*File{}
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.ID, &f.Path, &f.ContentHash, &f.Indexed, &f.IngestedAt); err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, &f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate files: %w", err)
	}

	return files, nil
}
