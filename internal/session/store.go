package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lorein/lore/internal/log"
)

// Store persists sessions and their transcripts in SQLite.
// Safe for concurrent use; SQLite serializes writers and the connection is
// opened with a busy timeout.
type Store struct {
	db     *sql.DB
	logger log.Logger
}

// NewStore creates a session store on an open database.
// The schema must already be migrated (see internal/database).
func NewStore(db *sql.DB, logger log.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Create creates a new session. An empty title is allowed at creation; only
// Rename enforces title rules.
func (s *Store) Create(ctx context.Context, title string) (*Session, error) {
	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO sessions (title, created_at, updated_at) VALUES (?, ?, ?)",
		title, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get session id: %w", err)
	}

	s.logger.Debug("session created", "session_id", id)

	return &Session{ID: id, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns the session with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Session, error) {
	var sess Session
	var title sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &title, &sess.CreatedAt, &sess.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	sess.Title = title.String
	return &sess, nil
}

// Exists reports whether a session with the given id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM sessions WHERE id = ?", id,
	).Scan(&one)

	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check session existence: %w", err)
	}
	return true, nil
}

// List returns all sessions ordered by most recent activity.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC, id DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		var title sql.NullString
		if err := rows.Scan(&sess.ID, &title, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sess.Title = title.String
		sessions = append(sessions, &sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// Rename sets a session's title after validating it.
// Returns ErrInvalidTitle for an empty or over-long title and ErrNotFound
// when the session does not exist. Invalid titles are rejected, never
// truncated.
func (s *Store) Rename(ctx context.Context, id int64, title string) error {
	trimmed, err := ValidateTitle(title)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET title = ?, updated_at = ? WHERE id = ?",
		trimmed, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to rename session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	return nil
}

// Delete removes a session and, by cascade, all its messages.
// Returns ErrNotFound when the session does not exist.
func (s *Store) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}

	s.logger.Info("session deleted", "session_id", id)
	return nil
}

// DeleteAll removes every session and message, returning the number of
// sessions deleted. Callers are responsible for requiring explicit
// confirmation before invoking this.
func (s *Store) DeleteAll(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions")
	if err != nil {
		return 0, fmt.Errorf("failed to delete all sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	s.logger.Info("all sessions deleted", "count", rows)
	return rows, nil
}

// AddMessage appends a message to a session's transcript and bumps the
// session's updated_at. Returns ErrNotFound when the session does not exist.
// Messages are append-only; readback order equals append order.
func (s *Store) AddMessage(ctx context.Context, sessionID int64, msg Message) (*Message, error) {
	exists, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, sessionID)
	}

	var sources any
	if len(msg.Sources) > 0 {
		data, err := json.Marshal(msg.Sources)
		if err != nil {
			return nil, fmt.Errorf("failed to encode sources: %w", err)
		}
		sources = string(data)
	}

	status := msg.Status
	if status == "" {
		status = StatusCompleted
	}

	now := time.Now().UTC()
	result, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (session_id, role, content, sources, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		sessionID, msg.Role, msg.Content, sources, status, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to add message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get message id: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET updated_at = ? WHERE id = ?", now, sessionID,
	); err != nil {
		return nil, fmt.Errorf("failed to update session timestamp: %w", err)
	}

	stored := msg
	stored.ID = id
	stored.SessionID = sessionID
	stored.Status = status
	stored.CreatedAt = now
	return &stored, nil
}

// Messages returns a session's transcript in append order.
// Returns ErrNotFound when the session does not exist; an existing session
// with no messages yields an empty slice.
func (s *Store) Messages(ctx context.Context, sessionID int64) ([]*Message, error) {
	exists, err := s.Exists(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, sessionID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, role, content, sources, status, created_at
		 FROM messages
		 WHERE session_id = ?
		 ORDER BY id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	defer rows.Close()

	messages := []*Message{}
	for rows.Next() {
		var msg Message
		var sources sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &sources, &msg.Status, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		if sources.Valid && sources.String != "" {
			if err := json.Unmarshal([]byte(sources.String), &msg.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode sources for message %d: %w", msg.ID, err)
			}
		}
		messages = append(messages, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}

	return messages, nil
}
