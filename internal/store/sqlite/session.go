// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// Compile-time interface check.
var _ store.SessionStore = (*SessionStore)(nil)

// SessionStore implements store.SessionStore backed by SQLite.
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore opens (or creates) a SQLite database at dbPath.
func NewSessionStore(dbPath string) (*SessionStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return NewSessionStoreWithDB(db)
}

// NewSessionStoreWithDB wraps an already-open database, typically shared
// with a MemoryStore.
func NewSessionStoreWithDB(db *sql.DB) (*SessionStore, error) {
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}
	return &SessionStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SessionStore) Close() error {
	return s.db.Close()
}

func (s *SessionStore) CreateSession(ctx context.Context, sess *store.Session) error {
	const q = `INSERT INTO sessions (id, interface, started_at, ended_at, memory_count, primary_emotion)
VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, q,
		sess.ID,
		sess.Interface,
		formatTime(sess.StartedAt),
		formatTime(sess.EndedAt),
		sess.MemoryCount,
		sess.PrimaryEmotion,
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("session %s: %w", sess.ID, store.ErrConflict)
		}
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "creating session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `SELECT id, interface, started_at, ended_at, memory_count, primary_emotion
FROM sessions WHERE id = ?`

	var sess store.Session
	var startedAt, endedAt string

	err := s.db.QueryRowContext(ctx, q, id).Scan(
		&sess.ID,
		&sess.Interface,
		&startedAt,
		&endedAt,
		&sess.MemoryCount,
		&sess.PrimaryEmotion,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "getting session %s: %w", id, err)
	}

	sess.StartedAt = parseTime(startedAt)
	sess.EndedAt = parseTime(endedAt)

	return &sess, nil
}

// EndSession stamps the end time on an open session. Ending a session twice
// is a no-op; the conditional update only touches open rows.
func (s *SessionStore) EndSession(ctx context.Context, id string) (*store.Session, error) {
	const q = `UPDATE sessions SET ended_at = ? WHERE id = ? AND ended_at = ''`

	if _, err := s.db.ExecContext(ctx, q, formatTime(time.Now()), id); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "ending session %s: %w", id, err)
	}

	return s.GetSession(ctx, id)
}

func (s *SessionStore) IncrementMemoryCount(ctx context.Context, id string) error {
	const q = `UPDATE sessions SET memory_count = memory_count + 1 WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "incrementing memory count for session %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "checking rows affected for session %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}
