// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// isConstraintErr reports whether err is a SQLite constraint violation
// (duplicate primary key, unique index, ...).
func isConstraintErr(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint
}

// Compile-time interface check.
var _ store.MemoryStore = (*MemoryStore)(nil)

// MemoryStore implements store.MemoryStore backed by SQLite.
type MemoryStore struct {
	db *sql.DB
}

// openDB opens a SQLite database with the settings every keepsake store
// uses: WAL journaling, a busy timeout, and a bounded connection pool.
func openDB(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(4)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}
	return db, nil
}

// NewMemoryStore opens (or creates) a SQLite database at dbPath and
// initialises the memories and sessions tables.
func NewMemoryStore(dbPath string) (*MemoryStore, error) {
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	return NewMemoryStoreWithDB(db)
}

// NewMemoryStoreWithDB wraps an already-open database. The caller may share
// the connection with a SessionStore; Close on either closes it.
func NewMemoryStoreWithDB(db *sql.DB) (*MemoryStore, error) {
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating sqlite db: %w", err)
	}
	return &MemoryStore{db: db}, nil
}

// migrate creates the relational schema. Memories and sessions live in one
// database so aggregate queries can span both.
func migrate(db *sql.DB) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS memories (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL DEFAULT '',
	interface          TEXT NOT NULL,
	context            TEXT NOT NULL DEFAULT '',
	with_whom          TEXT NOT NULL DEFAULT '',
	what_happened      TEXT NOT NULL,
	text_content       TEXT NOT NULL,
	experience_type    TEXT NOT NULL,
	duration_seconds   INTEGER NOT NULL DEFAULT 0,
	emotion_primary    TEXT NOT NULL,
	emotion_intensity  REAL NOT NULL,
	emotion_why        TEXT NOT NULL DEFAULT '',
	emotion_secondary  TEXT NOT NULL DEFAULT '[]',
	importance         REAL NOT NULL,
	importance_reasons TEXT NOT NULL DEFAULT '[]',
	annotations        TEXT NOT NULL DEFAULT '[]',
	visual_path        TEXT NOT NULL DEFAULT '',
	audio_path         TEXT NOT NULL DEFAULT '',
	video_path         TEXT NOT NULL DEFAULT '',
	modalities         TEXT NOT NULL DEFAULT '["text"]',
	privacy_realm      TEXT NOT NULL DEFAULT 'private',
	created_at         TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	access_count       INTEGER NOT NULL DEFAULT 0,
	last_accessed      TEXT NOT NULL DEFAULT '',
	should_forget      INTEGER NOT NULL DEFAULT 0,
	vector_indexed     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_memories_interface ON memories(interface);
CREATE INDEX IF NOT EXISTS idx_memories_session ON memories(session_id);
CREATE INDEX IF NOT EXISTS idx_memories_unindexed ON memories(vector_indexed) WHERE should_forget = 0;

CREATE TABLE IF NOT EXISTS sessions (
	id              TEXT PRIMARY KEY,
	interface       TEXT NOT NULL,
	started_at      TEXT NOT NULL,
	ended_at        TEXT NOT NULL DEFAULT '',
	memory_count    INTEGER NOT NULL DEFAULT 0,
	primary_emotion TEXT NOT NULL DEFAULT ''
);
`
	_, err := db.Exec(ddl)
	return err
}

// Close closes the underlying database connection.
func (s *MemoryStore) Close() error {
	return s.db.Close()
}

const memoryColumns = `id, session_id, interface, context, with_whom, what_happened, text_content,
experience_type, duration_seconds, emotion_primary, emotion_intensity, emotion_why, emotion_secondary,
importance, importance_reasons, annotations, visual_path, audio_path, video_path, modalities,
privacy_realm, created_at, updated_at, access_count, last_accessed, should_forget, vector_indexed`

func (s *MemoryStore) CreateMemory(ctx context.Context, m *store.Memory) error {
	secondary, err := marshalStrings(m.EmotionSecondary)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling secondary emotions: %w", err)
	}
	reasons, err := marshalStrings(m.ImportanceReasons)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling importance reasons: %w", err)
	}
	annotations, err := marshalAnnotations(m.Annotations)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling annotations: %w", err)
	}
	modalities, err := marshalStrings(m.Modalities)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling modalities: %w", err)
	}

	q := `INSERT INTO memories (` + memoryColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.SessionID, m.Interface, m.Context, m.WithWhom, m.WhatHappened, m.TextContent,
		m.ExperienceType, m.DurationSeconds, m.EmotionPrimary, m.EmotionIntensity, m.EmotionWhy, secondary,
		m.Importance, reasons, annotations, m.VisualPath, m.AudioPath, m.VideoPath, modalities,
		string(m.PrivacyRealm), formatTime(m.CreatedAt), formatTime(m.UpdatedAt),
		m.AccessCount, formatTime(m.LastAccessed), boolToInt(m.ShouldForget), boolToInt(m.Indexed),
	)
	if err != nil {
		if isConstraintErr(err) {
			return fmt.Errorf("memory %s: %w", m.ID, store.ErrConflict)
		}
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "creating memory %s: %w", m.ID, err)
	}
	return nil
}

func (s *MemoryStore) GetMemory(ctx context.Context, id string) (*store.Memory, error) {
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE id = ? AND should_forget = 0`

	m, err := scanMemory(s.db.QueryRowContext(ctx, q, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "getting memory %s: %w", id, err)
	}
	return m, nil
}

func (s *MemoryStore) TouchMemory(ctx context.Context, id string) error {
	now := formatTime(time.Now())
	const q = `UPDATE memories SET access_count = access_count + 1, last_accessed = ?, updated_at = ?
WHERE id = ? AND should_forget = 0`

	res, err := s.db.ExecContext(ctx, q, now, now, id)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "touching memory %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "checking rows affected for memory %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// MarkForgotten tombstones a live record. The WHERE clause makes the update
// conditional, so a repeat call (or an unknown id) reports false without a
// read-modify-write race.
func (s *MemoryStore) MarkForgotten(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE memories SET should_forget = 1, updated_at = ? WHERE id = ? AND should_forget = 0`

	res, err := s.db.ExecContext(ctx, q, formatTime(time.Now()), id)
	if err != nil {
		return false, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "tombstoning memory %s: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "checking rows affected for memory %s: %w", id, err)
	}
	return rows > 0, nil
}

func (s *MemoryStore) MarkIndexed(ctx context.Context, id string, indexed bool) error {
	const q = `UPDATE memories SET vector_indexed = ?, updated_at = ? WHERE id = ?`

	res, err := s.db.ExecContext(ctx, q, boolToInt(indexed), formatTime(time.Now()), id)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marking memory %s indexed=%t: %w", id, indexed, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "checking rows affected for memory %s: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("memory %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// filterClauses translates a store.Filter into SQL conditions. Tombstoned
// rows are always excluded.
func filterClauses(f store.Filter) (string, []any) {
	conds := []string{"should_forget = 0"}
	var args []any

	if f.Interface != "" {
		conds = append(conds, "interface = ?")
		args = append(args, f.Interface)
	}
	if f.Context != "" {
		conds = append(conds, "context LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Context)+"%")
	}
	if f.Emotion != "" {
		conds = append(conds, "emotion_primary = ?")
		args = append(args, f.Emotion)
	}
	if f.ExperienceType != "" {
		conds = append(conds, "experience_type = ?")
		args = append(args, f.ExperienceType)
	}
	if f.WithWhom != "" {
		conds = append(conds, "with_whom LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.WithWhom)+"%")
	}
	if f.MinImportance > 0 {
		conds = append(conds, "importance >= ?")
		args = append(args, f.MinImportance)
	}
	if f.SessionID != "" {
		conds = append(conds, "session_id = ?")
		args = append(args, f.SessionID)
	}

	return strings.Join(conds, " AND "), args
}

// escapeLike neutralises LIKE wildcards in user-supplied substrings.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

func (s *MemoryStore) ListMemories(ctx context.Context, f store.Filter, opts store.ListOpts) ([]*store.Memory, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	where, args := filterClauses(f)
	q := `SELECT ` + memoryColumns + ` FROM memories WHERE ` + where +
		` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "listing memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "scanning memory row: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "iterating memory rows: %w", err)
	}

	return memories, nil
}

func (s *MemoryStore) CountMemories(ctx context.Context, f store.Filter) (int64, error) {
	if err := f.Validate(); err != nil {
		return 0, err
	}

	where, args := filterClauses(f)
	q := `SELECT COUNT(*) FROM memories WHERE ` + where

	var count int64
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&count); err != nil {
		return 0, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "counting memories: %w", err)
	}
	return count, nil
}

// ListUnindexed returns live records the vector index has not absorbed yet,
// oldest first so the sweep catches up in insertion order.
func (s *MemoryStore) ListUnindexed(ctx context.Context, limit int) ([]*store.Memory, error) {
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	q := `SELECT ` + memoryColumns + ` FROM memories
WHERE should_forget = 0 AND vector_indexed = 0 ORDER BY created_at ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "listing unindexed memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var memories []*store.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "scanning memory row: %w", err)
		}
		memories = append(memories, m)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "iterating memory rows: %w", err)
	}

	return memories, nil
}

func (s *MemoryStore) FilterLive(ctx context.Context, ids []string) (map[string]struct{}, error) {
	live := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return live, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	q := `SELECT id FROM memories WHERE should_forget = 0 AND id IN (` + placeholders + `)`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "filtering live memories: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "scanning live memory id: %w", err)
		}
		live[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "iterating live memory ids: %w", err)
	}

	return live, nil
}

func (s *MemoryStore) Stats(ctx context.Context) (*store.Stats, error) {
	const q = `SELECT
	COUNT(*),
	COALESCE(SUM(CASE WHEN importance >= 0.7 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN importance >= 0.3 AND importance < 0.7 THEN 1 ELSE 0 END), 0),
	COALESCE(SUM(CASE WHEN importance < 0.3 THEN 1 ELSE 0 END), 0),
	COALESCE(AVG(importance), 0),
	COALESCE(AVG(emotion_intensity), 0),
	COUNT(DISTINCT interface),
	COALESCE(MIN(created_at), ''),
	COALESCE(MAX(created_at), '')
FROM memories WHERE should_forget = 0`

	var st store.Stats
	var earliest, latest string
	err := s.db.QueryRowContext(ctx, q).Scan(
		&st.TotalMemories,
		&st.HotMemories,
		&st.WarmMemories,
		&st.ColdMemories,
		&st.AvgImportance,
		&st.AvgEmotionIntensity,
		&st.ActiveInterfaces,
		&earliest,
		&latest,
	)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "computing memory stats: %w", err)
	}
	st.EarliestMemory = parseTime(earliest)
	st.LatestMemory = parseTime(latest)

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&st.TotalSessions); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "counting sessions: %w", err)
	}

	return &st, nil
}

// scanner abstracts *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanMemory(row scanner) (*store.Memory, error) {
	var (
		m                                       store.Memory
		secondary, reasons, annotations, mods   string
		realm, createdAt, updatedAt, lastAccess string
		forget, indexed                         int
	)

	err := row.Scan(
		&m.ID, &m.SessionID, &m.Interface, &m.Context, &m.WithWhom, &m.WhatHappened, &m.TextContent,
		&m.ExperienceType, &m.DurationSeconds, &m.EmotionPrimary, &m.EmotionIntensity, &m.EmotionWhy, &secondary,
		&m.Importance, &reasons, &annotations, &m.VisualPath, &m.AudioPath, &m.VideoPath, &mods,
		&realm, &createdAt, &updatedAt, &m.AccessCount, &lastAccess, &forget, &indexed,
	)
	if err != nil {
		return nil, err
	}

	if err := unmarshalStrings(secondary, &m.EmotionSecondary); err != nil {
		return nil, fmt.Errorf("unmarshalling secondary emotions: %w", err)
	}
	if err := unmarshalStrings(reasons, &m.ImportanceReasons); err != nil {
		return nil, fmt.Errorf("unmarshalling importance reasons: %w", err)
	}
	if annotations != "" && annotations != "[]" {
		if err := json.Unmarshal([]byte(annotations), &m.Annotations); err != nil {
			return nil, fmt.Errorf("unmarshalling annotations: %w", err)
		}
	}
	if err := unmarshalStrings(mods, &m.Modalities); err != nil {
		return nil, fmt.Errorf("unmarshalling modalities: %w", err)
	}

	m.PrivacyRealm = store.PrivacyRealm(realm)
	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	m.LastAccessed = parseTime(lastAccess)
	m.ShouldForget = forget != 0
	m.Indexed = indexed != 0

	return &m, nil
}

func marshalStrings(ss []string) (string, error) {
	if len(ss) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(ss)
	return string(b), err
}

func unmarshalStrings(s string, dst *[]string) error {
	if s == "" || s == "[]" {
		return nil
	}
	return json.Unmarshal([]byte(s), dst)
}

func marshalAnnotations(as []store.Annotation) (string, error) {
	if len(as) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(as)
	return string(b), err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// formatTime serialises a time.Time to RFC3339 with nanosecond precision.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime deserialises a time string stored in the database.
func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
