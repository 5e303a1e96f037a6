// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"

	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

func init() {
	sqlite_vec.Auto()
}

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by SQLite with sqlite-vec.
// The vec0 virtual table carries the filterable payload fields as metadata
// columns so filters are applied inside the KNN scan; the full payload JSON
// lives in a companion table.
type VectorIndex struct {
	db         *sql.DB
	dimensions int
}

// NewVectorIndex opens (or creates) a SQLite database at dbPath and
// initialises the vec0 virtual table and companion payload table.
func NewVectorIndex(dbPath string, dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d: %w", dimensions, store.ErrInvalidInput)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	if err := migrateVector(db, dimensions); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating vector tables: %w", err)
	}

	return &VectorIndex{db: db, dimensions: dimensions}, nil
}

func migrateVector(db *sql.DB, dimensions int) error {
	vecDDL := fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS memory_vectors USING vec0(
	id TEXT PRIMARY KEY,
	embedding float[%d] distance_metric=cosine,
	interface TEXT,
	experience_type TEXT,
	emotion TEXT,
	importance FLOAT,
	privacy_realm TEXT
)`, dimensions)
	if _, err := db.Exec(vecDDL); err != nil {
		return fmt.Errorf("creating memory_vectors virtual table: %w", err)
	}

	const payloadDDL = `
CREATE TABLE IF NOT EXISTS vector_payloads (
	id      TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '{}'
)`
	if _, err := db.Exec(payloadDDL); err != nil {
		return fmt.Errorf("creating vector_payloads table: %w", err)
	}

	return nil
}

// Upsert inserts or replaces an entry and its payload.
func (v *VectorIndex) Upsert(ctx context.Context, id string, embedding []float32, payload store.VectorPayload) error {
	if len(embedding) != v.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d: %w",
			len(embedding), v.dimensions, store.ErrInvalidInput)
	}

	blob, err := sqlite_vec.SerializeFloat32(embedding)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "serializing embedding: %w", err)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling vector payload: %w", err)
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// vec0 does not support ON CONFLICT; delete first for upsert.
	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id = ?`, id); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "deleting existing vector %s: %w", id, err)
	}

	const insQ = `INSERT INTO memory_vectors(id, embedding, interface, experience_type, emotion, importance, privacy_realm)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := tx.ExecContext(ctx, insQ, id, blob,
		payload.Interface, payload.ExperienceType, payload.Emotion,
		payload.Importance, payload.PrivacyRealm,
	); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "inserting vector %s: %w", id, err)
	}

	const payloadQ = `INSERT INTO vector_payloads(id, payload) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET payload = excluded.payload`
	if _, err := tx.ExecContext(ctx, payloadQ, id, string(payloadJSON)); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "upserting vector payload %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "committing vector upsert: %w", err)
	}
	return nil
}

// Search performs a k-nearest-neighbor scan with the filter pushed into the
// vec0 metadata columns. Results come back ordered by descending cosine
// similarity (1 - distance).
func (v *VectorIndex) Search(ctx context.Context, query []float32, k int, f store.VectorFilter) ([]store.VectorHit, error) {
	if len(query) != v.dimensions {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d: %w",
			len(query), v.dimensions, store.ErrInvalidInput)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if k <= 0 {
		k = store.DefaultListLimit
	}

	blob, err := sqlite_vec.SerializeFloat32(query)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "serializing query vector: %w", err)
	}

	conds := []string{"v.embedding MATCH ?", "k = ?"}
	args := []any{blob, k}

	if f.Interface != "" {
		conds = append(conds, "v.interface = ?")
		args = append(args, f.Interface)
	}
	if f.PrivacyRealm != "" {
		conds = append(conds, "v.privacy_realm = ?")
		args = append(args, f.PrivacyRealm)
	}
	if f.MinImportance > 0 {
		conds = append(conds, "v.importance >= ?")
		args = append(args, f.MinImportance)
	}

	q := `SELECT v.id, v.distance, COALESCE(p.payload, '{}')
FROM memory_vectors v
LEFT JOIN vector_payloads p ON p.id = v.id
WHERE ` + strings.Join(conds, " AND ") + `
ORDER BY v.distance`

	rows, err := v.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "searching vectors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var hits []store.VectorHit
	for rows.Next() {
		var hit store.VectorHit
		var distance float64
		var payloadStr string

		if err := rows.Scan(&hit.ID, &distance, &payloadStr); err != nil {
			return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "scanning vector hit: %w", err)
		}
		hit.Score = 1 - distance

		if payloadStr != "" && payloadStr != "{}" {
			if err := json.Unmarshal([]byte(payloadStr), &hit.Payload); err != nil {
				return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "unmarshalling vector payload: %w", err)
			}
		}

		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "iterating vector hits: %w", err)
	}

	return hits, nil
}

// Delete removes entries and their payloads by id. Missing ids are ignored.
func (v *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := v.db.BeginTx(ctx, nil)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_vectors WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "deleting vectors: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM vector_payloads WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "deleting vector payloads: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "committing vector delete: %w", err)
	}
	return nil
}

// IDs returns every id in the index. The payload table mirrors the vec0
// table row for row, so it serves as the cheap enumeration source.
func (v *VectorIndex) IDs(ctx context.Context) ([]string, error) {
	rows, err := v.db.QueryContext(ctx, `SELECT id FROM vector_payloads`)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "listing vector ids: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "scanning vector id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "iterating vector ids: %w", err)
	}

	return ids, nil
}

// Close closes the underlying database connection.
func (v *VectorIndex) Close() error {
	return v.db.Close()
}
