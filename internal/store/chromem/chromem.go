// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

// Package chromem provides a store.VectorIndex backend on chromem-go, a
// pure-Go embedded vector database. It needs no cgo, which makes it the
// backend of choice where sqlite-vec cannot be compiled.
package chromem

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	chromemgo "github.com/philippgille/chromem-go"

	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

const collectionName = "memories"

func init() {
	store.RegisterVectorBackend("chromem", func(dataPath string, vectorDims int) (store.VectorIndex, error) {
		return NewVectorIndex(filepath.Join(dataPath, "chromem"), vectorDims)
	})
}

// Compile-time interface check.
var _ store.VectorIndex = (*VectorIndex)(nil)

// VectorIndex implements store.VectorIndex backed by a persistent chromem-go
// collection. Embeddings are supplied by the caller, so the collection is
// created without an embedding function.
type VectorIndex struct {
	db         *chromemgo.DB
	col        *chromemgo.Collection
	dimensions int
}

// NewVectorIndex opens (or creates) a persistent chromem database under dir.
func NewVectorIndex(dir string, dimensions int) (*VectorIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("vector dimensions must be positive, got %d: %w", dimensions, store.ErrInvalidInput)
	}

	db, err := chromemgo.NewPersistentDB(dir, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem db: %w", err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("opening chromem collection: %w", err)
	}

	return &VectorIndex{db: db, col: col, dimensions: dimensions}, nil
}

func (v *VectorIndex) Upsert(ctx context.Context, id string, embedding []float32, payload store.VectorPayload) error {
	if len(embedding) != v.dimensions {
		return fmt.Errorf("embedding has %d dimensions, index expects %d: %w",
			len(embedding), v.dimensions, store.ErrInvalidInput)
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "marshalling vector payload: %w", err)
	}

	doc := chromemgo.Document{
		ID:        id,
		Content:   string(payloadJSON),
		Embedding: embedding,
		Metadata: map[string]string{
			"interface":       payload.Interface,
			"experience_type": payload.ExperienceType,
			"emotion":         payload.Emotion,
			"privacy_realm":   payload.PrivacyRealm,
			"importance":      strconv.FormatFloat(payload.Importance, 'f', -1, 64),
		},
	}

	// AddDocument replaces an existing document with the same id.
	if err := v.col.AddDocument(ctx, doc); err != nil {
		return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "adding chromem document %s: %w", id, err)
	}
	return nil
}

// Search runs a KNN query. Equality filters (interface, privacy realm) are
// pushed into the chromem where clause; the importance bound is applied here
// because chromem metadata filters are equality-only.
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

	count := v.col.Count()
	if count == 0 {
		return nil, nil
	}

	where := map[string]string{}
	if f.Interface != "" {
		where["interface"] = f.Interface
	}
	if f.PrivacyRealm != "" {
		where["privacy_realm"] = f.PrivacyRealm
	}

	// chromem rejects nResults larger than the collection, and the
	// importance cut below may discard results, so over-fetch to the full
	// collection when a bound is set.
	n := k
	if f.MinImportance > 0 || n > count {
		n = count
	}

	results, err := v.col.QueryEmbedding(ctx, query, n, where, nil)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "querying chromem: %w", err)
	}

	hits := make([]store.VectorHit, 0, len(results))
	for _, r := range results {
		importance, _ := strconv.ParseFloat(r.Metadata["importance"], 64)
		if f.MinImportance > 0 && importance < f.MinImportance {
			continue
		}

		hit := store.VectorHit{ID: r.ID, Score: float64(r.Similarity)}
		if r.Content != "" {
			if err := json.Unmarshal([]byte(r.Content), &hit.Payload); err != nil {
				return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "unmarshalling vector payload: %w", err)
			}
		}

		hits = append(hits, hit)
		if len(hits) == k {
			break
		}
	}

	return hits, nil
}

func (v *VectorIndex) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	// Delete ids one at a time; chromem treats an unknown id in a batch as
	// an error, while the contract says missing ids are ignored.
	for _, id := range ids {
		if _, err := v.col.GetByID(ctx, id); err != nil {
			continue
		}
		if err := v.col.Delete(ctx, nil, nil, id); err != nil {
			return kerr.Errorf(kerr.CodeStoreDatabaseFailure, "deleting chromem document %s: %w", id, err)
		}
	}
	return nil
}

// IDs enumerates the collection. chromem has no listing API, so this runs a
// full-range KNN query (k = collection size) with an arbitrary unit query.
func (v *VectorIndex) IDs(ctx context.Context) ([]string, error) {
	count := v.col.Count()
	if count == 0 {
		return nil, nil
	}

	probe := make([]float32, v.dimensions)
	probe[0] = 1

	results, err := v.col.QueryEmbedding(ctx, probe, count, nil, nil)
	if err != nil {
		return nil, kerr.Errorf(kerr.CodeStoreDatabaseFailure, "enumerating chromem documents: %w", err)
	}

	ids := make([]string, 0, len(results))
	for _, r := range results {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// Close releases nothing; chromem persists on every write.
func (v *VectorIndex) Close() error {
	return nil
}
