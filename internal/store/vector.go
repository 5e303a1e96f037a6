// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import "context"

// VectorIndex is the similarity-search projection of the memory store. It
// holds embeddings and a filterable payload subset, keyed by memory id.
// Entries are disposable: the index can always be rebuilt from the
// relational store, and readers must tolerate entries that point at records
// which no longer exist.
type VectorIndex interface {
	// Upsert writes or replaces the entry for id. The embedding length must
	// match the dimensions the index was opened with.
	Upsert(ctx context.Context, id string, embedding []float32, payload VectorPayload) error

	// Search returns up to k entries nearest to the query embedding that
	// satisfy the filter, ordered by descending similarity.
	Search(ctx context.Context, embedding []float32, k int, f VectorFilter) ([]VectorHit, error)

	// Delete removes the entries for the given ids. Missing ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// IDs returns every id currently present in the index, for the
	// reconciliation sweep.
	IDs(ctx context.Context) ([]string, error)

	Close() error
}
