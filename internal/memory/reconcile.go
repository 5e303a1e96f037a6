// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package memory

import (
	"context"
	"log/slog"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

const defaultReconcileBatch = 100

// Reconciler brings the vector index back in line with the relational
// store: it removes index entries whose record is gone or tombstoned, and
// re-embeds live records the index never absorbed. Running it twice in a
// row is a no-op, and it never mutates the relational store beyond the
// indexed marker.
type Reconciler struct {
	memories store.MemoryStore
	index    store.VectorIndex
	embedder embedding.Embedder
	logger   *slog.Logger

	batchSize int
}

// ReconcilerOptions tunes a Reconciler. Zero values use defaults.
type ReconcilerOptions struct {
	Logger    *slog.Logger
	BatchSize int
}

// NewReconciler wires a reconciler from its adapters.
func NewReconciler(memories store.MemoryStore, index store.VectorIndex, embedder embedding.Embedder, opts ReconcilerOptions) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	batch := opts.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &Reconciler{
		memories:  memories,
		index:     index,
		embedder:  embedder,
		logger:    logger,
		batchSize: batch,
	}
}

// Report summarises one sweep.
type Report struct {
	// Removed counts index entries deleted because their record is absent
	// or tombstoned.
	Removed int

	// Reindexed counts live records re-embedded and upserted.
	Reindexed int

	// Failed counts records whose re-index attempt failed; they stay
	// unindexed for the next sweep.
	Failed int
}

// Run performs one full sweep. It is safe to run while live traffic
// continues to create and forget memories.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	if err := r.removeStale(ctx, report); err != nil {
		return nil, err
	}
	if err := r.reindexMissing(ctx, report); err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "reconciliation sweep finished",
		"removed", report.Removed, "reindexed", report.Reindexed, "failed", report.Failed)

	return report, nil
}

// removeStale deletes index entries that no longer correspond to a live
// record.
func (r *Reconciler) removeStale(ctx context.Context, report *Report) error {
	ids, err := r.index.IDs(ctx)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeStoreVectorUnavailable, "enumerating index entries")
	}
	if len(ids) == 0 {
		return nil
	}

	live, err := r.memories.FilterLive(ctx, ids)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "checking live records")
	}

	var stale []string
	for _, id := range ids {
		if _, ok := live[id]; !ok {
			stale = append(stale, id)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	if err := r.index.Delete(ctx, stale...); err != nil {
		return kerr.Wrap(err, kerr.CodeStoreVectorUnavailable, "deleting stale index entries")
	}
	report.Removed = len(stale)

	return nil
}

// reindexMissing embeds and upserts live records with no index entry.
// Records whose attempt fails are remembered within the sweep so the batch
// loop terminates even though they remain unindexed.
func (r *Reconciler) reindexMissing(ctx context.Context, report *Report) error {
	attempted := make(map[string]struct{})

	for {
		batch, err := r.memories.ListUnindexed(ctx, r.batchSize)
		if err != nil {
			return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "listing unindexed memories")
		}

		progressed := false
		for _, m := range batch {
			if _, seen := attempted[m.ID]; seen {
				continue
			}
			attempted[m.ID] = struct{}{}
			progressed = true

			if err := r.reindexOne(ctx, m); err != nil {
				r.logger.WarnContext(ctx, "re-index failed, leaving record for next sweep",
					"memory_id", m.ID, "error", err)
				report.Failed++
				continue
			}
			report.Reindexed++
		}

		if !progressed || len(batch) < r.batchSize {
			return nil
		}
	}
}

func (r *Reconciler) reindexOne(ctx context.Context, m *store.Memory) error {
	vec, err := r.embedder.Embed(ctx, m.TextContent)
	if err != nil {
		return kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "embedding memory text")
	}

	if err := r.index.Upsert(ctx, m.ID, vec, vectorPayload(m)); err != nil {
		return kerr.Wrap(err, kerr.CodeStoreVectorUnavailable, "upserting index entry")
	}

	if err := r.memories.MarkIndexed(ctx, m.ID, true); err != nil {
		return kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "marking record indexed")
	}

	return nil
}
