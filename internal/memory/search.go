// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package memory

import (
	"context"
	"errors"
	"sort"

	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// SearchInput describes a semantic search.
type SearchInput struct {
	Query string
	Limit int

	// Filters pushed down into the index scan.
	Interface     string
	PrivacyRealm  string
	MinImportance float64
}

// SearchResult pairs a re-hydrated memory with its similarity score.
type SearchResult struct {
	Memory *store.Memory
	Score  float64
}

// Search embeds the query, scans the vector index with the filters pushed
// down, and re-hydrates each hit from the relational store. Hits whose
// record is gone or tombstoned are dropped silently — the index is a
// projection and may lag behind the truth. The short page that results is
// accepted rather than re-queried.
func (s *Service) Search(ctx context.Context, in SearchInput) ([]SearchResult, error) {
	if in.Query == "" {
		return nil, kerr.New(kerr.CodeMemorySearchInvalidInput, "search query must not be empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}

	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(embedCtx, in.Query)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "embedding search query")
	}

	filter := store.VectorFilter{
		Interface:     in.Interface,
		PrivacyRealm:  in.PrivacyRealm,
		MinImportance: in.MinImportance,
	}
	hits, err := s.index.Search(ctx, vec, limit, filter)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreVectorUnavailable, "searching vector index")
	}

	results := make([]SearchResult, 0, len(hits))
	for _, hit := range hits {
		m, err := s.memories.GetMemory(ctx, hit.ID)
		if errors.Is(err, store.ErrNotFound) {
			// Dangling index entry; the sweep will remove it.
			continue
		}
		if err != nil {
			return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "re-hydrating search hit", kerr.FieldMemoryID(hit.ID))
		}

		if err := s.memories.TouchMemory(ctx, hit.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to record memory access", "memory_id", hit.ID, "error", err)
		} else {
			m.AccessCount++
		}

		results = append(results, SearchResult{Memory: m, Score: hit.Score})
	}

	// The index already orders by score; re-sorting pins the tie-break to
	// newer-first so equal scores come back in a stable order.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	return results, nil
}

// List returns live memories matching the filter, newest first, along with
// the total count matching the filter.
func (s *Service) List(ctx context.Context, f store.Filter, opts store.ListOpts) ([]*store.Memory, int64, error) {
	if err := f.Validate(); err != nil {
		return nil, 0, kerr.Wrap(err, kerr.CodeServerRequestInvalid, "validating filter")
	}

	memories, err := s.memories.ListMemories(ctx, f, opts)
	if err != nil {
		return nil, 0, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "listing memories")
	}

	total, err := s.memories.CountMemories(ctx, f)
	if err != nil {
		return nil, 0, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "counting memories")
	}

	return memories, total, nil
}

// Recent returns the newest memories, optionally scoped to one interface.
func (s *Service) Recent(ctx context.Context, iface string, limit int) ([]*store.Memory, error) {
	memories, err := s.memories.ListMemories(ctx, store.Filter{Interface: iface}, store.ListOpts{Limit: limit})
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "listing recent memories")
	}
	return memories, nil
}
