// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package embedding

import (
	"context"

	"github.com/dgraph-io/ristretto"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

const defaultCacheMaxEntries = 4096

// Cached is a read-through embedding cache. Memory narratives repeat in
// search queries and reconciliation sweeps; caching by text avoids paying
// the provider round-trip for text already embedded this process.
type Cached struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCached wraps an embedder with a bounded ristretto cache.
func NewCached(inner Embedder, maxEntries int64) (*Cached, error) {
	if maxEntries <= 0 {
		maxEntries = defaultCacheMaxEntries
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "creating embedding cache")
	}

	return &Cached{inner: inner, cache: cache}, nil
}

func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := c.cache.Get(text); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	c.cache.Set(text, vec, 1)
	return vec, nil
}

// Dimensions returns the inner embedder's vector size.
func (c *Cached) Dimensions() int {
	return c.inner.Dimensions()
}

// Wait blocks until buffered cache writes are applied. Tests use it to make
// hit/miss behaviour deterministic.
func (c *Cached) Wait() {
	c.cache.Wait()
}

func (c *Cached) Close() error {
	c.cache.Close()
	return c.inner.Close()
}
