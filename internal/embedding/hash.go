// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// defaultDimensions matches the all-MiniLM-L6-v2 sentence embedding size.
const defaultDimensions = 384

// HashEmbedder generates deterministic pseudo-random embeddings from a text
// hash. It has no semantic meaning, but identical text always maps to the
// identical unit vector, which is what development setups and tests need.
type HashEmbedder struct {
	dimensions int
}

// NewHashEmbedder creates a hash embedder. dimensions <= 0 uses the default.
func NewHashEmbedder(dimensions int) *HashEmbedder {
	if dimensions <= 0 {
		dimensions = defaultDimensions
	}
	return &HashEmbedder{dimensions: dimensions}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	hasher.Write([]byte(text))

	// LCG seeded by the text hash gives a stable pseudo-random vector.
	seed := hasher.Sum64()
	embedding := make([]float32, h.dimensions)
	for i := range embedding {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// Dimensions returns the embedding vector size.
func (h *HashEmbedder) Dimensions() int {
	return h.dimensions
}

func (h *HashEmbedder) Close() error {
	return nil
}
