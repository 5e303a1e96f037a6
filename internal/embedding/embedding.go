// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

// Package embedding turns narrative text into fixed-size vectors for the
// vector index. Providers are selected by config; all of them return
// unit-normalised vectors so cosine similarity is meaningful across
// backends.
package embedding

import (
	"context"
	"math"

	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// Embedder converts text into an embedding vector.
type Embedder interface {
	// Embed returns the embedding for text. The returned slice always has
	// Dimensions() elements.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int

	Close() error
}

// Config selects and parameterises an embedding provider.
type Config struct {
	// Provider is one of "hash", "openai", "onnx".
	Provider string

	// Model names the remote model (openai) or is informational (onnx).
	Model string

	// Dimensions is the embedding vector size; 0 uses the provider default.
	Dimensions int

	// APIKey authenticates the openai provider. Empty falls back to the
	// OPENAI_API_KEY environment variable handled by the SDK.
	APIKey string

	// ModelPath and TokenizerPath locate the local onnx model files.
	ModelPath     string
	TokenizerPath string

	// LibraryPath locates the onnxruntime shared library.
	LibraryPath string

	// CacheEnabled wraps the provider in a read-through cache.
	CacheEnabled bool

	// CacheMaxEntries bounds the cache; 0 uses the default.
	CacheMaxEntries int64
}

// New builds the configured embedder, applying the cache decorator when
// enabled.
func New(cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)

	switch cfg.Provider {
	case "", "hash":
		e = NewHashEmbedder(cfg.Dimensions)
	case "openai":
		e, err = NewOpenAIEmbedder(cfg)
	case "onnx":
		e, err = newONNXEmbedder(cfg)
	default:
		return nil, kerr.Errorf(kerr.CodeEmbeddingProviderUnknown, "unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	if cfg.CacheEnabled {
		e, err = NewCached(e, cfg.CacheMaxEntries)
		if err != nil {
			return nil, err
		}
	}

	return e, nil
}

// normalize converts a vector to unit length in place and returns it.
func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}

	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}

	return vec
}
