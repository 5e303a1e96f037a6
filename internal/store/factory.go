// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import (
	"fmt"
	"sync"
)

// defaultVectorDimensions matches the all-MiniLM-L6-v2 sentence embedding size.
const defaultVectorDimensions = 384

// RelationalFactory creates the relational stores given a data directory.
type RelationalFactory func(dataPath string) (MemoryStore, SessionStore, error)

// VectorFactory creates a vector index given a data directory and the
// embedding dimensions.
type VectorFactory func(dataPath string, vectorDims int) (VectorIndex, error)

var (
	relationalFactories = map[string]RelationalFactory{}
	vectorFactories     = map[string]VectorFactory{}
	factoriesMu         sync.RWMutex
)

// RegisterBackend registers a relational store factory for a named backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterBackend(name string, f RelationalFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	relationalFactories[name] = f
}

// RegisterVectorBackend registers a vector index factory for a named backend.
// Backend packages call this from init(). This function is goroutine-safe.
func RegisterVectorBackend(name string, f VectorFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	vectorFactories[name] = f
}

// resolveBackend returns the effective relational backend name, defaulting
// to "sqlite".
func resolveBackend(cfg *StorageConfig) string {
	if cfg.Backend == "" {
		return "sqlite"
	}
	return cfg.Backend
}

// resolveVectorBackend returns the effective vector backend name. When unset
// it follows the relational backend, so a plain sqlite config gets the
// sqlite-vec index without naming it twice.
func resolveVectorBackend(cfg *StorageConfig) string {
	if cfg.VectorBackend == "" {
		return resolveBackend(cfg)
	}
	return cfg.VectorBackend
}

// NewStores creates the relational stores for the configured backend.
// The dataPath directory is used to derive database file paths.
func NewStores(cfg *StorageConfig, dataPath string) (MemoryStore, SessionStore, error) {
	backend := resolveBackend(cfg)

	factoriesMu.RLock()
	factory, ok := relationalFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("unsupported storage backend: %q", backend)
	}

	return factory(dataPath)
}

// NewVectorIndex creates the vector index for the configured backend.
func NewVectorIndex(cfg *StorageConfig, dataPath string) (VectorIndex, error) {
	backend := resolveVectorBackend(cfg)

	factoriesMu.RLock()
	factory, ok := vectorFactories[backend]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported vector backend: %q", backend)
	}

	dims := defaultVectorDimensions
	if cfg.VectorDimensions > 0 {
		dims = cfg.VectorDimensions
	}

	return factory(dataPath, dims)
}
