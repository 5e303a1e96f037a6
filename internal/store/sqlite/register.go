// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite

import (
	"fmt"
	"path/filepath"

	"github.com/keepsake-dev/keepsake/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", newRelationalStores)
	store.RegisterVectorBackend("sqlite", newVectorIndex)
}

func newRelationalStores(dataPath string) (store.MemoryStore, store.SessionStore, error) {
	// Memories and sessions share one database file so the stats query can
	// span both tables.
	db, err := openDB(filepath.Join(dataPath, "memories.db"))
	if err != nil {
		return nil, nil, fmt.Errorf("opening memories db: %w", err)
	}

	ms, err := NewMemoryStoreWithDB(db)
	if err != nil {
		return nil, nil, fmt.Errorf("creating memory store: %w", err)
	}

	ss, err := NewSessionStoreWithDB(db)
	if err != nil {
		_ = ms.Close()
		return nil, nil, fmt.Errorf("creating session store: %w", err)
	}

	return ms, ss, nil
}

func newVectorIndex(dataPath string, vectorDims int) (store.VectorIndex, error) {
	return NewVectorIndex(filepath.Join(dataPath, "vectors.db"), vectorDims)
}
