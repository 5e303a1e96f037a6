// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

// StorageConfig controls which backends the store factories use.
type StorageConfig struct {
	Backend          string // relational backend; "" defaults to "sqlite"
	VectorBackend    string // vector backend; "" defaults to the relational backend
	VectorDimensions int    // embedding dimensions; 0 uses the default (384)
}
