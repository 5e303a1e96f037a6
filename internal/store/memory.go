// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import "context"

// MemoryStore is the relational source of truth for memories. A record
// exists the moment CreateMemory returns; everything else in the system is
// derived from it and rebuildable.
type MemoryStore interface {
	// CreateMemory persists a validated memory. The record becomes durable
	// and retrievable before any vector indexing happens.
	CreateMemory(ctx context.Context, m *Memory) error

	// GetMemory returns a live memory by id. Tombstoned records behave as
	// absent: ErrNotFound.
	GetMemory(ctx context.Context, id string) (*Memory, error)

	// TouchMemory increments the access count and stamps the last-access
	// time. ErrNotFound if the record is absent or tombstoned.
	TouchMemory(ctx context.Context, id string) error

	// MarkForgotten sets the tombstone on a live record. It returns false
	// (and no error) when the record is absent or already tombstoned, so
	// callers can distinguish a real state change from a no-op.
	MarkForgotten(ctx context.Context, id string) (bool, error)

	// MarkIndexed records whether the memory currently has a vector index
	// entry.
	MarkIndexed(ctx context.Context, id string, indexed bool) error

	// ListMemories returns live memories matching the filter, newest first.
	ListMemories(ctx context.Context, f Filter, opts ListOpts) ([]*Memory, error)

	// CountMemories returns the number of live memories matching the filter.
	CountMemories(ctx context.Context, f Filter) (int64, error)

	// ListUnindexed returns up to limit live memories with Indexed == false,
	// oldest first, for the reconciliation sweep.
	ListUnindexed(ctx context.Context, limit int) ([]*Memory, error)

	// FilterLive reports which of the given ids belong to live (present,
	// non-tombstoned) records.
	FilterLive(ctx context.Context, ids []string) (map[string]struct{}, error)

	// Stats returns an aggregate snapshot of the store.
	Stats(ctx context.Context) (*Stats, error)

	Close() error
}
