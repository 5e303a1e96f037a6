// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keepsake-dev/keepsake/internal/store"
)

func TestCreateAndGetSession(t *testing.T) {
	s := newSessionStore(t)
	ctx := context.Background()

	sess := &store.Session{
		ID:        "sess-1",
		Interface: "cli",
		StartedAt: time.Now().UTC().Add(-time.Hour),
	}
	require.NoError(t, s.CreateSession(ctx, sess))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", got.ID)
	assert.Equal(t, "cli", got.Interface)
	assert.WithinDuration(t, sess.StartedAt, got.StartedAt, time.Millisecond)
	assert.False(t, got.Ended())
	assert.Zero(t, got.MemoryCount)
}

func TestCreateSessionDuplicateConflicts(t *testing.T) {
	s := newSessionStore(t)
	ctx := context.Background()

	sess := &store.Session{ID: "sess-1", Interface: "cli", StartedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSession(ctx, sess))
	assert.ErrorIs(t, s.CreateSession(ctx, sess), store.ErrConflict)
}

func TestGetSessionNotFound(t *testing.T) {
	s := newSessionStore(t)

	_, err := s.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEndSession(t *testing.T) {
	s := newSessionStore(t)
	ctx := context.Background()

	sess := &store.Session{ID: "sess-1", Interface: "cli", StartedAt: time.Now().UTC().Add(-time.Hour)}
	require.NoError(t, s.CreateSession(ctx, sess))

	ended, err := s.EndSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, ended.Ended())
	firstEnd := ended.EndedAt

	// Ending again keeps the original end time.
	again, err := s.EndSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, firstEnd, again.EndedAt)

	_, err = s.EndSession(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestIncrementMemoryCount(t *testing.T) {
	s := newSessionStore(t)
	ctx := context.Background()

	sess := &store.Session{ID: "sess-1", Interface: "cli", StartedAt: time.Now().UTC()}
	require.NoError(t, s.CreateSession(ctx, sess))

	require.NoError(t, s.IncrementMemoryCount(ctx, "sess-1"))
	require.NoError(t, s.IncrementMemoryCount(ctx, "sess-1"))

	got, err := s.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.MemoryCount)

	assert.ErrorIs(t, s.IncrementMemoryCount(ctx, "missing"), store.ErrNotFound)
}
