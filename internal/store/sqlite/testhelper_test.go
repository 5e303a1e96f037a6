// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package sqlite_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/keepsake-dev/keepsake/internal/store"
	"github.com/keepsake-dev/keepsake/internal/store/sqlite"
)

// testDir creates a temp directory for a test and returns cleanup func.
func testDir(t *testing.T) string {
	t.Helper()
	dir, err := os.MkdirTemp("", "keepsake-test-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// testDBPath returns a temp SQLite database path.
func testDBPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(testDir(t), name+".db")
}

// newMemoryStore opens a MemoryStore on a fresh database.
func newMemoryStore(t *testing.T) *sqlite.MemoryStore {
	t.Helper()
	s, err := sqlite.NewMemoryStore(testDBPath(t, "memories"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// newSessionStore opens a SessionStore on a fresh database.
func newSessionStore(t *testing.T) *sqlite.SessionStore {
	t.Helper()
	s, err := sqlite.NewSessionStore(testDBPath(t, "sessions"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testMemory builds a valid memory with the given id, created offset
// minutes into the past so creation order is controllable.
func testMemory(id string, minutesAgo int) *store.Memory {
	created := time.Now().UTC().Add(-time.Duration(minutesAgo) * time.Minute)
	m := &store.Memory{
		ID:               id,
		SessionID:        "sess-" + id,
		Interface:        "cli",
		Context:          "pair programming",
		WithWhom:         "Sam",
		WhatHappened:     "traced a deadlock in the scheduler",
		TextContent:      "traced a deadlock in the scheduler down to a lock ordering bug",
		ExperienceType:   "collaboration",
		EmotionPrimary:   "satisfaction",
		EmotionIntensity: 0.6,
		Importance:       0.5,
		PrivacyRealm:     store.PrivacyRealmPrivate,
		CreatedAt:        created,
		UpdatedAt:        created,
	}
	m.Modalities = m.DeriveModalities()
	return m
}
