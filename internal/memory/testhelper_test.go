// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package memory_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/memory"
	"github.com/keepsake-dev/keepsake/internal/store"
)

// fakeMemoryStore is an in-memory store.MemoryStore for service tests.
type fakeMemoryStore struct {
	mu       sync.Mutex
	memories map[string]*store.Memory
}

func newFakeMemoryStore() *fakeMemoryStore {
	return &fakeMemoryStore{memories: make(map[string]*store.Memory)}
}

func (f *fakeMemoryStore) CreateMemory(_ context.Context, m *store.Memory) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.memories[m.ID]; ok {
		return store.ErrConflict
	}
	cp := *m
	f.memories[m.ID] = &cp
	return nil
}

func (f *fakeMemoryStore) GetMemory(_ context.Context, id string) (*store.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.ShouldForget {
		return nil, store.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMemoryStore) TouchMemory(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.ShouldForget {
		return store.ErrNotFound
	}
	m.AccessCount++
	m.LastAccessed = time.Now().UTC()
	return nil
}

func (f *fakeMemoryStore) MarkForgotten(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok || m.ShouldForget {
		return false, nil
	}
	m.ShouldForget = true
	return true, nil
}

func (f *fakeMemoryStore) MarkIndexed(_ context.Context, id string, indexed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.memories[id]
	if !ok {
		return store.ErrNotFound
	}
	m.Indexed = indexed
	return nil
}

func (f *fakeMemoryStore) ListMemories(_ context.Context, filter store.Filter, opts store.ListOpts) ([]*store.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*store.Memory
	for _, m := range f.memories {
		if matchesFilter(m, filter) {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	limit := opts.Limit
	if limit <= 0 {
		limit = store.DefaultListLimit
	}
	if opts.Offset >= len(out) {
		return nil, nil
	}
	out = out[opts.Offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemoryStore) CountMemories(_ context.Context, filter store.Filter) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, m := range f.memories {
		if matchesFilter(m, filter) {
			n++
		}
	}
	return n, nil
}

func (f *fakeMemoryStore) ListUnindexed(_ context.Context, limit int) ([]*store.Memory, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*store.Memory
	for _, m := range f.memories {
		if !m.ShouldForget && !m.Indexed {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMemoryStore) FilterLive(_ context.Context, ids []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	live := make(map[string]struct{})
	for _, id := range ids {
		if m, ok := f.memories[id]; ok && !m.ShouldForget {
			live[id] = struct{}{}
		}
	}
	return live, nil
}

func (f *fakeMemoryStore) Stats(_ context.Context) (*store.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := &store.Stats{}
	for _, m := range f.memories {
		if m.ShouldForget {
			continue
		}
		st.TotalMemories++
		st.AvgImportance += m.Importance
	}
	if st.TotalMemories > 0 {
		st.AvgImportance /= float64(st.TotalMemories)
	}
	return st, nil
}

func (f *fakeMemoryStore) Close() error { return nil }

func matchesFilter(m *store.Memory, f store.Filter) bool {
	if m.ShouldForget {
		return false
	}
	if f.Interface != "" && m.Interface != f.Interface {
		return false
	}
	if f.Emotion != "" && m.EmotionPrimary != f.Emotion {
		return false
	}
	if f.ExperienceType != "" && m.ExperienceType != f.ExperienceType {
		return false
	}
	if f.SessionID != "" && m.SessionID != f.SessionID {
		return false
	}
	if m.Importance < f.MinImportance {
		return false
	}
	return true
}

// fakeSessionStore is an in-memory store.SessionStore.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*store.Session
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*store.Session)}
}

func (f *fakeSessionStore) CreateSession(_ context.Context, s *store.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sessions[s.ID]; ok {
		return store.ErrConflict
	}
	cp := *s
	f.sessions[s.ID] = &cp
	return nil
}

func (f *fakeSessionStore) GetSession(_ context.Context, id string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) EndSession(_ context.Context, id string) (*store.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if s.EndedAt.IsZero() {
		s.EndedAt = time.Now().UTC()
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) IncrementMemoryCount(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return store.ErrNotFound
	}
	s.MemoryCount++
	return nil
}

func (f *fakeSessionStore) Close() error { return nil }

// fakeVectorIndex is a brute-force store.VectorIndex with injectable
// failures.
type fakeVectorIndex struct {
	mu      sync.Mutex
	entries map[string]vecEntry

	failUpsert error
	failDelete error
	failSearch error
}

type vecEntry struct {
	embedding []float32
	payload   store.VectorPayload
}

func newFakeVectorIndex() *fakeVectorIndex {
	return &fakeVectorIndex{entries: make(map[string]vecEntry)}
}

func (f *fakeVectorIndex) Upsert(_ context.Context, id string, embedding []float32, payload store.VectorPayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpsert != nil {
		return f.failUpsert
	}
	f.entries[id] = vecEntry{embedding: embedding, payload: payload}
	return nil
}

func (f *fakeVectorIndex) Search(_ context.Context, query []float32, k int, filter store.VectorFilter) ([]store.VectorHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSearch != nil {
		return nil, f.failSearch
	}

	var hits []store.VectorHit
	for id, e := range f.entries {
		if filter.Interface != "" && e.payload.Interface != filter.Interface {
			continue
		}
		if filter.PrivacyRealm != "" && e.payload.PrivacyRealm != filter.PrivacyRealm {
			continue
		}
		if e.payload.Importance < filter.MinImportance {
			continue
		}
		hits = append(hits, store.VectorHit{ID: id, Score: dot(query, e.embedding), Payload: e.payload})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (f *fakeVectorIndex) Delete(_ context.Context, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDelete != nil {
		return f.failDelete
	}
	for _, id := range ids {
		delete(f.entries, id)
	}
	return nil
}

func (f *fakeVectorIndex) IDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeVectorIndex) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.entries[id]
	return ok
}

func (f *fakeVectorIndex) Close() error { return nil }

func dot(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// failingEmbedder always errors.
type failingEmbedder struct{}

func (failingEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embedding provider unreachable")
}
func (failingEmbedder) Dimensions() int { return 32 }
func (failingEmbedder) Close() error    { return nil }

// fixture bundles a service with its fakes.
type fixture struct {
	svc      *memory.Service
	memories *fakeMemoryStore
	sessions *fakeSessionStore
	index    *fakeVectorIndex
	embedder embedding.Embedder
}

func newFixture() *fixture {
	f := &fixture{
		memories: newFakeMemoryStore(),
		sessions: newFakeSessionStore(),
		index:    newFakeVectorIndex(),
		embedder: embedding.NewHashEmbedder(32),
	}
	f.svc = memory.NewService(f.memories, f.sessions, f.index, f.embedder, memory.Options{})
	return f
}

// createInput returns a valid CreateInput with a distinguishing narrative.
func createInput(n int) memory.CreateInput {
	return memory.CreateInput{
		Interface:        "cli",
		WhatHappened:     fmt.Sprintf("shipped the migration tool, attempt %d", n),
		ExperienceType:   "accomplishment",
		EmotionPrimary:   "pride",
		EmotionIntensity: 0.7,
		Importance:       0.6,
	}
}
