// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

// Package memory implements the record lifecycle over the dual-store
// layout: the relational store is the source of truth, the vector index a
// best-effort projection of it. Writes go relational-first; the index write
// that follows may fail or time out without failing the operation.
package memory

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/keepsake-dev/keepsake/internal/embedding"
	"github.com/keepsake-dev/keepsake/internal/store"
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

const (
	defaultEmbedTimeout = 10 * time.Second
	defaultIndexTimeout = 5 * time.Second
)

// Service orchestrates memory creation, retrieval, forgetting, and search
// across the relational store, the vector index, and the embedder.
type Service struct {
	memories store.MemoryStore
	sessions store.SessionStore
	index    store.VectorIndex
	embedder embedding.Embedder
	logger   *slog.Logger

	embedTimeout time.Duration
	indexTimeout time.Duration
}

// Options tunes a Service. Zero values use defaults.
type Options struct {
	Logger       *slog.Logger
	EmbedTimeout time.Duration
	IndexTimeout time.Duration
}

// NewService wires the service from its adapters.
func NewService(memories store.MemoryStore, sessions store.SessionStore, index store.VectorIndex, embedder embedding.Embedder, opts Options) *Service {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	embedTimeout := opts.EmbedTimeout
	if embedTimeout <= 0 {
		embedTimeout = defaultEmbedTimeout
	}
	indexTimeout := opts.IndexTimeout
	if indexTimeout <= 0 {
		indexTimeout = defaultIndexTimeout
	}

	return &Service{
		memories:     memories,
		sessions:     sessions,
		index:        index,
		embedder:     embedder,
		logger:       logger,
		embedTimeout: embedTimeout,
		indexTimeout: indexTimeout,
	}
}

// CreateInput carries the caller-supplied fields of a new memory.
type CreateInput struct {
	SessionID string

	Interface       string
	Context         string
	WithWhom        string
	WhatHappened    string
	TextContent     string // defaults to WhatHappened
	ExperienceType  string
	DurationSeconds int

	EmotionPrimary   string
	EmotionIntensity float64
	EmotionWhy       string
	EmotionSecondary []string

	Importance        float64
	ImportanceReasons []string
	Annotations       []store.Annotation

	VisualPath string
	AudioPath  string
	VideoPath  string

	PrivacyRealm store.PrivacyRealm // defaults to private
}

// Create validates, embeds, and persists a new memory. The record is
// durable once the relational insert commits; the vector index write after
// it is best-effort, and its failure is reported through Indexed == false
// on the returned memory rather than through an error.
func (s *Service) Create(ctx context.Context, in CreateInput) (*store.Memory, error) {
	now := time.Now().UTC()

	m := &store.Memory{
		ID:                uuid.NewString(),
		SessionID:         in.SessionID,
		Interface:         in.Interface,
		Context:           in.Context,
		WithWhom:          in.WithWhom,
		WhatHappened:      in.WhatHappened,
		TextContent:       in.TextContent,
		ExperienceType:    in.ExperienceType,
		DurationSeconds:   in.DurationSeconds,
		EmotionPrimary:    in.EmotionPrimary,
		EmotionIntensity:  in.EmotionIntensity,
		EmotionWhy:        in.EmotionWhy,
		EmotionSecondary:  in.EmotionSecondary,
		Importance:        in.Importance,
		ImportanceReasons: in.ImportanceReasons,
		Annotations:       in.Annotations,
		VisualPath:        in.VisualPath,
		AudioPath:         in.AudioPath,
		VideoPath:         in.VideoPath,
		PrivacyRealm:      in.PrivacyRealm,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if m.TextContent == "" {
		m.TextContent = m.WhatHappened
	}
	if m.PrivacyRealm == "" {
		m.PrivacyRealm = store.PrivacyRealmPrivate
	}
	m.Modalities = m.DeriveModalities()

	if err := m.Validate(); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeMemoryCreateInvalidInput, "validating memory")
	}

	// Embed before touching either store: if the provider is down the
	// operation aborts with nothing written.
	embedCtx, cancel := context.WithTimeout(ctx, s.embedTimeout)
	defer cancel()
	vec, err := s.embedder.Embed(embedCtx, m.TextContent)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeEmbeddingCallFailure, "embedding memory text")
	}

	sessionID, err := s.resolveSession(ctx, m.SessionID, m.Interface, now)
	if err != nil {
		return nil, err
	}
	m.SessionID = sessionID

	// Commit point: after this returns the memory exists, whatever happens
	// to the index write below.
	if err := s.memories.CreateMemory(ctx, m); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "persisting memory", kerr.FieldMemoryID(m.ID))
	}

	if err := s.sessions.IncrementMemoryCount(ctx, m.SessionID); err != nil {
		s.logger.WarnContext(ctx, "failed to bump session memory count",
			"session_id", m.SessionID, "error", err)
	}

	m.Indexed = s.indexMemory(ctx, m, vec)

	return m, nil
}

// indexMemory performs the best-effort vector write. It runs on a context
// detached from the caller so a cancelled request cannot abort the write
// mid-flight, and reports success without ever returning an error.
func (s *Service) indexMemory(ctx context.Context, m *store.Memory, vec []float32) bool {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.indexTimeout)
	defer cancel()

	if err := s.index.Upsert(dctx, m.ID, vec, vectorPayload(m)); err != nil {
		s.logger.WarnContext(ctx, "vector index write failed, memory left unindexed",
			"memory_id", m.ID, "error", err)
		return false
	}

	if err := s.memories.MarkIndexed(dctx, m.ID, true); err != nil {
		s.logger.WarnContext(ctx, "failed to mark memory indexed",
			"memory_id", m.ID, "error", err)
		return false
	}

	return true
}

// resolveSession returns the session id the memory belongs to, creating a
// session when the id is empty or not yet known.
func (s *Service) resolveSession(ctx context.Context, sessionID, iface string, now time.Time) (string, error) {
	if sessionID == "" {
		sess := &store.Session{ID: uuid.NewString(), Interface: iface, StartedAt: now}
		if err := s.sessions.CreateSession(ctx, sess); err != nil {
			return "", kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "creating session")
		}
		return sess.ID, nil
	}

	_, err := s.sessions.GetSession(ctx, sessionID)
	if err == nil {
		return sessionID, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return "", kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "resolving session", kerr.FieldSessionID(sessionID))
	}

	// First memory of an unknown session id creates the session under that
	// id, so clients can mint their own session ids.
	sess := &store.Session{ID: sessionID, Interface: iface, StartedAt: now}
	if err := s.sessions.CreateSession(ctx, sess); err != nil && !errors.Is(err, store.ErrConflict) {
		return "", kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "creating session", kerr.FieldSessionID(sessionID))
	}
	return sessionID, nil
}

// Get returns a live memory and records the access.
func (s *Service) Get(ctx context.Context, id string) (*store.Memory, error) {
	m, err := s.memories.GetMemory(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, kerr.New(kerr.CodeMemoryGetNotFound, "memory not found", kerr.FieldMemoryID(id))
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "loading memory", kerr.FieldMemoryID(id))
	}

	if err := s.memories.TouchMemory(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to record memory access", "memory_id", id, "error", err)
	} else {
		m.AccessCount++
		m.LastAccessed = time.Now().UTC()
	}

	return m, nil
}

// Forget tombstones a memory. It reports false when the id is unknown or
// already forgotten; the caller decides whether that is an error. The
// matching vector entry is removed best-effort — a leftover entry is
// harmless because search drops hits whose record is tombstoned, and the
// reconciliation sweep removes it eventually.
func (s *Service) Forget(ctx context.Context, id string) (bool, error) {
	changed, err := s.memories.MarkForgotten(ctx, id)
	if err != nil {
		return false, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "tombstoning memory", kerr.FieldMemoryID(id))
	}
	if !changed {
		return false, nil
	}

	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.indexTimeout)
	defer cancel()
	if err := s.index.Delete(dctx, id); err != nil {
		s.logger.WarnContext(ctx, "vector index delete failed, sweep will catch it",
			"memory_id", id, "error", err)
	} else if err := s.memories.MarkIndexed(dctx, id, false); err != nil {
		s.logger.WarnContext(ctx, "failed to clear indexed marker", "memory_id", id, "error", err)
	}

	return true, nil
}

// Stats returns the aggregate snapshot of the relational store.
func (s *Service) Stats(ctx context.Context) (*store.Stats, error) {
	st, err := s.memories.Stats(ctx)
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "computing stats")
	}
	return st, nil
}

// StartSession explicitly opens a session.
func (s *Service) StartSession(ctx context.Context, iface string) (*store.Session, error) {
	sess := &store.Session{ID: uuid.NewString(), Interface: iface, StartedAt: time.Now().UTC()}
	if err := sess.Validate(); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeSessionInvalidInput, "validating session")
	}
	if err := s.sessions.CreateSession(ctx, sess); err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "creating session")
	}
	return sess, nil
}

// GetSession returns a session by id.
func (s *Service) GetSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := s.sessions.GetSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, kerr.New(kerr.CodeSessionGetNotFound, "session not found", kerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "loading session", kerr.FieldSessionID(id))
	}
	return sess, nil
}

// EndSession closes a session; ending twice is a no-op.
func (s *Service) EndSession(ctx context.Context, id string) (*store.Session, error) {
	sess, err := s.sessions.EndSession(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, kerr.New(kerr.CodeSessionEndNotFound, "session not found", kerr.FieldSessionID(id))
	}
	if err != nil {
		return nil, kerr.Wrap(err, kerr.CodeStoreDatabaseFailure, "ending session", kerr.FieldSessionID(id))
	}
	return sess, nil
}

// vectorPayload projects the filterable subset of a memory for the index.
func vectorPayload(m *store.Memory) store.VectorPayload {
	return store.VectorPayload{
		Interface:      m.Interface,
		ExperienceType: m.ExperienceType,
		Emotion:        m.EmotionPrimary,
		Importance:     m.Importance,
		PrivacyRealm:   string(m.PrivacyRealm),
		CreatedAt:      m.CreatedAt,
	}
}
