// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package server

import (
	"context"
	"time"

	"github.com/keepsake-dev/keepsake/internal/memory"
	"github.com/keepsake-dev/keepsake/internal/store"
)

// MemoryService is the memory surface the HTTP layer depends on.
// *memory.Service satisfies it.
type MemoryService interface {
	Create(ctx context.Context, in memory.CreateInput) (*store.Memory, error)
	Get(ctx context.Context, id string) (*store.Memory, error)
	Forget(ctx context.Context, id string) (bool, error)
	Search(ctx context.Context, in memory.SearchInput) ([]memory.SearchResult, error)
	List(ctx context.Context, f store.Filter, opts store.ListOpts) ([]*store.Memory, int64, error)
	Recent(ctx context.Context, iface string, limit int) ([]*store.Memory, error)
	Stats(ctx context.Context) (*store.Stats, error)
}

// SessionService is the session surface the HTTP layer depends on.
// *memory.Service satisfies it.
type SessionService interface {
	StartSession(ctx context.Context, iface string) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	EndSession(ctx context.Context, id string) (*store.Session, error)
}

// Sweeper triggers an index reconciliation sweep. *memory.Reconciler
// satisfies it.
type Sweeper interface {
	Run(ctx context.Context) (*memory.Report, error)
}

// Services bundles the dependencies the route handlers call into.
type Services struct {
	Memories MemoryService
	Sessions SessionService
	Sweeper  Sweeper
}

// --- Wire representations ---

// MemoryView is the JSON shape of a memory record.
type MemoryView struct {
	ID        string `json:"id"`
	SessionID string `json:"session_id"`

	Interface       string `json:"interface"`
	Context         string `json:"context,omitempty"`
	WithWhom        string `json:"with_whom,omitempty"`
	WhatHappened    string `json:"what_happened"`
	TextContent     string `json:"text_content"`
	ExperienceType  string `json:"experience_type"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`

	EmotionPrimary   string   `json:"emotion_primary"`
	EmotionIntensity float64  `json:"emotion_intensity"`
	EmotionWhy       string   `json:"emotion_why,omitempty"`
	EmotionSecondary []string `json:"emotion_secondary,omitempty"`

	Importance        float64            `json:"importance"`
	ImportanceReasons []string           `json:"importance_reasons,omitempty"`
	Annotations       []store.Annotation `json:"annotations,omitempty"`

	VisualPath string   `json:"visual_path,omitempty"`
	AudioPath  string   `json:"audio_path,omitempty"`
	VideoPath  string   `json:"video_path,omitempty"`
	Modalities []string `json:"modalities"`

	PrivacyRealm string `json:"privacy_realm"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed,omitzero"`
	Indexed      bool      `json:"indexed"`
}

func memoryView(m *store.Memory) MemoryView {
	return MemoryView{
		ID:                m.ID,
		SessionID:         m.SessionID,
		Interface:         m.Interface,
		Context:           m.Context,
		WithWhom:          m.WithWhom,
		WhatHappened:      m.WhatHappened,
		TextContent:       m.TextContent,
		ExperienceType:    m.ExperienceType,
		DurationSeconds:   m.DurationSeconds,
		EmotionPrimary:    m.EmotionPrimary,
		EmotionIntensity:  m.EmotionIntensity,
		EmotionWhy:        m.EmotionWhy,
		EmotionSecondary:  m.EmotionSecondary,
		Importance:        m.Importance,
		ImportanceReasons: m.ImportanceReasons,
		Annotations:       m.Annotations,
		VisualPath:        m.VisualPath,
		AudioPath:         m.AudioPath,
		VideoPath:         m.VideoPath,
		Modalities:        m.Modalities,
		PrivacyRealm:      string(m.PrivacyRealm),
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
		AccessCount:       m.AccessCount,
		LastAccessed:      m.LastAccessed,
		Indexed:           m.Indexed,
	}
}

func memoryViews(ms []*store.Memory) []MemoryView {
	out := make([]MemoryView, 0, len(ms))
	for _, m := range ms {
		out = append(out, memoryView(m))
	}
	return out
}

// SessionView is the JSON shape of a session.
type SessionView struct {
	ID             string    `json:"id"`
	Interface      string    `json:"interface"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at,omitzero"`
	MemoryCount    int64     `json:"memory_count"`
	PrimaryEmotion string    `json:"primary_emotion,omitempty"`
}

func sessionView(s *store.Session) SessionView {
	return SessionView{
		ID:             s.ID,
		Interface:      s.Interface,
		StartedAt:      s.StartedAt,
		EndedAt:        s.EndedAt,
		MemoryCount:    s.MemoryCount,
		PrimaryEmotion: s.PrimaryEmotion,
	}
}

// StatsView is the JSON shape of the stats endpoint.
type StatsView struct {
	TotalMemories int64 `json:"total_memories"`

	HotMemories  int64 `json:"hot_memories"`
	WarmMemories int64 `json:"warm_memories"`
	ColdMemories int64 `json:"cold_memories"`

	AvgImportance       float64 `json:"avg_importance"`
	AvgEmotionIntensity float64 `json:"avg_emotion_intensity"`

	ActiveInterfaces int64 `json:"active_interfaces"`
	TotalSessions    int64 `json:"total_sessions"`

	EarliestMemory time.Time `json:"earliest_memory,omitzero"`
	LatestMemory   time.Time `json:"latest_memory,omitzero"`
}

func statsView(st *store.Stats) StatsView {
	return StatsView{
		TotalMemories:       st.TotalMemories,
		HotMemories:         st.HotMemories,
		WarmMemories:        st.WarmMemories,
		ColdMemories:        st.ColdMemories,
		AvgImportance:       st.AvgImportance,
		AvgEmotionIntensity: st.AvgEmotionIntensity,
		ActiveInterfaces:    st.ActiveInterfaces,
		TotalSessions:       st.TotalSessions,
		EarliestMemory:      st.EarliestMemory,
		LatestMemory:        st.LatestMemory,
	}
}
