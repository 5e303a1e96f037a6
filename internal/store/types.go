// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import "time"

// --- Memory types ---

// PrivacyRealm controls who may retrieve a memory through search.
type PrivacyRealm string

const (
	PrivacyRealmPublic  PrivacyRealm = "public"
	PrivacyRealmPrivate PrivacyRealm = "private"
)

// AnnotationKind distinguishes the closed set of annotation shapes a memory
// can carry.
type AnnotationKind string

const (
	AnnotationKindPattern AnnotationKind = "pattern"
	AnnotationKindInsight AnnotationKind = "insight"
)

// Annotation is a pattern or insight noticed at recording time. Annotations
// are immutable once the memory is created.
type Annotation struct {
	Kind       AnnotationKind `json:"kind"`
	Label      string         `json:"label"`
	Detail     string         `json:"detail,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// Memory is a single experiential record. Creation fields are immutable;
// only the bookkeeping fields (AccessCount, LastAccessed, ShouldForget,
// Indexed, UpdatedAt) change after insert.
type Memory struct {
	ID        string
	SessionID string

	// What happened, and through which surface.
	Interface       string
	Context         string
	WithWhom        string
	WhatHappened    string
	TextContent     string // narrative text used for embedding
	ExperienceType  string
	DurationSeconds int

	// Emotional signature.
	EmotionPrimary   string
	EmotionIntensity float64
	EmotionWhy       string
	EmotionSecondary []string

	// Why it matters.
	Importance        float64
	ImportanceReasons []string
	Annotations       []Annotation

	// Media attachments. Modalities is derived from which paths are set,
	// always including "text".
	VisualPath string
	AudioPath  string
	VideoPath  string
	Modalities []string

	PrivacyRealm PrivacyRealm

	CreatedAt time.Time
	UpdatedAt time.Time

	// Bookkeeping.
	AccessCount  int64
	LastAccessed time.Time
	ShouldForget bool
	Indexed      bool
}

// DeriveModalities computes the modality tags for the memory from its media
// paths. Text is always present.
func (m *Memory) DeriveModalities() []string {
	mods := []string{"text"}
	if m.VisualPath != "" {
		mods = append(mods, "visual")
	}
	if m.AudioPath != "" {
		mods = append(mods, "audio")
	}
	if m.VideoPath != "" {
		mods = append(mods, "video")
	}
	return mods
}

// Filter selects memories in list and count operations. Zero values mean
// "no constraint"; set fields combine conjunctively. Tombstoned records are
// always excluded regardless of filter.
type Filter struct {
	Interface      string  // exact match
	Context        string  // case-insensitive substring
	Emotion        string  // exact match on primary emotion
	ExperienceType string  // exact match
	WithWhom       string  // case-insensitive substring
	MinImportance  float64 // inclusive lower bound
	SessionID      string  // exact match
}

// ListOpts bounds a list query. A zero or negative limit falls back to the
// adapter default.
type ListOpts struct {
	Limit  int
	Offset int
}

// DefaultListLimit caps list queries when the caller does not set one.
const DefaultListLimit = 50

// Stats is an aggregate snapshot of the relational store.
type Stats struct {
	TotalMemories int64

	// Temperature bands by importance: hot >= 0.7, cold < 0.3.
	HotMemories  int64
	WarmMemories int64
	ColdMemories int64

	AvgImportance       float64
	AvgEmotionIntensity float64

	ActiveInterfaces int64
	TotalSessions    int64

	EarliestMemory time.Time
	LatestMemory   time.Time
}

// --- Session types ---

// Session groups memories recorded during one interaction window.
type Session struct {
	ID             string
	Interface      string
	StartedAt      time.Time
	EndedAt        time.Time // zero while the session is open
	MemoryCount    int64
	PrimaryEmotion string
}

// Ended reports whether the session has been closed.
func (s *Session) Ended() bool { return !s.EndedAt.IsZero() }

// --- Vector index types ---

// VectorPayload is the filterable subset of a memory stored alongside its
// embedding. It is a disposable projection: the relational row is the truth.
type VectorPayload struct {
	Interface      string    `json:"interface"`
	ExperienceType string    `json:"experience_type"`
	Emotion        string    `json:"emotion"`
	Importance     float64   `json:"importance"`
	PrivacyRealm   string    `json:"privacy_realm"`
	CreatedAt      time.Time `json:"created_at"`
}

// VectorFilter narrows a similarity search. Zero values mean no constraint.
type VectorFilter struct {
	Interface     string
	PrivacyRealm  string
	MinImportance float64
}

// VectorHit is one similarity result. Score is cosine similarity in [-1, 1],
// higher is closer.
type VectorHit struct {
	ID      string
	Score   float64
	Payload VectorPayload
}
