// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import (
	kerr "github.com/keepsake-dev/keepsake/pkg/errors"
)

// Valid reports whether the realm is a known privacy realm.
func (r PrivacyRealm) Valid() bool {
	switch r {
	case PrivacyRealmPublic, PrivacyRealmPrivate:
		return true
	default:
		return false
	}
}

// Valid reports whether the kind is a known annotation shape.
func (k AnnotationKind) Valid() bool {
	switch k {
	case AnnotationKindPattern, AnnotationKindInsight:
		return true
	default:
		return false
	}
}

// Validate checks annotation invariants.
func (a Annotation) Validate() error {
	if !a.Kind.Valid() {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "annotation: invalid kind %q", a.Kind)
	}
	if a.Label == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "annotation: Label is required")
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "annotation: Confidence must be in [0, 1], got %v", a.Confidence)
	}
	return nil
}

// Validate checks that the Memory has all required fields set correctly.
func (m Memory) Validate() error {
	if m.ID == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: ID is required")
	}
	if m.Interface == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: Interface is required")
	}
	if m.WhatHappened == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: WhatHappened is required")
	}
	if m.TextContent == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: TextContent is required")
	}
	if m.ExperienceType == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: ExperienceType is required")
	}
	if m.EmotionPrimary == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: EmotionPrimary is required")
	}
	if m.EmotionIntensity < 0 || m.EmotionIntensity > 1 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "memory: EmotionIntensity must be in [0, 1], got %v", m.EmotionIntensity)
	}
	if m.Importance < 0 || m.Importance > 1 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "memory: Importance must be in [0, 1], got %v", m.Importance)
	}
	if m.DurationSeconds < 0 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "memory: DurationSeconds must be >= 0, got %d", m.DurationSeconds)
	}
	if !m.PrivacyRealm.Valid() {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "memory: invalid privacy realm %q", m.PrivacyRealm)
	}
	for i, a := range m.Annotations {
		if err := a.Validate(); err != nil {
			return kerr.Wrapf(err, kerr.CodeStoreInvalidInput, "memory: annotation %d", i)
		}
	}
	if m.CreatedAt.IsZero() {
		return kerr.New(kerr.CodeStoreInvalidInput, "memory: CreatedAt is required")
	}
	return nil
}

// Validate checks that the Session has all required fields set correctly.
func (s Session) Validate() error {
	if s.ID == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "session: ID is required")
	}
	if s.Interface == "" {
		return kerr.New(kerr.CodeStoreInvalidInput, "session: Interface is required")
	}
	if s.StartedAt.IsZero() {
		return kerr.New(kerr.CodeStoreInvalidInput, "session: StartedAt is required")
	}
	if !s.EndedAt.IsZero() && s.EndedAt.Before(s.StartedAt) {
		return kerr.New(kerr.CodeStoreInvalidInput, "session: EndedAt must not precede StartedAt")
	}
	if s.MemoryCount < 0 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "session: MemoryCount must be >= 0, got %d", s.MemoryCount)
	}
	return nil
}

// Validate checks filter invariants.
func (f Filter) Validate() error {
	if f.MinImportance < 0 || f.MinImportance > 1 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "filter: MinImportance must be in [0, 1], got %v", f.MinImportance)
	}
	return nil
}

// Validate checks vector filter invariants.
func (f VectorFilter) Validate() error {
	if f.MinImportance < 0 || f.MinImportance > 1 {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "vector filter: MinImportance must be in [0, 1], got %v", f.MinImportance)
	}
	if f.PrivacyRealm != "" && !PrivacyRealm(f.PrivacyRealm).Valid() {
		return kerr.Errorf(kerr.CodeStoreInvalidInput, "vector filter: invalid privacy realm %q", f.PrivacyRealm)
	}
	return nil
}
