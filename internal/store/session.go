// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keepsake Contributors

package store

import "context"

// SessionStore persists interaction sessions. Sessions are created lazily
// when the first memory of an unknown session id arrives, or explicitly via
// the API.
type SessionStore interface {
	// CreateSession persists a validated session. ErrConflict if the id
	// already exists.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a session by id, or ErrNotFound.
	GetSession(ctx context.Context, id string) (*Session, error)

	// EndSession stamps the end time on an open session and returns the
	// updated session. Ending an already-ended session is a no-op that
	// returns the session as stored.
	EndSession(ctx context.Context, id string) (*Session, error)

	// IncrementMemoryCount bumps the session's memory counter by one.
	IncrementMemoryCount(ctx context.Context, id string) error

	Close() error
}
