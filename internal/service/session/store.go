// Package session owns persistence of sessions and their turns. The store,
// not the engine, serializes reads and writes per session so the engine
// never rebuilds context from a partial write.
package session

import (
	"context"
	"errors"

	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

var (
	ErrNotFound     = errors.New("session not found")
	ErrUserRequired = errors.New("user id is required")
)

// Store is the persistence contract consumed by handlers and the engine's
// callers. Implementations must be safe for concurrent use.
type Store interface {
	// CreateSession provisions a fresh surface-layer session for the user.
	CreateSession(ctx context.Context, userID string) (reflection.Session, error)

	// GetSession retrieves a session by identifier.
	GetSession(ctx context.Context, sessionID string) (reflection.Session, error)

	// ListSessions returns the user's sessions, newest first.
	ListSessions(ctx context.Context, userID string) ([]reflection.Session, error)

	// UpdateSession persists the mutated session record.
	UpdateSession(ctx context.Context, session reflection.Session) error

	// DeleteSession removes a session and its transcript.
	DeleteSession(ctx context.Context, sessionID string) error

	// ResetSession clears engine state and transcript but keeps the record.
	ResetSession(ctx context.Context, sessionID string) (reflection.Session, error)

	// AppendMessage appends one turn to the session transcript and returns
	// it with identity and timestamp filled in.
	AppendMessage(ctx context.Context, message reflection.Message) (reflection.Message, error)

	// LoadTranscript returns the session's turns in chronological order.
	LoadTranscript(ctx context.Context, sessionID string) ([]reflection.Message, error)

	// Ping verifies backing-store connectivity.
	Ping(ctx context.Context) error

	Close() error
}
