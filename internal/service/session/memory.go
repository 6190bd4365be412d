package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quietriver/reframe/backend/internal/model/reflection"
)

// MemoryStore keeps sessions and transcripts in process memory. Suitable
// for tests and single-instance development runs.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]reflection.Session
	messages map[string][]reflection.Message
}

// NewMemoryStore bootstraps an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]reflection.Session),
		messages: make(map[string][]reflection.Message),
	}
}

func (s *MemoryStore) CreateSession(_ context.Context, userID string) (reflection.Session, error) {
	if userID == "" {
		return reflection.Session{}, ErrUserRequired
	}

	session := reflection.NewSession(uuid.NewString(), userID)

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.messages[session.ID] = make([]reflection.Message, 0, 16)
	s.mu.Unlock()

	return session, nil
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (reflection.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return reflection.Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) ListSessions(_ context.Context, userID string) ([]reflection.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]reflection.Session, 0, 8)
	for _, session := range s.sessions {
		if session.UserID == userID {
			out = append(out, cloneSession(session))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateSession(_ context.Context, session reflection.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[session.ID]
	if !ok {
		return ErrNotFound
	}
	session.CreatedAt = stored.CreatedAt
	session.UpdatedAt = time.Now().UTC()
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, sessionID)
	delete(s.messages, sessionID)
	return nil
}

func (s *MemoryStore) ResetSession(_ context.Context, sessionID string) (reflection.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[sessionID]
	if !ok {
		return reflection.Session{}, ErrNotFound
	}

	fresh := reflection.NewSession(stored.ID, stored.UserID)
	fresh.CreatedAt = stored.CreatedAt
	s.sessions[sessionID] = fresh
	s.messages[sessionID] = make([]reflection.Message, 0, 16)
	return cloneSession(fresh), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, message reflection.Message) (reflection.Message, error) {
	if message.SessionID == "" {
		return reflection.Message{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return reflection.Message{}, ErrNotFound
	}

	message.ID = uuid.NewString()
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return message, nil
}

func (s *MemoryStore) LoadTranscript(_ context.Context, sessionID string) ([]reflection.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages, ok := s.messages[sessionID]
	if !ok {
		return nil, ErrNotFound
	}

	copied := make([]reflection.Message, len(messages))
	copy(copied, messages)
	return copied, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cloneSession(in reflection.Session) reflection.Session {
	out := in
	if in.DiscoveredInsights != nil {
		out.DiscoveredInsights = make(map[reflection.Layer]string, len(in.DiscoveredInsights))
		for layer, insight := range in.DiscoveredInsights {
			out.DiscoveredInsights[layer] = insight
		}
	}
	return out
}
