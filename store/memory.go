package store

import (
	"context"
	"sort"
	"sync"
)

// MemorySessionStore implements SessionStore using an in-memory map.
// This is useful for testing but not recommended for production.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session        // sessionID -> Session
	byUser   map[string]map[string]bool // userID -> set of sessionIDs
}

// NewMemorySessionStore creates a new in-memory session store.
func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		byUser:   make(map[string]map[string]bool),
	}
}

// Save persists a session, replacing any row with the same ID.
func (s *MemorySessionStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[session.ID]; ok {
		s.unindex(prev)
	}

	stored := *session
	s.sessions[session.ID] = &stored

	if stored.UserID != "" {
		if s.byUser[stored.UserID] == nil {
			s.byUser[stored.UserID] = make(map[string]bool)
		}
		s.byUser[stored.UserID][stored.ID] = true
	}

	return nil
}

// SelectAllByUser returns copies of the user's sessions, most recent first.
func (s *MemorySessionStore) SelectAllByUser(_ context.Context, userID string) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessionIDs, exists := s.byUser[userID]
	if !exists || userID == "" {
		return nil, nil
	}

	out := make([]*Session, 0, len(sessionIDs))
	for sessionID := range sessionIDs {
		if session := s.sessions[sessionID]; session != nil {
			c := *session
			out = append(out, &c)
		}
	}

	sortByActivity(out)
	return out, nil
}

// UpdateActivity touches an existing session.
func (s *MemorySessionStore) UpdateActivity(_ context.Context, sessionID string, lastActivity int64, ip, userAgent string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	session.LastActivity = lastActivity
	session.IPAddress = ip
	session.UserAgent = userAgent
	return nil
}

// DeleteByID removes a session by its ID.
func (s *MemorySessionStore) DeleteByID(ctx context.Context, sessionID string) error {
	_, err := s.DeleteByIDs(ctx, []string{sessionID})
	return err
}

// DeleteByIDs removes sessions by ID and counts the ones that existed.
func (s *MemorySessionStore) DeleteByIDs(_ context.Context, sessionIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for _, id := range sessionIDs {
		if s.remove(id) {
			deleted++
		}
	}
	return deleted, nil
}

// SelectDistinctUserIDs returns the owners of at least one session, sorted.
func (s *MemorySessionStore) SelectDistinctUserIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.byUser))
	for userID := range s.byUser {
		ids = append(ids, userID)
	}
	sort.Strings(ids)
	return ids, nil
}

// DeleteOlderThan removes every session last active before cutoff.
func (s *MemorySessionStore) DeleteOlderThan(_ context.Context, cutoff int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, session := range s.sessions {
		if session.LastActivity < cutoff && s.remove(id) {
			deleted++
		}
	}
	return deleted, nil
}

// Close is a no-op for the memory store.
func (s *MemorySessionStore) Close() error {
	return nil
}

// remove deletes a session and its index entry. Caller holds the write lock.
func (s *MemorySessionStore) remove(sessionID string) bool {
	session, exists := s.sessions[sessionID]
	if !exists {
		return false
	}
	s.unindex(session)
	delete(s.sessions, sessionID)
	return true
}

func (s *MemorySessionStore) unindex(session *Session) {
	if userSessions, ok := s.byUser[session.UserID]; ok {
		delete(userSessions, session.ID)
		if len(userSessions) == 0 {
			delete(s.byUser, session.UserID)
		}
	}
}

// sortByActivity orders sessions the way the SQL backends do:
// last_activity descending, then id ascending.
func sortByActivity(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if sessions[i].LastActivity != sessions[j].LastActivity {
			return sessions[i].LastActivity > sessions[j].LastActivity
		}
		return sessions[i].ID < sessions[j].ID
	})
}
