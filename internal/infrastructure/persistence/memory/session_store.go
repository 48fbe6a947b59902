package memory

import (
	"context"
	"sync"

	"github.com/alem-hub/arena-engine/internal/domain/arena"
)

// SessionStore keeps session records in insertion order.
type SessionStore struct {
	mu      sync.RWMutex
	records []*arena.SessionRecord
	seen    map[string]struct{}
}

var _ arena.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates an empty store.
func NewSessionStore() *SessionStore {
	return &SessionStore{seen: make(map[string]struct{})}
}

// Append stores rec once per ID.
func (s *SessionStore) Append(_ context.Context, rec *arena.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.seen[rec.ID]; dup {
		return nil
	}
	c := *rec
	s.seen[rec.ID] = struct{}{}
	s.records = append(s.records, &c)
	return nil
}

// ForUser returns userID's records, oldest first.
func (s *SessionStore) ForUser(userID string) []arena.SessionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []arena.SessionRecord
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out
}
