package store

import (
	"sync"

	"github.com/google/uuid"
)

// Sessions maps opaque bearer tokens to user IDs for the life of the
// process. Tokens do not survive a restart; clients log in again.
type Sessions struct {
	mu      sync.RWMutex
	byToken map[string]int64
}

func NewSessions() *Sessions {
	return &Sessions{byToken: make(map[string]int64)}
}

// Issue creates a fresh token for the user.
func (s *Sessions) Issue(userID int64) string {
	token := uuid.NewString()
	s.mu.Lock()
	s.byToken[token] = userID
	s.mu.Unlock()
	return token
}

// Lookup resolves a token to its user ID.
func (s *Sessions) Lookup(token string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	return id, ok
}

// Revoke invalidates a token. Revoking an unknown token is a no-op.
func (s *Sessions) Revoke(token string) {
	s.mu.Lock()
	delete(s.byToken, token)
	s.mu.Unlock()
}
