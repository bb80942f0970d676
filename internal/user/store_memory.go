package user

import (
	"context"
	"sync"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed Store for unit tests.
type InMemoryStore struct {
	mu    sync.RWMutex
	users map[id.UserID]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[id.UserID]*User)}
}

func (s *InMemoryStore) Upsert(_ context.Context, u *User) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.ExternalID == u.ExternalID {
			existing.Email = u.Email
			existing.DisplayName = u.DisplayName
			existing.UpdatedAt = u.UpdatedAt
			cp := *existing
			return &cp, nil
		}
	}

	cp := *u
	s.users[u.ID] = &cp
	out := cp
	return &out, nil
}

func (s *InMemoryStore) FindByID(_ context.Context, userID id.UserID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *InMemoryStore) SetAdminFlag(_ context.Context, userID id.UserID, isAdmin bool, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.IsAdmin = isAdmin
	u.UpdatedAt = now
	return nil
}

// Snapshot returns a deep copy of the store contents, used by the
// in-memory transaction runner to roll back on error.
func (s *InMemoryStore) Snapshot() map[id.UserID]*User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.UserID]*User, len(s.users))
	for k, v := range s.users {
		cp := *v
		out[k] = &cp
	}
	return out
}

// Restore replaces the store contents with a previous snapshot.
func (s *InMemoryStore) Restore(snap map[id.UserID]*User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = snap
}
