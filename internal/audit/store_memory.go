package audit

import (
	"context"
	"sort"
	"sync"
)

// InMemoryStore is a slice-backed Store for unit tests. Unlike the
// database-backed store it does not insist on a transaction, so
// service tests can exercise ledger logic without a runner.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []*Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Append(_ context.Context, e *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *InMemoryStore) Query(_ context.Context, f Filter) ([]*Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Entry
	for _, e := range s.entries {
		if matches(e, f) {
			cp := *e
			matched = append(matched, &cp)
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].OccurredAt.After(matched[j].OccurredAt)
	})

	total := len(matched)
	if f.Offset >= total {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && f.Limit < len(matched) {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func matches(e *Entry, f Filter) bool {
	if !f.RegistrationID.IsNil() && e.RegistrationID != f.RegistrationID {
		return false
	}
	if !f.ActorID.IsNil() && e.ActorID != f.ActorID {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if !f.From.IsZero() && e.OccurredAt.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.OccurredAt.After(f.To) {
		return false
	}
	return true
}

// Snapshot returns a deep copy of the ledger, used by the in-memory
// transaction runner to roll back on error.
func (s *InMemoryStore) Snapshot() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Entry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		out[i] = &cp
	}
	return out
}

// Restore replaces the ledger with a previous snapshot.
func (s *InMemoryStore) Restore(snap []*Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = snap
}
