package registration

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	id "github.com/joelborellis/mcp-registry/pkg/domain"
	"github.com/joelborellis/mcp-registry/pkg/platform/sentinel"
)

// InMemoryStore is a map-backed Store for unit tests. It mirrors the
// database store's sentinel behavior, including the conditional update
// in DecidePending.
type InMemoryStore struct {
	mu            sync.RWMutex
	registrations map[id.RegistrationID]*Registration
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{registrations: make(map[id.RegistrationID]*Registration)}
}

func (s *InMemoryStore) Insert(_ context.Context, r *Registration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.registrations {
		if existing.EndpointURL == r.EndpointURL {
			return sentinel.ErrConflict
		}
	}
	cp := clone(r)
	s.registrations[r.ID] = cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, regID id.RegistrationID) (*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.registrations[regID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(r), nil
}

func (s *InMemoryStore) FindByURL(_ context.Context, endpointURL string) (*Registration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.registrations {
		if r.EndpointURL == endpointURL {
			return clone(r), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) DecidePending(_ context.Context, regID id.RegistrationID, status Status, approverID id.UserID, now time.Time) (*Registration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.registrations[regID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if r.Status != StatusPending {
		return nil, sentinel.ErrInvalidState
	}

	r.Status = status
	approver := approverID
	r.ApproverID = &approver
	decidedAt := now
	r.ApprovedAt = &decidedAt
	r.UpdatedAt = now
	return clone(r), nil
}

func (s *InMemoryStore) Delete(_ context.Context, regID id.RegistrationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.registrations[regID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.registrations, regID)
	return nil
}

func (s *InMemoryStore) List(_ context.Context, f ListFilter) ([]*Registration, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*Registration
	for _, r := range s.registrations {
		if matchesList(r, f) {
			matched = append(matched, clone(r))
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
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

func matchesList(r *Registration, f ListFilter) bool {
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	if !f.SubmitterID.IsNil() && r.SubmitterID != f.SubmitterID {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		name := strings.ToLower(r.EndpointName)
		contact := strings.ToLower(r.OwnerContact)
		if !strings.Contains(name, needle) && !strings.Contains(contact, needle) {
			return false
		}
	}
	return true
}

func clone(r *Registration) *Registration {
	cp := *r
	cp.Tools = make([]Tool, len(r.Tools))
	copy(cp.Tools, r.Tools)
	if r.ApproverID != nil {
		a := *r.ApproverID
		cp.ApproverID = &a
	}
	if r.ApprovedAt != nil {
		t := *r.ApprovedAt
		cp.ApprovedAt = &t
	}
	return &cp
}

// Snapshot returns a deep copy of the store contents, used by the
// in-memory transaction runner to roll back on error.
func (s *InMemoryStore) Snapshot() map[id.RegistrationID]*Registration {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[id.RegistrationID]*Registration, len(s.registrations))
	for k, v := range s.registrations {
		out[k] = clone(v)
	}
	return out
}

// Restore replaces the store contents with a previous snapshot.
func (s *InMemoryStore) Restore(snap map[id.RegistrationID]*Registration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registrations = snap
}
