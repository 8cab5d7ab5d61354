// Package profile provides the in-memory behavioral profile store.
package profile

import (
	"sort"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Store is a concurrency-safe keyed store of user profiles.
// Reads hand out deep copies; Update applies a read-modify-write as one
// atomic unit so concurrent confirmations for the same user never lose
// updates. Profiles are created by seeding and never destroyed.
type Store struct {
	mu       sync.RWMutex
	profiles map[string]domain.UserProfile
}

// NewStore creates an empty profile store.
func NewStore() *Store {
	return &Store{
		profiles: make(map[string]domain.UserProfile),
	}
}

// Get returns a snapshot of the profile, or false if the user is unknown.
func (s *Store) Get(userID string) (domain.UserProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return domain.UserProfile{}, false
	}
	return p.Clone(), true
}

// List returns snapshots of all profiles sorted by user ID.
func (s *Store) List() []domain.UserProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.UserProfile, 0, len(s.profiles))
	for _, p := range s.profiles {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Upsert stores a profile, replacing any existing one.
func (s *Store) Upsert(p domain.UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.ID] = p.Clone()
}

// Update atomically applies fn to the stored profile. fn receives a
// snapshot and its return value replaces the stored profile; the lock
// is held for the whole exchange. Returns false without calling fn if
// the user is unknown.
func (s *Store) Update(userID string, fn func(domain.UserProfile) domain.UserProfile) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return false
	}
	s.profiles[userID] = fn(p.Clone()).Clone()
	return true
}

// Len returns the number of stored profiles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
