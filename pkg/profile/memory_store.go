package profile

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu       sync.Mutex
	byAuthID map[uuid.UUID]*UserProfile
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byAuthID: make(map[uuid.UUID]*UserProfile)}
}

func (s *MemoryStore) Create(ctx context.Context, p *UserProfile) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byAuthID[p.AuthID]; ok {
		copied := *existing
		return nil, &ConflictError{Existing: &copied}
	}

	stored := *p
	s.byAuthID[p.AuthID] = &stored

	copied := stored
	return &copied, nil
}

func (s *MemoryStore) FindByAuthID(ctx context.Context, authID uuid.UUID) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byAuthID[authID]
	if !ok {
		return nil, ErrProfileNotFound
	}

	copied := *existing
	return &copied, nil
}

func (s *MemoryStore) Update(ctx context.Context, p *UserProfile) (*UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byAuthID[p.AuthID]
	if !ok {
		return nil, ErrProfileNotFound
	}

	stored := *p
	// Completeness only moves forward, matching the Postgres store.
	stored.IsProfileComplete = existing.IsProfileComplete || p.IsProfileComplete
	s.byAuthID[p.AuthID] = &stored

	copied := stored
	return &copied, nil
}

var _ Store = (*MemoryStore)(nil)
