package profile

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-process Store. Upsert replaces by ID and keeps the
// original CreatedAt.
type MemoryStore struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[string]*Profile),
		now:      time.Now,
	}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	if p == nil || p.ID == "" {
		return nil, fmt.Errorf("profile: upsert: missing id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := p.Clone()
	if existing, ok := s.profiles[p.ID]; ok {
		stored.CreatedAt = existing.CreatedAt
	} else if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now().UTC().Truncate(time.Second)
	}
	s.profiles[p.ID] = stored
	return stored.Clone(), nil
}

// Len returns the number of stored profiles.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.profiles)
}
