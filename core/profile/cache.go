package profile

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// CachedStore decorates a Store with an in-process LRU. Reads are served from
// the cache when possible; Upsert writes through to the inner store first and
// caches only what the store returned. Absent records are never cached.
type CachedStore struct {
	next  Store
	cache *lru.Cache[string, *Profile]
}

func NewCachedStore(next Store, size int) (*CachedStore, error) {
	cache, err := lru.New[string, *Profile](size)
	if err != nil {
		return nil, fmt.Errorf("profile: create cache: %w", err)
	}
	return &CachedStore{next: next, cache: cache}, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Profile, error) {
	if p, ok := s.cache.Get(id); ok {
		return p.Clone(), nil
	}
	p, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Add(id, p.Clone())
	return p, nil
}

func (s *CachedStore) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	if p == nil {
		return nil, fmt.Errorf("profile: upsert: nil profile")
	}
	stored, err := s.next.Upsert(ctx, p)
	if err != nil {
		s.cache.Remove(p.ID)
		return nil, err
	}
	s.cache.Add(stored.ID, stored.Clone())
	return stored, nil
}

// Invalidate drops id from the cache, e.g. after an out-of-band profile edit.
func (s *CachedStore) Invalidate(id string) {
	s.cache.Remove(id)
}
