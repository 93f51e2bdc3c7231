package kredis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkayan/mentorship/core/profile"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingStore struct {
	*profile.MemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, id string) (*profile.Profile, error) {
	s.gets++
	return s.MemoryStore.Get(ctx, id)
}

func setup(t *testing.T) (*miniredis.Miniredis, *countingStore, *ProfileCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{MemoryStore: profile.NewMemoryStore()}
	return mr, inner, NewProfileCache(client, inner, time.Minute)
}

func TestProfileCacheReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, inner, cache := setup(t)

	_, err := inner.Upsert(ctx, &profile.Profile{ID: "p-1", Email: "alice@example.com", Role: profile.RoleMentor})
	require.NoError(t, err)

	p, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleMentor, p.Role)
	assert.True(t, mr.Exists(DefaultPrefix+"p-1"))

	p, err = cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, 1, inner.gets)

	mr.FastForward(2 * time.Minute)
	_, err = cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.gets)
}

func TestProfileCacheDoesNotCacheAbsence(t *testing.T) {
	ctx := context.Background()
	mr, _, cache := setup(t)

	_, err := cache.Get(ctx, "missing")
	require.ErrorIs(t, err, profile.ErrNotFound)
	assert.False(t, mr.Exists(DefaultPrefix+"missing"))
}

func TestProfileCacheUpsertWritesThrough(t *testing.T) {
	ctx := context.Background()
	mr, inner, cache := setup(t)

	stored, err := cache.Upsert(ctx, &profile.Profile{ID: "p-1", Email: "bob@example.com", Role: profile.RoleMentee})
	require.NoError(t, err)
	assert.Equal(t, "p-1", stored.ID)
	assert.True(t, mr.Exists(DefaultPrefix+"p-1"))

	p, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleMentee, p.Role)
	assert.Equal(t, 0, inner.gets)
}

func TestProfileCacheFallsBackWhenRedisIsDown(t *testing.T) {
	ctx := context.Background()
	mr, inner, cache := setup(t)

	_, err := inner.Upsert(ctx, &profile.Profile{ID: "p-1", Role: profile.RoleAdmin})
	require.NoError(t, err)

	mr.Close()

	p, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleAdmin, p.Role)
	assert.Error(t, cache.Ping(ctx))
}

func TestProfileCacheDropsCorruptEntry(t *testing.T) {
	ctx := context.Background()
	mr, inner, cache := setup(t)

	_, err := inner.Upsert(ctx, &profile.Profile{ID: "p-1", Role: profile.RoleMentor})
	require.NoError(t, err)
	require.NoError(t, mr.Set(DefaultPrefix+"p-1", "{not json"))

	p, err := cache.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, profile.RoleMentor, p.Role)
	assert.Equal(t, 1, inner.gets)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*profile.Profile, error) {
	return nil, errors.New("db down")
}

func (failingStore) Upsert(context.Context, *profile.Profile) (*profile.Profile, error) {
	return nil, errors.New("db down")
}

func TestProfileCacheUpsertFailureInvalidates(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set(DefaultPrefix+"p-1", `{"id":"p-1","role":"mentee"}`))
	cache := NewProfileCache(client, failingStore{}, time.Minute)

	_, err := cache.Upsert(ctx, &profile.Profile{ID: "p-1", Role: profile.RoleMentor})
	require.Error(t, err)
	assert.False(t, mr.Exists(DefaultPrefix+"p-1"))
}
