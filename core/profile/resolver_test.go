package profile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore wraps MemoryStore and counts calls. failGet/failUpsert force
// store failures.
type countingStore struct {
	*MemoryStore
	gets, upserts atomic.Int32
	failGet       error
	failUpsert    error
}

func newCountingStore() *countingStore {
	return &countingStore{MemoryStore: NewMemoryStore()}
}

func (s *countingStore) Get(ctx context.Context, id string) (*Profile, error) {
	s.gets.Add(1)
	if s.failGet != nil {
		return nil, s.failGet
	}
	return s.MemoryStore.Get(ctx, id)
}

func (s *countingStore) Upsert(ctx context.Context, p *Profile) (*Profile, error) {
	s.upserts.Add(1)
	if s.failUpsert != nil {
		return nil, s.failUpsert
	}
	return s.MemoryStore.Upsert(ctx, p)
}

func TestResolveCreatesDefaultProfile(t *testing.T) {
	store := newCountingStore()
	r := NewResolver(store)

	p, err := r.Resolve(context.Background(), "u1", "alice@example.com")
	require.NoError(t, err)

	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, "alice@example.com", p.Email)
	assert.Equal(t, "Alice", p.FirstName)
	assert.Empty(t, p.LastName)
	assert.Equal(t, LeastPrivileged, p.Role)
	assert.Equal(t, 1, store.Len())
}

func TestResolveReturnsExistingProfileUnchanged(t *testing.T) {
	store := newCountingStore()
	existing, err := store.MemoryStore.Upsert(context.Background(), &Profile{
		ID:        "u1",
		Email:     "alice@example.com",
		FirstName: "Alicia",
		Role:      RoleOrganization,
	})
	require.NoError(t, err)

	r := NewResolver(store, WithDefaultRole(RoleMentee))
	p, err := r.Resolve(context.Background(), "u1", "someone-else@example.com")
	require.NoError(t, err)

	assert.True(t, existing.Equal(p), "existing profile must not be rewritten")
	assert.Equal(t, int32(0), store.upserts.Load())
}

func TestResolveTwiceIsIdempotent(t *testing.T) {
	store := newCountingStore()
	r := NewResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "u1", "alice@example.com")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, "u1", "alice@example.com")
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int32(1), store.upserts.Load())
}

func TestResolveConcurrentFirstLogin(t *testing.T) {
	store := newCountingStore()
	r := NewResolver(store)

	const callers = 16
	results := make([]*Profile, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p, err := r.Resolve(context.Background(), "u1", "alice@example.com")
			if err == nil {
				results[i] = p
			}
		}(i)
	}
	wg.Wait()

	stored, err := store.MemoryStore.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.Len())
	assert.Equal(t, int32(1), store.upserts.Load())
	for i, p := range results {
		require.NotNil(t, p, "caller %d failed", i)
		assert.True(t, stored.Equal(p), "caller %d", i)
	}
}

// provisionOnMissStore runs a sign-up provisioning the first time a lookup
// misses, between the resolver's unlocked Get and its create step.
type provisionOnMissStore struct {
	*countingStore
	once      sync.Once
	provision func()
}

func (s *provisionOnMissStore) Get(ctx context.Context, id string) (*Profile, error) {
	p, err := s.countingStore.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		s.once.Do(s.provision)
	}
	return p, err
}

func TestResolveDoesNotOverwriteProvisionedRole(t *testing.T) {
	store := &provisionOnMissStore{countingStore: newCountingStore()}
	r := NewResolver(store)
	ctx := context.Background()

	var provisionErr error
	store.provision = func() {
		_, provisionErr = r.Provision(ctx, "u1", "mia@example.com", RoleMentor)
	}

	p, err := r.Resolve(ctx, "u1", "mia@example.com")
	require.NoError(t, err)
	require.NoError(t, provisionErr)
	assert.Equal(t, RoleMentor, p.Role)

	stored, err := store.MemoryStore.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, RoleMentor, stored.Role)
	assert.Equal(t, int32(1), store.upserts.Load())
}

func TestProvisionAfterFirstLoginKeepsProfile(t *testing.T) {
	store := newCountingStore()
	r := NewResolver(store)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "u1", "mia@example.com")
	require.NoError(t, err)
	require.Equal(t, LeastPrivileged, first.Role)

	p, err := r.Provision(ctx, "u1", "mia@example.com", RoleMentor)
	require.ErrorIs(t, err, ErrAlreadyProvisioned)
	assert.Equal(t, LeastPrivileged, p.Role)
	assert.Equal(t, int32(1), store.upserts.Load())
}

func TestResolveStoreUnavailable(t *testing.T) {
	down := errors.New("connection refused")

	store := newCountingStore()
	store.failGet = down
	_, err := NewResolver(store).Resolve(context.Background(), "u1", "alice@example.com")
	require.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrNotFound)

	store = newCountingStore()
	store.failUpsert = down
	_, err = NewResolver(store).Resolve(context.Background(), "u1", "alice@example.com")
	require.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestResolveConfiguredDefaultRole(t *testing.T) {
	r := NewResolver(NewMemoryStore(), WithDefaultRole(RoleOrganization))
	p, err := r.Resolve(context.Background(), "org-1", "acme@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleOrganization, p.Role)

	r = NewResolver(NewMemoryStore(), WithDefaultRole(Role("owner")))
	assert.Equal(t, LeastPrivileged, r.DefaultRole())
}

func TestFirstNameFromEmail(t *testing.T) {
	cases := map[string]string{
		"alice@example.com": "Alice",
		"Bob@example.com":   "Bob",
		"jean.luc@corp.io":  "Jean.luc",
		"élodie@example.fr": "Élodie",
		"@example.com":      "",
		"":                  "",
		"no-at-sign":        "No-at-sign",
		"x@y@example.com":   "X",
	}
	for in, want := range cases {
		assert.Equal(t, want, FirstNameFromEmail(in), "input %q", in)
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles() {
		got, err := ParseRole(string(r))
		require.NoError(t, err)
		assert.Equal(t, r, got)
	}

	got, err := ParseRole("Super-Admin")
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, got)

	_, err = ParseRole("speaker")
	assert.Error(t, err)
}

func TestProvisionAssignsRole(t *testing.T) {
	store := newCountingStore()
	r := NewResolver(store)
	ctx := context.Background()

	p, err := r.Provision(ctx, "u1", "mia@example.com", RoleOrganization)
	require.NoError(t, err)
	assert.Equal(t, RoleOrganization, p.Role)
	assert.Equal(t, "Mia", p.FirstName)

	// First login finds the provisioned profile and keeps its role.
	p, err = r.Resolve(ctx, "u1", "mia@example.com")
	require.NoError(t, err)
	assert.Equal(t, RoleOrganization, p.Role)

	_, err = r.Provision(ctx, "u2", "x@example.com", Role("coach"))
	assert.Error(t, err)

	store.failUpsert = errors.New("disk full")
	_, err = r.Provision(ctx, "u3", "y@example.com", RoleMentor)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestSelfServiceRoles(t *testing.T) {
	for _, r := range []Role{RoleMentee, RoleMentor, RoleOrganization} {
		assert.True(t, r.SelfService(), r)
	}
	for _, r := range []Role{RoleAdmin, RoleSuperAdmin, Role("coach")} {
		assert.False(t, r.SelfService(), r)
	}
}
