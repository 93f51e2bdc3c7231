package flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAuthenticator struct {
	reject bool
	err    error
}

func (s *stubAuthenticator) ID() string { return "stub" }

func (s *stubAuthenticator) Authenticate(ctx context.Context, identifier, secret string) (*identity.Identity, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.reject {
		return nil, ErrInvalidCredentials
	}
	return &identity.Identity{ID: "id-1", Email: identifier}, nil
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestLockoutLocksAfterMaxFailures(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryLockoutStore()
	store.now = clock.Now
	stub := &stubAuthenticator{reject: true}

	var lockedKey string
	var lockedAfter int
	l := NewLockout(stub, store, LockoutPolicy{MaxFailures: 3, Duration: time.Minute, Window: 10 * time.Minute},
		WithClock(clock.Now),
		OnLocked(func(ctx context.Context, key string, failures int, until time.Time) {
			lockedKey, lockedAfter = key, failures
		}),
	)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := l.Authenticate(ctx, "Mallory@Example.com", "bad")
		require.ErrorIs(t, err, ErrInvalidCredentials, "attempt %d", i)
	}
	assert.Equal(t, "mallory@example.com", lockedKey)
	assert.Equal(t, 3, lockedAfter)

	stub.reject = false
	_, err := l.Authenticate(ctx, "mallory@example.com", "good")
	require.ErrorIs(t, err, ErrLocked)

	clock.Advance(time.Minute + time.Second)
	ident, err := l.Authenticate(ctx, "mallory@example.com", "good")
	require.NoError(t, err)
	assert.Equal(t, "id-1", ident.ID)
	_, ok := store.items["mallory@example.com"]
	assert.False(t, ok, "success forgets the attempts")
}

func TestLockoutWindowExpires(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	store := NewMemoryLockoutStore()
	store.now = clock.Now
	l := NewLockout(&stubAuthenticator{reject: true}, store, LockoutPolicy{MaxFailures: 2, Duration: time.Hour, Window: time.Minute}, WithClock(clock.Now))

	_, _ = l.Authenticate(context.Background(), "a@example.com", "x")
	clock.Advance(2 * time.Minute)
	_, err := l.Authenticate(context.Background(), "a@example.com", "x")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	until, err := store.LockedUntil(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.True(t, until.IsZero(), "the first failure fell out of the window")
}

func TestLockoutIgnoresNonCredentialErrors(t *testing.T) {
	store := NewMemoryLockoutStore()
	down := errors.New("database down")
	l := NewLockout(&stubAuthenticator{err: down}, store, LockoutPolicy{MaxFailures: 1, Duration: time.Minute})

	_, err := l.Authenticate(context.Background(), "a@example.com", "x")
	require.ErrorIs(t, err, down)

	until, _ := store.LockedUntil(context.Background(), "a@example.com")
	assert.True(t, until.IsZero())
}

func TestLockoutGuardsManagerLogin(t *testing.T) {
	repo := newMockRepo()
	pw := NewPasswordStrategy(repo, NewBcryptHasher(4))
	m := NewManager()
	m.Use(NewLockout(pw, NewMemoryLockoutStore(), LockoutPolicy{MaxFailures: 1, Duration: time.Hour}), pw)

	_, err := m.Register(context.Background(), MethodPassword, "c@example.com", "password123")
	require.NoError(t, err)

	_, err = m.Authenticate(context.Background(), MethodPassword, "c@example.com", "wrong-password")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = m.Authenticate(context.Background(), MethodPassword, "c@example.com", "password123")
	assert.ErrorIs(t, err, ErrLocked)
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLockoutStore(t *testing.T) {
	mr, client := newMiniredisClient(t)
	store := NewRedisLockoutStore(client, "")
	ctx := context.Background()

	n, err := store.Fail(ctx, "a@example.com", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = store.Fail(ctx, "a@example.com", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	until, err := store.LockedUntil(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, until.IsZero())

	deadline := time.Now().Add(time.Hour)
	require.NoError(t, store.Lock(ctx, "a@example.com", deadline))
	until, err = store.LockedUntil(ctx, "a@example.com")
	require.NoError(t, err)
	assert.Equal(t, deadline.UnixMilli(), until.UnixMilli())
	assert.False(t, mr.Exists("mentorship:lockout:failures:a@example.com"))

	mr.FastForward(2 * time.Hour)
	until, err = store.LockedUntil(ctx, "a@example.com")
	require.NoError(t, err)
	assert.True(t, until.IsZero())
}

func TestRedisLockoutWindow(t *testing.T) {
	mr, client := newMiniredisClient(t)
	store := NewRedisLockoutStore(client, "test:")
	ctx := context.Background()

	_, err := store.Fail(ctx, "b@example.com", time.Minute)
	require.NoError(t, err)
	mr.FastForward(2 * time.Minute)

	n, err := store.Fail(ctx, "b@example.com", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRedisLockoutStrategy(t *testing.T) {
	_, client := newMiniredisClient(t)
	l := NewLockout(&stubAuthenticator{reject: true}, NewRedisLockoutStore(client, "test:"), LockoutPolicy{MaxFailures: 2, Duration: time.Hour})

	for i := 0; i < 2; i++ {
		_, err := l.Authenticate(context.Background(), "b@example.com", "bad")
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := l.Authenticate(context.Background(), "b@example.com", "bad")
	assert.ErrorIs(t, err, ErrLocked)
}
