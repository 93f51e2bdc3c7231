package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getkayan/mentorship/core/identity"
)

// LockoutStore counts rejected sign-ins per key and holds lock deadlines.
type LockoutStore interface {
	// Fail counts one rejected attempt and returns the attempts seen within
	// window, this one included.
	Fail(ctx context.Context, key string, window time.Duration) (int, error)

	// Reset forgets the attempts of key.
	Reset(ctx context.Context, key string) error

	// Lock refuses key until the deadline and forgets its attempts.
	Lock(ctx context.Context, key string, until time.Time) error

	// LockedUntil returns the lock deadline of key, or the zero time.
	LockedUntil(ctx context.Context, key string) (time.Time, error)
}

// LockoutPolicy bounds rejected attempts. Window defaults to Duration.
type LockoutPolicy struct {
	MaxFailures int
	Duration    time.Duration
	Window      time.Duration

	// FailOpen lets sign-ins through when the store cannot be read.
	FailOpen bool
}

// LockoutOption configures a Lockout.
type LockoutOption func(*Lockout)

// OnLocked is called once each time a key becomes locked.
func OnLocked(fn func(ctx context.Context, key string, failures int, until time.Time)) LockoutOption {
	return func(l *Lockout) { l.onLocked = fn }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) LockoutOption {
	return func(l *Lockout) { l.now = now }
}

// Lockout wraps an Authenticator with brute-force protection keyed by the
// normalized identifier. Only ErrInvalidCredentials counts as a failure.
type Lockout struct {
	next     Authenticator
	store    LockoutStore
	policy   LockoutPolicy
	onLocked func(ctx context.Context, key string, failures int, until time.Time)
	now      func() time.Time
}

func NewLockout(next Authenticator, store LockoutStore, policy LockoutPolicy, opts ...LockoutOption) *Lockout {
	if policy.Window == 0 {
		policy.Window = policy.Duration
	}
	l := &Lockout{next: next, store: store, policy: policy, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Lockout) ID() string { return l.next.ID() }

func (l *Lockout) Authenticate(ctx context.Context, identifier, secret string) (*identity.Identity, error) {
	key := NormalizeEmail(identifier)

	until, err := l.store.LockedUntil(ctx, key)
	if err != nil && !l.policy.FailOpen {
		return nil, fmt.Errorf("flow: lockout check: %w", err)
	}
	if l.now().Before(until) {
		return nil, fmt.Errorf("%w until %s", ErrLocked, until.UTC().Format(time.RFC3339))
	}

	ident, authErr := l.next.Authenticate(ctx, identifier, secret)
	if authErr == nil {
		_ = l.store.Reset(ctx, key)
		return ident, nil
	}
	if !errors.Is(authErr, ErrInvalidCredentials) {
		return nil, authErr
	}

	n, err := l.store.Fail(ctx, key, l.policy.Window)
	if err != nil || n < l.policy.MaxFailures {
		return nil, authErr
	}
	until = l.now().Add(l.policy.Duration)
	if err := l.store.Lock(ctx, key, until); err == nil && l.onLocked != nil {
		l.onLocked(ctx, key, n, until)
	}
	return nil, authErr
}

type attempts struct {
	count   int
	expires time.Time
	locked  time.Time
}

// MemoryLockoutStore keeps lockout state in process memory.
type MemoryLockoutStore struct {
	mu    sync.Mutex
	items map[string]*attempts
	now   func() time.Time
}

func NewMemoryLockoutStore() *MemoryLockoutStore {
	return &MemoryLockoutStore{items: make(map[string]*attempts), now: time.Now}
}

func (s *MemoryLockoutStore) entry(key string) *attempts {
	a, ok := s.items[key]
	if !ok {
		a = &attempts{}
		s.items[key] = a
	}
	return a
}

func (s *MemoryLockoutStore) Fail(ctx context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, now := s.entry(key), s.now()
	if now.After(a.expires) {
		a.count = 0
		a.expires = now.Add(window)
	}
	a.count++
	return a.count, nil
}

func (s *MemoryLockoutStore) Reset(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, key)
	return nil
}

func (s *MemoryLockoutStore) Lock(ctx context.Context, key string, until time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.entry(key)
	a.locked = until
	a.count = 0
	return nil
}

func (s *MemoryLockoutStore) LockedUntil(ctx context.Context, key string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.items[key]; ok && s.now().Before(a.locked) {
		return a.locked, nil
	}
	return time.Time{}, nil
}
