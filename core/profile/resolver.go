package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/getkayan/mentorship/core/logger"
	"go.uber.org/zap"
)

// Resolver returns the profile of a principal, creating a default one the
// first time the principal is seen.
//
// Creation is serialized per principal id and re-checks the store under the
// lock. First login and sign-up provisioning write different roles, so
// upsert-by-key alone would let the later writer win. The lock is
// in-process: servers sharing one store must not run both writers for the
// same principal concurrently.
type Resolver struct {
	store       Store
	defaultRole Role
	log         *zap.Logger
	locks       *keyedMutex
}

// ResolverOption configures the Resolver.
type ResolverOption func(*Resolver)

// WithDefaultRole sets the role of profiles created on first login.
// Invalid roles are ignored.
func WithDefaultRole(r Role) ResolverOption {
	return func(res *Resolver) {
		if r.Valid() {
			res.defaultRole = r
		}
	}
}

// WithResolverLogger overrides the resolver's logger.
func WithResolverLogger(l *zap.Logger) ResolverOption {
	return func(res *Resolver) {
		if l != nil {
			res.log = l
		}
	}
}

func NewResolver(store Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:       store,
		defaultRole: LeastPrivileged,
		log:         logger.Named("profile"),
		locks:       newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRole returns the role used for profiles created on first login.
func (r *Resolver) DefaultRole() Role { return r.defaultRole }

// Resolve returns the stored profile for principalID. When none exists a
// default profile is derived from emailHint and upserted. An existing profile
// is returned unchanged; its role is never rewritten here.
//
// The only error is ErrStoreUnavailable (wrapping the store's error).
func (r *Resolver) Resolve(ctx context.Context, principalID, emailHint string) (*Profile, error) {
	if principalID == "" {
		return nil, fmt.Errorf("profile: resolve: empty principal id")
	}

	p, err := r.store.Get(ctx, principalID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, principalID, err)
	}

	unlock := r.locks.Lock(principalID)
	defer unlock()

	// Another caller may have created it while we waited.
	p, err = r.store.Get(ctx, principalID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, principalID, err)
	}

	created := r.Default(principalID, emailHint)
	stored, err := r.store.Upsert(ctx, created)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert %s: %v", ErrStoreUnavailable, principalID, err)
	}

	r.log.Info("profile provisioned",
		zap.String("principal_id", principalID),
		zap.String("role", string(stored.Role)),
	)
	return stored, nil
}

// Provision creates the profile of a newly registered principal with the
// role chosen at sign-up. A profile that already exists is returned
// unchanged together with ErrAlreadyProvisioned.
func (r *Resolver) Provision(ctx context.Context, principalID, email string, role Role) (*Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("profile: provision: unknown role %q", role)
	}

	unlock := r.locks.Lock(principalID)
	defer unlock()

	existing, err := r.store.Get(ctx, principalID)
	if err == nil {
		return existing, ErrAlreadyProvisioned
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: get %s: %v", ErrStoreUnavailable, principalID, err)
	}

	p := r.Default(principalID, email)
	p.Role = role
	stored, err := r.store.Upsert(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert %s: %v", ErrStoreUnavailable, principalID, err)
	}
	r.log.Info("profile provisioned", zap.String("principal_id", principalID), zap.String("role", string(role)))
	return stored, nil
}

// Default builds the profile created on first login. It is deterministic:
// the same inputs always produce the same profile.
func (r *Resolver) Default(principalID, emailHint string) *Profile {
	return &Profile{
		ID:        principalID,
		Email:     emailHint,
		FirstName: FirstNameFromEmail(emailHint),
		LastName:  "",
		Role:      r.defaultRole,
	}
}

// FirstNameFromEmail takes the local part of an email address and upper-cases
// its first character: "alice@example.com" -> "Alice".
func FirstNameFromEmail(email string) string {
	local, _, _ := strings.Cut(email, "@")
	if local == "" {
		return ""
	}
	first, size := utf8.DecodeRuneInString(local)
	return string(unicode.ToUpper(first)) + local[size:]
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedLock)}
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
