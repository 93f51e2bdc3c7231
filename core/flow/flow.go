// Package flow verifies credentials for the local identity provider.
//
// A Manager dispatches sign-in and registration to strategies by method name.
// Only the password method exists today. Sign-in strategies can be wrapped in
// a Lockout, which counts rejected attempts in memory or in Redis.
//
//	pw := flow.NewPasswordStrategy(repo, flow.NewBcryptHasher(12))
//	guarded := flow.NewLockout(pw, flow.NewMemoryLockoutStore(), flow.LockoutPolicy{MaxFailures: 5, Duration: 15 * time.Minute})
//	m := flow.NewManager(flow.WithAuditStore(events))
//	m.Use(guarded, pw)
//
//	ident, err := m.Authenticate(ctx, flow.MethodPassword, "alice@example.com", "secret")
package flow

import (
	"context"
	"errors"

	"github.com/getkayan/mentorship/core/identity"
)

var (
	// ErrInvalidCredentials is returned for unknown identifiers and wrong
	// secrets alike.
	ErrInvalidCredentials = errors.New("flow: invalid identifier or password")

	// ErrLocked is returned while an identifier is locked out.
	ErrLocked = errors.New("flow: account is locked")

	// ErrIdentityExists is returned when registering an identifier twice.
	ErrIdentityExists = errors.New("flow: identity already exists")

	// ErrInvalidInput is returned for malformed emails and short passwords.
	ErrInvalidInput = errors.New("flow: invalid input")

	// ErrUnknownMethod is returned when no strategy serves a method.
	ErrUnknownMethod = errors.New("flow: unknown method")
)

const MethodPassword = "password"

// Authenticator signs an identity in with one method.
type Authenticator interface {
	ID() string
	Authenticate(ctx context.Context, identifier, secret string) (*identity.Identity, error)
}

// Registrar creates identities for one method.
type Registrar interface {
	ID() string
	Register(ctx context.Context, email, secret string) (*identity.Identity, error)
}
