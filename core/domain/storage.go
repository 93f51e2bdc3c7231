// Package domain defines the storage contracts of the local identity provider.
//
// The interfaces abstract persistence of identities, credentials, token
// sessions and password reset tokens so provider.Local can run on any
// backend. See the kgorm package for the GORM implementation and the
// in-memory one in the provider tests.
//
// # Interfaces
//
//   - Storage: Composite interface combining all storage operations
//   - IdentityStorage: Identity and credential management
//   - SessionStorage: Token session lifecycle operations
//   - ResetStorage: Password reset tokens
//
// # Supporting Types
//
//   - Hasher: Interface for password hashing and verification
package domain

import (
	"context"
	"errors"

	"github.com/getkayan/mentorship/core/identity"
)

// ErrNotFound is returned by storage lookups that match nothing.
var ErrNotFound = errors.New("domain: record not found")

// Storage defines the interface for all persistence operations.
type Storage interface {
	IdentityStorage
	SessionStorage
	ResetStorage
}

type IdentityStorage interface {
	CredentialStorage
	CreateIdentity(ctx context.Context, ident *identity.Identity, creds ...*identity.Credential) error
	GetIdentity(ctx context.Context, id string) (*identity.Identity, error)
	FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error)
}

type SessionStorage interface {
	CreateSession(ctx context.Context, s *identity.Session) error
	GetSession(ctx context.Context, id string) (*identity.Session, error)
	GetSessionByRefreshToken(ctx context.Context, token string) (*identity.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

type CredentialStorage interface {
	GetCredentialByIdentifier(ctx context.Context, identifier string, method string) (*identity.Credential, error)
	UpdateCredentialSecret(ctx context.Context, identityID, method, secret string) error
}

type ResetStorage interface {
	SaveResetToken(ctx context.Context, t *identity.ResetToken) error
	// ConsumeResetToken deletes the token and returns it. ErrNotFound when
	// the token is unknown or was already used.
	ConsumeResetToken(ctx context.Context, token string) (*identity.ResetToken, error)
}

// Hasher defines the interface for password hashing and verification.
type Hasher interface {
	Hash(password string) (string, error)
	Compare(password, hash string) bool
}
