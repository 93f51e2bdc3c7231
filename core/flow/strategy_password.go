package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/google/uuid"
)

// PasswordStrategy registers and authenticates identities by email and
// password. Passwords are stored as a "password" credential whose identifier
// is the normalized email.
type PasswordStrategy struct {
	repo      domain.IdentityStorage
	hasher    domain.Hasher
	minLength int
}

func NewPasswordStrategy(repo domain.IdentityStorage, hasher domain.Hasher) *PasswordStrategy {
	return &PasswordStrategy{
		repo:      repo,
		hasher:    hasher,
		minLength: 8,
	}
}

func (s *PasswordStrategy) ID() string { return MethodPassword }

// NormalizeEmail lower-cases and trims an email used as an identifier.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *PasswordStrategy) Register(ctx context.Context, email, password string) (*identity.Identity, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email %q", ErrInvalidInput, email)
	}
	if len(password) < s.minLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.minLength)
	}

	if _, err := s.repo.GetCredentialByIdentifier(ctx, email, MethodPassword); err == nil {
		return nil, ErrIdentityExists
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ident := &identity.Identity{
		ID:        uuid.NewString(),
		Email:     email,
		State:     identity.StateActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	cred := &identity.Credential{
		ID:         uuid.NewString(),
		IdentityID: ident.ID,
		Type:       MethodPassword,
		Identifier: email,
		Secret:     hashed,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.repo.CreateIdentity(ctx, ident, cred); err != nil {
		return nil, err
	}
	return ident, nil
}

func (s *PasswordStrategy) Authenticate(ctx context.Context, identifier, password string) (*identity.Identity, error) {
	cred, err := s.repo.GetCredentialByIdentifier(ctx, NormalizeEmail(identifier), MethodPassword)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if !s.hasher.Compare(password, cred.Secret) {
		return nil, ErrInvalidCredentials
	}

	ident, err := s.repo.GetIdentity(ctx, cred.IdentityID)
	if err != nil {
		return nil, err
	}
	if !ident.Active() {
		return nil, fmt.Errorf("%w: identity is %s", ErrInvalidCredentials, ident.State)
	}
	s.upgrade(ctx, ident.ID, password, cred.Secret)
	return ident, nil
}

// upgrade re-hashes a verified password stored at an outdated cost. It is
// best effort: the sign-in already succeeded.
func (s *PasswordStrategy) upgrade(ctx context.Context, identityID, password, hash string) {
	r, ok := s.hasher.(interface{ NeedsRehash(string) bool })
	if !ok || !r.NeedsRehash(hash) {
		return
	}
	if hashed, err := s.hasher.Hash(password); err == nil {
		_ = s.repo.UpdateCredentialSecret(ctx, identityID, MethodPassword, hashed)
	}
}

// SetPassword replaces the password credential of an identity.
func (s *PasswordStrategy) SetPassword(ctx context.Context, identityID, password string) error {
	if len(password) < s.minLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, s.minLength)
	}
	hashed, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	return s.repo.UpdateCredentialSecret(ctx, identityID, MethodPassword, hashed)
}
