package token

import (
	"context"
	"fmt"
	"time"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/google/uuid"
)

// DatabaseStrategy stores sessions so they can be revoked server side.
type DatabaseStrategy struct {
	repo          domain.SessionStorage
	expiry        time.Duration
	refreshExpiry time.Duration
	now           func() time.Time
}

func NewDatabaseStrategy(repo domain.SessionStorage, expiry time.Duration) *DatabaseStrategy {
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &DatabaseStrategy{
		repo:          repo,
		expiry:        expiry,
		refreshExpiry: 7 * 24 * time.Hour,
		now:           time.Now,
	}
}

func (s *DatabaseStrategy) Create(ctx context.Context, identityID string) (*identity.Session, error) {
	now := s.now()
	sess := &identity.Session{
		ID:               uuid.NewString(),
		IdentityID:       identityID,
		RefreshToken:     uuid.NewString(),
		ExpiresAt:        now.Add(s.expiry),
		RefreshExpiresAt: now.Add(s.refreshExpiry),
		IssuedAt:         now,
		Active:           true,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		return nil, fmt.Errorf("token: create session: %w", err)
	}
	return sess, nil
}

func (s *DatabaseStrategy) Validate(ctx context.Context, token string) (*identity.Session, error) {
	sess, err := s.repo.GetSession(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !sess.Active || sess.ExpiresAt.Before(s.now()) {
		return nil, ErrInvalidToken
	}
	return sess, nil
}

// Refresh rotates both the session id and the refresh token; the old session
// is deleted.
func (s *DatabaseStrategy) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	sess, err := s.repo.GetSessionByRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !sess.Active || sess.RefreshExpiresAt.Before(s.now()) {
		return nil, ErrInvalidToken
	}

	next, err := s.Create(ctx, sess.IdentityID)
	if err != nil {
		return nil, err
	}
	_ = s.repo.DeleteSession(ctx, sess.ID)
	return next, nil
}

func (s *DatabaseStrategy) Delete(ctx context.Context, token string) error {
	return s.repo.DeleteSession(ctx, token)
}
