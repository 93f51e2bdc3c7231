// Package token issues and validates the access/refresh token pairs of the
// local identity provider.
//
// Two strategies are provided:
//
//   - JWT (stateless): tokens carry the principal id, nothing is stored
//   - Database: tokens are opaque ids of rows in domain.SessionStorage, fully revocable
//
// # JWT Sessions
//
//	strategy := token.NewHS256Strategy("secret", time.Hour)
//	manager := token.NewManager(strategy)
//
//	sess, err := manager.Create(ctx, identityID)
//	sess, err = manager.Validate(ctx, sess.ID)
//
// # Logout Notifications
//
// Register notifiers to observe revocations (audit, cache eviction):
//
//	manager.AddLogoutNotifier(myNotifier)
package token

import (
	"context"
	"errors"

	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/logger"
	"go.uber.org/zap"
)

// ErrInvalidToken is returned for malformed, expired or revoked tokens.
var ErrInvalidToken = errors.New("token: invalid or expired")

// Strategy issues and checks token sessions.
type Strategy interface {
	Create(ctx context.Context, identityID string) (*identity.Session, error)
	Validate(ctx context.Context, token string) (*identity.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
	Delete(ctx context.Context, token string) error
}

// LogoutNotifier is called after a session is deleted.
type LogoutNotifier interface {
	NotifyLogout(ctx context.Context, sessionID, identityID string) error
}

// LogoutNotifierFunc adapts a function to LogoutNotifier.
type LogoutNotifierFunc func(ctx context.Context, sessionID, identityID string) error

func (f LogoutNotifierFunc) NotifyLogout(ctx context.Context, sessionID, identityID string) error {
	return f(ctx, sessionID, identityID)
}

// Manager handles token session lifecycle operations by delegating to a
// Strategy.
type Manager struct {
	strategy  Strategy
	notifiers []LogoutNotifier
	log       *zap.Logger
}

func NewManager(strategy Strategy) *Manager {
	return &Manager{strategy: strategy, log: logger.Named("token")}
}

func (m *Manager) AddLogoutNotifier(n LogoutNotifier) {
	m.notifiers = append(m.notifiers, n)
}

func (m *Manager) Create(ctx context.Context, identityID string) (*identity.Session, error) {
	return m.strategy.Create(ctx, identityID)
}

func (m *Manager) Validate(ctx context.Context, token string) (*identity.Session, error) {
	return m.strategy.Validate(ctx, token)
}

func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	return m.strategy.Refresh(ctx, refreshToken)
}

// Delete revokes the session and notifies listeners synchronously. Notifier
// errors are logged, never returned.
func (m *Manager) Delete(ctx context.Context, token string) error {
	sess, verr := m.strategy.Validate(ctx, token)
	if err := m.strategy.Delete(ctx, token); err != nil {
		return err
	}
	if verr != nil {
		return nil
	}
	for _, n := range m.notifiers {
		if err := n.NotifyLogout(ctx, sess.ID, sess.IdentityID); err != nil {
			m.log.Warn("logout notifier failed", zap.String("principal_id", sess.IdentityID), zap.Error(err))
		}
	}
	return nil
}
