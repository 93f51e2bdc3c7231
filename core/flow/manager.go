package flow

import (
	"context"
	"errors"
	"fmt"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/logger"
	"go.uber.org/zap"
)

// Manager routes sign-in and registration to the strategy registered for a
// method and writes the outcome to the audit trail.
type Manager struct {
	logins        map[string]Authenticator
	registrations map[string]Registrar
	audit         audit.AuditStore
	log           *zap.Logger
}

type ManagerOption func(*Manager)

func WithAuditStore(s audit.AuditStore) ManagerOption {
	return func(m *Manager) { m.audit = s }
}

func WithLogger(l *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = l }
}

func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		logins:        make(map[string]Authenticator),
		registrations: make(map[string]Registrar),
		log:           logger.Named("flow"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Use registers each strategy under its ID as an Authenticator, a
// Registrar, or both. The first strategy registered for a method keeps it,
// so a Lockout passed before the strategy it wraps guards sign-in while the
// inner strategy still serves registration.
func (m *Manager) Use(strategies ...any) {
	for _, s := range strategies {
		if a, ok := s.(Authenticator); ok {
			if _, taken := m.logins[a.ID()]; !taken {
				m.logins[a.ID()] = a
			}
		}
		if r, ok := s.(Registrar); ok {
			if _, taken := m.registrations[r.ID()]; !taken {
				m.registrations[r.ID()] = r
			}
		}
	}
}

// Authenticate checks a secret with the strategy for method. Rejections are
// audited against the normalized identifier, successes against the identity.
func (m *Manager) Authenticate(ctx context.Context, method, identifier, secret string) (*identity.Identity, error) {
	a, ok := m.logins[method]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownMethod, method)
	}

	ident, err := a.Authenticate(ctx, identifier, secret)
	switch {
	case err == nil:
		m.record(ctx, audit.NewEvent(audit.EventLoginSuccess).Actor(ident.ID).Subject(ident.ID).Success())
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrLocked):
		m.record(ctx, audit.NewEvent(audit.EventLoginFailure).Subject(NormalizeEmail(identifier)).Failure().Message(err.Error()))
	}
	return ident, err
}

// Register creates an identity with the strategy for method.
func (m *Manager) Register(ctx context.Context, method, email, secret string) (*identity.Identity, error) {
	r, ok := m.registrations[method]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownMethod, method)
	}

	ident, err := r.Register(ctx, email, secret)
	if err != nil {
		m.record(ctx, audit.NewEvent(audit.EventRegistrationFailure).Subject(NormalizeEmail(email)).Failure().Message(err.Error()))
		return nil, err
	}
	m.record(ctx, audit.NewEvent(audit.EventRegistrationSuccess).Actor(ident.ID).Subject(ident.ID).Success())
	m.log.Info("identity registered", zap.String("identity_id", ident.ID))
	return ident, nil
}

func (m *Manager) record(ctx context.Context, b *audit.EventBuilder) {
	if m.audit == nil {
		return
	}
	if err := b.Save(ctx, m.audit); err != nil {
		m.log.Warn("audit write failed", zap.Error(err))
	}
}
