package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/getkayan/mentorship/core/audit"
	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/flow"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/getkayan/mentorship/core/logger"
	"github.com/getkayan/mentorship/core/token"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Local is an in-process identity provider backed by domain.Storage. It
// models a single client, so it holds at most one current session.
type Local struct {
	store     domain.Storage
	tokens    *token.Manager
	passwords *flow.PasswordStrategy
	flows     *flow.Manager
	hub       *Hub

	hasher      domain.Hasher
	lockout     flow.LockoutStore
	maxFailures int
	lockoutFor  time.Duration
	auditStore  audit.AuditStore
	resetTTL    time.Duration
	log         *zap.Logger

	mu      sync.Mutex
	current *Session
}

type LocalOption func(*Local)

// WithHasher replaces the default bcrypt hasher.
func WithHasher(h domain.Hasher) LocalOption {
	return func(l *Local) { l.hasher = h }
}

// WithLockout enables brute-force protection: after maxFailures rejected
// attempts the email is locked for duration.
func WithLockout(store flow.LockoutStore, maxFailures int, duration time.Duration) LocalOption {
	return func(l *Local) {
		l.lockout = store
		l.maxFailures = maxFailures
		l.lockoutFor = duration
	}
}

// WithAuditStore records sign-in, sign-out, sign-up and reset events.
func WithAuditStore(s audit.AuditStore) LocalOption {
	return func(l *Local) { l.auditStore = s }
}

// WithResetTTL sets how long a password reset token stays valid.
func WithResetTTL(d time.Duration) LocalOption {
	return func(l *Local) { l.resetTTL = d }
}

func WithLocalLogger(log *zap.Logger) LocalOption {
	return func(l *Local) { l.log = log }
}

func NewLocal(store domain.Storage, tokens *token.Manager, opts ...LocalOption) *Local {
	l := &Local{
		store:    store,
		tokens:   tokens,
		hub:      NewHub(),
		resetTTL: time.Hour,
		log:      logger.Named("provider.local"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.hasher == nil {
		l.hasher = flow.NewBcryptHasher(0)
	}

	l.passwords = flow.NewPasswordStrategy(store, l.hasher)
	l.flows = flow.NewManager(flow.WithAuditStore(l.auditStore), flow.WithLogger(l.log))

	if l.lockout != nil {
		policy := flow.LockoutPolicy{MaxFailures: l.maxFailures, Duration: l.lockoutFor}
		l.flows.Use(flow.NewLockout(l.passwords, l.lockout, policy,
			flow.OnLocked(func(ctx context.Context, key string, failures int, until time.Time) {
				l.log.Warn("account locked", zap.String("email", key), zap.Int("failures", failures), zap.Time("until", until))
				l.record(ctx, audit.NewEvent(audit.EventLoginBlocked).Subject(key).Blocked().Risk(audit.RiskHigh))
			}),
		))
	}
	l.flows.Use(l.passwords)
	return l
}

func (l *Local) record(ctx context.Context, b *audit.EventBuilder) {
	if l.auditStore == nil {
		return
	}
	if err := b.Save(ctx, l.auditStore); err != nil {
		l.log.Warn("audit write failed", zap.Error(err))
	}
}

func (l *Local) OnSessionChange(cb Callback) func() {
	return l.hub.Subscribe(cb)
}

// CurrentSession returns the held session after checking its access token.
// An expired or revoked token drops the session and announces
// EventSignedOut.
func (l *Local) CurrentSession(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	cur := l.current
	if cur == nil {
		l.mu.Unlock()
		return nil, nil
	}
	_, err := l.tokens.Validate(ctx, cur.AccessToken)
	dropped := false
	if err != nil && errors.Is(err, token.ErrInvalidToken) && l.current == cur {
		l.current = nil
		dropped = true
	}
	l.mu.Unlock()

	switch {
	case dropped:
		l.log.Info("session expired", zap.String("principal_id", cur.PrincipalID))
		l.hub.Emit(EventSignedOut, nil)
		return nil, nil
	case errors.Is(err, token.ErrInvalidToken):
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	return cur.clone(), nil
}

func (l *Local) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	ident, err := l.flows.Authenticate(ctx, flow.MethodPassword, email, password)
	if err != nil {
		if errors.Is(err, flow.ErrInvalidCredentials) || errors.Is(err, flow.ErrLocked) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	tok, err := l.tokens.Create(ctx, ident.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	sess := toSession(ident, tok)

	l.mu.Lock()
	l.current = sess
	l.mu.Unlock()

	l.log.Info("signed in", zap.String("principal_id", ident.ID))
	l.hub.Emit(EventSignedIn, sess)
	return sess.clone(), nil
}

func (l *Local) SignOut(ctx context.Context) error {
	l.mu.Lock()
	cur := l.current
	l.current = nil
	l.mu.Unlock()

	if cur == nil {
		return nil
	}
	if err := l.tokens.Delete(ctx, cur.AccessToken); err != nil {
		l.log.Warn("token revocation failed", zap.String("principal_id", cur.PrincipalID), zap.Error(err))
	}
	l.record(ctx, audit.NewEvent(audit.EventLogout).Actor(cur.PrincipalID).Subject(cur.PrincipalID).Success())
	l.hub.Emit(EventSignedOut, nil)
	return nil
}

// SignUp registers a password account and returns its principal id. It does
// not sign the client in.
func (l *Local) SignUp(ctx context.Context, email, password string) (string, error) {
	ident, err := l.flows.Register(ctx, flow.MethodPassword, email, password)
	if err != nil {
		if errors.Is(err, flow.ErrIdentityExists) {
			return "", ErrAccountExists
		}
		return "", err
	}
	return ident.ID, nil
}

// Refresh rotates the current token pair and announces EventTokenRefreshed.
func (l *Local) Refresh(ctx context.Context) (*Session, error) {
	l.mu.Lock()
	cur := l.current
	l.mu.Unlock()
	if cur == nil {
		return nil, ErrNoSession
	}

	tok, err := l.tokens.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrInvalidToken) {
			return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	next := &Session{
		PrincipalID:  cur.PrincipalID,
		Email:        cur.Email,
		AccessToken:  tok.ID,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}

	l.mu.Lock()
	if l.current != cur {
		l.mu.Unlock()
		return nil, ErrNoSession
	}
	l.current = next
	l.mu.Unlock()

	l.hub.Emit(EventTokenRefreshed, next)
	return next.clone(), nil
}

// RequestPasswordReset records a reset token for the account and returns
// it for delivery. Unknown emails yield an empty token and no error, so
// callers cannot probe for accounts.
func (l *Local) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	ident, err := l.store.FindIdentityByEmail(ctx, flow.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	now := time.Now().UTC()
	rt := &identity.ResetToken{
		Token:      uuid.NewString(),
		IdentityID: ident.ID,
		ExpiresAt:  now.Add(l.resetTTL),
		CreatedAt:  now,
	}
	if err := l.store.SaveResetToken(ctx, rt); err != nil {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	l.record(ctx, audit.NewEvent(audit.EventPasswordReset).Subject(ident.ID).Status("requested"))
	return rt.Token, nil
}

// CompletePasswordReset sets a new password using a reset token. When the
// affected principal is signed in, EventUserUpdated is announced.
func (l *Local) CompletePasswordReset(ctx context.Context, resetToken, password string) error {
	rt, err := l.store.ConsumeResetToken(ctx, resetToken)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	if time.Now().After(rt.ExpiresAt) {
		return ErrInvalidResetToken
	}
	if err := l.passwords.SetPassword(ctx, rt.IdentityID, password); err != nil {
		return err
	}
	l.record(ctx, audit.NewEvent(audit.EventPasswordReset).Actor(rt.IdentityID).Subject(rt.IdentityID).Success())

	l.mu.Lock()
	cur := l.current.clone()
	l.mu.Unlock()
	if cur != nil && cur.PrincipalID == rt.IdentityID {
		l.hub.Emit(EventUserUpdated, cur)
	}
	return nil
}

func toSession(ident *identity.Identity, tok *identity.Session) *Session {
	return &Session{
		PrincipalID:  ident.ID,
		Email:        ident.Email,
		AccessToken:  tok.ID,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    tok.ExpiresAt,
	}
}
