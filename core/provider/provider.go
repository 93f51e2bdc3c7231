// Package provider defines the identity provider contract consumed by the
// session controller and ships two implementations of it.
//
// Local verifies passwords against the kgorm identity tables and issues
// tokens through the token package; Remote talks to a hosted identity
// service with the OAuth2 password grant. Both deliver session-change
// notifications through a Hub, which calls every subscriber in emission
// order.
package provider

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials is returned when the provider rejects the email
	// and password pair, including when the account is locked out.
	ErrInvalidCredentials = errors.New("provider: invalid credentials")

	// ErrProviderUnavailable wraps transport and backend failures.
	ErrProviderUnavailable = errors.New("provider: unavailable")

	// ErrNoSession is returned by operations that need a signed-in client.
	ErrNoSession = errors.New("provider: no active session")

	// ErrAccountExists is returned by SignUp for a taken email.
	ErrAccountExists = errors.New("provider: account already exists")

	// ErrInvalidResetToken is returned for unknown or expired reset tokens.
	ErrInvalidResetToken = errors.New("provider: invalid or expired reset token")
)

// EventKind names a session-change notification.
type EventKind string

const (
	EventSignedIn       EventKind = "SIGNED_IN"
	EventSignedOut      EventKind = "SIGNED_OUT"
	EventTokenRefreshed EventKind = "TOKEN_REFRESHED"
	EventUserUpdated    EventKind = "USER_UPDATED"
)

// Session is the provider's view of a signed-in principal.
type Session struct {
	PrincipalID  string    `json:"principal_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// Callback receives session-change notifications. s is nil for
// EventSignedOut.
type Callback func(kind EventKind, s *Session)

// Provider is an external identity provider.
type Provider interface {
	// CurrentSession returns the active session, or nil when signed out.
	CurrentSession(ctx context.Context) (*Session, error)

	// SignInWithPassword verifies the credentials and starts a session.
	// Success is also announced with EventSignedIn.
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)

	// SignOut ends the active session and announces EventSignedOut.
	SignOut(ctx context.Context) error

	// OnSessionChange registers cb for every later notification.
	OnSessionChange(cb Callback) (unsubscribe func())
}
