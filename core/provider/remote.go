package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/getkayan/mentorship/core/logger"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

// RemoteConfig configures a hosted identity service reached with the OAuth2
// resource owner password grant.
type RemoteConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string

	// VerifyKey, when set, is the HS256 key access tokens are verified
	// with. Otherwise claims are read without verification and the service
	// is trusted.
	VerifyKey []byte

	HTTPClient *http.Client
}

// Remote is a Provider for a hosted identity service. The principal id and
// email are read from the "sub" and "email" claims of the access token.
type Remote struct {
	cfg    RemoteConfig
	oauth  *oauth2.Config
	hub    *Hub
	log    *zap.Logger
	parser *jwt.Parser

	mu      sync.Mutex
	token   *oauth2.Token
	session *Session
}

type accessClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

func NewRemote(cfg RemoteConfig) *Remote {
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Remote{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  base + "/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		hub:    NewHub(),
		log:    logger.Named("provider.remote"),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
}

func (r *Remote) OnSessionChange(cb Callback) func() {
	return r.hub.Subscribe(cb)
}

func (r *Remote) httpContext(ctx context.Context) context.Context {
	if r.cfg.HTTPClient != nil {
		return context.WithValue(ctx, oauth2.HTTPClient, r.cfg.HTTPClient)
	}
	return ctx
}

// sessionFromToken reads the principal out of the access token.
func (r *Remote) sessionFromToken(tok *oauth2.Token) (*Session, error) {
	claims := &accessClaims{}
	if len(r.cfg.VerifyKey) > 0 {
		if _, err := r.parser.ParseWithClaims(tok.AccessToken, claims, func(t *jwt.Token) (interface{}, error) {
			return r.cfg.VerifyKey, nil
		}); err != nil {
			return nil, fmt.Errorf("verify access token: %w", err)
		}
	} else if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err != nil {
		return nil, fmt.Errorf("parse access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, errors.New("access token has no subject")
	}

	expires := tok.Expiry
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	return &Session{
		PrincipalID:  claims.Subject,
		Email:        claims.Email,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expires,
	}, nil
}

// rejected reports whether err is the service refusing the grant rather
// than failing.
func rejected(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return false
	}
	if re.ErrorCode == "invalid_grant" {
		return true
	}
	return re.Response != nil && (re.Response.StatusCode == http.StatusBadRequest || re.Response.StatusCode == http.StatusUnauthorized)
}

func (r *Remote) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	tok, err := r.oauth.PasswordCredentialsToken(r.httpContext(ctx), email, password)
	if err != nil {
		if rejected(err) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	sess, err := r.sessionFromToken(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	r.mu.Lock()
	r.token = tok
	r.session = sess
	r.mu.Unlock()

	r.log.Info("signed in", zap.String("principal_id", sess.PrincipalID))
	r.hub.Emit(EventSignedIn, sess)
	return sess.clone(), nil
}

// CurrentSession returns the held session, refreshing an expired access
// token first. A refused refresh drops the session.
func (r *Remote) CurrentSession(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	tok, sess := r.token, r.session
	r.mu.Unlock()

	if tok == nil {
		return nil, nil
	}
	if tok.Valid() {
		return sess.clone(), nil
	}

	next, err := r.Refresh(ctx)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, err
	}
	return next, nil
}

// Refresh exchanges the refresh token for a new access token. When the
// access token changed, EventTokenRefreshed is announced. A refused refresh
// drops the session and announces EventSignedOut.
func (r *Remote) Refresh(ctx context.Context) (*Session, error) {
	r.mu.Lock()
	cur := r.token
	r.mu.Unlock()
	if cur == nil || cur.RefreshToken == "" {
		return nil, ErrNoSession
	}

	tok, err := r.oauth.TokenSource(r.httpContext(ctx), &oauth2.Token{RefreshToken: cur.RefreshToken}).Token()
	if err != nil {
		if rejected(err) {
			r.mu.Lock()
			dropped := r.token == cur
			if dropped {
				r.token, r.session = nil, nil
			}
			r.mu.Unlock()
			if dropped {
				r.log.Info("refresh refused, session dropped", zap.Error(err))
				r.hub.Emit(EventSignedOut, nil)
			}
			return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	sess, err := r.sessionFromToken(tok)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	r.mu.Lock()
	if r.token != cur {
		r.mu.Unlock()
		return nil, ErrNoSession
	}
	r.token = tok
	r.session = sess
	r.mu.Unlock()

	if tok.AccessToken != cur.AccessToken {
		r.hub.Emit(EventTokenRefreshed, sess)
	}
	return sess.clone(), nil
}

// SignOut drops the held tokens. The hosted service is not contacted.
func (r *Remote) SignOut(ctx context.Context) error {
	r.mu.Lock()
	had := r.token != nil
	r.token, r.session = nil, nil
	r.mu.Unlock()

	if had {
		r.hub.Emit(EventSignedOut, nil)
	}
	return nil
}
