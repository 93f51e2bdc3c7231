package token

import (
	"context"
	"fmt"
	"time"

	"github.com/getkayan/mentorship/core/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTConfig holds the configuration for JWT-based sessions.
type JWTConfig struct {
	SigningMethod jwt.SigningMethod
	SigningKey    any // e.g., []byte for HMAC, *rsa.PrivateKey for RSA
	VerifyingKey  any // e.g., []byte for HMAC (same as SigningKey), *rsa.PublicKey for RSA
	Expiry        time.Duration
	RefreshExpiry time.Duration
}

// JWTStrategy implements the session strategy using JSON Web Tokens. Access
// and refresh tokens are told apart by the "typ" claim.
type JWTStrategy struct {
	config JWTConfig
}

func NewJWTStrategy(config JWTConfig) *JWTStrategy {
	if config.RefreshExpiry <= 0 {
		config.RefreshExpiry = 7 * 24 * time.Hour
	}
	return &JWTStrategy{config: config}
}

// NewHS256Strategy is a convenience constructor for HS256 strategy.
func NewHS256Strategy(secret string, expiry time.Duration) *JWTStrategy {
	return NewJWTStrategy(JWTConfig{
		SigningMethod: jwt.SigningMethodHS256,
		SigningKey:    []byte(secret),
		VerifyingKey:  []byte(secret),
		Expiry:        expiry,
	})
}

const (
	typeAccess  = "access"
	typeRefresh = "refresh"
)

// JWTClaims represents the data stored in the JWT.
type JWTClaims struct {
	SessionID string `json:"sid"`
	Type      string `json:"typ"`
	jwt.RegisteredClaims
}

func (s *JWTStrategy) sign(sid, identityID, typ string, now, exp time.Time) (string, error) {
	claims := JWTClaims{
		SessionID: sid,
		Type:      typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   identityID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(s.config.SigningMethod, claims).SignedString(s.config.SigningKey)
}

func (s *JWTStrategy) Create(ctx context.Context, identityID string) (*identity.Session, error) {
	now := time.Now()
	sid := uuid.NewString()

	atExpiresAt := now.Add(s.config.Expiry)
	at, err := s.sign(sid, identityID, typeAccess, now, atExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("token: sign access token: %w", err)
	}

	rtExpiresAt := now.Add(s.config.RefreshExpiry)
	rt, err := s.sign(sid, identityID, typeRefresh, now, rtExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("token: sign refresh token: %w", err)
	}

	return &identity.Session{
		ID:               at,
		IdentityID:       identityID,
		RefreshToken:     rt,
		ExpiresAt:        atExpiresAt,
		RefreshExpiresAt: rtExpiresAt,
		IssuedAt:         now,
		Active:           true,
	}, nil
}

func (s *JWTStrategy) parse(tokenString, typ string) (*JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method.Alg() != s.config.SigningMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.config.VerifyingKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid || claims.Type != typ {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *JWTStrategy) Validate(ctx context.Context, tokenString string) (*identity.Session, error) {
	claims, err := s.parse(tokenString, typeAccess)
	if err != nil {
		return nil, err
	}
	return &identity.Session{
		ID:         tokenString,
		IdentityID: claims.Subject,
		ExpiresAt:  claims.ExpiresAt.Time,
		IssuedAt:   claims.IssuedAt.Time,
		Active:     true,
	}, nil
}

// Refresh issues a new access and refresh token pair.
func (s *JWTStrategy) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	claims, err := s.parse(refreshToken, typeRefresh)
	if err != nil {
		return nil, err
	}
	return s.Create(ctx, claims.Subject)
}

// Delete is a no-op; JWT sessions are stateless.
func (s *JWTStrategy) Delete(ctx context.Context, token string) error {
	return nil
}
