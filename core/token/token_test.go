package token

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockStorage struct {
	mu       sync.Mutex
	sessions map[string]*identity.Session
}

func newMockStorage() *mockStorage {
	return &mockStorage{sessions: make(map[string]*identity.Session)}
}

func (m *mockStorage) CreateSession(ctx context.Context, s *identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *mockStorage) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s, nil
}

func (m *mockStorage) GetSessionByRefreshToken(ctx context.Context, token string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == token {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStorage) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func TestDatabaseStrategy(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewDatabaseStrategy(newMockStorage(), time.Hour))

	sess, err := manager.Create(ctx, "test-user")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)
	assert.NotEmpty(t, sess.RefreshToken, "expected refresh token to be generated")

	got, err := manager.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-user", got.IdentityID)

	// Refresh rotates both values
	next, err := manager.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID)
	assert.NotEqual(t, sess.RefreshToken, next.RefreshToken)

	_, err = manager.Validate(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidToken, "old session should be deleted after rotation")

	_, err = manager.Refresh(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "old refresh token must not be reusable")
}

func TestDatabaseStrategyExpiry(t *testing.T) {
	ctx := context.Background()
	strategy := NewDatabaseStrategy(newMockStorage(), time.Minute)
	sess, err := strategy.Create(ctx, "u1")
	require.NoError(t, err)

	strategy.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = strategy.Validate(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestManagerDeleteNotifies(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewDatabaseStrategy(newMockStorage(), time.Hour))

	var gotSID, gotIdentity string
	manager.AddLogoutNotifier(LogoutNotifierFunc(func(ctx context.Context, sid, identityID string) error {
		gotSID, gotIdentity = sid, identityID
		return nil
	}))

	sess, err := manager.Create(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, manager.Delete(ctx, sess.ID))

	assert.Equal(t, sess.ID, gotSID)
	assert.Equal(t, "u1", gotIdentity)

	_, err = manager.Validate(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTStrategy(t *testing.T) {
	ctx := context.Background()
	manager := NewManager(NewHS256Strategy("my-secret-key", time.Hour))

	sess, err := manager.Create(ctx, "test-user")
	require.NoError(t, err)
	require.NotEmpty(t, sess.RefreshToken)

	got, err := manager.Validate(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-user", got.IdentityID)

	// A refresh token is not an access token
	_, err = manager.Validate(ctx, sess.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	next, err := manager.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, sess.ID, next.ID, "expected JWT access token to rotate")
	assert.Equal(t, "test-user", next.IdentityID)

	// Wrong secret
	other := NewHS256Strategy("another-secret", time.Hour)
	_, err = other.Validate(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTExpired(t *testing.T) {
	ctx := context.Background()
	strategy := NewHS256Strategy("my-secret-key", -time.Minute)
	sess, err := strategy.Create(ctx, "u1")
	require.NoError(t, err)

	_, err = strategy.Validate(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTRSAStrategy(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	strategy := NewJWTStrategy(JWTConfig{
		SigningMethod: jwt.SigningMethodRS256,
		SigningKey:    privateKey,
		VerifyingKey:  &privateKey.PublicKey,
		Expiry:        time.Hour,
	})
	manager := NewManager(strategy)

	sess, err := manager.Create(context.Background(), "test-user")
	require.NoError(t, err)

	validated, err := manager.Validate(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-user", validated.IdentityID)
}
