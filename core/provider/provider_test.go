package provider

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/getkayan/mentorship/core/domain"
	"github.com/getkayan/mentorship/core/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStorage struct {
	mu         sync.Mutex
	identities map[string]*identity.Identity
	creds      map[string]*identity.Credential
	sessions   map[string]*identity.Session
	resets     map[string]*identity.ResetToken
}

func newMemStorage() *memStorage {
	return &memStorage{
		identities: make(map[string]*identity.Identity),
		creds:      make(map[string]*identity.Credential),
		sessions:   make(map[string]*identity.Session),
		resets:     make(map[string]*identity.ResetToken),
	}
}

func (m *memStorage) CreateIdentity(ctx context.Context, ident *identity.Identity, creds ...*identity.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[ident.ID] = ident
	for _, c := range creds {
		m.creds[c.Type+":"+c.Identifier] = c
	}
	return nil
}

func (m *memStorage) GetIdentity(ctx context.Context, id string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ident, ok := m.identities[id]; ok {
		return ident, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memStorage) FindIdentityByEmail(ctx context.Context, email string) (*identity.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ident := range m.identities {
		if ident.Email == email {
			return ident, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStorage) GetCredentialByIdentifier(ctx context.Context, identifier, method string) (*identity.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.creds[method+":"+identifier]; ok {
		return c, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memStorage) UpdateCredentialSecret(ctx context.Context, identityID, method, secret string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.creds {
		if c.IdentityID == identityID && c.Type == method {
			c.Secret = secret
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *memStorage) CreateSession(ctx context.Context, s *identity.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return nil
}

func (m *memStorage) GetSession(ctx context.Context, id string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		return s, nil
	}
	return nil, domain.ErrNotFound
}

func (m *memStorage) GetSessionByRefreshToken(ctx context.Context, token string) (*identity.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == token {
			return s, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memStorage) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memStorage) SaveResetToken(ctx context.Context, t *identity.ResetToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[t.Token] = t
	return nil
}

func (m *memStorage) ConsumeResetToken(ctx context.Context, token string) (*identity.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resets[token]
	if !ok {
		return nil, domain.ErrNotFound
	}
	delete(m.resets, token)
	return t, nil
}

type event struct {
	kind EventKind
	sess *Session
}

type recorder struct {
	mu     sync.Mutex
	events []event
}

func (r *recorder) callback(kind EventKind, s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event{kind, s})
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func TestHubOrderAndUnsubscribe(t *testing.T) {
	hub := NewHub()
	rec := &recorder{}
	unsubscribe := hub.Subscribe(rec.callback)

	hub.Emit(EventSignedIn, &Session{PrincipalID: "a"})
	hub.Emit(EventTokenRefreshed, &Session{PrincipalID: "a"})
	hub.Emit(EventSignedOut, nil)

	assert.Equal(t, []EventKind{EventSignedIn, EventTokenRefreshed, EventSignedOut}, rec.kinds())

	unsubscribe()
	unsubscribe()
	hub.Emit(EventSignedIn, &Session{PrincipalID: "b"})
	assert.Len(t, rec.kinds(), 3)
	assert.Equal(t, 0, hub.Len())
}

func TestHubSurvivesPanickingSubscriber(t *testing.T) {
	hub := NewHub()
	hub.Subscribe(func(EventKind, *Session) { panic("boom") })
	rec := &recorder{}
	hub.Subscribe(rec.callback)

	require.NotPanics(t, func() { hub.Emit(EventSignedIn, &Session{PrincipalID: "a"}) })
	assert.Equal(t, []EventKind{EventSignedIn}, rec.kinds())
}

func TestHubDeliversCopies(t *testing.T) {
	hub := NewHub()
	hub.Subscribe(func(_ EventKind, s *Session) { s.PrincipalID = "mutated" })

	s := &Session{PrincipalID: "a", ExpiresAt: time.Now()}
	hub.Emit(EventSignedIn, s)
	assert.Equal(t, "a", s.PrincipalID)
}
