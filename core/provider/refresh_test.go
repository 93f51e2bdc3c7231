package provider

import (
	"context"
	"testing"
	"time"

	"github.com/getkayan/mentorship/core/flow"
	"github.com/getkayan/mentorship/core/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoRefreshRotatesExpiringToken(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewLocal(newMemStorage(), token.NewManager(token.NewHS256Strategy("test-secret", 3*time.Second)),
		WithHasher(flow.NewBcryptHasher(4)))
	_, err := local.SignUp(ctx, "erin@example.com", "password123")
	require.NoError(t, err)
	first, err := local.SignInWithPassword(ctx, "erin@example.com", "password123")
	require.NoError(t, err)

	rec := &recorder{}
	defer local.OnSessionChange(rec.callback)()

	done := make(chan struct{})
	go func() {
		defer close(done)
		AutoRefresh(ctx, local, 10*time.Millisecond, time.Hour)
	}()

	require.Eventually(t, func() bool {
		for _, k := range rec.kinds() {
			if k == EventTokenRefreshed {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	cur, err := local.CurrentSession(ctx)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.NotEqual(t, first.AccessToken, cur.AccessToken)

	cancel()
	<-done
}

func TestAutoRefreshIdleWithoutSession(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	local, _ := newTestLocal(t)
	rec := &recorder{}
	defer local.OnSessionChange(rec.callback)()

	AutoRefresh(ctx, local, 5*time.Millisecond, time.Hour)
	assert.Empty(t, rec.kinds())
}

func TestAutoRefreshSignsOutExpiredSession(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local := NewLocal(newMemStorage(), token.NewManager(token.NewHS256Strategy("test-secret", -time.Minute)),
		WithHasher(flow.NewBcryptHasher(4)))
	_, err := local.SignUp(ctx, "jo@example.com", "password123")
	require.NoError(t, err)
	_, err = local.SignInWithPassword(ctx, "jo@example.com", "password123")
	require.NoError(t, err)

	rec := &recorder{}
	defer local.OnSessionChange(rec.callback)()
	go AutoRefresh(ctx, local, 5*time.Millisecond, time.Minute)

	require.Eventually(t, func() bool {
		kinds := rec.kinds()
		return len(kinds) == 1 && kinds[0] == EventSignedOut
	}, 2*time.Second, 5*time.Millisecond)
}
