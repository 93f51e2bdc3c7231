package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreQuery(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, NewEvent(EventLoginSuccess).Actor("u1").Success().Save(ctx, store))
	require.NoError(t, NewEvent(EventLoginFailure).Actor("u2").Failure().Save(ctx, store))
	require.NoError(t, NewEvent(EventRouteDenied).Actor("u1").Subject("/admin/dashboard").Blocked().Save(ctx, store))

	events, err := store.Query(ctx, Filter{ActorID: "u1"})
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.NotEmpty(t, e.ID)
		assert.Equal(t, "u1", e.ActorID)
	}

	n, err := store.Count(ctx, Filter{Statuses: []string{"failure", "blocked"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	events, err = store.Query(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestMemoryStorePurge(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	old := &AuditEvent{Type: EventLogout, CreatedAt: time.Now().Add(-48 * time.Hour)}
	require.NoError(t, store.SaveEvent(ctx, old))
	require.NoError(t, store.SaveEvent(ctx, &AuditEvent{Type: EventLogout}))

	purged, err := store.Purge(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	n, err := store.Count(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
