package ritualstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/kv"
)

func newTestPresence(t *testing.T) *Presence {
	t.Helper()
	return NewPresence(kv.NewMemoryClient(), "ritual_connections", testLogger(t))
}

// TestPresence_ConnectDisconnect verifies the lifecycle and its
// idempotence.
func TestPresence_ConnectDisconnect(t *testing.T) {
	p := newTestPresence(t)
	ctx := context.Background()

	connected, err := p.IsConnected(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, connected)

	require.NoError(t, p.Connect(ctx, "v-1"))
	require.NoError(t, p.Connect(ctx, "v-1")) // idempotent

	connected, err = p.IsConnected(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, connected)

	count, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	require.NoError(t, p.Disconnect(ctx, "v-1"))
	require.NoError(t, p.Disconnect(ctx, "v-1")) // no-op when already gone

	connected, err = p.IsConnected(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, connected)
}

// TestPresence_ConnectedIDs verifies enumeration and ClearAll.
func TestPresence_ConnectedIDs(t *testing.T) {
	p := newTestPresence(t)
	ctx := context.Background()

	require.NoError(t, p.Connect(ctx, "v-1"))
	require.NoError(t, p.Connect(ctx, "v-2"))
	require.NoError(t, p.Heartbeat(ctx, "v-1"))

	ids, err := p.ConnectedIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"v-1", "v-2"}, ids)

	require.NoError(t, p.ClearAll(ctx))
	count, err := p.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)
}
