package ritualstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/kv"
)

func newTestQueue(t *testing.T, maxSize int) (*Queue, *kv.MemoryClient) {
	t.Helper()
	store := kv.NewMemoryClient()
	return NewQueue(store, maxSize, time.Hour, testLogger(t)), store
}

func testEvent(anomalyType ritual.AnomalyType) *ritual.AnomalyEvent {
	return ritual.NewAnomalyEvent(anomalyType, "", nil, nil, "", time.Now())
}

// TestQueue_FIFO verifies events come back in push order.
func TestQueue_FIFO(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	ctx := context.Background()

	first := testEvent(ritual.AnomalyGlitch)
	second := testEvent(ritual.AnomalyWhisper)

	n, err := q.Push(ctx, "v-1", first)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = q.Push(ctx, "v-1", second)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	msg, err := q.Pop(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "anomaly", msg.Type)
	assert.Equal(t, first.ID, msg.Payload.ID)

	msg, err = q.Pop(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, second.ID, msg.Payload.ID)

	msg, err = q.Pop(ctx, "v-1")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

// TestQueue_Bounded verifies overflow drops the oldest events.
func TestQueue_Bounded(t *testing.T) {
	q, _ := newTestQueue(t, 3)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		event := testEvent(ritual.AnomalyGlitch)
		ids = append(ids, event.ID)
		_, err := q.Push(ctx, "v-1", event)
		require.NoError(t, err)
	}

	length, err := q.Length(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), length)

	msg, err := q.Pop(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, ids[2], msg.Payload.ID, "oldest surviving event should be the third pushed")
}

// TestQueue_GetAllSkipsCorrupt verifies a corrupt entry is skipped, not
// fatal.
func TestQueue_GetAllSkipsCorrupt(t *testing.T) {
	q, store := newTestQueue(t, 100)
	ctx := context.Background()

	_, err := q.Push(ctx, "v-1", testEvent(ritual.AnomalyGlitch))
	require.NoError(t, err)
	_, err = store.RPush(ctx, "anomaly_queue:v-1", "{broken")
	require.NoError(t, err)
	_, err = q.Push(ctx, "v-1", testEvent(ritual.AnomalyWhisper))
	require.NoError(t, err)

	messages, err := q.GetAll(ctx, "v-1")
	require.NoError(t, err)
	assert.Len(t, messages, 2)
}

// TestQueue_PopBlockingImmediate verifies a queued event returns
// without waiting.
func TestQueue_PopBlockingImmediate(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	ctx := context.Background()

	event := testEvent(ritual.AnomalyGlitch)
	_, err := q.Push(ctx, "v-1", event)
	require.NoError(t, err)

	start := time.Now()
	msg, err := q.PopBlocking(ctx, "v-1", 5*time.Second)
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, event.ID, msg.Payload.ID)
	assert.Less(t, time.Since(start), time.Second)
}

// TestQueue_PushToAll verifies the fan-out reaches every queue.
func TestQueue_PushToAll(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	ctx := context.Background()

	count, err := q.PushToAll(ctx, []string{"v-1", "v-2", "v-3"}, testEvent(ritual.AnomalyStatic))
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	for _, id := range []string{"v-1", "v-2", "v-3"} {
		length, err := q.Length(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, int64(1), length, "visitor %s", id)
	}
}

// TestQueue_PushBroadcast verifies the glob fan-out hits only active
// queues.
func TestQueue_PushBroadcast(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	ctx := context.Background()

	_, err := q.Push(ctx, "v-1", testEvent(ritual.AnomalyGlitch))
	require.NoError(t, err)
	_, err = q.Push(ctx, "v-2", testEvent(ritual.AnomalyGlitch))
	require.NoError(t, err)

	count, err := q.PushBroadcast(ctx, testEvent(ritual.AnomalyEyes), "")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	length, err := q.Length(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

// TestQueue_RepairOrphans verifies queues without an expiry get one
// back.
func TestQueue_RepairOrphans(t *testing.T) {
	q, store := newTestQueue(t, 100)
	ctx := context.Background()

	// A healthy queue and an orphan created behind the Queue's back
	_, err := q.Push(ctx, "v-1", testEvent(ritual.AnomalyGlitch))
	require.NoError(t, err)
	_, err = store.RPush(ctx, "anomaly_queue:orphan", "{}")
	require.NoError(t, err)

	total, repaired, err := q.RepairOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, repaired)

	ttl, err := store.TTL(ctx, "anomaly_queue:orphan")
	require.NoError(t, err)
	assert.True(t, ttl > 0)
}

// TestQueue_Clear verifies removal reporting.
func TestQueue_Clear(t *testing.T) {
	q, _ := newTestQueue(t, 100)
	ctx := context.Background()

	existed, err := q.Clear(ctx, "v-1")
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = q.Push(ctx, "v-1", testEvent(ritual.AnomalyGlitch))
	require.NoError(t, err)
	existed, err = q.Clear(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, existed)
}
