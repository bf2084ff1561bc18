package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/kv"
	ritualstore "github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/ritual"
)

func newTestEngine(t *testing.T, clock func() time.Time) (*RitualEngine, *kv.MemoryClient) {
	t.Helper()
	logger := testLogger(t)
	store := kv.NewMemoryClient()
	store.SetTimeProvider(clock)

	states := ritualstore.NewStateManager(store, 24*time.Hour, logger)
	states.SetTimeProvider(clock)
	queues := ritualstore.NewQueue(store, 100, time.Hour, logger)
	presence := ritualstore.NewPresence(store, "ritual_connections", logger)

	triggers := NewTriggerService(time.UTC, logger)
	triggers.SetTimeProvider(clock)
	generator := NewGeneratorService(time.UTC, logger)
	generator.SetTimeProvider(clock)
	generator.SetRandSeed(42)
	mutator := NewMutatorService(time.UTC, logger)
	mutator.SetTimeProvider(clock)
	mutator.SetRandSeed(42)

	return NewRitualEngine(states, queues, presence, triggers, generator, mutator, logger), store
}

// TestOnRequest_NewVisitor verifies the first contact pipeline: state
// creation, first_visit activation and persistence.
func TestOnRequest_NewVisitor(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	state, isNew, err := engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.True(t, isNew)
	assert.Equal(t, 5, state.Progress)
	assert.True(t, state.HasTrigger("first_visit"))

	// Persisted, and the second request is no longer new
	loaded, err := engine.GetUserState(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 5, loaded.Progress)

	state, isNew, err = engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 5, state.Progress, "first_visit must not fire twice")
}

// TestOnRequest_WitchingQueuesForcedWhisper verifies witching hour
// activation queues the forced anomaly even for disconnected visitors.
func TestOnRequest_WitchingQueuesForcedWhisper(t *testing.T) {
	engine, _ := newTestEngine(t, witchingClock())
	ctx := context.Background()

	seed, err := engine.States().Create(ctx, "v-1")
	require.NoError(t, err)
	seed.Progress = 10
	require.NoError(t, engine.States().Save(ctx, seed))

	state, _, err := engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	assert.Equal(t, 25, state.Progress) // witching 10 + late_night 5
	assert.True(t, state.HasTrigger("witching_hour"))
	assert.True(t, state.HasTrigger("late_night"))

	messages, err := engine.Queues().GetAll(ctx, "v-1")
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	var foundWhisper bool
	for _, msg := range messages {
		if msg.Payload.Type == ritual.AnomalyWhisper && msg.Payload.TriggeredBy == "trigger" {
			foundWhisper = true
		}
	}
	assert.True(t, foundWhisper, "witching hour should force a whisper onto the queue")
}

// TestViewAndActivityProgress verifies the per-event progress drip.
func TestViewAndActivityProgress(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	_, _, err := engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)

	state, err := engine.OnThreadView(ctx, "v-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 6, state.Progress)

	// Repeat view of the same thread adds nothing
	state, err = engine.OnThreadView(ctx, "v-1", 7)
	require.NoError(t, err)
	assert.Equal(t, 6, state.Progress)
	assert.Equal(t, []int{7}, state.ViewedThreads)

	state, err = engine.OnPostView(ctx, "v-1", 3)
	require.NoError(t, err)
	assert.Equal(t, 7, state.Progress)

	// Ten minutes on site adds one point
	state, err = engine.OnActivity(ctx, "v-1", 600)
	require.NoError(t, err)
	assert.Equal(t, 600, state.TimeOnSite)
	assert.Equal(t, 8, state.Progress)

	// Unknown visitors are nil, not errors
	state, err = engine.OnThreadView(ctx, "ghost", 1)
	require.NoError(t, err)
	assert.Nil(t, state)
}

// TestQueueAnomalyForType_Validation verifies the admin path rejects
// unknown types and stamps its origin.
func TestQueueAnomalyForType_Validation(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	_, _, err := engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)

	_, err = engine.QueueAnomalyForType(ctx, "v-1", "poltergeist", nil)
	assert.Error(t, err)

	event, err := engine.QueueAnomalyForType(ctx, "v-1", "whisper", map[string]any{"message": "custom"})
	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, "admin", event.TriggeredBy)
	assert.Equal(t, "custom", event.Data["message"])

	// Unknown visitor is nil, not an error
	event, err = engine.QueueAnomalyForType(ctx, "ghost", "whisper", nil)
	require.NoError(t, err)
	assert.Nil(t, event)
}

// TestMutate_UnknownVisitorUntouched verifies mutation endpoints pass
// content through for visitors without state.
func TestMutate_UnknownVisitorUntouched(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	post := map[string]any{"id": 1, "content": "текст"}
	out, err := engine.MutatePost(ctx, "ghost", post)
	require.NoError(t, err)
	assert.Equal(t, "текст", out["content"])

	posts, err := engine.MutatePosts(ctx, "ghost", []map[string]any{post})
	require.NoError(t, err)
	require.Len(t, posts, 1)
}

// TestResetUserState verifies the wipe clears state and queue together
// and leaves a fresh zero state behind.
func TestResetUserState(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	_, _, err := engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	_, err = engine.QueueAnomaly(ctx, "v-1", "admin")
	require.NoError(t, err)

	fresh, err := engine.ResetUserState(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, fresh)
	assert.Equal(t, 0, fresh.Progress)
	assert.Empty(t, fresh.TriggersHit)

	state, err := engine.GetUserState(ctx, "v-1")
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, 0, state.Progress)

	length, err := engine.Queues().Length(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), length)

	// The next request walks the first-contact path again
	state, _, err = engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	assert.Equal(t, 5, state.Progress)
	assert.True(t, state.HasTrigger("first_visit"))
}

// TestSnapshot verifies the client-facing shape.
func TestSnapshot(t *testing.T) {
	engine, _ := newTestEngine(t, afternoonClock())
	ctx := context.Background()

	state, err := engine.SetUserProgress(ctx, "v-1", 90)
	require.NoError(t, err)
	require.Nil(t, state, "progress of an unknown visitor should not create one")

	_, _, err = engine.OnRequest(ctx, "v-1", "/", "GET")
	require.NoError(t, err)
	state, err = engine.SetUserProgress(ctx, "v-1", 90)
	require.NoError(t, err)
	require.NotNil(t, state)

	snapshot := engine.Snapshot(state)
	assert.Equal(t, "v-1", snapshot.VisitorID)
	assert.Equal(t, 90, snapshot.Progress)
	assert.Equal(t, string(ritual.LevelCritical), snapshot.Level)
	assert.NotEmpty(t, snapshot.Description)
	assert.Contains(t, snapshot.TriggersHit, "first_visit")
	require.NotNil(t, snapshot.Overlay)
	assert.Equal(t, ritual.CorruptionIntensity(90), snapshot.Overlay["intensity"])
}
