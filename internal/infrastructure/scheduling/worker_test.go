package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/kv"
	ritualstore "github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/ritual"
)

func newTestWorker(t *testing.T, clock func() time.Time) (*Worker, *services.RitualEngine, *kv.MemoryClient) {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)

	store := kv.NewMemoryClient()
	store.SetTimeProvider(clock)

	states := ritualstore.NewStateManager(store, 24*time.Hour, logger)
	states.SetTimeProvider(clock)
	queues := ritualstore.NewQueue(store, 100, time.Hour, logger)
	presence := ritualstore.NewPresence(store, "ritual_connections", logger)

	triggers := services.NewTriggerService(time.UTC, logger)
	triggers.SetTimeProvider(clock)
	generator := services.NewGeneratorService(time.UTC, logger)
	generator.SetTimeProvider(clock)
	generator.SetRandSeed(42)
	mutator := services.NewMutatorService(time.UTC, logger)
	mutator.SetTimeProvider(clock)
	mutator.SetRandSeed(42)

	engine := services.NewRitualEngine(states, queues, presence, triggers, generator, mutator, logger)

	workerCfg := &Config{
		TriggerSweepInterval: time.Minute,
		AnomalySweepInterval: 5 * time.Minute,
		CleanupInterval:      time.Hour,
		NightBurstHour:       0,
		WitchingEventHour:    3,
	}
	return NewWorker(engine, workerCfg, time.UTC, logger), engine, store
}

func witchingTime() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	}
}

// TestTriggerSweep_ActivatesTimeTriggers verifies a connected visitor
// picks up witching triggers between requests.
func TestTriggerSweep_ActivatesTimeTriggers(t *testing.T) {
	worker, engine, _ := newTestWorker(t, witchingTime())
	ctx := context.Background()

	state, err := engine.States().Create(ctx, "v-1")
	require.NoError(t, err)
	state.Progress = 10
	require.NoError(t, engine.States().Save(ctx, state))
	require.NoError(t, engine.Presence().Connect(ctx, "v-1"))

	// A visitor with no open channel must be skipped
	_, err = engine.States().Create(ctx, "v-2")
	require.NoError(t, err)

	worker.TriggerSweep(ctx)

	swept, err := engine.States().Get(ctx, "v-1")
	require.NoError(t, err)
	assert.True(t, swept.HasTrigger("witching_hour"))
	assert.True(t, swept.HasTrigger("late_night"))
	assert.Equal(t, 25, swept.Progress)

	messages, err := engine.Queues().GetAll(ctx, "v-1")
	require.NoError(t, err)
	assert.NotEmpty(t, messages, "forced witching anomaly should be queued")

	untouched, err := engine.States().Get(ctx, "v-2")
	require.NoError(t, err)
	assert.False(t, untouched.HasTrigger("witching_hour"))
}

// TestWitchingEvent verifies the burst volley, progress bump and
// trigger record.
func TestWitchingEvent(t *testing.T) {
	worker, engine, _ := newTestWorker(t, witchingTime())
	ctx := context.Background()

	state, err := engine.States().Create(ctx, "v-1")
	require.NoError(t, err)
	state.Progress = 90
	require.NoError(t, engine.States().Save(ctx, state))
	require.NoError(t, engine.Presence().Connect(ctx, "v-1"))

	worker.WitchingEvent(ctx)

	length, err := engine.Queues().Length(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(9), length) // critical burst of 7, plus 2

	after, err := engine.States().Get(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, 100, after.Progress)
	assert.True(t, after.HasTrigger("witching_hour"))
}

// TestNightBurst verifies the level-scaled volley size.
func TestNightBurst(t *testing.T) {
	worker, engine, _ := newTestWorker(t, witchingTime())
	ctx := context.Background()

	state, err := engine.States().Create(ctx, "v-1")
	require.NoError(t, err)
	state.Progress = 40
	require.NoError(t, engine.States().Save(ctx, state))
	require.NoError(t, engine.Presence().Connect(ctx, "v-1"))

	worker.NightBurst(ctx)

	length, err := engine.Queues().Length(ctx, "v-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

// TestCleanup_RepairsOrphans verifies the maintenance pass restores
// queue expiries.
func TestCleanup_RepairsOrphans(t *testing.T) {
	worker, _, store := newTestWorker(t, witchingTime())
	ctx := context.Background()

	_, err := store.RPush(ctx, "anomaly_queue:orphan", "{}")
	require.NoError(t, err)

	worker.Cleanup(ctx)

	ttl, err := store.TTL(ctx, "anomaly_queue:orphan")
	require.NoError(t, err)
	assert.True(t, ttl > 0)
}

// TestStartStop verifies the loops wind down cleanly.
func TestStartStop(t *testing.T) {
	worker, _, _ := newTestWorker(t, witchingTime())

	worker.Start(context.Background())
	worker.Stop()
}
