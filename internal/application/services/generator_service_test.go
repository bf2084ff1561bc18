package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
)

func newTestGenerator(t *testing.T, clock func() time.Time, seed int64) *GeneratorService {
	t.Helper()
	gs := NewGeneratorService(time.UTC, testLogger(t))
	gs.SetTimeProvider(clock)
	gs.SetRandSeed(seed)
	return gs
}

func stateWithProgress(progress int) *ritual.VisitorState {
	state := ritual.NewVisitorState("v-1", time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC))
	state.Progress = progress
	return state
}

// TestShouldGenerate_ZeroMultiplierNeverFires verifies a zero multiplier
// kills the roll outright.
func TestShouldGenerate_ZeroMultiplierNeverFires(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 1)

	state := stateWithProgress(90)
	for i := 0; i < 200; i++ {
		assert.False(t, gs.ShouldGenerate(state, 0))
	}
}

// TestGenerate_TypeComesFromLevelPool verifies sampled types stay inside
// the visitor's level pool.
func TestGenerate_TypeComesFromLevelPool(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	state := stateWithProgress(90)
	pool := make(map[ritual.AnomalyType]bool)
	for _, w := range ritual.AnomalyPools[ritual.LevelCritical] {
		pool[w.Value] = true
	}

	for i := 0; i < 50; i++ {
		event := gs.Generate(state, nil, "ambient")
		assert.True(t, pool[event.Type], "type %s not in critical pool", event.Type)
		assert.Equal(t, "ambient", event.TriggeredBy)
	}
}

// TestGenerateSpecific_Heartbeat verifies the bpm scales with progress.
func TestGenerateSpecific_Heartbeat(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	event := gs.GenerateSpecific(stateWithProgress(50), ritual.AnomalyHeartbeat, nil, nil, "ambient")
	assert.Equal(t, 90, event.Data["bpm"]) // 60 + 50*0.6

	event = gs.GenerateSpecific(stateWithProgress(100), ritual.AnomalyHeartbeat, nil, nil, "ambient")
	assert.Equal(t, 120, event.Data["bpm"])
}

// TestGenerateSpecific_ViewerCount verifies count and message agree.
func TestGenerateSpecific_ViewerCount(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	event := gs.GenerateSpecific(stateWithProgress(10), ritual.AnomalyViewerCount, nil, nil, "ambient")
	count, ok := event.Data["count"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, count, 3)
	assert.LessOrEqual(t, count, 12)
	assert.Equal(t, fmt.Sprintf("Сейчас читают: %d", count), event.Data["message"])
}

// TestGenerateSpecific_ViewerCountWitching verifies the witching boost.
func TestGenerateSpecific_ViewerCountWitching(t *testing.T) {
	gs := newTestGenerator(t, witchingClock(), 42)

	event := gs.GenerateSpecific(stateWithProgress(10), ritual.AnomalyViewerCount, nil, nil, "ambient")
	count, ok := event.Data["count"].(int)
	require.True(t, ok)
	assert.GreaterOrEqual(t, count, 13)
	assert.LessOrEqual(t, count, 42)
}

// TestGenerateSpecific_MemoryPicksViewedThread verifies memory anomalies
// reference a thread the visitor actually saw.
func TestGenerateSpecific_MemoryPicksViewedThread(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	state := stateWithProgress(90)
	state.ViewedThreads = []int{7, 8, 9}

	event := gs.GenerateSpecific(state, ritual.AnomalyMemory, nil, nil, "ambient")
	threadID, ok := event.Data["referenced_thread"].(int)
	require.True(t, ok)
	assert.Contains(t, state.ViewedThreads, threadID)
	assert.Equal(t, "Помнишь тот тред? Он помнит тебя.", event.Data["message"])

	// Nothing to remember without history
	empty := stateWithProgress(90)
	event = gs.GenerateSpecific(empty, ritual.AnomalyMemory, nil, nil, "ambient")
	_, ok = event.Data["referenced_thread"]
	assert.False(t, ok)
}

// TestGenerateSpecific_CustomDataWins verifies caller data overrides the
// generated payload.
func TestGenerateSpecific_CustomDataWins(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	custom := map[string]any{"message": "override"}
	event := gs.GenerateSpecific(stateWithProgress(10), ritual.AnomalyWhisper, nil, custom, "admin")
	assert.Equal(t, "override", event.Data["message"])
	assert.Equal(t, "admin", event.TriggeredBy)
}

// TestGenerateSpecific_PostCorruptIntensity verifies the per-level
// corruption payload.
func TestGenerateSpecific_PostCorruptIntensity(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	targetID := 55
	event := gs.GenerateSpecific(stateWithProgress(90), ritual.AnomalyPostCorrupt, &targetID, nil, "ambient")
	assert.Equal(t, 0.8, event.Data["corruption_level"])
	require.NotNil(t, event.PostID)
	assert.Equal(t, 55, *event.PostID)
}

// TestGenerateBatch_DelaysAccumulate verifies batch delays grow
// monotonically within the spacing bounds.
func TestGenerateBatch_DelaysAccumulate(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	events := gs.GenerateBatch(stateWithProgress(60), 5, "night_burst")
	require.Len(t, events, 5)

	prev := 0
	for _, event := range events {
		gap := event.DelayMS - prev
		assert.GreaterOrEqual(t, gap, 500)
		assert.LessOrEqual(t, gap, 2000)
		assert.Equal(t, "night_burst", event.TriggeredBy)
		prev = event.DelayMS
	}
}

// TestNightBurstCount_ScalesWithLevel verifies the level ladder.
func TestNightBurstCount_ScalesWithLevel(t *testing.T) {
	gs := newTestGenerator(t, afternoonClock(), 42)

	assert.Equal(t, 1, gs.NightBurstCount(stateWithProgress(10)))
	assert.Equal(t, 2, gs.NightBurstCount(stateWithProgress(40)))
	assert.Equal(t, 4, gs.NightBurstCount(stateWithProgress(70)))
	assert.Equal(t, 7, gs.NightBurstCount(stateWithProgress(95)))
}

// TestWitchingHourBurst verifies the volley size, forced severity and
// restricted type set.
func TestWitchingHourBurst(t *testing.T) {
	gs := newTestGenerator(t, witchingClock(), 42)

	allowed := make(map[ritual.AnomalyType]bool)
	for _, at := range ritual.WitchingBurstTypes {
		allowed[at] = true
	}

	events := gs.WitchingHourBurst(stateWithProgress(90))
	require.Len(t, events, 9) // critical burst of 7, plus 2

	assert.Equal(t, 0, events[0].DelayMS)
	for i, event := range events {
		assert.True(t, allowed[event.Type], "type %s not allowed in witching burst", event.Type)
		assert.Equal(t, ritual.SeverityIntense, event.Severity)
		assert.Equal(t, "witching_hour", event.TriggeredBy)
		if i > 0 {
			assert.GreaterOrEqual(t, event.DelayMS, 2000*i)
			assert.LessOrEqual(t, event.DelayMS, 5000*i)
		}
	}
}
