package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

func testLogger(t *testing.T) *logging.ChanneledLogger {
	t.Helper()
	cfg := logging.DefaultLoggerConfig()
	cfg.OutputToConsole = false
	logger, err := logging.NewChanneledLogger(cfg)
	require.NoError(t, err)
	return logger
}

// afternoonClock pins the clock to a quiet mid-afternoon so no
// time-of-day triggers interfere.
func afternoonClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 31, 14, 0, 0, 0, time.UTC)
	}
}

func witchingClock() func() time.Time {
	return func() time.Time {
		return time.Date(2026, 8, 31, 3, 0, 0, 0, time.UTC)
	}
}

func newTestTriggerService(t *testing.T, clock func() time.Time) *TriggerService {
	t.Helper()
	ts := NewTriggerService(time.UTC, testLogger(t))
	ts.SetTimeProvider(clock)
	return ts
}

// TestFirstVisit_OnlyTriggerForFreshState verifies a brand new visitor
// in the afternoon fires exactly first_visit.
func TestFirstVisit_OnlyTriggerForFreshState(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())
	state := ritual.NewVisitorState("v-1", afternoonClock()())

	results := ts.CheckNewTriggers(state, "/", "GET")
	require.Len(t, results, 1)
	assert.Equal(t, ritual.TriggerFirstVisit, results[0].Trigger)
	assert.True(t, results[0].FirstActivation)

	effects := ts.ApplicableEffects(results)
	assert.Equal(t, 5, effects.TotalProgressDelta)
	assert.Equal(t, 1.0, effects.MaxAnomalyMultiplier)
	assert.Empty(t, effects.ForceAnomalies)
}

// TestDeepReader_CheckAllVersusCheckNew verifies an already-hit trigger
// still fires in CheckAll but is excluded from CheckNewTriggers.
func TestDeepReader_CheckAllVersusCheckNew(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())

	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10
	for i := 0; i < 20; i++ {
		state.AddViewedPost(i)
	}
	state.AddTrigger("deep_reader")

	all := ts.CheckAll(state, "/", "GET")
	var deepReader *ritual.TriggerResult
	for i := range all {
		if all[i].Trigger == ritual.TriggerDeepReader {
			deepReader = &all[i]
		}
	}
	require.NotNil(t, deepReader, "deep_reader should fire in CheckAll")
	assert.True(t, deepReader.Activated)
	assert.False(t, deepReader.FirstActivation)

	for _, result := range ts.CheckNewTriggers(state, "/", "GET") {
		assert.NotEqual(t, ritual.TriggerDeepReader, result.Trigger)
	}
}

// TestWitchingHour_ForcesWhisper verifies the witching clock fires the
// witching triggers with their multiplier and forced anomaly.
func TestWitchingHour_ForcesWhisper(t *testing.T) {
	ts := newTestTriggerService(t, witchingClock())

	state := ritual.NewVisitorState("v-1", witchingClock()())
	state.Progress = 10 // suppress first_visit

	results := ts.CheckNewTriggers(state, "/", "GET")
	names := make(map[ritual.TriggerName]bool)
	for _, r := range results {
		names[r.Trigger] = true
	}
	assert.True(t, names[ritual.TriggerWitchingHour])
	assert.True(t, names[ritual.TriggerLateNight])

	effects := ts.ApplicableEffects(results)
	assert.Equal(t, 2.5, effects.MaxAnomalyMultiplier)
	assert.Contains(t, effects.ForceAnomalies, "whisper")
	assert.Equal(t, 15, effects.TotalProgressDelta) // witching 10 + late_night 5
}

// TestPatternSeeker_SequentialThreads verifies sequential browsing
// fires the seeker and records the pattern.
func TestPatternSeeker_SequentialThreads(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())

	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10
	state.ViewedThreads = []int{3, 4, 5, 6, 7}

	results := ts.CheckNewTriggers(state, "/", "GET")
	var found bool
	for _, r := range results {
		if r.Trigger == ritual.TriggerPatternSeeker {
			found = true
		}
	}
	assert.True(t, found)

	effects := ts.ApplicableEffects(results)
	assert.Equal(t, true, effects.PatternsToSet["seeking"])
}

// TestPatternSeeker_TooFewThreads verifies the minimum history gate.
func TestPatternSeeker_TooFewThreads(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())

	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10
	state.ViewedThreads = []int{3, 4, 5, 6}

	for _, r := range ts.CheckNewTriggers(state, "/", "GET") {
		assert.NotEqual(t, ritual.TriggerPatternSeeker, r.Trigger)
	}
}

// TestFoundHidden_PathIndicators verifies path sniffing is
// case-insensitive.
func TestFoundHidden_PathIndicators(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())
	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10

	ctx := ts.BuildContext(state, "/boards/HIDDEN/7", "GET")
	result := ts.CheckTrigger(ritual.TriggerFoundHidden, ctx)
	assert.True(t, result.Activated)

	ctx = ts.BuildContext(state, "/boards/general/7", "GET")
	result = ts.CheckTrigger(ritual.TriggerFoundHidden, ctx)
	assert.False(t, result.Activated)
}

// TestInteractionTriggers verifies the posted and thread_creator path
// predicates stay disjoint.
func TestInteractionTriggers(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())
	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10

	ctx := ts.BuildContext(state, "/api/threads/5/posts", "POST")
	assert.True(t, ts.CheckTrigger(ritual.TriggerPosted, ctx).Activated)
	assert.False(t, ts.CheckTrigger(ritual.TriggerThreadCreator, ctx).Activated)

	ctx = ts.BuildContext(state, "/api/threads", "POST")
	assert.False(t, ts.CheckTrigger(ritual.TriggerPosted, ctx).Activated)
	assert.True(t, ts.CheckTrigger(ritual.TriggerThreadCreator, ctx).Activated)

	ctx = ts.BuildContext(state, "/api/threads", "GET")
	assert.False(t, ts.CheckTrigger(ritual.TriggerThreadCreator, ctx).Activated)
}

// TestSpeedAndSlowReader verifies the pace predicates and their guards.
func TestSpeedAndSlowReader(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())

	fast := ritual.NewVisitorState("v-1", afternoonClock()())
	fast.Progress = 10
	fast.TimeOnSite = 60
	for i := 0; i < 10; i++ {
		fast.AddViewedPost(i)
	}
	ctx := ts.BuildContext(fast, "/", "GET")
	assert.True(t, ts.CheckTrigger(ritual.TriggerSpeedReader, ctx).Activated)
	assert.False(t, ts.CheckTrigger(ritual.TriggerSlowReader, ctx).Activated)

	slow := ritual.NewVisitorState("v-2", afternoonClock()())
	slow.Progress = 10
	slow.TimeOnSite = 600
	for i := 0; i < 5; i++ {
		slow.AddViewedPost(i)
	}
	ctx = ts.BuildContext(slow, "/", "GET")
	assert.True(t, ts.CheckTrigger(ritual.TriggerSlowReader, ctx).Activated)
	assert.False(t, ts.CheckTrigger(ritual.TriggerSpeedReader, ctx).Activated)

	// Under a minute on site, speed is never judged
	early := ritual.NewVisitorState("v-3", afternoonClock()())
	early.Progress = 10
	early.TimeOnSite = 30
	for i := 0; i < 10; i++ {
		early.AddViewedPost(i)
	}
	ctx = ts.BuildContext(early, "/", "GET")
	assert.False(t, ts.CheckTrigger(ritual.TriggerSpeedReader, ctx).Activated)
}

// TestApplicableEffects_RepeatFiring verifies repeat activations
// contribute only the multiplier and forced anomalies.
func TestApplicableEffects_RepeatFiring(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())

	effect := ritual.TriggerEffects[ritual.TriggerMarathon]
	results := []ritual.TriggerResult{
		{
			Trigger:         ritual.TriggerMarathon,
			Activated:       true,
			FirstActivation: false,
			Effect:          &effect,
		},
	}

	effects := ts.ApplicableEffects(results)
	assert.Equal(t, 0, effects.TotalProgressDelta)
	assert.Equal(t, 2.5, effects.MaxAnomalyMultiplier)
	assert.Equal(t, []string{"presence"}, effects.ForceAnomalies)
	assert.Empty(t, effects.Messages)
}

// TestObsessive_RevisitRatio verifies the revisit math over the raw
// viewing history.
func TestObsessive_RevisitRatio(t *testing.T) {
	ts := newTestTriggerService(t, afternoonClock())
	state := ritual.NewVisitorState("v-1", afternoonClock()())
	state.Progress = 10
	// 6 views of only 2 distinct threads: revisit ratio 2/3
	state.ViewedThreads = []int{1, 2, 1, 2, 1, 2}

	ctx := ts.BuildContext(state, "/", "GET")
	assert.True(t, ts.CheckTrigger(ritual.TriggerObsessive, ctx).Activated)
}
