package ritual

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState() *VisitorState {
	return NewVisitorState("v-1", time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
}

// TestAddViewedThread_Dedup verifies repeat views do not grow the list.
func TestAddViewedThread_Dedup(t *testing.T) {
	s := newTestState()

	assert.True(t, s.AddViewedThread(7))
	assert.False(t, s.AddViewedThread(7))
	assert.Equal(t, []int{7}, s.ViewedThreads)
	assert.True(t, s.HasViewedThread(7))
	assert.False(t, s.HasViewedThread(8))
}

// TestAddViewedThread_Eviction verifies the oldest entries fall off at
// the cap.
func TestAddViewedThread_Eviction(t *testing.T) {
	s := newTestState()

	for i := 0; i < MaxViewedThreads+10; i++ {
		s.AddViewedThread(i)
	}

	assert.Len(t, s.ViewedThreads, MaxViewedThreads)
	assert.False(t, s.HasViewedThread(0))
	assert.False(t, s.HasViewedThread(9))
	assert.True(t, s.HasViewedThread(10))
	assert.True(t, s.HasViewedThread(MaxViewedThreads+9))
}

// TestAddTrigger_Idempotent verifies a trigger records once.
func TestAddTrigger_Idempotent(t *testing.T) {
	s := newTestState()

	s.AddTrigger("first_visit")
	s.AddTrigger("first_visit")
	s.AddTrigger("deep_reader")

	assert.Equal(t, []string{"first_visit", "deep_reader"}, s.TriggersHit)
	assert.True(t, s.HasTrigger("first_visit"))
	assert.False(t, s.HasTrigger("marathon"))
}

// TestPatternInt_JSONNumbers verifies numeric pattern reads survive a
// JSON round trip, which turns ints into float64s.
func TestPatternInt_JSONNumbers(t *testing.T) {
	s := newTestState()
	s.SetPattern("visit_count", 5)
	s.SetPattern("seeking", true)

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded VisitorState
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, 5, decoded.PatternInt("visit_count"))
	assert.True(t, decoded.PatternBool("seeking"))
	assert.Equal(t, 0, decoded.PatternInt("missing"))
}

// TestStateRoundTrip verifies a full marshal and unmarshal preserves
// the visitor record.
func TestStateRoundTrip(t *testing.T) {
	s := newTestState()
	s.Progress = 42
	s.AddViewedThread(1)
	s.AddViewedPost(2)
	s.TimeOnSite = 300
	s.AddTrigger("halfway")

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded VisitorState
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, s.VisitorID, decoded.VisitorID)
	assert.Equal(t, 42, decoded.Progress)
	assert.Equal(t, []int{1}, decoded.ViewedThreads)
	assert.Equal(t, []int{2}, decoded.ViewedPosts)
	assert.Equal(t, 300, decoded.TimeOnSite)
	assert.Equal(t, []string{"halfway"}, decoded.TriggersHit)
	assert.True(t, s.FirstVisit.Equal(decoded.FirstVisit))
}
