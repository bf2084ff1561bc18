// Package ritualstore persists visitor state, delivery queues, and
// presence records in the shared key-value store.
package ritualstore

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

const stateKeyPrefix = "ritual_state:"

// StateManager owns VisitorState records. Every mutating helper is a
// get, mutate in memory, save sequence; concurrent mutations to the
// same visitor are last-write-wins.
type StateManager struct {
	store  kvClient
	logger *logging.ChanneledLogger
	ttl    time.Duration
	now    func() time.Time
}

// kvClient is the subset of the store the ritual stores use. Declared
// here so tests can hand in either backend.
type kvClient interface {
	Get(ctx context.Context, key string) (string, bool, error)
	SetEx(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	TTL(ctx context.Context, key string) (time.Duration, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	RPush(ctx context.Context, key string, values ...string) (int64, error)
	LPop(ctx context.Context, key string) (string, bool, error)
	BLPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error)
	LIndex(ctx context.Context, key string, index int64) (string, bool, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LLen(ctx context.Context, key string) (int64, error)
	RPushFanout(ctx context.Context, keys []string, value string, ttl time.Duration) (int, error)
	HSet(ctx context.Context, key, field, value string) error
	HDel(ctx context.Context, key string, fields ...string) error
	HExists(ctx context.Context, key, field string) (bool, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HLen(ctx context.Context, key string) (int64, error)
}

// NewStateManager creates a state manager with the given record TTL.
func NewStateManager(store kvClient, ttl time.Duration, logger *logging.ChanneledLogger) *StateManager {
	return &StateManager{
		store:  store,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// SetTimeProvider overrides the clock, for deterministic tests.
func (sm *StateManager) SetTimeProvider(now func() time.Time) {
	sm.now = now
}

func (sm *StateManager) key(visitorID string) string {
	return stateKeyPrefix + visitorID
}

// Get loads a visitor's state. Returns nil when absent. A record that
// fails to parse is deleted and reported as absent, so a corrupt entry
// heals itself into a fresh start.
func (sm *StateManager) Get(ctx context.Context, visitorID string) (*ritual.VisitorState, error) {
	key := sm.key(visitorID)
	data, ok, err := sm.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var state ritual.VisitorState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		sm.logger.Ritual().Warn("Deleting corrupt visitor state", "visitorId", visitorID, "error", err.Error())
		if _, delErr := sm.store.Delete(ctx, key); delErr != nil {
			return nil, delErr
		}
		return nil, nil
	}
	if state.KnownPatterns == nil {
		state.KnownPatterns = make(map[string]any)
	}
	return &state, nil
}

// Create persists a fresh state for the visitor.
func (sm *StateManager) Create(ctx context.Context, visitorID string) (*ritual.VisitorState, error) {
	state := ritual.NewVisitorState(visitorID, sm.now().UTC())
	if err := sm.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// GetOrCreate is the fundamental entry point; isNew is true only when
// no prior record existed.
func (sm *StateManager) GetOrCreate(ctx context.Context, visitorID string) (*ritual.VisitorState, bool, error) {
	state, err := sm.Get(ctx, visitorID)
	if err != nil {
		return nil, false, err
	}
	if state != nil {
		return state, false, nil
	}
	state, err = sm.Create(ctx, visitorID)
	if err != nil {
		return nil, false, err
	}
	return state, true, nil
}

// Save stamps last_activity and writes the state with a refreshed TTL.
func (sm *StateManager) Save(ctx context.Context, state *ritual.VisitorState) error {
	state.LastActivity = sm.now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return sm.store.SetEx(ctx, sm.key(state.VisitorID), string(data), sm.ttl)
}

// mutate runs a get-mutate-save cycle, returning nil for unknown visitors.
func (sm *StateManager) mutate(ctx context.Context, visitorID string, fn func(*ritual.VisitorState)) (*ritual.VisitorState, error) {
	state, err := sm.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}
	fn(state)
	if err := sm.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// UpdateProgress shifts progress by delta, clamped to [0,100].
func (sm *StateManager) UpdateProgress(ctx context.Context, visitorID string, delta int) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.Progress = ritual.ApplyDelta(s.Progress, delta)
	})
}

// SetProgress sets progress to an absolute value, clamped to [0,100].
func (sm *StateManager) SetProgress(ctx context.Context, visitorID string, progress int) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.Progress = ritual.ClampProgress(progress)
	})
}

// AddViewedThread records a thread view.
func (sm *StateManager) AddViewedThread(ctx context.Context, visitorID string, threadID int) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.AddViewedThread(threadID)
	})
}

// AddViewedPost records a post view.
func (sm *StateManager) AddViewedPost(ctx context.Context, visitorID string, postID int) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.AddViewedPost(postID)
	})
}

// AddTrigger marks a trigger as hit.
func (sm *StateManager) AddTrigger(ctx context.Context, visitorID string, name ritual.TriggerName) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.AddTrigger(string(name))
	})
}

// AddTimeOnSite adds seconds to the visitor's cumulative time.
func (sm *StateManager) AddTimeOnSite(ctx context.Context, visitorID string, seconds int) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.TimeOnSite += seconds
	})
}

// UpdateKnownPattern upserts one personalization key.
func (sm *StateManager) UpdateKnownPattern(ctx context.Context, visitorID, key string, value any) (*ritual.VisitorState, error) {
	return sm.mutate(ctx, visitorID, func(s *ritual.VisitorState) {
		s.SetPattern(key, value)
	})
}

// Delete removes the visitor's state. Returns true if a record existed.
func (sm *StateManager) Delete(ctx context.Context, visitorID string) (bool, error) {
	n, err := sm.store.Delete(ctx, sm.key(visitorID))
	return n > 0, err
}

// Exists reports whether a state record exists for the visitor.
func (sm *StateManager) Exists(ctx context.Context, visitorID string) (bool, error) {
	return sm.store.Exists(ctx, sm.key(visitorID))
}

// RefreshTTL resets the record's expiry window without mutating it.
func (sm *StateManager) RefreshTTL(ctx context.Context, visitorID string) (bool, error) {
	return sm.store.Expire(ctx, sm.key(visitorID), sm.ttl)
}

// GetAllIDs enumerates every live visitor ID. KEYS scan; admin and
// diagnostic use only.
func (sm *StateManager) GetAllIDs(ctx context.Context) ([]string, error) {
	keys, err := sm.store.Keys(ctx, stateKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(key, stateKeyPrefix))
	}
	return ids, nil
}
