package ritual

import "time"

// History caps for a visitor's viewed-content lists.
const (
	MaxViewedThreads = 100
	MaxViewedPosts   = 500
)

// VisitorState tracks one anonymous visitor's curse progression. It is
// persisted as JSON in the key-value store with a refreshing TTL; every
// consumer gets a value snapshot and must save it back to make changes
// durable.
type VisitorState struct {
	VisitorID string `json:"visitor_id"`
	Progress  int    `json:"progress"`

	// Viewing history, insertion order, capped with oldest-first eviction.
	ViewedThreads []int `json:"viewed_threads"`
	ViewedPosts   []int `json:"viewed_posts"`
	TimeOnSite    int   `json:"time_on_site"`

	FirstVisit   time.Time `json:"first_visit"`
	LastActivity time.Time `json:"last_activity"`

	// TriggersHit is append-only; a recorded trigger never fires its
	// one-time effects again.
	TriggersHit []string `json:"triggers_hit"`

	// KnownPatterns is open personalization memory written by trigger
	// effects.
	KnownPatterns map[string]any `json:"known_patterns"`
}

// NewVisitorState builds a fresh state for a visitor first seen at now.
func NewVisitorState(visitorID string, now time.Time) *VisitorState {
	return &VisitorState{
		VisitorID:     visitorID,
		Progress:      0,
		ViewedThreads: []int{},
		ViewedPosts:   []int{},
		TimeOnSite:    0,
		FirstVisit:    now,
		LastActivity:  now,
		TriggersHit:   []string{},
		KnownPatterns: make(map[string]any),
	}
}

// Level returns the visitor's current progress level.
func (s *VisitorState) Level() Level {
	return LevelFor(s.Progress)
}

// HasViewedThread reports whether the thread is in the viewing history.
func (s *VisitorState) HasViewedThread(threadID int) bool {
	return containsInt(s.ViewedThreads, threadID)
}

// HasViewedPost reports whether the post is in the viewing history.
func (s *VisitorState) HasViewedPost(postID int) bool {
	return containsInt(s.ViewedPosts, postID)
}

// AddViewedThread records a thread view. Duplicates are no-ops for list
// growth; the list keeps only the most recent MaxViewedThreads entries.
// Returns true when the thread was previously unseen.
func (s *VisitorState) AddViewedThread(threadID int) bool {
	if s.HasViewedThread(threadID) {
		return false
	}
	s.ViewedThreads = append(s.ViewedThreads, threadID)
	if len(s.ViewedThreads) > MaxViewedThreads {
		s.ViewedThreads = s.ViewedThreads[len(s.ViewedThreads)-MaxViewedThreads:]
	}
	return true
}

// AddViewedPost records a post view, capped at MaxViewedPosts entries.
// Returns true when the post was previously unseen.
func (s *VisitorState) AddViewedPost(postID int) bool {
	if s.HasViewedPost(postID) {
		return false
	}
	s.ViewedPosts = append(s.ViewedPosts, postID)
	if len(s.ViewedPosts) > MaxViewedPosts {
		s.ViewedPosts = s.ViewedPosts[len(s.ViewedPosts)-MaxViewedPosts:]
	}
	return true
}

// HasTrigger reports whether the named trigger has already been recorded.
func (s *VisitorState) HasTrigger(name string) bool {
	for _, t := range s.TriggersHit {
		if t == name {
			return true
		}
	}
	return false
}

// AddTrigger records a trigger as hit. Idempotent.
func (s *VisitorState) AddTrigger(name string) {
	if s.HasTrigger(name) {
		return
	}
	s.TriggersHit = append(s.TriggersHit, name)
}

// SetPattern upserts one personalization key, preserving the rest.
func (s *VisitorState) SetPattern(key string, value any) {
	if s.KnownPatterns == nil {
		s.KnownPatterns = make(map[string]any)
	}
	s.KnownPatterns[key] = value
}

// PatternInt reads a numeric pattern value, tolerating the float64 that
// JSON decoding produces.
func (s *VisitorState) PatternInt(key string) int {
	switch v := s.KnownPatterns[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// PatternBool reads a boolean pattern value.
func (s *VisitorState) PatternBool(key string) bool {
	v, _ := s.KnownPatterns[key].(bool)
	return v
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
