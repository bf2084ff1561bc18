package services

import (
	"strings"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

// triggerCondition is a behavioral predicate over a context snapshot.
type triggerCondition func(*ritual.TriggerContext) bool

// TriggerService evaluates behavioral triggers against visitor state
// and aggregates their effects.
type TriggerService struct {
	conditions map[ritual.TriggerName]triggerCondition
	logger     *logging.ChanneledLogger
	loc        *time.Location
	now        func() time.Time
}

// NewTriggerService creates the trigger evaluator with its predicate
// registry.
func NewTriggerService(loc *time.Location, logger *logging.ChanneledLogger) *TriggerService {
	ts := &TriggerService{
		logger: logger,
		loc:    loc,
		now:    time.Now,
	}
	ts.conditions = ts.buildConditions()
	return ts
}

// SetTimeProvider overrides the clock, for deterministic tests.
func (ts *TriggerService) SetTimeProvider(now func() time.Time) {
	ts.now = now
}

func (ts *TriggerService) buildConditions() map[ritual.TriggerName]triggerCondition {
	return map[ritual.TriggerName]triggerCondition{
		// Visit-based triggers
		ritual.TriggerFirstVisit: func(ctx *ritual.TriggerContext) bool {
			return ctx.Progress == 0
		},
		ritual.TriggerReturnee: checkReturnee,
		ritual.TriggerFrequentVisitor: func(ctx *ritual.TriggerContext) bool {
			return patternInt(ctx.KnownPatterns, "visit_count") >= 5
		},
		ritual.TriggerLateNight: func(ctx *ritual.TriggerContext) bool {
			return ctx.IsNight
		},
		ritual.TriggerWitchingHour: func(ctx *ritual.TriggerContext) bool {
			return ctx.IsWitching
		},

		// Reading behavior triggers
		ritual.TriggerDeepReader: func(ctx *ritual.TriggerContext) bool {
			return len(ctx.ViewedPosts) >= 20
		},
		ritual.TriggerSpeedReader: checkSpeedReader,
		ritual.TriggerSlowReader:  checkSlowReader,
		ritual.TriggerObsessive:   checkObsessive,
		ritual.TriggerExplorer: func(ctx *ritual.TriggerContext) bool {
			return distinctCount(ctx.ViewedThreads) >= 15
		},

		// Progression triggers
		ritual.TriggerHalfway: func(ctx *ritual.TriggerContext) bool {
			return ctx.Progress >= 50
		},
		ritual.TriggerAlmostThere: func(ctx *ritual.TriggerContext) bool {
			return ctx.Progress >= 80
		},
		ritual.TriggerEnlightened: func(ctx *ritual.TriggerContext) bool {
			return ctx.Progress >= 100
		},

		// Special triggers
		ritual.TriggerFoundHidden: checkFoundHidden,
		ritual.TriggerPatternSeeker: func(ctx *ritual.TriggerContext) bool {
			return patternBool(ctx.KnownPatterns, "seeking") || checkPatternSeeking(ctx)
		},
		ritual.TriggerTooLong: func(ctx *ritual.TriggerContext) bool {
			return ctx.TimeOnSite >= 3600
		},
		ritual.TriggerMarathon: func(ctx *ritual.TriggerContext) bool {
			return ctx.TimeOnSite >= 10800
		},

		// Time-based triggers
		ritual.TriggerNightOwl: func(ctx *ritual.TriggerContext) bool {
			return patternInt(ctx.KnownPatterns, "night_visits") >= 3
		},
		ritual.TriggerDawnVisitor: func(ctx *ritual.TriggerContext) bool {
			return ctx.Period == ritual.PeriodDawn
		},

		// Interaction triggers
		ritual.TriggerPosted: func(ctx *ritual.TriggerContext) bool {
			return ctx.CurrentMethod == "POST" && strings.Contains(ctx.CurrentPath, "/posts")
		},
		ritual.TriggerThreadCreator: func(ctx *ritual.TriggerContext) bool {
			return ctx.CurrentMethod == "POST" &&
				strings.Contains(ctx.CurrentPath, "/threads") &&
				!strings.Contains(ctx.CurrentPath, "/posts")
		},
	}
}

func checkReturnee(ctx *ritual.TriggerContext) bool {
	if ctx.FirstVisit.IsZero() {
		return false
	}
	return ctx.Now.Sub(ctx.FirstVisit) >= 7*24*time.Hour
}

// checkSpeedReader flags more than 5 posts per minute, once at least a
// minute has passed.
func checkSpeedReader(ctx *ritual.TriggerContext) bool {
	if ctx.TimeOnSite < 60 {
		return false
	}
	postsPerMinute := float64(len(ctx.ViewedPosts)) / (float64(ctx.TimeOnSite) / 60)
	return postsPerMinute > 5
}

// checkSlowReader flags more than a minute per post, over 5+ posts.
func checkSlowReader(ctx *ritual.TriggerContext) bool {
	if len(ctx.ViewedPosts) < 5 {
		return false
	}
	avgTimePerPost := float64(ctx.TimeOnSite) / float64(len(ctx.ViewedPosts))
	return avgTimePerPost > 60
}

// checkObsessive flags a revisit ratio above 50% over 5+ thread views.
func checkObsessive(ctx *ritual.TriggerContext) bool {
	if len(ctx.ViewedThreads) < 5 {
		return false
	}
	revisitRatio := 1 - float64(distinctCount(ctx.ViewedThreads))/float64(len(ctx.ViewedThreads))
	return revisitRatio > 0.5
}

func checkFoundHidden(ctx *ritual.TriggerContext) bool {
	if ctx.CurrentPath == "" {
		return false
	}
	lower := strings.ToLower(ctx.CurrentPath)
	for _, indicator := range []string{"hidden", "secret", "void", "nightmare"} {
		if strings.Contains(lower, indicator) {
			return true
		}
	}
	return false
}

// checkPatternSeeking flags 3+ sequentially adjacent thread IDs in the
// viewing history.
func checkPatternSeeking(ctx *ritual.TriggerContext) bool {
	threads := ctx.ViewedThreads
	if len(threads) < 5 {
		return false
	}

	sequential := 0
	for i := 1; i < len(threads); i++ {
		diff := threads[i] - threads[i-1]
		if diff == 1 || diff == -1 {
			sequential++
		}
	}
	return sequential >= 3
}

func distinctCount(list []int) int {
	seen := make(map[int]struct{}, len(list))
	for _, v := range list {
		seen[v] = struct{}{}
	}
	return len(seen)
}

func patternInt(patterns map[string]any, key string) int {
	switch v := patterns[key].(type) {
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

func patternBool(patterns map[string]any, key string) bool {
	v, _ := patterns[key].(bool)
	return v
}

// BuildContext snapshots a visitor's state plus the request context for
// predicate evaluation.
func (ts *TriggerService) BuildContext(state *ritual.VisitorState, currentPath, currentMethod string) *ritual.TriggerContext {
	now := ts.now().In(ts.loc)
	hour := now.Hour()

	hit := make(map[ritual.TriggerName]bool, len(state.TriggersHit))
	for _, name := range state.TriggersHit {
		hit[ritual.TriggerName(name)] = true
	}

	return &ritual.TriggerContext{
		VisitorID:     state.VisitorID,
		Progress:      state.Progress,
		ViewedThreads: state.ViewedThreads,
		ViewedPosts:   state.ViewedPosts,
		TimeOnSite:    state.TimeOnSite,
		FirstVisit:    state.FirstVisit,
		LastActivity:  state.LastActivity,
		TriggersHit:   hit,
		KnownPatterns: state.KnownPatterns,
		CurrentPath:   currentPath,
		CurrentMethod: currentMethod,
		IsNight:       ritual.IsNightHour(hour),
		IsWitching:    ritual.IsWitchingHour(hour),
		Period:        ritual.PeriodForHour(hour),
		Now:           now,
	}
}

// CheckTrigger evaluates a single trigger. A predicate that panics is
// treated as not fired.
func (ts *TriggerService) CheckTrigger(name ritual.TriggerName, ctx *ritual.TriggerContext) ritual.TriggerResult {
	condition, ok := ts.conditions[name]
	if !ok {
		return ritual.TriggerResult{Trigger: name}
	}

	alreadyHit := ctx.TriggersHit[name]

	if !ts.evaluate(name, condition, ctx) {
		return ritual.TriggerResult{Trigger: name}
	}

	effect, ok := ritual.TriggerEffects[name]
	if !ok {
		effect = ritual.TriggerEffect{AnomalyChanceMultiplier: 1.0}
	}

	return ritual.TriggerResult{
		Trigger:         name,
		Activated:       true,
		FirstActivation: !alreadyHit,
		Effect:          &effect,
		Metadata: map[string]any{
			"progress":     ctx.Progress,
			"time_on_site": ctx.TimeOnSite,
			"is_night":     ctx.IsNight,
		},
	}
}

// evaluate runs a predicate, failing closed on panic.
func (ts *TriggerService) evaluate(name ritual.TriggerName, condition triggerCondition, ctx *ritual.TriggerContext) (fired bool) {
	defer func() {
		if r := recover(); r != nil {
			ts.logger.Trigger().Warn("Trigger predicate panicked, treating as not fired",
				"trigger", string(name), "panic", r)
			fired = false
		}
	}()
	return condition(ctx)
}

// CheckAll evaluates every registered trigger and returns the ones that
// currently fire, regardless of history.
func (ts *TriggerService) CheckAll(state *ritual.VisitorState, currentPath, currentMethod string) []ritual.TriggerResult {
	ctx := ts.BuildContext(state, currentPath, currentMethod)

	var results []ritual.TriggerResult
	for _, name := range ritual.AllTriggers {
		if result := ts.CheckTrigger(name, ctx); result.Activated {
			results = append(results, result)
		}
	}
	return results
}

// CheckNewTriggers evaluates only triggers the visitor has not hit yet.
func (ts *TriggerService) CheckNewTriggers(state *ritual.VisitorState, currentPath, currentMethod string) []ritual.TriggerResult {
	ctx := ts.BuildContext(state, currentPath, currentMethod)

	var results []ritual.TriggerResult
	for _, name := range ritual.AllTriggers {
		if ctx.TriggersHit[name] {
			continue
		}
		if result := ts.CheckTrigger(name, ctx); result.Activated {
			results = append(results, result)
		}
	}
	return results
}

// ApplicableEffects aggregates effects across trigger results. Progress
// deltas, unlocks, messages, and pattern writes count only on first
// activation; the max multiplier and forced anomalies count every
// firing.
func (ts *TriggerService) ApplicableEffects(results []ritual.TriggerResult) ritual.AggregatedEffects {
	agg := ritual.AggregatedEffects{
		MaxAnomalyMultiplier: 1.0,
		PatternsToSet:        make(map[string]any),
	}

	for _, result := range results {
		if result.Effect == nil {
			continue
		}
		effect := result.Effect

		if result.FirstActivation {
			agg.TotalProgressDelta += effect.ProgressDelta
			if effect.Message != "" {
				agg.Messages = append(agg.Messages, effect.Message)
			}
			if effect.UnlockBoard != "" {
				agg.UnlockBoards = append(agg.UnlockBoards, effect.UnlockBoard)
			}
			if effect.UnlockThread != 0 {
				agg.UnlockThreads = append(agg.UnlockThreads, effect.UnlockThread)
			}
			for k, v := range effect.SetPattern {
				agg.PatternsToSet[k] = v
			}
		}

		if effect.AnomalyChanceMultiplier > agg.MaxAnomalyMultiplier {
			agg.MaxAnomalyMultiplier = effect.AnomalyChanceMultiplier
		}
		if effect.ForceAnomaly != "" {
			agg.ForceAnomalies = append(agg.ForceAnomalies, effect.ForceAnomaly)
		}
	}

	return agg
}
