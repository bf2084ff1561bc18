package services

import (
	"context"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	ritualstore "github.com/cursedboard/cursedboard-go/internal/infrastructure/persistence/ritual"
)

// RitualEngine orchestrates the full curse pipeline for a request:
// state load, trigger evaluation, effect application, anomaly
// generation, and delivery queueing.
type RitualEngine struct {
	states    *ritualstore.StateManager
	queues    *ritualstore.Queue
	presence  *ritualstore.Presence
	triggers  *TriggerService
	generator *GeneratorService
	mutator   *MutatorService
	logger    *logging.ChanneledLogger
}

// NewRitualEngine wires the engine from its stores and services.
func NewRitualEngine(
	states *ritualstore.StateManager,
	queues *ritualstore.Queue,
	presence *ritualstore.Presence,
	triggers *TriggerService,
	generator *GeneratorService,
	mutator *MutatorService,
	logger *logging.ChanneledLogger,
) *RitualEngine {
	return &RitualEngine{
		states:    states,
		queues:    queues,
		presence:  presence,
		triggers:  triggers,
		generator: generator,
		mutator:   mutator,
		logger:    logger,
	}
}

// States exposes the state manager for handlers and scheduled jobs.
func (re *RitualEngine) States() *ritualstore.StateManager { return re.states }

// Queues exposes the delivery queue store.
func (re *RitualEngine) Queues() *ritualstore.Queue { return re.queues }

// Presence exposes the connection tracker.
func (re *RitualEngine) Presence() *ritualstore.Presence { return re.presence }

// Triggers exposes the trigger evaluator.
func (re *RitualEngine) Triggers() *TriggerService { return re.triggers }

// Generator exposes the anomaly generator.
func (re *RitualEngine) Generator() *GeneratorService { return re.generator }

// Mutator exposes the content mutator.
func (re *RitualEngine) Mutator() *MutatorService { return re.mutator }

// OnRequest runs the per-request pipeline for a visitor. Returns the
// post-pipeline state and whether the visitor is new.
func (re *RitualEngine) OnRequest(ctx context.Context, visitorID, path, method string) (*ritual.VisitorState, bool, error) {
	state, isNew, err := re.states.GetOrCreate(ctx, visitorID)
	if err != nil {
		return nil, false, err
	}

	results := re.triggers.CheckNewTriggers(state, path, method)
	effects := re.triggers.ApplicableEffects(results)
	re.applyEffects(ctx, state, results, effects)

	re.maybeGenerateAnomaly(ctx, state, effects.MaxAnomalyMultiplier)

	if err := re.states.Save(ctx, state); err != nil {
		return nil, false, err
	}
	return state, isNew, nil
}

// applyEffects folds aggregated trigger effects into the state and
// queues any forced anomalies.
func (re *RitualEngine) applyEffects(ctx context.Context, state *ritual.VisitorState, results []ritual.TriggerResult, effects ritual.AggregatedEffects) {
	for _, result := range results {
		if result.FirstActivation {
			state.AddTrigger(string(result.Trigger))
			re.logger.Trigger().Info("Trigger activated",
				"visitorId", state.VisitorID, "trigger", string(result.Trigger))
		}
	}

	if effects.TotalProgressDelta != 0 {
		state.Progress = ritual.ApplyDelta(state.Progress, effects.TotalProgressDelta)
	}
	for k, v := range effects.PatternsToSet {
		state.SetPattern(k, v)
	}

	for _, forced := range effects.ForceAnomalies {
		anomalyType, err := ritual.ParseAnomalyType(forced)
		if err != nil {
			re.logger.Trigger().Warn("Skipping unknown forced anomaly type",
				"visitorId", state.VisitorID, "type", forced)
			continue
		}
		event := re.generator.GenerateSpecific(state, anomalyType, nil, nil, "trigger")
		if _, err := re.queues.Push(ctx, state.VisitorID, event); err != nil {
			re.logger.Queue().Error("Failed to queue forced anomaly",
				"visitorId", state.VisitorID, "error", err.Error())
		}
	}
}

// maybeGenerateAnomaly rolls the ambient anomaly dice for connected
// visitors only; queueing for the disconnected just fills queues nobody
// drains.
func (re *RitualEngine) maybeGenerateAnomaly(ctx context.Context, state *ritual.VisitorState, multiplier float64) {
	connected, err := re.presence.IsConnected(ctx, state.VisitorID)
	if err != nil {
		re.logger.Ritual().Error("Presence check failed",
			"visitorId", state.VisitorID, "error", err.Error())
		return
	}
	if !connected {
		return
	}

	if !re.generator.ShouldGenerate(state, multiplier) {
		return
	}

	event := re.generator.Generate(state, nil, "")
	if _, err := re.queues.Push(ctx, state.VisitorID, event); err != nil {
		re.logger.Queue().Error("Failed to queue anomaly",
			"visitorId", state.VisitorID, "error", err.Error())
	}
}

// OnThreadView records a thread view and its progress gain. Nil state
// for unknown visitors.
func (re *RitualEngine) OnThreadView(ctx context.Context, visitorID string, threadID int) (*ritual.VisitorState, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}

	newlySeen := state.AddViewedThread(threadID)
	state.Progress = ritual.ApplyDelta(state.Progress, ritual.ThreadViewDelta(!newlySeen))

	if err := re.states.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// OnPostView records a post view and its progress gain. Nil state for
// unknown visitors.
func (re *RitualEngine) OnPostView(ctx context.Context, visitorID string, postID int) (*ritual.VisitorState, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}

	newlySeen := state.AddViewedPost(postID)
	state.Progress = ritual.ApplyDelta(state.Progress, ritual.PostViewDelta(!newlySeen))

	if err := re.states.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// OnActivity records additional time on site, with its slow progress
// drip. Nil state for unknown visitors.
func (re *RitualEngine) OnActivity(ctx context.Context, visitorID string, timeSpentSeconds int) (*ritual.VisitorState, error) {
	if timeSpentSeconds <= 0 {
		return re.states.Get(ctx, visitorID)
	}

	state, err := re.states.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}

	oldTime := state.TimeOnSite
	state.TimeOnSite += timeSpentSeconds
	state.Progress = ritual.ApplyDelta(state.Progress, ritual.TimeDelta(oldTime, state.TimeOnSite))

	if err := re.states.Save(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// QueueAnomaly generates and queues one level-appropriate anomaly for
// the visitor. Returns the queued event, nil for unknown visitors.
func (re *RitualEngine) QueueAnomaly(ctx context.Context, visitorID, triggeredBy string) (*ritual.AnomalyEvent, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}

	event := re.generator.Generate(state, nil, triggeredBy)
	if _, err := re.queues.Push(ctx, visitorID, event); err != nil {
		return nil, err
	}
	return event, nil
}

// QueueAnomalyForType generates and queues an anomaly of an explicit
// type. The type string is validated against the closed enum.
func (re *RitualEngine) QueueAnomalyForType(ctx context.Context, visitorID, typeName string, customData map[string]any) (*ritual.AnomalyEvent, error) {
	anomalyType, err := ritual.ParseAnomalyType(typeName)
	if err != nil {
		return nil, err
	}

	state, err := re.states.Get(ctx, visitorID)
	if err != nil || state == nil {
		return nil, err
	}

	event := re.generator.GenerateSpecific(state, anomalyType, nil, customData, "admin")
	if _, err := re.queues.Push(ctx, visitorID, event); err != nil {
		return nil, err
	}
	return event, nil
}

// MutatePost corrupts a post copy for the visitor. Unknown visitors get
// the content back untouched.
func (re *RitualEngine) MutatePost(ctx context.Context, visitorID string, post map[string]any) (map[string]any, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return post, nil
	}
	return re.mutator.MutatePost(post, state, 1.0), nil
}

// MutatePosts corrupts a post list copy for the visitor.
func (re *RitualEngine) MutatePosts(ctx context.Context, visitorID string, posts []map[string]any) ([]map[string]any, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return posts, nil
	}
	return re.mutator.MutatePosts(posts, state, 1.0), nil
}

// MutateThread corrupts a thread summary copy for the visitor.
func (re *RitualEngine) MutateThread(ctx context.Context, visitorID string, thread map[string]any) (map[string]any, error) {
	state, err := re.states.Get(ctx, visitorID)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return thread, nil
	}
	return re.mutator.MutateThread(thread, state, 1.0), nil
}

// GetUserState loads a visitor's state without side effects.
func (re *RitualEngine) GetUserState(ctx context.Context, visitorID string) (*ritual.VisitorState, error) {
	return re.states.Get(ctx, visitorID)
}

// ResetUserState wipes a visitor's state and pending queue, then
// stores a fresh zero state so the visitor re-enters the pipeline on
// their next request.
func (re *RitualEngine) ResetUserState(ctx context.Context, visitorID string) (*ritual.VisitorState, error) {
	if _, err := re.states.Delete(ctx, visitorID); err != nil {
		return nil, err
	}
	if _, err := re.queues.Clear(ctx, visitorID); err != nil {
		return nil, err
	}
	return re.states.Create(ctx, visitorID)
}

// SetUserProgress pins a visitor's progress to an absolute value.
func (re *RitualEngine) SetUserProgress(ctx context.Context, visitorID string, progress int) (*ritual.VisitorState, error) {
	return re.states.SetProgress(ctx, visitorID, progress)
}

// ConnectedUsers lists visitors with a live real-time channel.
func (re *RitualEngine) ConnectedUsers(ctx context.Context) ([]string, error) {
	return re.presence.ConnectedIDs(ctx)
}

// ConnectionCount returns how many channels are open.
func (re *RitualEngine) ConnectionCount(ctx context.Context) (int64, error) {
	return re.presence.Count(ctx)
}

// StateSnapshot is the client-facing view of a visitor's progression.
type StateSnapshot struct {
	VisitorID   string         `json:"visitor_id"`
	Progress    int            `json:"progress"`
	Level       string         `json:"level"`
	Description string         `json:"description"`
	TimeOnSite  int            `json:"time_on_site"`
	TriggersHit []string       `json:"triggers_hit"`
	Overlay     map[string]any `json:"overlay,omitempty"`
}

// Snapshot renders a state into its client-facing view, including the
// current corruption overlay.
func (re *RitualEngine) Snapshot(state *ritual.VisitorState) StateSnapshot {
	return StateSnapshot{
		VisitorID:   state.VisitorID,
		Progress:    state.Progress,
		Level:       string(state.Level()),
		Description: ritual.Describe(state.Progress),
		TimeOnSite:  state.TimeOnSite,
		TriggersHit: append([]string{}, state.TriggersHit...),
		Overlay:     re.mutator.CorruptionOverlay(state.Progress),
	}
}
