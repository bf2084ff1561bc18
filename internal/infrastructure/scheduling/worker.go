// Package scheduling runs the background sweeps that keep the curse
// alive between requests: periodic trigger checks, ambient anomalies,
// queue maintenance, and the nightly event schedule.
package scheduling

import (
	"context"
	"sync"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/application/services"
	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
	"github.com/cursedboard/cursedboard-go/pkg/config"
)

// Config holds the sweep intervals and daily event hours.
type Config struct {
	TriggerSweepInterval time.Duration
	AnomalySweepInterval time.Duration
	CleanupInterval      time.Duration
	NightBurstHour       int
	WitchingEventHour    int
}

// NewConfigFromEnv builds the scheduler config from the environment.
func NewConfigFromEnv() *Config {
	return &Config{
		TriggerSweepInterval: config.TriggerSweepInterval,
		AnomalySweepInterval: config.AnomalySweepInterval,
		CleanupInterval:      config.CleanupInterval,
		NightBurstHour:       config.NightBurstHour,
		WitchingEventHour:    config.WitchingEventHour,
	}
}

// Worker drives the scheduled jobs against the ritual engine. All jobs
// target connected visitors only; a failure for one visitor never
// stops a sweep.
type Worker struct {
	engine *services.RitualEngine
	logger *logging.ChanneledLogger
	config *Config
	loc    *time.Location

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewWorker creates a scheduler worker.
func NewWorker(engine *services.RitualEngine, cfg *Config, loc *time.Location, logger *logging.ChanneledLogger) *Worker {
	return &Worker{
		engine: engine,
		logger: logger,
		config: cfg,
		loc:    loc,
	}
}

// Start launches all sweep loops. Non-blocking; Stop waits for them.
func (w *Worker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.logger.Sched().Info("Scheduler started",
		"triggerSweep", w.config.TriggerSweepInterval.String(),
		"anomalySweep", w.config.AnomalySweepInterval.String(),
		"cleanup", w.config.CleanupInterval.String(),
		"nightBurstHour", w.config.NightBurstHour,
		"witchingEventHour", w.config.WitchingEventHour)

	w.runTicker(ctx, w.config.TriggerSweepInterval, "trigger_sweep", w.TriggerSweep)
	w.runTicker(ctx, w.config.AnomalySweepInterval, "anomaly_sweep", w.AmbientSweep)
	w.runTicker(ctx, w.config.CleanupInterval, "cleanup", w.Cleanup)
	w.runDaily(ctx, w.config.NightBurstHour, "night_burst", w.NightBurst)
	w.runDaily(ctx, w.config.WitchingEventHour, "witching_event", w.WitchingEvent)
}

// Stop cancels all loops and waits for them to drain.
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Sched().Info("Scheduler stopped")
}

func (w *Worker) runTicker(ctx context.Context, interval time.Duration, name string, job func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runJob(ctx, name, job)
			}
		}
	}()
}

// runDaily fires the job once per day at the given local hour.
func (w *Worker) runDaily(ctx context.Context, hour int, name string, job func(context.Context)) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			timer := time.NewTimer(w.untilNext(hour))
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				w.runJob(ctx, name, job)
			}
		}
	}()
}

// untilNext returns the duration until the next occurrence of the hour
// in the site timezone.
func (w *Worker) untilNext(hour int) time.Duration {
	now := time.Now().In(w.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, w.loc)
	if !next.After(now) {
		next = next.Add(24 * time.Hour)
	}
	return next.Sub(now)
}

// runJob wraps a job run with timing and panic containment.
func (w *Worker) runJob(ctx context.Context, name string, job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Sched().Error("Scheduled job panicked", "job", name, "panic", r)
		}
	}()

	start := time.Now()
	job(ctx)
	w.logger.Sched().Debug("Scheduled job finished", "job", name, "duration", time.Since(start).String())
}

// connectedVisitors lists visitors eligible for sweep processing.
func (w *Worker) connectedVisitors(ctx context.Context) []string {
	ids, err := w.engine.ConnectedUsers(ctx)
	if err != nil {
		w.logger.Sched().Error("Failed to list connected visitors", "error", err.Error())
		return nil
	}
	return ids
}

// TriggerSweep re-evaluates time and accumulation triggers for every
// connected visitor, outside any request.
func (w *Worker) TriggerSweep(ctx context.Context) {
	for _, visitorID := range w.connectedVisitors(ctx) {
		if ctx.Err() != nil {
			return
		}
		if err := w.sweepVisitorTriggers(ctx, visitorID); err != nil {
			w.logger.Sched().Error("Trigger sweep failed for visitor",
				"visitorId", visitorID, "error", err.Error())
		}
	}
}

func (w *Worker) sweepVisitorTriggers(ctx context.Context, visitorID string) error {
	state, err := w.engine.States().Get(ctx, visitorID)
	if err != nil || state == nil {
		return err
	}

	results := w.engine.Triggers().CheckNewTriggers(state, "", "")
	if len(results) == 0 {
		return nil
	}
	effects := w.engine.Triggers().ApplicableEffects(results)

	for _, result := range results {
		if !result.FirstActivation {
			continue
		}
		if _, err := w.engine.States().AddTrigger(ctx, visitorID, result.Trigger); err != nil {
			return err
		}
		w.logger.Sched().Info("Sweep activated trigger",
			"visitorId", visitorID, "trigger", string(result.Trigger))
	}

	if effects.TotalProgressDelta != 0 {
		if _, err := w.engine.States().UpdateProgress(ctx, visitorID, effects.TotalProgressDelta); err != nil {
			return err
		}
	}
	for k, v := range effects.PatternsToSet {
		if _, err := w.engine.States().UpdateKnownPattern(ctx, visitorID, k, v); err != nil {
			return err
		}
	}

	for _, forced := range effects.ForceAnomalies {
		anomalyType, err := ritual.ParseAnomalyType(forced)
		if err != nil {
			w.logger.Sched().Warn("Sweep skipping unknown forced anomaly type",
				"visitorId", visitorID, "type", forced)
			continue
		}
		event := w.engine.Generator().GenerateSpecific(state, anomalyType, nil, nil, "trigger")
		if _, err := w.engine.Queues().Push(ctx, visitorID, event); err != nil {
			w.logger.Sched().Warn("Sweep could not queue forced anomaly",
				"visitorId", visitorID, "type", forced, "error", err.Error())
		}
	}
	return nil
}

// AmbientSweep rolls the anomaly dice for every connected visitor so
// anomalies keep arriving on idle pages.
func (w *Worker) AmbientSweep(ctx context.Context) {
	for _, visitorID := range w.connectedVisitors(ctx) {
		if ctx.Err() != nil {
			return
		}

		state, err := w.engine.States().Get(ctx, visitorID)
		if err != nil || state == nil {
			if err != nil {
				w.logger.Sched().Error("Ambient sweep state load failed",
					"visitorId", visitorID, "error", err.Error())
			}
			continue
		}

		if !w.engine.Generator().ShouldGenerate(state, 1.0) {
			continue
		}

		event := w.engine.Generator().Generate(state, nil, "ambient")
		if _, err := w.engine.Queues().Push(ctx, visitorID, event); err != nil {
			w.logger.Sched().Error("Ambient sweep queue push failed",
				"visitorId", visitorID, "error", err.Error())
		}
	}
}

// Cleanup repairs queues that lost their expiry and logs store stats.
func (w *Worker) Cleanup(ctx context.Context) {
	total, repaired, err := w.engine.Queues().RepairOrphans(ctx)
	if err != nil {
		w.logger.Sched().Error("Queue repair failed", "error", err.Error())
		return
	}

	states, err := w.engine.States().GetAllIDs(ctx)
	if err != nil {
		w.logger.Sched().Error("State enumeration failed", "error", err.Error())
		return
	}
	connections, err := w.engine.ConnectionCount(ctx)
	if err != nil {
		w.logger.Sched().Error("Connection count failed", "error", err.Error())
		return
	}

	w.logger.Sched().Info("Cleanup sweep finished",
		"queues", total,
		"repairedQueues", repaired,
		"states", len(states),
		"connections", connections)
}

// NightBurst sends each connected visitor a level-scaled volley of
// anomalies at the top of the night.
func (w *Worker) NightBurst(ctx context.Context) {
	for _, visitorID := range w.connectedVisitors(ctx) {
		if ctx.Err() != nil {
			return
		}

		state, err := w.engine.States().Get(ctx, visitorID)
		if err != nil || state == nil {
			continue
		}

		count := w.engine.Generator().NightBurstCount(state)
		events := w.engine.Generator().GenerateBatch(state, count, "night_burst")
		for _, event := range events {
			if _, err := w.engine.Queues().Push(ctx, visitorID, event); err != nil {
				w.logger.Sched().Error("Night burst push failed",
					"visitorId", visitorID, "error", err.Error())
				break
			}
		}
	}
}

// WitchingEvent runs the 3 AM escalation: an intense burst plus a
// permanent progress bump for everyone still awake.
func (w *Worker) WitchingEvent(ctx context.Context) {
	for _, visitorID := range w.connectedVisitors(ctx) {
		if ctx.Err() != nil {
			return
		}

		state, err := w.engine.States().Get(ctx, visitorID)
		if err != nil || state == nil {
			continue
		}

		events := w.engine.Generator().WitchingHourBurst(state)
		for _, event := range events {
			if _, err := w.engine.Queues().Push(ctx, visitorID, event); err != nil {
				w.logger.Sched().Error("Witching burst push failed",
					"visitorId", visitorID, "error", err.Error())
				break
			}
		}

		if _, err := w.engine.States().UpdateProgress(ctx, visitorID, 10); err != nil {
			w.logger.Sched().Error("Witching progress update failed",
				"visitorId", visitorID, "error", err.Error())
			continue
		}
		if _, err := w.engine.States().AddTrigger(ctx, visitorID, "witching_hour"); err != nil {
			w.logger.Sched().Error("Witching trigger record failed",
				"visitorId", visitorID, "error", err.Error())
		}
	}
}
