package services

import (
	"fmt"
	"time"

	"github.com/cursedboard/cursedboard-go/internal/domain/ritual"
	"github.com/cursedboard/cursedboard-go/internal/infrastructure/observability/logging"
)

// GeneratorService produces anomaly events tuned to a visitor's curse
// level and the time of day.
type GeneratorService struct {
	logger *logging.ChanneledLogger
	loc    *time.Location
	rng    *lockedRand
	now    func() time.Time
}

// NewGeneratorService creates the anomaly generator.
func NewGeneratorService(loc *time.Location, logger *logging.ChanneledLogger) *GeneratorService {
	return &GeneratorService{
		logger: logger,
		loc:    loc,
		rng:    newLockedRand(),
		now:    time.Now,
	}
}

// SetTimeProvider overrides the clock, for deterministic tests.
func (gs *GeneratorService) SetTimeProvider(now func() time.Time) {
	gs.now = now
}

// SetRandSeed reseeds the generator, for deterministic tests.
func (gs *GeneratorService) SetRandSeed(seed int64) {
	gs.rng = newSeededRand(seed)
}

// ShouldGenerate rolls the anomaly dice for one check. The multiplier
// carries any trigger boost currently in force.
func (gs *GeneratorService) ShouldGenerate(state *ritual.VisitorState, multiplier float64) bool {
	now := gs.now().In(gs.loc)
	hour := now.Hour()
	chance := ritual.AnomalyChance(state.Progress, multiplier, ritual.PeriodForHour(hour), ritual.IsWitchingHour(hour))
	return gs.rng.Float64() < chance
}

// Generate builds one anomaly of a type sampled from the visitor's
// level pool, with a severity drawn from the level distribution.
func (gs *GeneratorService) Generate(state *ritual.VisitorState, targetID *int, triggeredBy string) *ritual.AnomalyEvent {
	level := state.Level()
	anomalyType := weightedChoice(gs.rng, ritual.AnomalyPools[level])
	return gs.GenerateSpecific(state, anomalyType, targetID, nil, triggeredBy)
}

// GenerateSpecific builds one anomaly of an explicit type. Custom data
// wins over both template and generated payload fields.
func (gs *GeneratorService) GenerateSpecific(state *ritual.VisitorState, anomalyType ritual.AnomalyType, targetID *int, customData map[string]any, triggeredBy string) *ritual.AnomalyEvent {
	level := state.Level()
	severity := weightedChoice(gs.rng, ritual.SeverityWeights[level])

	data := gs.buildCustomData(state, anomalyType, level)
	for k, v := range customData {
		data[k] = v
	}

	event := ritual.NewAnomalyEvent(anomalyType, severity, targetID, data, triggeredBy, gs.now().In(gs.loc))

	gs.logger.Anomaly().Debug("Generated anomaly",
		"visitorId", state.VisitorID,
		"type", string(anomalyType),
		"severity", string(event.Severity),
		"triggeredBy", triggeredBy)
	return event
}

// buildCustomData personalizes the payload per anomaly type.
func (gs *GeneratorService) buildCustomData(state *ritual.VisitorState, anomalyType ritual.AnomalyType, level ritual.Level) map[string]any {
	data := make(map[string]any)
	now := gs.now().In(gs.loc)
	witching := ritual.IsWitchingHour(now.Hour())

	switch anomalyType {
	case ritual.AnomalyWhisper:
		data["message"] = pick(gs.rng, ritual.WhisperMessages)
	case ritual.AnomalyPresence:
		data["message"] = pick(gs.rng, ritual.PresenceMessages)
	case ritual.AnomalyRecognition:
		data["message"] = pick(gs.rng, ritual.RecognitionMessages)
	case ritual.AnomalyMemory:
		if len(state.ViewedThreads) > 0 {
			data["referenced_thread"] = pick(gs.rng, state.ViewedThreads)
			data["message"] = "Помнишь тот тред? Он помнит тебя."
		}
	case ritual.AnomalyViewerCount:
		base := gs.rng.IntBetween(3, 12)
		if witching {
			base += gs.rng.IntBetween(10, 30)
		}
		data["count"] = base
		data["message"] = fmt.Sprintf("Сейчас читают: %d", base)
	case ritual.AnomalyPostCorrupt:
		data["corruption_level"] = ritual.PostCorruptIntensity[level]
	case ritual.AnomalyGlitch:
		data["effect"] = pick(gs.rng, ritual.GlitchEffects)
	case ritual.AnomalyTyping:
		data["text"] = pick(gs.rng, ritual.TypingTexts)
	case ritual.AnomalyCursor:
		data["behavior"] = pick(gs.rng, ritual.CursorBehaviors)
	case ritual.AnomalyHeartbeat:
		data["bpm"] = int(60 + float64(state.Progress)*0.6)
	}

	return data
}

// GenerateBatch builds count anomalies with staggered, cumulative
// delays so the client plays them out over time.
func (gs *GeneratorService) GenerateBatch(state *ritual.VisitorState, count int, triggeredBy string) []*ritual.AnomalyEvent {
	events := make([]*ritual.AnomalyEvent, 0, count)
	delay := 0
	for i := 0; i < count; i++ {
		delay += gs.rng.IntBetween(500, 2000)
		event := gs.Generate(state, nil, triggeredBy)
		event.DelayMS = delay
		events = append(events, event)
	}
	return events
}

// NightBurstCount returns how many anomalies a night burst sends for
// the visitor's level.
func (gs *GeneratorService) NightBurstCount(state *ritual.VisitorState) int {
	return ritual.NightBurstCounts[state.Level()]
}

// WitchingHourBurst builds the intensified event volley for the 3 AM
// sweep: a restricted type set, forced intense severity, and wider
// delay spacing.
func (gs *GeneratorService) WitchingHourBurst(state *ritual.VisitorState) []*ritual.AnomalyEvent {
	count := gs.NightBurstCount(state) + 2

	events := make([]*ritual.AnomalyEvent, 0, count)
	for i := 0; i < count; i++ {
		anomalyType := pick(gs.rng, ritual.WitchingBurstTypes)
		event := gs.GenerateSpecific(state, anomalyType, nil, nil, "witching_hour")
		event.Severity = ritual.SeverityIntense
		event.DelayMS = i * gs.rng.IntBetween(2000, 5000)
		events = append(events, event)
	}
	return events
}
