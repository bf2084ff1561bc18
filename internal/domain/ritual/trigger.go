package ritual

import "time"

// TriggerName identifies a behavioral trigger. The string values are
// recorded in visitor state and must not change.
type TriggerName string

const (
	// Visit-based triggers
	TriggerFirstVisit      TriggerName = "first_visit"
	TriggerReturnee        TriggerName = "returnee"
	TriggerFrequentVisitor TriggerName = "frequent_visitor"
	TriggerLateNight       TriggerName = "late_night"
	TriggerWitchingHour    TriggerName = "witching_hour"

	// Reading behavior triggers
	TriggerDeepReader  TriggerName = "deep_reader"
	TriggerSpeedReader TriggerName = "speed_reader"
	TriggerSlowReader  TriggerName = "slow_reader"
	TriggerObsessive   TriggerName = "obsessive"
	TriggerExplorer    TriggerName = "explorer"

	// Progression triggers
	TriggerHalfway     TriggerName = "halfway"
	TriggerAlmostThere TriggerName = "almost_there"
	TriggerEnlightened TriggerName = "enlightened"

	// Special triggers
	TriggerFoundHidden   TriggerName = "found_hidden"
	TriggerPatternSeeker TriggerName = "pattern_seeker"
	TriggerTooLong       TriggerName = "too_long"
	TriggerMarathon      TriggerName = "marathon"

	// Time-based triggers
	TriggerNightOwl    TriggerName = "night_owl"
	TriggerDawnVisitor TriggerName = "dawn_visitor"

	// Interaction triggers
	TriggerPosted        TriggerName = "posted"
	TriggerThreadCreator TriggerName = "thread_creator"
)

// AllTriggers lists every registered trigger in evaluation order.
var AllTriggers = []TriggerName{
	TriggerFirstVisit, TriggerReturnee, TriggerFrequentVisitor,
	TriggerLateNight, TriggerWitchingHour,
	TriggerDeepReader, TriggerSpeedReader, TriggerSlowReader,
	TriggerObsessive, TriggerExplorer,
	TriggerHalfway, TriggerAlmostThere, TriggerEnlightened,
	TriggerFoundHidden, TriggerPatternSeeker, TriggerTooLong, TriggerMarathon,
	TriggerNightOwl, TriggerDawnVisitor,
	TriggerPosted, TriggerThreadCreator,
}

// TriggerEffect is the static effect configuration for one trigger.
// Defined once at startup, read-only at runtime.
type TriggerEffect struct {
	ProgressDelta           int
	AnomalyChanceMultiplier float64
	UnlockBoard             string
	UnlockThread            int
	ForceAnomaly            string
	Message                 string
	SetPattern              map[string]any
	CooldownSeconds         int
}

// TriggerEffects maps each trigger to its configured effect. Multipliers
// and forced anomalies apply on every firing; everything else only on
// first activation.
var TriggerEffects = map[TriggerName]TriggerEffect{
	TriggerFirstVisit: {
		ProgressDelta:           5,
		AnomalyChanceMultiplier: 1.0,
		Message:                 "Добро пожаловать... мы ждали тебя.",
	},
	TriggerReturnee: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 1.3,
		Message:                 "Ты вернулся. Мы помним тебя.",
	},
	TriggerFrequentVisitor: {
		ProgressDelta:           15,
		AnomalyChanceMultiplier: 1.5,
	},
	TriggerLateNight: {
		ProgressDelta:           5,
		AnomalyChanceMultiplier: 1.5,
	},
	TriggerWitchingHour: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 2.5,
		ForceAnomaly:            "whisper",
	},
	TriggerDeepReader: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 1.5,
	},
	TriggerSpeedReader: {
		ProgressDelta:           -5,
		AnomalyChanceMultiplier: 1.0,
		Message:                 "Не торопись... прочитай внимательнее.",
	},
	TriggerSlowReader: {
		ProgressDelta:           5,
		AnomalyChanceMultiplier: 1.0,
		SetPattern:              map[string]any{"reading_style": "careful"},
	},
	TriggerObsessive: {
		ProgressDelta:           15,
		AnomalyChanceMultiplier: 2.0,
		Message:                 "Ты ищешь что-то?",
	},
	TriggerExplorer: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 1.0,
		UnlockBoard:             "hidden",
	},
	TriggerHalfway: {
		ProgressDelta:           0,
		AnomalyChanceMultiplier: 1.5,
		Message:                 "Половина пути пройдена. Назад дороги нет.",
	},
	TriggerAlmostThere: {
		ProgressDelta:           0,
		AnomalyChanceMultiplier: 2.0,
		Message:                 "Ты почти у цели. Мы чувствуем тебя.",
	},
	TriggerEnlightened: {
		ProgressDelta:           0,
		AnomalyChanceMultiplier: 3.0,
		UnlockBoard:             "void",
		Message:                 "Ты видишь правду.",
	},
	TriggerFoundHidden: {
		ProgressDelta:           20,
		AnomalyChanceMultiplier: 2.0,
	},
	TriggerPatternSeeker: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 1.0,
		SetPattern:              map[string]any{"seeking": true},
	},
	TriggerTooLong: {
		ProgressDelta:           15,
		AnomalyChanceMultiplier: 1.8,
		Message:                 "Тебе пора отдохнуть... или нет?",
	},
	TriggerMarathon: {
		ProgressDelta:           25,
		AnomalyChanceMultiplier: 2.5,
		ForceAnomaly:            "presence",
	},
	TriggerNightOwl: {
		ProgressDelta:           15,
		AnomalyChanceMultiplier: 1.8,
		UnlockBoard:             "nightmare",
	},
	TriggerDawnVisitor: {
		ProgressDelta:           5,
		AnomalyChanceMultiplier: 1.0,
		Message:                 "Рассвет близко. Они отступают... пока.",
	},
	TriggerPosted: {
		ProgressDelta:           10,
		AnomalyChanceMultiplier: 1.0,
	},
	TriggerThreadCreator: {
		ProgressDelta:           15,
		AnomalyChanceMultiplier: 1.3,
	},
}

// TriggerContext is the snapshot a trigger predicate evaluates against.
type TriggerContext struct {
	VisitorID     string
	Progress      int
	ViewedThreads []int
	ViewedPosts   []int
	TimeOnSite    int
	FirstVisit    time.Time
	LastActivity  time.Time
	TriggersHit   map[TriggerName]bool
	KnownPatterns map[string]any
	CurrentPath   string
	CurrentMethod string
	IsNight       bool
	IsWitching    bool
	Period        Period
	Now           time.Time
}

// TriggerResult reports the outcome of checking one trigger.
type TriggerResult struct {
	Trigger         TriggerName
	Activated       bool
	FirstActivation bool
	Effect          *TriggerEffect
	Metadata        map[string]any
}

// AggregatedEffects is the combined outcome across a set of trigger
// results. Progress, unlocks, messages, and pattern writes come only
// from first activations; the multiplier and forced anomalies from every
// firing.
type AggregatedEffects struct {
	TotalProgressDelta   int
	MaxAnomalyMultiplier float64
	UnlockBoards         []string
	UnlockThreads        []int
	ForceAnomalies       []string
	Messages             []string
	PatternsToSet        map[string]any
}
