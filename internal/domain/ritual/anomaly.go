package ritual

import (
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// AnomalyType enumerates the kinds of anomalies that can occur. The
// string values are wire format and must not change.
type AnomalyType string

const (
	// Content anomalies
	AnomalyNewPost     AnomalyType = "new_post"     // Fake post appears
	AnomalyPostEdit    AnomalyType = "post_edit"    // Post content changes
	AnomalyPostCorrupt AnomalyType = "post_corrupt" // Text becomes corrupted
	AnomalyPostDelete  AnomalyType = "post_delete"  // Post "disappears"

	// Visual anomalies
	AnomalyGlitch  AnomalyType = "glitch"
	AnomalyFlicker AnomalyType = "flicker"
	AnomalyStatic  AnomalyType = "static"

	// Presence anomalies
	AnomalyPresence AnomalyType = "presence"
	AnomalyShadow   AnomalyType = "shadow"
	AnomalyEyes     AnomalyType = "eyes"

	// Audio cues
	AnomalyWhisper   AnomalyType = "whisper"
	AnomalyAmbient   AnomalyType = "ambient"
	AnomalyHeartbeat AnomalyType = "heartbeat"

	// UI anomalies
	AnomalyNotification AnomalyType = "notification"
	AnomalyCursor       AnomalyType = "cursor"
	AnomalyScroll       AnomalyType = "scroll"
	AnomalyTyping       AnomalyType = "typing"

	// Meta anomalies
	AnomalyViewerCount AnomalyType = "viewer_count"
	AnomalyRecognition AnomalyType = "recognition"
	AnomalyMemory      AnomalyType = "memory"
)

var anomalyTypes = map[AnomalyType]struct{}{
	AnomalyNewPost: {}, AnomalyPostEdit: {}, AnomalyPostCorrupt: {}, AnomalyPostDelete: {},
	AnomalyGlitch: {}, AnomalyFlicker: {}, AnomalyStatic: {},
	AnomalyPresence: {}, AnomalyShadow: {}, AnomalyEyes: {},
	AnomalyWhisper: {}, AnomalyAmbient: {}, AnomalyHeartbeat: {},
	AnomalyNotification: {}, AnomalyCursor: {}, AnomalyScroll: {}, AnomalyTyping: {},
	AnomalyViewerCount: {}, AnomalyRecognition: {}, AnomalyMemory: {},
}

// ParseAnomalyType validates a wire string against the closed enum.
func ParseAnomalyType(s string) (AnomalyType, error) {
	t := AnomalyType(s)
	if _, ok := anomalyTypes[t]; !ok {
		return "", fmt.Errorf("unknown anomaly type %q", s)
	}
	return t, nil
}

// Severity orders anomaly intensity from barely noticeable to maximum.
type Severity string

const (
	SeveritySubtle   Severity = "subtle"
	SeverityMild     Severity = "mild"
	SeverityModerate Severity = "moderate"
	SeverityIntense  Severity = "intense"
	SeverityExtreme  Severity = "extreme"
)

// Target describes what an anomaly applies to.
type Target string

const (
	TargetPage   Target = "page"
	TargetPost   Target = "post"
	TargetThread Target = "thread"
	TargetUser   Target = "user"
	TargetCursor Target = "cursor"
	TargetText   Target = "text"
)

// Weighted pairs a value with its sampling weight.
type Weighted[T any] struct {
	Value  T
	Weight float64
}

// AnomalyPools holds the per-level type pools the generator samples from.
var AnomalyPools = map[Level][]Weighted[AnomalyType]{
	LevelLow: {
		{AnomalyGlitch, 0.3},
		{AnomalyFlicker, 0.3},
		{AnomalyStatic, 0.2},
		{AnomalyViewerCount, 0.2},
	},
	LevelMedium: {
		{AnomalyGlitch, 0.15},
		{AnomalyFlicker, 0.15},
		{AnomalyWhisper, 0.2},
		{AnomalyPresence, 0.2},
		{AnomalyNewPost, 0.15},
		{AnomalyPostEdit, 0.15},
	},
	LevelHigh: {
		{AnomalyPostCorrupt, 0.15},
		{AnomalyWhisper, 0.15},
		{AnomalyPresence, 0.15},
		{AnomalyShadow, 0.1},
		{AnomalyNotification, 0.15},
		{AnomalyRecognition, 0.1},
		{AnomalyTyping, 0.1},
		{AnomalyCursor, 0.1},
	},
	LevelCritical: {
		{AnomalyPostCorrupt, 0.12},
		{AnomalyPresence, 0.12},
		{AnomalyShadow, 0.1},
		{AnomalyEyes, 0.1},
		{AnomalyRecognition, 0.12},
		{AnomalyMemory, 0.1},
		{AnomalyTyping, 0.1},
		{AnomalyHeartbeat, 0.12},
		{AnomalyScroll, 0.06},
		{AnomalyPostDelete, 0.06},
	},
}

// SeverityWeights holds the per-level severity distributions.
var SeverityWeights = map[Level][]Weighted[Severity]{
	LevelLow: {
		{SeveritySubtle, 0.7},
		{SeverityMild, 0.3},
	},
	LevelMedium: {
		{SeveritySubtle, 0.3},
		{SeverityMild, 0.4},
		{SeverityModerate, 0.3},
	},
	LevelHigh: {
		{SeverityMild, 0.2},
		{SeverityModerate, 0.4},
		{SeverityIntense, 0.4},
	},
	LevelCritical: {
		{SeverityModerate, 0.2},
		{SeverityIntense, 0.5},
		{SeverityExtreme, 0.3},
	},
}

// NightBurstCounts is the base anomaly count for night bursts by level.
var NightBurstCounts = map[Level]int{
	LevelLow:      1,
	LevelMedium:   2,
	LevelHigh:     4,
	LevelCritical: 7,
}

// WitchingBurstTypes is the restricted type set for witching hour bursts.
var WitchingBurstTypes = []AnomalyType{
	AnomalyShadow,
	AnomalyEyes,
	AnomalyWhisper,
	AnomalyPresence,
	AnomalyHeartbeat,
}

// Phrase banks for personalized anomaly payloads.
var (
	WhisperMessages = []string{
		"...ты слышишь нас?...",
		"...не уходи...",
		"...мы знаем...",
		"...скоро...",
		"...оглянись...",
		"...ты не один...",
		"...помнишь?...",
	}

	RecognitionMessages = []string{
		"Добро пожаловать обратно.",
		"Мы ждали тебя.",
		"Ты вернулся.",
		"Мы помним твоё лицо.",
		"Время здесь течёт иначе.",
	}

	PresenceMessages = []string{
		"Кто-то смотрит на тебя.",
		"Ты не один здесь.",
		"Они рядом.",
		"Что-то следит за тобой.",
		"Тень движется.",
	}

	TypingTexts = []string{
		"ОНИ ЗДЕСЬ",
		"ПОМОГИ",
		"НЕ УХОДИ",
		"Я ВИЖУ ТЕБЯ",
		"СКОРО",
	}

	GlitchEffects   = []string{"rgb_split", "scanlines", "noise", "displacement"}
	CursorBehaviors = []string{"drift", "shake", "follow", "avoid"}
)

// PostCorruptIntensity maps level to the corruption_level payload value.
var PostCorruptIntensity = map[Level]float64{
	LevelLow:      0.1,
	LevelMedium:   0.3,
	LevelHigh:     0.5,
	LevelCritical: 0.8,
}

// AnomalyTemplate carries per-type defaults for event construction.
type AnomalyTemplate struct {
	Severity   Severity
	Target     Target
	DurationMS int
	Data       map[string]any
}

// AnomalyTemplates holds creation defaults per anomaly type. Types
// without a template fall back to mild/page/3000ms.
var AnomalyTemplates = map[AnomalyType]AnomalyTemplate{
	AnomalyGlitch: {
		Severity: SeverityMild, Target: TargetPage, DurationMS: 500,
		Data: map[string]any{"effect": "rgb_split"},
	},
	AnomalyFlicker: {
		Severity: SeveritySubtle, Target: TargetPage, DurationMS: 200,
		Data: map[string]any{"flicker_count": 3},
	},
	AnomalyWhisper: {
		Severity: SeverityModerate, Target: TargetUser, DurationMS: 5000,
		Data: map[string]any{"message": "...ты слышишь нас?..."},
	},
	AnomalyPresence: {
		Severity: SeverityModerate, Target: TargetPage, DurationMS: 8000,
		Data: map[string]any{"message": "Кто-то смотрит на тебя"},
	},
	AnomalyPostCorrupt: {
		Severity: SeverityIntense, Target: TargetPost, DurationMS: 10000,
		Data: map[string]any{"corruption_level": 0.3},
	},
	AnomalyNewPost: {
		Severity: SeverityModerate, Target: TargetThread, DurationMS: 60000,
		Data: map[string]any{},
	},
	AnomalyNotification: {
		Severity: SeverityMild, Target: TargetUser, DurationMS: 5000,
		Data: map[string]any{"title": "Новое сообщение", "body": "..."},
	},
	AnomalyRecognition: {
		Severity: SeverityIntense, Target: TargetUser, DurationMS: 7000,
		Data: map[string]any{"message": "Мы помним тебя, {username}"},
	},
	AnomalyViewerCount: {
		Severity: SeveritySubtle, Target: TargetThread, DurationMS: 10000,
		Data: map[string]any{"count": 7, "message": "Сейчас читают: {count}"},
	},
	AnomalyCursor: {
		Severity: SeverityMild, Target: TargetCursor, DurationMS: 3000,
		Data: map[string]any{"behavior": "drift"},
	},
	AnomalyTyping: {
		Severity: SeverityIntense, Target: TargetText, DurationMS: 5000,
		Data: map[string]any{"text": "ОНИ ЗДЕСЬ"},
	},
	AnomalyHeartbeat: {
		Severity: SeverityModerate, Target: TargetUser, DurationMS: 10000,
		Data: map[string]any{"bpm": 80},
	},
}

// AnomalyEvent is a single side-effect instance delivered to a visitor.
// Immutable once pushed to a queue.
type AnomalyEvent struct {
	ID       string      `json:"id"`
	Type     AnomalyType `json:"anomaly_type"`
	Severity Severity    `json:"severity"`
	Target   Target      `json:"target"`

	PostID   *int `json:"post_id"`
	ThreadID *int `json:"thread_id"`

	Data map[string]any `json:"data"`

	DurationMS int `json:"duration_ms"`
	DelayMS    int `json:"delay_ms"`

	Timestamp   time.Time `json:"timestamp"`
	TriggeredBy string    `json:"triggered_by,omitempty"`
}

// WSMessage is the envelope pushed onto delivery queues and forwarded to
// connected clients.
type WSMessage struct {
	Type    string        `json:"type"`
	Payload *AnomalyEvent `json:"payload"`
}

// WSMessage wraps the event in its wire envelope.
func (e *AnomalyEvent) WSMessage() WSMessage {
	return WSMessage{Type: "anomaly", Payload: e}
}

// NewAnomalyEvent builds an event from the type's template. A zero
// severity takes the template's default; custom data overrides template
// data on key conflict; targetID lands on post_id or thread_id according
// to the template target.
func NewAnomalyEvent(t AnomalyType, severity Severity, targetID *int, customData map[string]any, triggeredBy string, now time.Time) *AnomalyEvent {
	template, hasTemplate := AnomalyTemplates[t]
	if !hasTemplate {
		template = AnomalyTemplate{Severity: SeverityMild, Target: TargetPage, DurationMS: 3000}
	}

	data := make(map[string]any, len(template.Data)+len(customData))
	for k, v := range template.Data {
		data[k] = v
	}
	for k, v := range customData {
		data[k] = v
	}

	if severity == "" {
		severity = template.Severity
	}

	var postID, threadID *int
	switch template.Target {
	case TargetPost:
		postID = targetID
	case TargetThread:
		threadID = targetID
	}

	return &AnomalyEvent{
		ID:          ulid.Make().String(),
		Type:        t,
		Severity:    severity,
		Target:      template.Target,
		PostID:      postID,
		ThreadID:    threadID,
		Data:        data,
		DurationMS:  template.DurationMS,
		DelayMS:     0,
		Timestamp:   now,
		TriggeredBy: triggeredBy,
	}
}
