package ritual

// Level buckets progress into coarse intensity tiers.
type Level string

const (
	LevelLow      Level = "low"      // 0-20: rare anomalies
	LevelMedium   Level = "medium"   // 21-50: sometimes
	LevelHigh     Level = "high"     // 51-80: often
	LevelCritical Level = "critical" // 81-100: constant
)

// Progress point weights per activity.
const (
	ProgressPerThreadView = 1
	ProgressPerPostView   = 0.5
	ProgressPerMinute     = 0.1
)

// baseAnomalyChances is the per-check anomaly probability by level.
var baseAnomalyChances = map[Level]float64{
	LevelLow:      0.02,
	LevelMedium:   0.08,
	LevelHigh:     0.20,
	LevelCritical: 0.40,
}

// baseCorruptionChances is the content corruption probability by level.
var baseCorruptionChances = map[Level]float64{
	LevelLow:      0.0,
	LevelMedium:   0.05,
	LevelHigh:     0.15,
	LevelCritical: 0.35,
}

var levelDescriptions = map[Level]string{
	LevelLow:      "Всё кажется нормальным...",
	LevelMedium:   "Что-то здесь не так.",
	LevelHigh:     "Они знают, что ты здесь.",
	LevelCritical: "Ты один из нас теперь.",
}

// LevelFor buckets a progress value into a Level. Out-of-range values
// are clamped first.
func LevelFor(progress int) Level {
	progress = ClampProgress(progress)
	switch {
	case progress <= 20:
		return LevelLow
	case progress <= 50:
		return LevelMedium
	case progress <= 80:
		return LevelHigh
	default:
		return LevelCritical
	}
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(progress int) int {
	if progress < 0 {
		return 0
	}
	if progress > 100 {
		return 100
	}
	return progress
}

// ApplyDelta adds a signed delta to progress, clamped to [0,100].
func ApplyDelta(current, delta int) int {
	return ClampProgress(current + delta)
}

// BaseAnomalyChance returns the per-check anomaly probability for a level.
func BaseAnomalyChance(level Level) float64 {
	return baseAnomalyChances[level]
}

// BaseCorruptionChance returns the corruption probability for a level.
func BaseCorruptionChance(level Level) float64 {
	return baseCorruptionChances[level]
}

// AnomalyChance computes the final anomaly probability for one check.
// The witching hour adds an extra 1.5x on top of its period multiplier.
// Capped at 0.95 so nothing is ever certain.
func AnomalyChance(progress int, multiplier float64, period Period, witching bool) float64 {
	chance := BaseAnomalyChance(LevelFor(progress)) * multiplier * AnomalyMultiplier(period)
	if witching {
		chance *= 1.5
	}
	if chance > 0.95 {
		return 0.95
	}
	return chance
}

// CorruptionChance computes the content corruption probability, capped
// at 0.80.
func CorruptionChance(progress int, multiplier float64, period Period) float64 {
	chance := BaseCorruptionChance(LevelFor(progress)) * multiplier * AnomalyMultiplier(period)
	if chance > 0.80 {
		return 0.80
	}
	return chance
}

// CorruptionIntensity scales linearly with progress and gets a 1.3x
// boost from 80 upward, capped at 1.0.
func CorruptionIntensity(progress int) float64 {
	intensity := float64(progress) / 100
	if progress >= 80 {
		intensity *= 1.3
	}
	if intensity > 1.0 {
		return 1.0
	}
	return intensity
}

// ThreadViewDelta is the progress gain for viewing a thread. Only the
// first view of a thread counts.
func ThreadViewDelta(alreadySeen bool) int {
	if alreadySeen {
		return 0
	}
	return ProgressPerThreadView
}

// PostViewDelta is the progress gain for viewing a post. The nominal
// half-point weight rounds up, so any unseen post is worth a full point.
func PostViewDelta(alreadySeen bool) int {
	if alreadySeen {
		return 0
	}
	if ProgressPerPostView >= 0.5 {
		return 1
	}
	return 0
}

// TimeDelta is the progress gain for additional seconds on site.
func TimeDelta(oldSeconds, newSeconds int) int {
	addedMinutes := float64(newSeconds-oldSeconds) / 60
	return int(addedMinutes * ProgressPerMinute)
}

// Describe returns the user-facing description for a progress value.
func Describe(progress int) string {
	return levelDescriptions[LevelFor(progress)]
}

// NextLevel returns the level above the given one. CRITICAL is terminal.
func NextLevel(level Level) Level {
	switch level {
	case LevelLow:
		return LevelMedium
	case LevelMedium:
		return LevelHigh
	case LevelHigh:
		return LevelCritical
	default:
		return LevelCritical
	}
}
