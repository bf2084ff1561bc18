// Package ritual holds the core domain model for the curse progression
// system: time periods, progress levels, visitor state, anomalies, and
// trigger definitions.
package ritual

import "time"

// Period is a named slice of the day with its own anomaly behavior.
type Period string

const (
	PeriodWitching  Period = "witching"  // 02:00 - 04:59, peak anomaly time
	PeriodDawn      Period = "dawn"      // 05:00 - 07:59
	PeriodMorning   Period = "morning"   // 08:00 - 11:59
	PeriodAfternoon Period = "afternoon" // 12:00 - 17:59
	PeriodEvening   Period = "evening"   // 18:00 - 21:59
	PeriodNight     Period = "night"     // 22:00 - 01:59
)

// periodMultipliers scales anomaly probability by time of day.
var periodMultipliers = map[Period]float64{
	PeriodDawn:      0.8,
	PeriodMorning:   0.5,
	PeriodAfternoon: 0.7,
	PeriodEvening:   1.0,
	PeriodNight:     1.5,
	PeriodWitching:  2.5,
}

// PeriodForHour maps an hour (0-23) to its Period.
func PeriodForHour(hour int) Period {
	switch {
	case hour >= 2 && hour < 5:
		return PeriodWitching
	case hour >= 5 && hour < 8:
		return PeriodDawn
	case hour >= 8 && hour < 12:
		return PeriodMorning
	case hour >= 12 && hour < 18:
		return PeriodAfternoon
	case hour >= 18 && hour < 22:
		return PeriodEvening
	default:
		return PeriodNight
	}
}

// PeriodAt returns the Period for the given instant.
func PeriodAt(t time.Time) Period {
	return PeriodForHour(t.Hour())
}

// IsNightHour reports whether the hour falls in the wider night window
// (22:00 - 05:59), which overlaps the witching and dawn periods.
func IsNightHour(hour int) bool {
	return hour >= 22 || hour < 6
}

// IsWitchingHour reports whether the hour falls in the witching window
// (02:00 - 04:59).
func IsWitchingHour(hour int) bool {
	return hour >= 2 && hour < 5
}

// AnomalyMultiplier returns the probability multiplier for a period.
func AnomalyMultiplier(p Period) float64 {
	if m, ok := periodMultipliers[p]; ok {
		return m
	}
	return 1.0
}

// LocationOrUTC resolves a timezone name, falling back to UTC when the
// name is empty or unknown.
func LocationOrUTC(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
