// Package offline converts time away from the game into a gubs award.
package offline

import "math"

// DefaultRate is the fraction of the passive rate earned while offline.
const DefaultRate = 0.25

const millisPerSecond = 1000

// Earned returns floor(rate * DefaultRate * elapsedSeconds), where elapsed is
// measured in milliseconds between lastUpdated and now and clamped at zero.
func Earned(rate float64, lastUpdated, now int64) int64 {
	return EarnedAt(DefaultRate, rate, lastUpdated, now)
}

// EarnedAt is Earned with an explicit offline fraction.
func EarnedAt(fraction, rate float64, lastUpdated, now int64) int64 {
	elapsed := now - lastUpdated
	if elapsed <= 0 || rate <= 0 || fraction <= 0 {
		return 0
	}
	earned := math.Floor(rate * fraction * float64(elapsed) / millisPerSecond)
	if math.IsNaN(earned) || earned <= 0 {
		return 0
	}
	if earned >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(earned)
}
