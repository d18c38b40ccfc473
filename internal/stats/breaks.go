// Package stats holds the break heuristic used by the reconciler.
package stats

import "time"

// BreakThreshold is the probability at which a stationary vehicle is
// considered to be on a scheduled break.
const BreakThreshold = 0.7

// Coefficients of the linear regression fitted against observed driver
// break durations (seconds stationary -> probability on break).
const (
	breakIntercept = -0.077820309
	breakSlope     = 0.005038471
)

// ProbabilityOnBreak maps a stationary duration to the probability that
// the vehicle is on a scheduled break. Monotonically non-decreasing,
// clamped to [0, 1].
func ProbabilityOnBreak(stationary time.Duration) float64 {
	p := breakIntercept + breakSlope*stationary.Seconds()
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// OnBreak reports whether the stationary duration crosses the break
// threshold.
func OnBreak(stationary time.Duration) bool {
	return ProbabilityOnBreak(stationary) >= BreakThreshold
}
