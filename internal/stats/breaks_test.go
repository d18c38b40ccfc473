package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProbabilityOnBreakMonotonic(t *testing.T) {
	durations := []time.Duration{
		0, 10 * time.Second, time.Minute, 2 * time.Minute,
		154 * time.Second, 155 * time.Second, 10 * time.Minute, time.Hour,
	}
	prev := -1.0
	for _, d := range durations {
		p := ProbabilityOnBreak(d)
		require.GreaterOrEqual(t, p, prev, "probability must not decrease at %s", d)
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
		prev = p
	}
}

func TestOnBreakThreshold(t *testing.T) {
	// The regression crosses 0.7 a little above 154 seconds stationary.
	require.False(t, OnBreak(154*time.Second))
	require.True(t, OnBreak(155*time.Second))
	require.False(t, OnBreak(0))
	require.True(t, OnBreak(time.Hour))
}
