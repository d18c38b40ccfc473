package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatePackUnpackRoundTrip(t *testing.T) {
	cases := []ReminderState{
		{},
		{Rank: 3, Armed: true},
		{Rank: 15, Armed: true, Late: true, LateBlocked: true},
		{Break: true, BreakBlocked: true, UnknownCause: true, UnknownCauseBlocked: true},
		{Rank: 7, RemindSent: true, Armed: true},
		{Halted: true},
	}
	for _, s := range cases {
		pending, blocked := s.Pack()
		require.Equal(t, s, UnpackState(pending, blocked))
	}
}

func TestStateRankClamped(t *testing.T) {
	s := ReminderState{Rank: 99}
	pending, blocked := s.Pack()
	got := UnpackState(pending, blocked)
	require.Equal(t, MaxRank, got.Rank)

	s = ReminderState{Rank: -1}
	pending, blocked = s.Pack()
	require.Equal(t, 0, UnpackState(pending, blocked).Rank)
}

// Rows written by the historical reader aliased the armed check onto
// bit 0 of the pending word. Such a word decodes with Armed false (and
// the low bits read as rank), so the reminder simply re-runs the
// harmless arming step on its next poll.
func TestStateAliasedArmedWordDecodesUnarmed(t *testing.T) {
	got := UnpackState(1, 0)
	require.False(t, got.Armed)
	require.Equal(t, 1, got.Rank)
}

func TestClearHelpersUnblockNotifications(t *testing.T) {
	s := ReminderState{
		Late: true, LateBlocked: true,
		Break: true, BreakBlocked: true,
		UnknownCause: true, UnknownCauseBlocked: true,
	}
	s.ClearLate()
	require.False(t, s.Late)
	require.False(t, s.LateBlocked)
	s.ClearBreak()
	require.False(t, s.Break)
	require.False(t, s.BreakBlocked)
	s.ClearUnknownCause()
	require.False(t, s.UnknownCause)
	require.False(t, s.UnknownCauseBlocked)
}
