package model

// ReminderState is the per-reminder tracking state, kept as named fields
// rather than raw bit arithmetic. Condition flags (Late, Break,
// UnknownCause) record that a condition currently holds; the matching
// *Blocked flags make each notification kind fire at most once per
// arming period. A blocked flag is set immediately before dispatch and
// cleared only when its condition flag is toggled off by a transition.
type ReminderState struct {
	// Rank is the target's index within the latest arrival-estimate
	// sequence. It is only meaningful for the poll that wrote it and is
	// re-resolved every tick.
	Rank int

	Armed      bool // at least one successful poll has completed
	Halted     bool // processing permanently suppressed
	RemindSent bool

	Late         bool
	Break        bool
	UnknownCause bool

	LateBlocked         bool
	BreakBlocked        bool
	UnknownCauseBlocked bool
}

// Bit layout of the persisted pending/evblocked words. Rank occupies the
// low four bits of the pending word; evblocked carries only the
// notification mirror bits.
const (
	rankMask uint32 = 0x0f

	bitRemindSent   uint32 = 1 << 4
	bitLate         uint32 = 1 << 5
	bitBreak        uint32 = 1 << 6
	bitUnknownCause uint32 = 1 << 7
	bitArmed        uint32 = 1 << 8
	bitHalt         uint32 = 1 << 9
)

// MaxRank is the largest rank the packed representation can carry.
const MaxRank = int(rankMask)

// Pack encodes the state into the stored pending/evblocked words. Ranks
// beyond MaxRank are clamped; the rank is re-resolved against the live
// sequence next poll regardless.
func (s ReminderState) Pack() (pending, blocked uint32) {
	rank := s.Rank
	if rank < 0 {
		rank = 0
	}
	if rank > MaxRank {
		rank = MaxRank
	}
	pending = uint32(rank) & rankMask
	if s.RemindSent {
		pending |= bitRemindSent
	}
	if s.Late {
		pending |= bitLate
	}
	if s.Break {
		pending |= bitBreak
	}
	if s.UnknownCause {
		pending |= bitUnknownCause
	}
	if s.Armed {
		pending |= bitArmed
	}
	if s.Halted {
		pending |= bitHalt
	}
	if s.LateBlocked {
		blocked |= bitLate
	}
	if s.BreakBlocked {
		blocked |= bitBreak
	}
	if s.UnknownCauseBlocked {
		blocked |= bitUnknownCause
	}
	if s.RemindSent {
		blocked |= bitRemindSent
	}
	return pending, blocked
}

// UnpackState decodes stored pending/evblocked words. The armed flag is
// read from its own bit; rows written by the historical reader that
// aliased the armed check onto bit 0 decode as not armed, which only
// re-runs the harmless first-poll arming step.
func UnpackState(pending, blocked uint32) ReminderState {
	return ReminderState{
		Rank:                int(pending & rankMask),
		RemindSent:          pending&bitRemindSent != 0,
		Late:                pending&bitLate != 0,
		Break:               pending&bitBreak != 0,
		UnknownCause:        pending&bitUnknownCause != 0,
		Armed:               pending&bitArmed != 0,
		Halted:              pending&bitHalt != 0,
		LateBlocked:         blocked&bitLate != 0,
		BreakBlocked:        blocked&bitBreak != 0,
		UnknownCauseBlocked: blocked&bitUnknownCause != 0,
	}
}

// ClearLate drops the lateness condition and unblocks its notification.
func (s *ReminderState) ClearLate() {
	s.Late = false
	s.LateBlocked = false
}

// ClearBreak drops the break condition and unblocks its notification.
func (s *ReminderState) ClearBreak() {
	s.Break = false
	s.BreakBlocked = false
}

// ClearUnknownCause drops the target-lost condition and unblocks its
// notification; called when the target is tracked again.
func (s *ReminderState) ClearUnknownCause() {
	s.UnknownCause = false
	s.UnknownCauseBlocked = false
}
