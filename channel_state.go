package nettle

import "sync/atomic"

// ChannelState is one node of the §4.4 channel lifecycle state machine.
type ChannelState uint32

const (
	// StateUnregistered is the state of a Channel before it has been
	// bound to an Executor.
	StateUnregistered ChannelState = iota
	// StateRegistered indicates the Channel is bound to an Executor but
	// not yet active (e.g. a server channel not yet listening).
	StateRegistered
	// StateActive indicates the Channel is open and eligible for I/O.
	StateActive
	// StateInactive indicates the Channel was active and has since been
	// disconnected, but is not yet fully closed (resources not yet
	// released).
	StateInactive
	// StateClosed is terminal: all resources released, no further
	// transitions possible.
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateUnregistered:
		return "Unregistered"
	case StateRegistered:
		return "Registered"
	case StateActive:
		return "Active"
	case StateInactive:
		return "Inactive"
	case StateClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// channelValidTransitions encodes the §4.4 transition table plus a direct
// transition to Closed from every non-terminal state. A transition not
// listed here is rejected by channelState.TryTransition.
var channelValidTransitions = map[ChannelState][]ChannelState{
	StateUnregistered: {StateRegistered, StateClosed},
	StateRegistered:   {StateActive, StateUnregistered, StateClosed},
	StateActive:       {StateInactive, StateClosed},
	StateInactive:     {StateUnregistered, StateClosed},
	StateClosed:       {},
}

// channelState is the atomic CAS state holder for a single Channel's
// lifecycle, the same atomic-word-plus-CAS idiom runState uses for the
// executor's own run state, but validated against channelValidTransitions
// since a Channel's transitions are a strict subset of an arbitrary
// any-to-any CAS.
type channelState struct {
	v atomic.Uint32
}

func newChannelState() *channelState {
	s := &channelState{}
	s.v.Store(uint32(StateUnregistered))
	return s
}

func (s *channelState) Load() ChannelState {
	return ChannelState(s.v.Load())
}

// TryTransition moves from the current state to to, if and only if to is
// listed as valid from the current state in channelValidTransitions.
// Returns false (no change) on an invalid transition or a concurrent
// racer winning the CAS.
func (s *channelState) TryTransition(to ChannelState) bool {
	for {
		from := ChannelState(s.v.Load())
		valid := false
		for _, candidate := range channelValidTransitions[from] {
			if candidate == to {
				valid = true
				break
			}
		}
		if !valid {
			return false
		}
		if s.v.CompareAndSwap(uint32(from), uint32(to)) {
			return true
		}
	}
}

func (s *channelState) IsActive() bool {
	return s.Load() == StateActive
}

func (s *channelState) IsClosed() bool {
	return s.Load() == StateClosed
}
