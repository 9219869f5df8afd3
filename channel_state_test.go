package nettle

import "testing"

func TestChannelStateStartsUnregistered(t *testing.T) {
	s := newChannelState()
	if got := s.Load(); got != StateUnregistered {
		t.Fatalf("Load() = %v, want %v", got, StateUnregistered)
	}
}

func TestChannelStateFollowsLifecycleTable(t *testing.T) {
	s := newChannelState()
	steps := []ChannelState{StateRegistered, StateActive, StateInactive, StateUnregistered, StateClosed}
	for _, to := range steps {
		if !s.TryTransition(to) {
			t.Fatalf("transition to %v from %v should succeed", to, s.Load())
		}
	}
	if !s.IsClosed() {
		t.Fatal("state should be Closed after the full lifecycle walk")
	}
}

func TestChannelStateRejectsInvalidTransition(t *testing.T) {
	s := newChannelState()
	// Unregistered -> Active is not in channelValidTransitions; only
	// Registered or Closed are reachable directly from Unregistered.
	if s.TryTransition(StateActive) {
		t.Fatal("Unregistered -> Active should be rejected")
	}
	if got := s.Load(); got != StateUnregistered {
		t.Fatalf("state changed on a rejected transition: %v", got)
	}
}

func TestChannelStateClosedIsAbsorbing(t *testing.T) {
	s := newChannelState()
	if !s.TryTransition(StateClosed) {
		t.Fatal("Unregistered -> Closed should be a valid terminal shortcut")
	}
	for _, to := range []ChannelState{StateUnregistered, StateRegistered, StateActive, StateInactive} {
		if s.TryTransition(to) {
			t.Fatalf("Closed -> %v should never succeed", to)
		}
	}
	if got := s.Load(); got != StateClosed {
		t.Fatalf("Closed state mutated by a rejected transition: %v", got)
	}
}

func TestChannelStateIsActiveReflectsOnlyActiveState(t *testing.T) {
	s := newChannelState()
	if s.IsActive() {
		t.Fatal("fresh state should not report active")
	}
	s.TryTransition(StateRegistered)
	if s.IsActive() {
		t.Fatal("Registered should not report active")
	}
	s.TryTransition(StateActive)
	if !s.IsActive() {
		t.Fatal("Active should report active")
	}
}

func TestChannelStateStringer(t *testing.T) {
	cases := map[ChannelState]string{
		StateUnregistered: "Unregistered",
		StateRegistered:   "Registered",
		StateActive:       "Active",
		StateInactive:     "Inactive",
		StateClosed:       "Closed",
		ChannelState(99):  "Unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
