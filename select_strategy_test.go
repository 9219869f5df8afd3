package nettle

import "testing"

func TestDefaultSelectStrategyBlocksWhenIdle(t *testing.T) {
	s := defaultSelectStrategy{}
	got := s.CalculateStrategy(func() int { return 0 }, false)
	if got != SelectPoll {
		t.Fatalf("CalculateStrategy(idle) = %d, want SelectPoll", got)
	}
}

func TestDefaultSelectStrategyReportsPendingWorkInsteadOfBlocking(t *testing.T) {
	s := defaultSelectStrategy{}
	got := s.CalculateStrategy(func() int { return 3 }, true)
	if got != 3 {
		t.Fatalf("CalculateStrategy(3 tasks pending) = %d, want 3", got)
	}
}

// spinOnceStrategy skips the poll exactly once before delegating to the
// default, exercising the SelectContinue escape hatch a custom strategy may
// use to trade syscalls for latency.
type spinOnceStrategy struct {
	spun bool
}

func (s *spinOnceStrategy) CalculateStrategy(supplier SelectSupplier, hasTasks bool) int {
	if !s.spun {
		s.spun = true
		return SelectContinue
	}
	return defaultSelectStrategy{}.CalculateStrategy(supplier, hasTasks)
}

func TestCustomSelectStrategyCanSkipPoll(t *testing.T) {
	s := &spinOnceStrategy{}
	if got := s.CalculateStrategy(func() int { return 0 }, false); got != SelectContinue {
		t.Fatalf("first call = %d, want SelectContinue", got)
	}
	if got := s.CalculateStrategy(func() int { return 0 }, false); got != SelectPoll {
		t.Fatalf("second call = %d, want SelectPoll", got)
	}
}
