package nettle

import "sync/atomic"

// ExecutorState is the run state of an Executor. A freshly constructed
// executor is Awake; Run moves it to Running; the poll path parks it in
// Sleeping between bursts of work; shutdown passes through Terminating
// (the graceful quiet period, during which queued tasks still drain) and
// ends at the absorbing Terminated.
//
//	Awake ──Run──▶ Running ◀──wake── Sleeping
//	                  │    ──park──▶
//	                  │
//	              Terminating ──drain──▶ Terminated
//
// Channel lifecycle state is a different machine entirely: see
// ChannelState in channel_state.go, which validates its transitions
// against the channel lifecycle table rather than allowing any CAS.
type ExecutorState uint64

const (
	// StateAwake: constructed, Run not yet called.
	StateAwake ExecutorState = 0
	// StateTerminated: fully stopped; no further tasks are accepted.
	StateTerminated ExecutorState = 1
	// StateSleeping: parked in the selector (or the fast wakeup channel)
	// waiting for I/O readiness, a timer deadline, or a submitted task.
	StateSleeping ExecutorState = 2
	// StateRunning: draining I/O callbacks and task queues.
	StateRunning ExecutorState = 3
	// StateTerminating: graceful shutdown requested; already-accepted
	// work still runs. Deliberately the highest value so the hot-path
	// check `state >= StateTerminating` needs no second comparison.
	StateTerminating ExecutorState = 4
)

func (s ExecutorState) String() string {
	switch s {
	case StateAwake:
		return "Awake"
	case StateRunning:
		return "Running"
	case StateSleeping:
		return "Sleeping"
	case StateTerminating:
		return "Terminating"
	case StateTerminated:
		return "Terminated"
	default:
		return "Unknown"
	}
}

// runState is the executor's atomic run-state word. The value sits alone
// on its own cache line so the Running<->Sleeping CAS traffic from poll()
// never false-shares with the queue mutexes beside it in the Loop struct.
//
// Temporary states (Running, Sleeping) move only via TryTransition so a
// racing Submit and poll cannot both win; the irreversible Terminated is
// the one state installed with a plain Store, after shutdown has drained.
type runState struct {
	_ [sizeOfCacheLine]byte
	v atomic.Uint64
	_ [sizeOfCacheLine - sizeOfAtomicUint64]byte
}

func newRunState() *runState {
	s := &runState{}
	s.v.Store(uint64(StateAwake))
	return s
}

func (s *runState) Load() ExecutorState {
	return ExecutorState(s.v.Load())
}

// Store installs state unconditionally. Only used for Terminated; using
// it for Running or Sleeping would break the CAS discipline above.
func (s *runState) Store(state ExecutorState) {
	s.v.Store(uint64(state))
}

// TryTransition moves from -> to iff the current state is still from.
func (s *runState) TryTransition(from, to ExecutorState) bool {
	return s.v.CompareAndSwap(uint64(from), uint64(to))
}
