package nettle

import (
	"reflect"
	"sync"
	"sync/atomic"
)

// PromiseState is the lifecycle state of a [Future] (§4.2). A future
// starts Pending and transitions exactly once to Success, Failure, or
// Cancelled; all three are terminal.
type PromiseState int32

const (
	Pending PromiseState = iota
	Success
	Failure
	Cancelled
)

func (s PromiseState) String() string {
	switch s {
	case Pending:
		return "Pending"
	case Success:
		return "Success"
	case Failure:
		return "Failure"
	case Cancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Future is the read-only half of a single-assignment result slot
// (§4.2). Listeners attached before completion run at completion time;
// listeners attached after completion run immediately (but still via the
// bound executor, if any, to preserve handler ordering per §9).
type Future interface {
	// Executor returns the executor listeners are dispatched on, or nil
	// if the future is not bound to one.
	Executor() *Executor

	// IsDone reports whether the future has reached a terminal state.
	IsDone() bool
	// IsSuccess reports whether the future completed successfully.
	IsSuccess() bool
	// IsCancelled reports whether the future was cancelled.
	IsCancelled() bool

	// Result returns the success value, or nil if not successful.
	Result() any
	// Cause returns the failure cause, or nil if not failed.
	Cause() error

	// AddListener registers fn to run once the future completes. If the
	// future is already complete, fn is scheduled (or run inline, absent
	// an executor) immediately.
	AddListener(fn func(Future))
	// RemoveListener removes the first added listener whose code pointer
	// equals fn's. Closures created from the same literal share a code
	// pointer, so any of them removes the first such listener.
	RemoveListener(fn func(Future))

	// Sync blocks until completion and returns the failure cause, if
	// any, or re-returns a cancellation error. Must never be called from
	// the bound executor's own thread.
	Sync() error
	// Await blocks until completion without returning the cause.
	Await()
}

// Promise is the write half: at most one of SetSuccess/SetFailure/Cancel
// may take effect.
type Promise interface {
	Future

	// SetSuccess completes the promise successfully. Panics (a protocol
	// violation, §7) if already complete; use TrySuccess to avoid that.
	SetSuccess(result any)
	// SetFailure completes the promise with a failure cause. Panics if
	// already complete.
	SetFailure(cause error)
	// TrySuccess attempts success completion, returning false if already
	// complete instead of panicking.
	TrySuccess(result any) bool
	// TryFailure attempts failure completion, returning false if already
	// complete.
	TryFailure(cause error) bool
	// Cancel fails the promise with [ErrCancelled] iff still pending.
	// interruptIfRunning is accepted for interface parity with the
	// source but has no effect here: nothing in this module runs
	// cancellable work on a separate thread that could be interrupted.
	Cancel(interruptIfRunning bool) bool
}

// promise is the concrete single-assignment implementation shared by
// [Future] and [Promise]. Listener dispatch follows §9's rule: a
// listener added off the bound executor's thread is trampolined through
// Executor.Execute so handler-visible ordering is preserved.
type promise struct {
	mu        sync.Mutex
	state     atomic.Int32
	result    any
	cause     error
	listeners []func(Future)
	done      chan struct{}
	executor  *Executor
}

var _ Promise = (*promise)(nil)

// NewPromise creates a pending promise bound to executor (nil is
// permitted: listeners then run inline on the completing goroutine).
func NewPromise(executor *Executor) Promise {
	return newPromise(executor)
}

func newPromise(executor *Executor) *promise {
	p := &promise{done: make(chan struct{}), executor: executor}
	p.state.Store(int32(Pending))
	if executor != nil {
		// Executor-bound promises are tracked (weakly) so hard termination
		// can fail whatever is still pending instead of stranding waiters.
		executor.registry.track(p)
	}
	return p
}

// SucceededFuture returns an already-successful future bound to executor.
func SucceededFuture(executor *Executor, result any) Future {
	p := newPromise(executor)
	p.TrySuccess(result)
	return p
}

// FailedFuture returns an already-failed future bound to executor.
func FailedFuture(executor *Executor, cause error) Future {
	p := newPromise(executor)
	p.TryFailure(cause)
	return p
}

func (p *promise) Executor() *Executor { return p.executor }

func (p *promise) state_() PromiseState { return PromiseState(p.state.Load()) }

func (p *promise) IsDone() bool      { return p.state_() != Pending }
func (p *promise) IsSuccess() bool   { return p.state_() == Success }
func (p *promise) IsCancelled() bool { return p.state_() == Cancelled }

func (p *promise) Result() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result
}

func (p *promise) Cause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cause
}

func (p *promise) SetSuccess(result any) {
	if !p.TrySuccess(result) {
		panic(&ProtocolError{Op: "SetSuccess", Message: "promise already completed"})
	}
}

func (p *promise) SetFailure(cause error) {
	if !p.TryFailure(cause) {
		panic(&ProtocolError{Op: "SetFailure", Message: "promise already completed"})
	}
}

func (p *promise) TrySuccess(result any) bool {
	return p.complete(Success, result, nil)
}

func (p *promise) TryFailure(cause error) bool {
	return p.complete(Failure, nil, cause)
}

func (p *promise) Cancel(_ bool) bool {
	return p.complete(Cancelled, nil, ErrCancelled)
}

func (p *promise) complete(state PromiseState, result any, cause error) bool {
	p.mu.Lock()
	if p.state_() != Pending {
		p.mu.Unlock()
		return false
	}
	p.result = result
	p.cause = cause
	p.state.Store(int32(state))
	listeners := p.listeners
	p.listeners = nil
	p.mu.Unlock()
	close(p.done)
	for _, fn := range listeners {
		p.notify(fn)
	}
	return true
}

func (p *promise) notify(fn func(Future)) {
	if p.executor != nil && !p.executor.InEventLoop() {
		if p.executor.Execute(func() { fn(p) }) == nil {
			return
		}
		// Executor already terminated: run inline rather than drop the
		// completion silently.
	}
	fn(p)
}

func (p *promise) AddListener(fn func(Future)) {
	if fn == nil {
		return
	}
	p.mu.Lock()
	if p.state_() == Pending {
		p.listeners = append(p.listeners, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.notify(fn)
}

func (p *promise) RemoveListener(fn func(Future)) {
	if fn == nil {
		return
	}
	key := reflectValuePointer(fn)
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, l := range p.listeners {
		if reflectValuePointer(l) == key {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

func (p *promise) Sync() error {
	p.Await()
	switch p.state_() {
	case Failure:
		return p.Cause()
	case Cancelled:
		return ErrCancelled
	default:
		return nil
	}
}

func (p *promise) Await() {
	if p.executor != nil && p.executor.InEventLoop() {
		// Blocking the executor on a promise it is responsible for
		// completing deadlocks the whole channel; fail loudly instead.
		panic(&ProtocolError{Op: "Await", Message: "cannot block on a promise from its own executor"})
	}
	<-p.done
}

// ProgressivePromise additionally reports monotonically increasing
// (progress, total) pairs to progressive listeners while still pending
// (§4.2).
type ProgressivePromise interface {
	Promise

	// SetProgress reports progress out of total; progress must be
	// monotonically non-decreasing across calls.
	SetProgress(progress, total int64)
	// AddProgressiveListener registers fn to be invoked on every
	// SetProgress call while the promise is pending. Completion does not
	// invoke fn; use AddListener for that.
	AddProgressiveListener(fn func(f Future, progress, total int64))
}

type progressivePromise struct {
	*promise
	progMu    sync.Mutex
	progress  int64
	total     int64
	listeners []func(Future, int64, int64)
}

var _ ProgressivePromise = (*progressivePromise)(nil)

// NewProgressivePromise creates a pending progress-reporting promise.
func NewProgressivePromise(executor *Executor) ProgressivePromise {
	return &progressivePromise{promise: newPromise(executor)}
}

func (p *progressivePromise) SetProgress(progress, total int64) {
	if p.IsDone() {
		return
	}
	p.progMu.Lock()
	p.progress = progress
	p.total = total
	listeners := append([]func(Future, int64, int64){}, p.listeners...)
	p.progMu.Unlock()
	for _, fn := range listeners {
		fn := fn
		p.notify(func(f Future) { fn(f, progress, total) })
	}
}

func (p *progressivePromise) AddProgressiveListener(fn func(f Future, progress, total int64)) {
	if fn == nil {
		return
	}
	p.progMu.Lock()
	p.listeners = append(p.listeners, fn)
	p.progMu.Unlock()
}

// PromiseCombiner aggregates N child futures into one, per §4.2: the
// aggregate succeeds iff Finish was called and every child succeeded; on
// the first child failure it records that cause and fails the aggregate
// once all children have completed. Add after Finish is a protocol
// violation.
type PromiseCombiner struct {
	mu        sync.Mutex
	executor  *Executor
	children  []Future
	pending   int
	failCause error
	finished  bool
	aggregate Promise
}

// NewPromiseCombiner creates an empty combiner bound to executor.
func NewPromiseCombiner(executor *Executor) *PromiseCombiner {
	return &PromiseCombiner{executor: executor}
}

// Add registers a child future. Returns [ErrProtocolViolation] if called
// after Finish.
func (c *PromiseCombiner) Add(f Future) error {
	c.mu.Lock()
	if c.finished {
		c.mu.Unlock()
		return ErrProtocolViolation
	}
	c.children = append(c.children, f)
	c.pending++
	c.mu.Unlock()

	f.AddListener(func(done Future) {
		c.mu.Lock()
		if !done.IsSuccess() && c.failCause == nil {
			if done.IsCancelled() {
				c.failCause = ErrCancelled
			} else {
				c.failCause = done.Cause()
			}
		}
		c.pending--
		c.maybeCompleteLocked()
		c.mu.Unlock()
	})
	return nil
}

// Finish marks the child set closed and designates aggregate as the
// promise to complete once every added child has completed. Calling
// Finish twice is a protocol violation.
func (c *PromiseCombiner) Finish(aggregate Promise) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return ErrProtocolViolation
	}
	c.finished = true
	c.aggregate = aggregate
	c.maybeCompleteLocked()
	return nil
}

// maybeCompleteLocked must be called with c.mu held.
func (c *PromiseCombiner) maybeCompleteLocked() {
	if !c.finished || c.aggregate == nil || c.pending > 0 {
		return
	}
	if c.failCause != nil {
		c.aggregate.TryFailure(c.failCause)
	} else {
		c.aggregate.TrySuccess(nil)
	}
}

// FlushNotifier accepts (promise, pendingBytes) pairs as writes are
// queued and advances a monotonically increasing write counter as bytes
// leave the wire; each registered promise completes once the counter
// reaches its checkpoint (§4.2). The counter is rebased when it exceeds
// rebaseThreshold to stay overflow-safe.
type FlushNotifier struct {
	mu              sync.Mutex
	written         int64
	rebaseThreshold int64
	entries         []flushEntry
}

type flushEntry struct {
	checkpoint int64
	promise    Promise
}

// NewFlushNotifier creates a notifier that rebases its internal counters
// once the write count exceeds rebaseThreshold (use a large value such
// as 1<<62 to effectively disable rebasing).
func NewFlushNotifier(rebaseThreshold int64) *FlushNotifier {
	if rebaseThreshold <= 0 {
		rebaseThreshold = 1 << 62
	}
	return &FlushNotifier{rebaseThreshold: rebaseThreshold}
}

// Add registers p to complete once pendingBytes further bytes have been
// acknowledged as written. Writes drain in FIFO order, so the checkpoint
// sits pendingBytes past the latest registered checkpoint (or the current
// write counter, whichever is further along): an entry can never complete
// before the entries queued ahead of it.
func (n *FlushNotifier) Add(p Promise, pendingBytes int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	base := n.written
	if k := len(n.entries); k > 0 && n.entries[k-1].checkpoint > base {
		base = n.entries[k-1].checkpoint
	}
	n.entries = append(n.entries, flushEntry{checkpoint: base + pendingBytes, promise: p})
}

// IncreaseWritten advances the write counter by delta and completes
// (with success) every entry whose checkpoint has now been reached, in
// FIFO order.
func (n *FlushNotifier) IncreaseWritten(delta int64) {
	n.mu.Lock()
	n.written += delta
	var ready []Promise
	i := 0
	for i < len(n.entries) && n.entries[i].checkpoint <= n.written {
		ready = append(ready, n.entries[i].promise)
		i++
	}
	n.entries = n.entries[i:]
	if n.written >= n.rebaseThreshold {
		for j := range n.entries {
			n.entries[j].checkpoint -= n.written
		}
		n.written = 0
	}
	n.mu.Unlock()
	for _, p := range ready {
		p.TrySuccess(nil)
	}
}

// reflectValuePointer gives a comparable identity for a func value by
// its code pointer, which RemoveListener matches against. Every closure
// created from the same literal shares one code pointer, so such
// closures are indistinguishable to RemoveListener.
func reflectValuePointer(fn func(Future)) uintptr {
	return reflect.ValueOf(fn).Pointer()
}
