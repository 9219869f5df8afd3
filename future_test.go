package nettle

import (
	"errors"
	"testing"
	"time"
)

func TestPromiseTrySuccessCompletesOnce(t *testing.T) {
	p := NewPromise(nil)
	if !p.TrySuccess("first") {
		t.Fatal("first TrySuccess should succeed")
	}
	if p.TrySuccess("second") {
		t.Fatal("second TrySuccess should fail; promise already complete")
	}
	if !p.IsSuccess() {
		t.Fatal("IsSuccess() should be true")
	}
	if got := p.Result(); got != "first" {
		t.Fatalf("Result() = %v, want %q", got, "first")
	}
}

func TestPromiseTryFailureRecordsCause(t *testing.T) {
	p := NewPromise(nil)
	cause := errors.New("boom")
	if !p.TryFailure(cause) {
		t.Fatal("TryFailure should succeed")
	}
	if !errors.Is(p.Cause(), cause) {
		t.Fatalf("Cause() = %v, want %v", p.Cause(), cause)
	}
	if p.IsSuccess() {
		t.Fatal("IsSuccess() should be false")
	}
}

func TestPromiseCancel(t *testing.T) {
	p := NewPromise(nil)
	if !p.Cancel(false) {
		t.Fatal("Cancel should succeed on a pending promise")
	}
	if !p.IsCancelled() {
		t.Fatal("IsCancelled() should be true")
	}
	if !errors.Is(p.Cause(), ErrCancelled) {
		t.Fatalf("Cause() = %v, want ErrCancelled", p.Cause())
	}
}

func TestPromiseSetSuccessPanicsWhenAlreadyComplete(t *testing.T) {
	p := NewPromise(nil)
	p.TrySuccess(nil)
	defer func() {
		if r := recover(); r == nil {
			t.Fatal("SetSuccess on a completed promise should panic")
		}
	}()
	p.SetSuccess(nil)
}

func TestPromiseAddListenerFIFOOrder(t *testing.T) {
	p := NewPromise(nil)
	var order []int
	for i := 0; i < 3; i++ {
		i := i
		p.AddListener(func(Future) { order = append(order, i) })
	}
	p.TrySuccess(nil)
	if len(order) != 3 || order[0] != 0 || order[1] != 1 || order[2] != 2 {
		t.Fatalf("listener order = %v, want [0 1 2]", order)
	}
}

func TestPromiseAddListenerAfterCompletionRunsImmediately(t *testing.T) {
	p := NewPromise(nil)
	p.TrySuccess("done")
	var got any
	p.AddListener(func(f Future) { got = f.Result() })
	if got != "done" {
		t.Fatalf("listener added post-completion did not run, got %v", got)
	}
}

func TestPromiseRemoveListener(t *testing.T) {
	p := NewPromise(nil)
	var called bool
	fn := func(Future) { called = true }
	p.AddListener(fn)
	p.RemoveListener(fn)
	p.TrySuccess(nil)
	if called {
		t.Fatal("removed listener should not run")
	}
}

func TestPromiseSyncReturnsCause(t *testing.T) {
	p := NewPromise(nil)
	cause := errors.New("failed")
	go func() {
		time.Sleep(time.Millisecond)
		p.TryFailure(cause)
	}()
	if err := p.Sync(); !errors.Is(err, cause) {
		t.Fatalf("Sync() = %v, want %v", err, cause)
	}
}

func TestSucceededAndFailedFuture(t *testing.T) {
	sf := SucceededFuture(nil, 42)
	if !sf.IsSuccess() || sf.Result() != 42 {
		t.Fatalf("SucceededFuture: IsSuccess=%v Result=%v", sf.IsSuccess(), sf.Result())
	}
	cause := errors.New("x")
	ff := FailedFuture(nil, cause)
	if ff.IsSuccess() || !errors.Is(ff.Cause(), cause) {
		t.Fatalf("FailedFuture: IsSuccess=%v Cause=%v", ff.IsSuccess(), ff.Cause())
	}
}

func TestProgressivePromiseReportsMonotonicProgress(t *testing.T) {
	pp := NewProgressivePromise(nil)
	var progressSeen []int64
	pp.AddProgressiveListener(func(_ Future, progress, total int64) {
		progressSeen = append(progressSeen, progress)
	})
	pp.SetProgress(10, 100)
	pp.SetProgress(50, 100)
	pp.TrySuccess(nil)
	if len(progressSeen) != 2 || progressSeen[0] != 10 || progressSeen[1] != 50 {
		t.Fatalf("progress reported = %v, want [10 50]", progressSeen)
	}
}

func TestPromiseCombinerSucceedsWhenAllChildrenSucceed(t *testing.T) {
	c := NewPromiseCombiner(nil)
	a := NewPromise(nil)
	b := NewPromise(nil)
	if err := c.Add(a); err != nil {
		t.Fatal(err)
	}
	if err := c.Add(b); err != nil {
		t.Fatal(err)
	}
	agg := NewPromise(nil)
	if err := c.Finish(agg); err != nil {
		t.Fatal(err)
	}
	if agg.IsDone() {
		t.Fatal("aggregate should still be pending before children complete")
	}
	a.TrySuccess(nil)
	b.TrySuccess(nil)
	if !agg.IsSuccess() {
		t.Fatal("aggregate should succeed once every child has succeeded")
	}
}

func TestPromiseCombinerFailsOnFirstChildFailure(t *testing.T) {
	c := NewPromiseCombiner(nil)
	a := NewPromise(nil)
	b := NewPromise(nil)
	_ = c.Add(a)
	_ = c.Add(b)
	agg := NewPromise(nil)
	_ = c.Finish(agg)

	cause := errors.New("child failed")
	a.TryFailure(cause)
	b.TrySuccess(nil)
	if agg.IsSuccess() {
		t.Fatal("aggregate should fail if any child failed")
	}
	if !errors.Is(agg.Cause(), cause) {
		t.Fatalf("aggregate Cause() = %v, want %v", agg.Cause(), cause)
	}
}

func TestPromiseCombinerAddAfterFinishIsProtocolViolation(t *testing.T) {
	c := NewPromiseCombiner(nil)
	_ = c.Finish(NewPromise(nil))
	if err := c.Add(NewPromise(nil)); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Add after Finish err = %v, want ErrProtocolViolation", err)
	}
}

func TestPromiseCombinerFinishTwiceIsProtocolViolation(t *testing.T) {
	c := NewPromiseCombiner(nil)
	_ = c.Finish(NewPromise(nil))
	if err := c.Finish(NewPromise(nil)); !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("Finish twice err = %v, want ErrProtocolViolation", err)
	}
}

func TestPromiseCombinerEmptySetCompletesOnFinish(t *testing.T) {
	c := NewPromiseCombiner(nil)
	agg := NewPromise(nil)
	if err := c.Finish(agg); err != nil {
		t.Fatal(err)
	}
	if !agg.IsSuccess() {
		t.Fatal("an empty combiner should succeed as soon as Finish is called")
	}
}

func TestFlushNotifierCompletesInFIFOOrderAsBytesAreWritten(t *testing.T) {
	n := NewFlushNotifier(0)
	p1 := NewPromise(nil)
	p2 := NewPromise(nil)
	p3 := NewPromise(nil)
	n.Add(p1, 10)
	n.Add(p2, 20)
	n.Add(p3, 5)

	n.IncreaseWritten(10)
	if !p1.IsSuccess() {
		t.Fatal("p1 should complete once its checkpoint (10) is reached")
	}
	if p2.IsDone() || p3.IsDone() {
		t.Fatal("p2 and p3 should still be pending")
	}

	n.IncreaseWritten(15)
	if p2.IsDone() {
		t.Fatal("p2 should still be pending; only 25 of 30 written")
	}

	n.IncreaseWritten(10)
	if !p2.IsSuccess() || !p3.IsSuccess() {
		t.Fatal("p2 and p3 should both complete once the write counter passes their checkpoints")
	}
}

func TestFlushNotifierRebasesAfterThreshold(t *testing.T) {
	n := NewFlushNotifier(100)
	p := NewPromise(nil)
	n.Add(p, 50)
	n.IncreaseWritten(50)
	if !p.IsSuccess() {
		t.Fatal("p should have completed")
	}
	n.IncreaseWritten(60)
	if n.written != 0 {
		t.Fatalf("written = %d, want rebased to 0 once past threshold with no pending entries", n.written)
	}
}
