package nettle

import "testing"

// activateTestChannel pushes a stub-backed test channel straight to
// StateActive, bypassing Register/Connect's executor trampolining, so
// Group/OutboundBuffer tests can exercise a channel's write path without a
// running Executor.
func activateTestChannel(t *testing.T, ch *Channel) {
	t.Helper()
	if !ch.state.TryTransition(StateRegistered) {
		t.Fatal("Unregistered -> Registered should succeed on a fresh channel")
	}
	if !ch.state.TryTransition(StateActive) {
		t.Fatal("Registered -> Active should succeed on a fresh channel")
	}
}

func TestGroupAddRemoveTracksMembership(t *testing.T) {
	g := NewGroup()
	ch, _ := newTestChannel(t, nil)

	if !g.Add(ch) {
		t.Fatal("Add should report true for a new member")
	}
	if g.Add(ch) {
		t.Fatal("Add should report false for an already-present member")
	}
	if got := g.Len(); got != 1 {
		t.Fatalf("Len() = %d, want 1", got)
	}
	if !g.Remove(ch) {
		t.Fatal("Remove should report true for a present member")
	}
	if g.Remove(ch) {
		t.Fatal("Remove should report false once already removed")
	}
	if got := g.Len(); got != 0 {
		t.Fatalf("Len() = %d, want 0", got)
	}
}

func TestGroupRemovesMemberAutomaticallyOnClose(t *testing.T) {
	g := NewGroup()
	ch, _ := newTestChannel(t, nil)
	g.Add(ch)

	ch.Close()

	if got := g.Len(); got != 0 {
		t.Fatalf("Len() = %d after member closed, want 0 (auto-removed)", got)
	}
}

func TestGroupWriteAndFlushSucceedsAcrossAllMembers(t *testing.T) {
	g := NewGroup()
	ch1, _ := newTestChannel(t, nil)
	ch2, _ := newTestChannel(t, nil)
	activateTestChannel(t, ch1)
	activateTestChannel(t, ch2)
	g.Add(ch1)
	g.Add(ch2)

	f := g.WriteAndFlush("hello")
	if !f.IsDone() {
		t.Fatal("bulk op over synchronous stub channels should complete inline")
	}
	if !f.IsSuccess() {
		t.Fatalf("WriteAndFlush should succeed when every member succeeds, got cause %v", f.Cause())
	}
	if got := len(f.Failures()); got != 0 {
		t.Fatalf("Failures() = %d entries, want 0", got)
	}
}

func TestGroupWriteReportsPartialFailure(t *testing.T) {
	g := NewGroup()
	healthy, _ := newTestChannel(t, nil)
	broken, _ := newTestChannel(t, nil)
	activateTestChannel(t, healthy)
	// Drive broken straight to Closed so its Write fails with
	// ErrClosedResource, exercising the "partial failure" breakdown.
	broken.state.TryTransition(StateRegistered)
	broken.state.TryTransition(StateActive)
	broken.state.TryTransition(StateInactive)
	broken.state.TryTransition(StateClosed)
	g.Add(healthy)
	g.Add(broken)

	f := g.WriteAndFlush("hello")
	if f.IsSuccess() {
		t.Fatal("a write against a closed member should not report overall success")
	}
	failures := f.Failures()
	if got := len(failures); got != 1 {
		t.Fatalf("Failures() = %d entries, want exactly 1 (the closed member)", got)
	}
	if _, ok := failures[broken.ID()]; !ok {
		t.Fatal("the closed channel's ID should be the one recorded as failed")
	}
	if _, ok := failures[healthy.ID()]; ok {
		t.Fatal("the healthy channel must not appear in Failures()")
	}
}

func TestGroupFilterOnlyTargetsMatchingMembers(t *testing.T) {
	g := NewGroup()
	a, ua := newTestChannel(t, nil)
	b, ub := newTestChannel(t, nil)
	activateTestChannel(t, a)
	activateTestChannel(t, b)
	g.Add(a)
	g.Add(b)

	// A buffer message reaches writev, so each stub's writev count shows
	// whether the filtered write reached that member.
	msg, err := NewHeapAllocator(0).Heap(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := msg.Write([]byte("only-a")); err != nil {
		t.Fatal(err)
	}

	f := g.WriteAndFlushIf(func(ch *Channel) bool { return ch.ID() == a.ID() }, msg)
	if !f.IsSuccess() {
		t.Fatalf("filtered write should succeed, got cause %v", f.Cause())
	}
	if ua.writeCalls == 0 || ub.writeCalls != 0 {
		t.Fatalf("writev calls: a=%d b=%d, want a>0 and b=0", ua.writeCalls, ub.writeCalls)
	}
}

func TestDuplicateForBroadcastGivesEachCallerAnIndependentBuffer(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	dup1, err := duplicateForBroadcast(buf)
	if err != nil {
		t.Fatal(err)
	}
	dup2, err := duplicateForBroadcast(buf)
	if err != nil {
		t.Fatal(err)
	}

	b1 := dup1.(Buffer)
	b2 := dup2.(Buffer)
	if b1 == b2 {
		t.Fatal("each broadcast recipient must get a distinct Buffer view")
	}
	// Advancing one recipient's reader index must not affect the other's.
	b1.Read(make([]byte, 3))
	if b2.ReaderIndex() != 0 {
		t.Fatal("duplicated buffers must have independent reader indices")
	}
	if _, err := b1.Release(1); err != nil {
		t.Fatal(err)
	}
	if got := b2.ReadableBytes(); got != len("payload") {
		t.Fatalf("releasing one duplicate must not affect the other's readable bytes, got %d", got)
	}
}

// nonDuplicableRefCounted is a reference-counted message with no Duplicate
// method, exercising §9 Open Question (b)'s conservative rejection.
type nonDuplicableRefCounted struct {
	refCount
}

func (n *nonDuplicableRefCounted) Retain(c int32) (ReferenceCounted, error) {
	if err := n.retain(c); err != nil {
		return nil, err
	}
	return n, nil
}
func (n *nonDuplicableRefCounted) Release(c int32) (bool, error) { return n.release(c) }
func (n *nonDuplicableRefCounted) Touch(hint any) ReferenceCounted {
	n.touch(hint)
	return n
}

func TestDuplicateForBroadcastRejectsMessageWithoutDuplicate(t *testing.T) {
	msg := &nonDuplicableRefCounted{refCount: newRefCount(func() {})}
	if _, err := duplicateForBroadcast(msg); err == nil {
		t.Fatal("broadcasting a reference-counted message with no Duplicate method should fail")
	}
}
