package nettle

import (
	"sync"
	"sync/atomic"
)

// Group is a concurrent set of channels that can be operated on in bulk
// (§4.8): broadcasting a write, or closing/disconnecting/deregistering
// every member. Grounded on the teacher's sync.Map-backed concurrent
// collections (attributes.go's AttributeMap) generalized to a
// mutex-guarded map keyed by ChannelID, since membership here also needs
// an O(1) Remove keyed off a channel closing itself.
type Group struct {
	mu      sync.Mutex
	members map[ChannelID]*Channel
}

// NewGroup creates an empty channel group.
func NewGroup() *Group {
	return &Group{members: make(map[ChannelID]*Channel)}
}

// Add inserts ch, returning false if it was already a member. It also
// registers a close listener that removes ch automatically once it
// reaches the Closed state.
func (g *Group) Add(ch *Channel) bool {
	g.mu.Lock()
	_, exists := g.members[ch.ID()]
	if !exists {
		g.members[ch.ID()] = ch
	}
	g.mu.Unlock()
	if !exists {
		ch.CloseFuture().AddListener(func(Future) { g.Remove(ch) })
	}
	return !exists
}

// Remove deletes ch from the group, returning false if it was not present.
func (g *Group) Remove(ch *Channel) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.members[ch.ID()]; !ok {
		return false
	}
	delete(g.members, ch.ID())
	return true
}

// Len returns the current member count.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

func (g *Group) snapshot() []*Channel {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*Channel, 0, len(g.members))
	for _, ch := range g.members {
		out = append(out, ch)
	}
	return out
}

func (g *Group) filter(pred func(*Channel) bool) []*Channel {
	all := g.snapshot()
	out := all[:0:0]
	for _, ch := range all {
		if pred(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// GroupFuture is the aggregate result of a Group bulk operation: it
// completes successfully iff every member's individual operation
// succeeded, and otherwise fails with an *AggregateError collecting each
// distinct failure, while still exposing the per-channel breakdown via
// Failures (§4.8's "partial success/partial failure" distinction).
type GroupFuture interface {
	Future

	// Failures returns the failure cause recorded for each member whose
	// individual operation did not succeed. An empty map means every
	// member succeeded.
	Failures() map[ChannelID]error
}

type groupFuture struct {
	*promise
	mu       sync.Mutex
	failures map[ChannelID]error
}

var _ GroupFuture = (*groupFuture)(nil)

func newGroupFuture(executor *Executor) *groupFuture {
	return &groupFuture{promise: newPromise(executor), failures: make(map[ChannelID]error)}
}

func (g *groupFuture) Failures() map[ChannelID]error {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[ChannelID]error, len(g.failures))
	for k, v := range g.failures {
		out[k] = v
	}
	return out
}

func (g *groupFuture) recordFailure(id ChannelID, err error) {
	g.mu.Lock()
	g.failures[id] = err
	g.mu.Unlock()
}

// bulk runs op against every member, completing the returned GroupFuture
// once all have individually completed.
func (g *Group) bulk(members []*Channel, op func(*Channel) Future) GroupFuture {
	gf := newGroupFuture(nil)
	if len(members) == 0 {
		gf.TrySuccess(nil)
		return gf
	}
	var remaining atomic.Int32
	remaining.Store(int32(len(members)))
	finish := func() {
		gf.mu.Lock()
		n := len(gf.failures)
		errs := make([]error, 0, n)
		for _, e := range gf.failures {
			errs = append(errs, e)
		}
		gf.mu.Unlock()
		if n == 0 {
			gf.TrySuccess(nil)
		} else {
			gf.TryFailure(&AggregateError{Errors: errs})
		}
	}
	for _, ch := range members {
		ch := ch
		f := op(ch)
		f.AddListener(func(done Future) {
			if !done.IsSuccess() {
				cause := done.Cause()
				if cause == nil {
					cause = ErrCancelled
				}
				gf.recordFailure(ch.ID(), cause)
			}
			if remaining.Add(-1) == 0 {
				finish()
			}
		})
	}
	return gf
}

// duplicateForBroadcast gives each recipient of a broadcast write its own
// independently releasable view of a reference-counted message (§4.8, §9
// Open Question (b)): a plain (non-reference-counted) message is instead
// shared by reference across every member, since nothing owns its
// lifetime exclusively.
func duplicateForBroadcast(rc ReferenceCounted) (any, error) {
	if d, ok := rc.(interface{ Duplicate() (Buffer, error) }); ok {
		return d.Duplicate()
	}
	return nil, &ProtocolError{Op: "group write", Message: "reference-counted message does not implement Duplicate; broadcasting it would give every member the same live reference"}
}

func (g *Group) writeBulk(members []*Channel, msg any, flush bool) GroupFuture {
	return g.bulk(members, func(ch *Channel) Future {
		out := msg
		if rc, ok := msg.(ReferenceCounted); ok {
			dup, err := duplicateForBroadcast(rc)
			if err != nil {
				return FailedFuture(ch.Executor(), err)
			}
			out = dup
		}
		if flush {
			return ch.WriteAndFlush(out)
		}
		return ch.Write(out)
	})
}

// Write queues msg on every member without flushing.
func (g *Group) Write(msg any) GroupFuture { return g.writeBulk(g.snapshot(), msg, false) }

// WriteAndFlush queues and flushes msg on every member.
func (g *Group) WriteAndFlush(msg any) GroupFuture { return g.writeBulk(g.snapshot(), msg, true) }

// WriteIf queues msg only on members matching pred.
func (g *Group) WriteIf(pred func(*Channel) bool, msg any) GroupFuture {
	return g.writeBulk(g.filter(pred), msg, false)
}

// WriteAndFlushIf queues and flushes msg only on members matching pred.
func (g *Group) WriteAndFlushIf(pred func(*Channel) bool, msg any) GroupFuture {
	return g.writeBulk(g.filter(pred), msg, true)
}

// Disconnect disconnects every member.
func (g *Group) Disconnect() GroupFuture {
	return g.bulk(g.snapshot(), func(ch *Channel) Future { return ch.Disconnect() })
}

// Close closes every member.
func (g *Group) Close() GroupFuture {
	return g.bulk(g.snapshot(), func(ch *Channel) Future { return ch.Close() })
}

// Deregister deregisters every member.
func (g *Group) Deregister() GroupFuture {
	return g.bulk(g.snapshot(), func(ch *Channel) Future { return ch.Deregister() })
}
