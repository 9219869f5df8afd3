package nettle

import (
	"net"
	"sync/atomic"
)

// outboundEntry is one queued write: the message, its remaining charged
// size, cumulative bytes already acknowledged, and the promise tied to its
// eventual completion. The same staging-queue discipline as ingress.go's
// taskQueue, but as a plain linked node rather than an array-backed chunk,
// since each entry here is large and long-lived compared to a microtask
// closure.
type outboundEntry struct {
	msg      any
	pending  int64
	progress int64
	promise  Promise
	next     *outboundEntry
}

// OutboundBuffer is the per-channel staging queue between Pipeline.Write
// and the transport's actual write syscalls (§4.6): messages accumulate as
// "unflushed" until AddFlush promotes a run of them to "flushed", at which
// point they become visible to Current/Remove/NioBuffers. Not safe for
// concurrent use; all access must be confined to the owning channel's
// executor.
type OutboundBuffer struct { //nolint:govet
	channel *Channel

	flushed      *outboundEntry
	flushedCount int
	unflushed    *outboundEntry
	tail         *outboundEntry

	totalPending atomic.Int64

	// writability packs the §4.6 watermark state into one atomic word: bit
	// 0 is the watermark-derived writable flag (1 = below the high
	// watermark or has dropped back to/below the low watermark); bits 1-31
	// are a mask of up to 31 independently settable user-defined
	// writability overrides (any bit set forces IsWritable false,
	// regardless of the watermark flag).
	writability atomic.Uint32

	highWaterMark int
	lowWaterMark  int

	failingFlushed bool
	closed         bool
}

func newOutboundBuffer(ch *Channel) *OutboundBuffer {
	ob := &OutboundBuffer{
		channel:       ch,
		highWaterMark: ch.config.writeBufferHighMark,
		lowWaterMark:  ch.config.writeBufferLowMark,
	}
	ob.writability.Store(1)
	return ob
}

// AddMessage appends msg (already size-estimated to size bytes) to the
// unflushed tail of the queue.
func (ob *OutboundBuffer) AddMessage(msg any, size int, promise Promise) error {
	if ob.closed {
		releaseOutboundMessage(msg)
		if promise != nil {
			promise.TryFailure(ErrClosedResource)
		}
		return ErrClosedResource
	}
	e := &outboundEntry{msg: msg, pending: int64(size), promise: promise}
	if ob.tail == nil {
		ob.unflushed = e
	} else {
		ob.tail.next = e
		if ob.unflushed == nil {
			ob.unflushed = e
		}
	}
	ob.tail = e
	ob.totalPending.Add(int64(size))
	ob.updateWritability()
	return nil
}

// AddFlush promotes every entry added since the last AddFlush to the
// flushed run, dropping (and releasing) any whose promise has already been
// cancelled in the meantime.
func (ob *OutboundBuffer) AddFlush() {
	if ob.unflushed == nil {
		return
	}
	run := ob.unflushed
	ob.unflushed = nil

	var survivorsHead, survivorsTail *outboundEntry
	survivorCount := 0
	cur := run
	for cur != nil {
		next := cur.next
		cur.next = nil
		if cur.promise != nil && cur.promise.IsCancelled() {
			ob.totalPending.Add(-cur.pending)
			releaseOutboundMessage(cur.msg)
		} else {
			if survivorsHead == nil {
				survivorsHead = cur
			} else {
				survivorsTail.next = cur
			}
			survivorsTail = cur
			survivorCount++
		}
		cur = next
	}

	if survivorsHead == nil {
		if ob.flushedCount == 0 {
			ob.flushed = nil
			ob.tail = nil
		} else {
			ob.tail = ob.flushedTailNode()
		}
		ob.updateWritability()
		return
	}

	if ob.flushedCount == 0 {
		ob.flushed = survivorsHead
	} else {
		ob.flushedTailNode().next = survivorsHead
	}
	ob.flushedCount += survivorCount
	ob.tail = survivorsTail
	ob.updateWritability()
}

// flushedTailNode walks from flushed to find the last node currently
// counted in flushedCount. AddFlush calls it whenever it appends newly
// flushed entries after entries that are already flushed; the walk is
// O(flushedCount).
func (ob *OutboundBuffer) flushedTailNode() *outboundEntry {
	n := ob.flushed
	for i := 1; i < ob.flushedCount; i++ {
		n = n.next
	}
	return n
}

// Current returns the oldest flushed-but-not-yet-removed message, if any.
func (ob *OutboundBuffer) Current() (any, bool) {
	if ob.flushedCount == 0 {
		return nil, false
	}
	return ob.flushed.msg, true
}

// Progress records amount further bytes written against the current entry
// without removing it (a partial write).
func (ob *OutboundBuffer) Progress(amount int64) {
	if ob.flushedCount == 0 || amount <= 0 {
		return
	}
	e := ob.flushed
	e.progress += amount
	e.pending -= amount
	ob.totalPending.Add(-amount)
	ob.updateWritability()
}

// Remove completes the current flushed entry successfully and advances
// past it. Returns false if there is nothing flushed.
func (ob *OutboundBuffer) Remove() bool {
	return ob.removeCurrent(nil)
}

// RemoveWithError fails the current flushed entry's promise with cause and
// advances past it.
func (ob *OutboundBuffer) RemoveWithError(cause error) bool {
	return ob.removeCurrent(cause)
}

func (ob *OutboundBuffer) removeCurrent(cause error) bool {
	if ob.flushedCount == 0 {
		return false
	}
	e := ob.flushed
	ob.flushed = e.next
	ob.flushedCount--
	if e.pending != 0 {
		ob.totalPending.Add(-e.pending)
	}
	releaseOutboundMessage(e.msg)
	if e.promise != nil {
		if cause != nil {
			e.promise.TryFailure(cause)
		} else {
			e.promise.TrySuccess(nil)
		}
	}
	if ob.flushedCount == 0 && ob.unflushed == nil {
		ob.tail = nil
	}
	ob.updateWritability()
	return true
}

// RemoveBytes consumes written bytes (as reported by a vectored write of
// the slices NioBuffers returned) across as many flushed entries as
// necessary: entries it exhausts are removed and completed; the entry it
// lands inside has its reader index advanced and its accounting reduced
// by the partial amount. Non-Buffer entries fall back to their charged
// pending size, since they have no reader cursor to move.
func (ob *OutboundBuffer) RemoveBytes(written int64) {
	for written > 0 && ob.flushedCount > 0 {
		e := ob.flushed
		buf, isBuf := e.msg.(Buffer)
		if isBuf {
			readable := int64(buf.ReadableBytes())
			if written < readable {
				_ = buf.SetReaderIndex(buf.ReaderIndex() + int(written))
				e.progress += written
				e.pending -= written
				ob.totalPending.Add(-written)
				ob.updateWritability()
				return
			}
			written -= readable
			ob.removeCurrent(nil)
			continue
		}
		if e.pending > written {
			e.pending -= written
			e.progress += written
			ob.totalPending.Add(-written)
			ob.updateWritability()
			return
		}
		written -= e.pending
		ob.removeCurrent(nil)
	}
}

// NioBuffers gathers the readable bytes of up to maxCount flushed
// Buffer-typed entries into a vectored-write view, never letting the
// cumulative total exceed maxBytes: the entry that would overshoot the
// budget contributes only a partial slice covering the remainder. At
// least one non-empty slice is returned whenever flushed work is pending,
// even if the first entry alone is larger than maxBytes. Gathering stops
// at the first non-Buffer entry, which the write loop handles singly.
//
// The returned slices alias the buffers' backing arrays and are only
// valid until the next Remove/RemoveBytes/cancellation; like every other
// view of this queue they must stay confined to the channel's executor.
func (ob *OutboundBuffer) NioBuffers(maxCount int, maxBytes int64) net.Buffers {
	if maxBytes < 1 {
		maxBytes = 1
	}
	var out net.Buffers
	var total int64
	cur := ob.flushed
	for i := 0; cur != nil && i < ob.flushedCount && len(out) < maxCount; i++ {
		b, ok := cur.msg.(Buffer)
		if !ok {
			break
		}
		data := b.Bytes()
		cur = cur.next
		if len(data) == 0 {
			continue
		}
		budget := maxBytes - total
		if budget <= 0 {
			break
		}
		if int64(len(data)) > budget {
			data = data[:budget]
		}
		out = append(out, data)
		total += int64(len(data))
		if total >= maxBytes {
			break
		}
	}
	return out
}

// FailFlushed fails every currently flushed entry with cause, in order.
// Reentrant calls (e.g. triggered by a promise listener failing another
// write synchronously) are no-ops: the outer call already owns the drain.
func (ob *OutboundBuffer) FailFlushed(cause error) {
	if ob.failingFlushed {
		return
	}
	ob.failingFlushed = true
	for ob.flushedCount > 0 {
		ob.removeCurrent(cause)
	}
	ob.failingFlushed = false
}

// Close fails every flushed and unflushed entry with cause and marks the
// buffer closed: further AddMessage calls fail immediately.
func (ob *OutboundBuffer) Close(cause error) {
	ob.closed = true
	ob.FailFlushed(cause)
	cur := ob.unflushed
	ob.unflushed = nil
	for cur != nil {
		next := cur.next
		ob.totalPending.Add(-cur.pending)
		releaseOutboundMessage(cur.msg)
		if cur.promise != nil {
			cur.promise.TryFailure(cause)
		}
		cur = next
	}
	ob.tail = nil
}

// TotalPendingBytes returns the current accounting total across flushed
// and unflushed entries.
func (ob *OutboundBuffer) TotalPendingBytes() int64 {
	return ob.totalPending.Load()
}

// IsWritable reports whether the watermark flag is set and no user-defined
// override currently forces unwritability.
func (ob *OutboundBuffer) IsWritable() bool {
	v := ob.writability.Load()
	return v&1 != 0 && v>>1 == 0
}

// SetUserDefinedWritability sets or clears override bit index (0-30),
// firing ChannelWritabilityChanged if the overall writability changed.
func (ob *OutboundBuffer) SetUserDefinedWritability(index int, writable bool) {
	if index < 0 || index > 30 {
		return
	}
	bit := uint32(1) << uint(index+1)
	for {
		old := ob.writability.Load()
		var next uint32
		if writable {
			next = old &^ bit
		} else {
			next = old | bit
		}
		if next == old {
			return
		}
		if ob.writability.CompareAndSwap(old, next) {
			oldWritable := old&1 != 0 && old>>1 == 0
			newWritable := next&1 != 0 && next>>1 == 0
			if oldWritable != newWritable {
				ob.channel.pipeline.FireChannelWritabilityChanged()
			}
			return
		}
	}
}

func (ob *OutboundBuffer) updateWritability() {
	total := ob.totalPending.Load()
	for {
		old := ob.writability.Load()
		watermarkWritable := old&1 != 0
		var next uint32
		switch {
		case watermarkWritable && total >= int64(ob.highWaterMark):
			next = old &^ 1
		case !watermarkWritable && total <= int64(ob.lowWaterMark):
			next = old | 1
		default:
			return
		}
		if ob.writability.CompareAndSwap(old, next) {
			oldWritable := old&1 != 0 && old>>1 == 0
			newWritable := next&1 != 0 && next>>1 == 0
			if oldWritable != newWritable {
				ob.channel.pipeline.FireChannelWritabilityChanged()
			}
			return
		}
	}
}

func releaseOutboundMessage(msg any) {
	if rc, ok := msg.(ReferenceCounted); ok {
		_, _ = rc.Release(1)
	}
}
