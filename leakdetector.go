package nettle

import (
	"fmt"
	"sync"
	"sync/atomic"
	"weak"
)

// leakTracker attaches a non-semantic trace to a reference-counted object
// for leak diagnostics, per §9's "sampling interceptor on allocation". It
// never alters program behavior: the only effect of a leak being detected
// is a log line emitted through internalLogger.
//
// Grounded directly on registry.go's weak.Pointer-based design: rather than
// a finalizer, the detector holds a weak pointer to each sampled tracker
// (not to the tracked object), and Scavenge walks them in batches. A
// tracker that has been garbage collected is dropped without a report, so
// an object collected before its count reached zero is not reported; a
// tracker that is still reachable and unreleased is reported as a
// possible leak.
type leakTracker struct {
	mu       sync.Mutex
	hints    []any
	released atomic.Bool
}

func (t *leakTracker) touch(hint any) {
	t.mu.Lock()
	t.hints = append(t.hints, hint)
	t.mu.Unlock()
}

func (t *leakTracker) release() {
	t.released.Store(true)
}

// LeakDetector samples a fraction of allocations (1-in-sampleRate) and,
// on each Scavenge call, reports sampled trackers that are still
// reachable and unreleased. Nothing in this package calls Scavenge; it
// runs only when a caller invokes it.
type LeakDetector struct {
	sampleRate uint32
	counter    atomic.Uint32

	mu   sync.Mutex
	live map[uint64]weak.Pointer[leakTracker]
	ring []uint64
	head int
	next uint64
}

// NewLeakDetector creates a detector that samples roughly 1 in sampleRate
// allocations. A sampleRate of 0 disables sampling (Sample always returns
// nil, so callers attach no tracker and pay no overhead).
func NewLeakDetector(sampleRate uint32) *LeakDetector {
	return &LeakDetector{
		sampleRate: sampleRate,
		live:       make(map[uint64]weak.Pointer[leakTracker]),
	}
}

// Sample returns a fresh tracker for roughly 1-in-sampleRate calls, else
// nil. A nil tracker means this particular allocation is not being
// watched; that is normal, not an error.
func (d *LeakDetector) Sample() *leakTracker {
	if d == nil || d.sampleRate == 0 {
		return nil
	}
	if d.counter.Add(1)%d.sampleRate != 0 {
		return nil
	}
	t := &leakTracker{}
	wp := weak.Make(t)

	d.mu.Lock()
	id := d.next
	d.next++
	d.live[id] = wp
	d.ring = append(d.ring, id)
	d.mu.Unlock()

	return t
}

// Scavenge checks a batch of sampled trackers. A tracker that was garbage
// collected (weak.Value() == nil) or released is forgotten without a
// report; one that is still reachable and unreleased is logged as a
// possible leak and stays tracked, so a later pass logs it again. It
// never returns an error; leak detection is diagnostic-only.
func (d *LeakDetector) Scavenge(batchSize int) {
	if d == nil || batchSize <= 0 {
		return
	}
	d.mu.Lock()
	n := len(d.ring)
	if n == 0 {
		d.mu.Unlock()
		return
	}
	start := d.head
	end := start + batchSize
	if end > n {
		end = n
	}
	ids := append([]uint64(nil), d.ring[start:end]...)
	d.head = end % max(n, 1)
	d.mu.Unlock()

	for _, id := range ids {
		d.mu.Lock()
		wp, ok := d.live[id]
		d.mu.Unlock()
		if !ok {
			continue
		}
		t := wp.Value()
		if t == nil {
			// Collected; whether it leaked depends on whether release()
			// ran before collection. We can't know post-hoc since the
			// tracker itself is gone — this path only fires for trackers
			// whose owner forgot to keep them reachable, which itself
			// indicates the surrounding refCount was also collected.
			d.mu.Lock()
			delete(d.live, id)
			d.mu.Unlock()
			continue
		}
		if t.released.Load() {
			d.mu.Lock()
			delete(d.live, id)
			d.mu.Unlock()
			continue
		}
		internalLogger().Warn(fmt.Sprintf("nettle: possible buffer leak, %d touch hint(s) recorded", len(t.hints)))
	}
}
