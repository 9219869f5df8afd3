package nettle

import (
	"sync"
	"weak"
)

// promiseRegistry tracks the promises bound to an executor so that hard
// termination can fail whatever is still pending instead of leaving
// callers blocked on Await forever.
//
// Entries hold weak pointers: tracking a promise must not extend its
// lifetime, so a promise the program has dropped is collected by the GC as
// usual and swept out of the registry by a later scavenge pass. Settled
// promises are swept the same way. The ring slice fixes a scavenge order
// over the id space; a vacated slot is marked 0 rather than spliced out,
// and the whole structure is rebuilt once dead slots dominate.
type promiseRegistry struct {
	mu   sync.Mutex
	data map[uint64]weak.Pointer[promise]
	ring []uint64 // scavenge order; 0 marks a vacated slot
	head int      // next scavenge position in ring
	next uint64   // id source; starts at 1 so 0 stays the vacant marker
}

func newPromiseRegistry() *promiseRegistry {
	return &promiseRegistry{
		data: make(map[uint64]weak.Pointer[promise]),
		ring: make([]uint64, 0, 1024),
		next: 1,
	}
}

// track registers p for the termination sweep. Called from newPromise for
// every promise bound to this registry's executor.
func (r *promiseRegistry) track(p *promise) {
	wp := weak.Make(p)
	r.mu.Lock()
	id := r.next
	r.next++
	r.data[id] = wp
	r.ring = append(r.ring, id)
	r.mu.Unlock()
}

// scavenge examines up to batch ring slots, dropping entries whose promise
// was garbage collected or has settled. Runs once per tick, so the cost
// per iteration stays bounded regardless of how many promises are live.
func (r *promiseRegistry) scavenge(batch int) {
	if batch <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.ring)
	if n == 0 {
		return
	}
	if r.head >= n {
		r.head = 0
	}
	end := min(r.head+batch, n)
	for i := r.head; i < end; i++ {
		id := r.ring[i]
		if id == 0 {
			continue
		}
		wp, ok := r.data[id]
		if !ok {
			r.ring[i] = 0
			continue
		}
		p := wp.Value()
		if p == nil || p.state_() != Pending {
			delete(r.data, id)
			r.ring[i] = 0
		}
	}
	r.head = end % n

	// Rebuild once a full pass completes with under a quarter of the ring
	// still live: delete() never shrinks a map's buckets, so reclaiming
	// the memory needs a fresh map as well as a fresh ring.
	if r.head == 0 && len(r.ring) > 256 && len(r.data)*4 < len(r.ring) {
		r.compactLocked()
	}
}

// compactLocked rebuilds ring and data without the vacated slots. Caller
// must hold mu.
func (r *promiseRegistry) compactLocked() {
	ring := make([]uint64, 0, len(r.data))
	data := make(map[uint64]weak.Pointer[promise], len(r.data))
	for _, id := range r.ring {
		if id == 0 {
			continue
		}
		if wp, ok := r.data[id]; ok {
			ring = append(ring, id)
			data[id] = wp
		}
	}
	r.ring = ring
	r.data = data
	r.head = 0
}

// rejectAll fails every still-pending tracked promise with cause and
// empties the registry. Completion runs outside the lock: failing a
// promise fires its listeners, and a listener is allowed to create or
// complete further promises.
func (r *promiseRegistry) rejectAll(cause error) {
	r.mu.Lock()
	pending := make([]*promise, 0, len(r.data))
	for id, wp := range r.data {
		if p := wp.Value(); p != nil && p.state_() == Pending {
			pending = append(pending, p)
		}
		delete(r.data, id)
	}
	r.ring = r.ring[:0]
	r.head = 0
	r.mu.Unlock()

	for _, p := range pending {
		p.TryFailure(cause)
	}
}
