package nettle

// Allocator is the byte-buffer factory contract external to the transport
// core (§4.3, §6): the core only ever consumes this interface, never a
// concrete pool implementation. Heap, Direct, and IO variants share the
// same growth policy (smallest power-of-two >= requested, clamped to
// maxCapacity). Go has no meaningful off-heap/on-heap distinction for a
// slice, so in this module all three variants produce the same
// slice-backed buffer; no label distinguishes them.
type Allocator interface {
	// Heap allocates a buffer the allocator will never move off the Go heap.
	Heap(initialCapacity, maxCapacity int) (Buffer, error)

	// Direct allocates a buffer hinted as long-lived / I/O-bound.
	Direct(initialCapacity, maxCapacity int) (Buffer, error)

	// IO allocates a buffer for this allocator's preferred I/O strategy:
	// Direct where supported, Heap otherwise.
	IO(initialCapacity, maxCapacity int) (Buffer, error)

	// Composite allocates an empty CompositeBuffer with the given maximum
	// combined capacity.
	Composite(maxCapacity int) (*CompositeBuffer, error)
}

// defaultAllocator is the stdlib-only Allocator implementation: every
// variant produces a byteBuffer backed by a Go slice. It optionally
// samples allocations through a LeakDetector (§9).
type defaultAllocator struct {
	leaks *LeakDetector
}

// NewHeapAllocator returns the default Allocator. A sampleRate of 0
// disables leak-detector sampling; a non-zero sampleRate enables
// 1-in-sampleRate leak sampling (see NewLeakDetector).
func NewHeapAllocator(sampleRate uint32) Allocator {
	var ld *LeakDetector
	if sampleRate > 0 {
		ld = NewLeakDetector(sampleRate)
	}
	return &defaultAllocator{leaks: ld}
}

func (a *defaultAllocator) newBuffer(initialCapacity, maxCapacity int) (Buffer, error) {
	if initialCapacity < 0 || maxCapacity < initialCapacity {
		return nil, ErrCapacityExceeded
	}
	b := newByteBuffer(a, initialCapacity, maxCapacity)
	if a.leaks != nil {
		b.tracker = a.leaks.Sample()
	}
	return b, nil
}

func (a *defaultAllocator) Heap(initialCapacity, maxCapacity int) (Buffer, error) {
	return a.newBuffer(initialCapacity, maxCapacity)
}

func (a *defaultAllocator) Direct(initialCapacity, maxCapacity int) (Buffer, error) {
	return a.newBuffer(initialCapacity, maxCapacity)
}

func (a *defaultAllocator) IO(initialCapacity, maxCapacity int) (Buffer, error) {
	return a.newBuffer(initialCapacity, maxCapacity)
}

func (a *defaultAllocator) Composite(maxCapacity int) (*CompositeBuffer, error) {
	if maxCapacity < 0 {
		return nil, ErrCapacityExceeded
	}
	return NewCompositeBuffer(a, maxCapacity), nil
}
