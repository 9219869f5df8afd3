package nettle

import "errors"

// ErrIndexOutOfBounds is returned by Buffer operations that would move a
// reader or writer index outside [0, capacity] or read/write past the
// opposite index.
var ErrIndexOutOfBounds = errors.New("nettle: buffer index out of bounds")

// Buffer is a contiguous sequence of bytes with independent reader and
// writer indices, a capacity, and a maximum capacity (§3, §4.3). Buffers
// are reference-counted messages: every Buffer returned by an Allocator
// embeds refCount and starts at count 1.
//
// Grounded on the cursor-over-[]byte shape used throughout the pack's only
// genuine Netty-style example,
// other_examples/...matcha__net-tcp-peer-pipeline.go.go (its frame
// encoder/decoder reads and advances explicit offsets into a byte slice),
// generalized to the full §4.3 reader/writer-index contract.
type Buffer interface {
	ReferenceCounted

	// ReaderIndex, WriterIndex return the current cursor positions.
	ReaderIndex() int
	WriterIndex() int

	// Capacity returns the buffer's current backing size; MaxCapacity is
	// the ceiling Allocator growth will not cross.
	Capacity() int
	MaxCapacity() int

	// ReadableBytes/WritableBytes are WriterIndex-ReaderIndex and
	// Capacity-WriterIndex respectively.
	ReadableBytes() int
	WritableBytes() int

	// SetReaderIndex, SetWriterIndex reposition a cursor directly.
	SetReaderIndex(i int) error
	SetWriterIndex(i int) error

	// Read copies up to len(p) readable bytes into p, advancing
	// ReaderIndex, and returns the count copied.
	Read(p []byte) int

	// Write appends p, growing the buffer (via its owning Allocator's
	// growth policy) if needed, and advances WriterIndex. Returns
	// ErrCapacityExceeded if the grown size would exceed MaxCapacity.
	Write(p []byte) (int, error)

	// Bytes returns the current readable region as a slice sharing the
	// buffer's backing array; callers must not retain it past the next
	// mutation or Release.
	Bytes() []byte

	// Duplicate returns an independent Buffer (its own refCount starting
	// at 1, its own reader/writer indices copied from this one) sharing
	// the same backing bytes. Used by Group.Write (§4.8, §9 Open
	// Question b) to hand each recipient channel an independently
	// releasable view of a broadcast message.
	Duplicate() (Buffer, error)

	// allocator returns the Allocator this Buffer was obtained from,
	// needed internally for growth during Write.
	allocator() Allocator
}

// byteBuffer is the heap-backed Buffer implementation. Direct and IO
// buffers share this same layout in this module (see allocator.go):
// unlike the JVM original, Go has no meaningful off-heap/on-heap
// distinction for a byte slice, so Heap, Direct and IO all return this
// same buffer type with the same storage.
type byteBuffer struct {
	refCount
	buf    []byte
	rIdx   int
	wIdx   int
	maxCap int
	alloc  Allocator
}

func newByteBuffer(alloc Allocator, initialCapacity, maxCapacity int) *byteBuffer {
	b := &byteBuffer{
		buf:    make([]byte, initialCapacity),
		maxCap: maxCapacity,
		alloc:  alloc,
	}
	b.refCount = newRefCount(func() { b.buf = nil })
	return b
}

func (b *byteBuffer) Retain(n int32) (ReferenceCounted, error) {
	if err := b.retain(n); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *byteBuffer) Release(n int32) (bool, error) {
	return b.release(n)
}

func (b *byteBuffer) Touch(hint any) ReferenceCounted {
	b.touch(hint)
	return b
}

func (b *byteBuffer) ReaderIndex() int { return b.rIdx }
func (b *byteBuffer) WriterIndex() int { return b.wIdx }
func (b *byteBuffer) Capacity() int    { return len(b.buf) }
func (b *byteBuffer) MaxCapacity() int { return b.maxCap }

func (b *byteBuffer) ReadableBytes() int { return b.wIdx - b.rIdx }
func (b *byteBuffer) WritableBytes() int { return len(b.buf) - b.wIdx }

func (b *byteBuffer) SetReaderIndex(i int) error {
	if i < 0 || i > b.wIdx {
		return ErrIndexOutOfBounds
	}
	b.rIdx = i
	return nil
}

func (b *byteBuffer) SetWriterIndex(i int) error {
	if i < b.rIdx || i > len(b.buf) {
		return ErrIndexOutOfBounds
	}
	b.wIdx = i
	return nil
}

func (b *byteBuffer) Read(p []byte) int {
	n := copy(p, b.buf[b.rIdx:b.wIdx])
	b.rIdx += n
	return n
}

func (b *byteBuffer) Write(p []byte) (int, error) {
	need := b.wIdx + len(p)
	if need > len(b.buf) {
		newCap, err := growCapacity(need, b.maxCap)
		if err != nil {
			return 0, err
		}
		grown := make([]byte, newCap)
		copy(grown, b.buf[:b.wIdx])
		b.buf = grown
	}
	n := copy(b.buf[b.wIdx:], p)
	b.wIdx += n
	return n, nil
}

func (b *byteBuffer) Bytes() []byte {
	return b.buf[b.rIdx:b.wIdx]
}

func (b *byteBuffer) allocator() Allocator { return b.alloc }

// Duplicate shares the backing array (not a copy) but gives the returned
// Buffer its own refCount and indices, so each recipient of a broadcast
// may independently advance and release its view.
func (b *byteBuffer) Duplicate() (Buffer, error) {
	dup := &byteBuffer{
		buf:    b.buf,
		rIdx:   b.rIdx,
		wIdx:   b.wIdx,
		maxCap: b.maxCap,
		alloc:  b.alloc,
	}
	dup.refCount = newRefCount(func() {})
	return dup, nil
}

// growCapacity implements §4.3's growth policy: the smallest power-of-two
// >= requested, clamped to maxCapacity. A requested size exceeding
// maxCapacity fails with ErrCapacityExceeded.
func growCapacity(requested, maxCapacity int) (int, error) {
	if requested > maxCapacity {
		return 0, ErrCapacityExceeded
	}
	size := 1
	for size < requested {
		size <<= 1
	}
	if size > maxCapacity {
		size = maxCapacity
	}
	return size, nil
}
