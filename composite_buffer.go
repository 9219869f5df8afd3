package nettle

// compositeComponent is one view into an owned child Buffer, along with
// the logical offset of that component within the composite's flattened
// byte space.
type compositeComponent struct {
	buf    Buffer
	offset int
}

// CompositeBuffer holds an ordered list of components, each a view into an
// owned child buffer, and presents them as one logical Buffer (§3).
// Adding a component retains it; releasing the composite releases every
// component exactly once.
type CompositeBuffer struct {
	refCount
	alloc      Allocator
	components []compositeComponent
	rIdx       int
	wIdx       int
	maxCap     int
}

// NewCompositeBuffer creates an empty composite buffer backed by alloc,
// with the given maximum capacity across all components combined.
func NewCompositeBuffer(alloc Allocator, maxCapacity int) *CompositeBuffer {
	c := &CompositeBuffer{alloc: alloc, maxCap: maxCapacity}
	c.refCount = newRefCount(c.deallocateComponents)
	return c
}

func (c *CompositeBuffer) deallocateComponents() {
	for _, comp := range c.components {
		_, _ = comp.buf.Release(1)
	}
	c.components = nil
}

// AddComponent appends buf as a new component, retaining it, and extends
// the composite's writer index to cover its readable bytes. Returns
// ErrCapacityExceeded if doing so would exceed the composite's
// MaxCapacity.
func (c *CompositeBuffer) AddComponent(buf Buffer) error {
	n := buf.ReadableBytes()
	if c.wIdx+n > c.maxCap {
		return ErrCapacityExceeded
	}
	if _, err := buf.Retain(1); err != nil {
		return err
	}
	c.components = append(c.components, compositeComponent{buf: buf, offset: c.wIdx})
	c.wIdx += n
	return nil
}

func (c *CompositeBuffer) Retain(n int32) (ReferenceCounted, error) {
	if err := c.retain(n); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *CompositeBuffer) Release(n int32) (bool, error) {
	return c.release(n)
}

func (c *CompositeBuffer) Touch(hint any) ReferenceCounted {
	c.touch(hint)
	return c
}

func (c *CompositeBuffer) ReaderIndex() int    { return c.rIdx }
func (c *CompositeBuffer) WriterIndex() int    { return c.wIdx }
func (c *CompositeBuffer) Capacity() int       { return c.wIdx }
func (c *CompositeBuffer) MaxCapacity() int    { return c.maxCap }
func (c *CompositeBuffer) ReadableBytes() int  { return c.wIdx - c.rIdx }
func (c *CompositeBuffer) WritableBytes() int  { return 0 }
func (c *CompositeBuffer) allocator() Allocator { return c.alloc }

// Duplicate returns a new composite sharing (re-retained) the same
// components, with its own refCount and cursor positions.
func (c *CompositeBuffer) Duplicate() (Buffer, error) {
	dup := NewCompositeBuffer(c.alloc, c.maxCap)
	for _, comp := range c.components {
		if _, err := comp.buf.Retain(1); err != nil {
			return nil, err
		}
		dup.components = append(dup.components, comp)
	}
	dup.rIdx, dup.wIdx = c.rIdx, c.wIdx
	return dup, nil
}

func (c *CompositeBuffer) SetReaderIndex(i int) error {
	if i < 0 || i > c.wIdx {
		return ErrIndexOutOfBounds
	}
	c.rIdx = i
	return nil
}

func (c *CompositeBuffer) SetWriterIndex(i int) error {
	return ErrIndexOutOfBounds
}

// Write is unsupported directly on a composite; components must be added
// via AddComponent. Present only to satisfy the Buffer interface.
func (c *CompositeBuffer) Write(p []byte) (int, error) {
	return 0, ErrCapacityExceeded
}

// Read copies readable bytes across component boundaries, advancing the
// composite's reader index (and each traversed component's own reader
// index, so partial reads of a shared component are observable).
func (c *CompositeBuffer) Read(p []byte) int {
	total := 0
	for total < len(p) && c.rIdx < c.wIdx {
		comp, idx := c.componentAt(c.rIdx)
		if comp == nil {
			break
		}
		localOff := c.rIdx - c.components[idx].offset
		_ = comp.SetReaderIndex(localOff)
		n := comp.Read(p[total:])
		if n == 0 {
			break
		}
		total += n
		c.rIdx += n
	}
	return total
}

func (c *CompositeBuffer) componentAt(pos int) (Buffer, int) {
	for i, comp := range c.components {
		end := comp.offset + comp.buf.ReadableBytes() + comp.buf.ReaderIndex()
		if pos >= comp.offset && pos < end {
			return comp.buf, i
		}
	}
	return nil, -1
}

// Bytes flattens readable components into a single slice. This copies;
// composite buffers are not guaranteed contiguous in memory.
func (c *CompositeBuffer) Bytes() []byte {
	out := make([]byte, 0, c.ReadableBytes())
	pos := c.rIdx
	for pos < c.wIdx {
		comp, idx := c.componentAt(pos)
		if comp == nil {
			break
		}
		localOff := pos - c.components[idx].offset
		end := comp.ReadableBytes() + comp.ReaderIndex()
		b := comp.Bytes()
		start := localOff - comp.ReaderIndex()
		if start < 0 {
			start = 0
		}
		out = append(out, b[start:]...)
		pos = c.components[idx].offset + end
	}
	return out
}
