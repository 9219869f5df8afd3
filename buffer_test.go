package nettle

import (
	"bytes"
	"errors"
	"testing"
)

func TestByteBufferWriteReadRoundTrip(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(4, 64)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := buf.Write([]byte("hello")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got, want := buf.ReadableBytes(), 5; got != want {
		t.Fatalf("ReadableBytes() = %d, want %d", got, want)
	}

	out := make([]byte, 5)
	n := buf.Read(out)
	if n != 5 || !bytes.Equal(out, []byte("hello")) {
		t.Fatalf("Read() = (%d, %q), want (5, %q)", n, out, "hello")
	}
	if got := buf.ReadableBytes(); got != 0 {
		t.Fatalf("ReadableBytes() after full read = %d, want 0", got)
	}
}

func TestByteBufferGrowsOnWrite(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(2, 1024)
	if err != nil {
		t.Fatal(err)
	}
	payload := bytes.Repeat([]byte{'x'}, 100)
	if _, err := buf.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := buf.Capacity(); got < 100 {
		t.Fatalf("Capacity() = %d, want >= 100", got)
	}
	// Power-of-two growth.
	if got := buf.Capacity(); got&(got-1) != 0 {
		t.Fatalf("Capacity() = %d, not a power of two", got)
	}
}

func TestByteBufferWriteBeyondMaxCapacityFails(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Write(bytes.Repeat([]byte{'x'}, 9)); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("Write() err = %v, want ErrCapacityExceeded", err)
	}
}

func TestGrowCapacitySmallestPowerOfTwo(t *testing.T) {
	cases := []struct {
		requested, maxCapacity, want int
	}{
		{1, 1024, 1},
		{2, 1024, 2},
		{3, 1024, 4},
		{64, 1024, 64},
		{65, 1024, 128},
		{1000, 1024, 1024},
	}
	for _, c := range cases {
		got, err := growCapacity(c.requested, c.maxCapacity)
		if err != nil {
			t.Fatalf("growCapacity(%d, %d): %v", c.requested, c.maxCapacity, err)
		}
		if got != c.want {
			t.Errorf("growCapacity(%d, %d) = %d, want %d", c.requested, c.maxCapacity, got, c.want)
		}
	}
}

func TestGrowCapacityExceedsMax(t *testing.T) {
	if _, err := growCapacity(2000, 1024); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("growCapacity() err = %v, want ErrCapacityExceeded", err)
	}
}

func TestBufferIndexBounds(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Write([]byte("abcd")); err != nil {
		t.Fatal(err)
	}
	if err := buf.SetReaderIndex(2); err != nil {
		t.Fatalf("SetReaderIndex(2): %v", err)
	}
	if err := buf.SetReaderIndex(-1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("SetReaderIndex(-1) err = %v, want ErrIndexOutOfBounds", err)
	}
	if err := buf.SetReaderIndex(buf.WriterIndex() + 1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("SetReaderIndex(past writer) err = %v, want ErrIndexOutOfBounds", err)
	}
	if err := buf.SetWriterIndex(buf.ReaderIndex() - 1); !errors.Is(err, ErrIndexOutOfBounds) {
		t.Fatalf("SetWriterIndex(before reader) err = %v, want ErrIndexOutOfBounds", err)
	}
}

func TestBufferDuplicateIndependentLifetime(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Write([]byte("payload")); err != nil {
		t.Fatal(err)
	}

	dup, err := buf.Duplicate()
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup.Refs() != 1 {
		t.Fatalf("dup.Refs() = %d, want 1", dup.Refs())
	}
	if !bytes.Equal(dup.Bytes(), buf.Bytes()) {
		t.Fatalf("dup.Bytes() = %q, want %q", dup.Bytes(), buf.Bytes())
	}

	// Releasing the duplicate must not affect the original's lifetime.
	if ok, err := dup.Release(1); err != nil || !ok {
		t.Fatalf("dup.Release(1) = (%v, %v), want (true, nil)", ok, err)
	}
	if buf.Refs() != 1 {
		t.Fatalf("original Refs() = %d after releasing duplicate, want 1", buf.Refs())
	}
}

func TestCompositeBufferAddComponentAndRead(t *testing.T) {
	alloc := NewHeapAllocator(0)
	comp, err := alloc.Composite(1024)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := alloc.Heap(8, 8)
	_, _ = a.Write([]byte("foo"))
	b, _ := alloc.Heap(8, 8)
	_, _ = b.Write([]byte("bar"))

	if err := comp.AddComponent(a); err != nil {
		t.Fatalf("AddComponent(a): %v", err)
	}
	if err := comp.AddComponent(b); err != nil {
		t.Fatalf("AddComponent(b): %v", err)
	}
	// AddComponent retains; releasing our own references should not free
	// the components out from under the composite.
	if _, err := a.Release(1); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Release(1); err != nil {
		t.Fatal(err)
	}

	if got, want := comp.ReadableBytes(), 6; got != want {
		t.Fatalf("ReadableBytes() = %d, want %d", got, want)
	}
	out := make([]byte, 6)
	n := comp.Read(out)
	if n != 6 || string(out) != "foobar" {
		t.Fatalf("Read() = (%d, %q), want (6, %q)", n, out, "foobar")
	}
}

func TestCompositeBufferExceedsMaxCapacity(t *testing.T) {
	alloc := NewHeapAllocator(0)
	comp, err := alloc.Composite(4)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := alloc.Heap(8, 8)
	_, _ = a.Write([]byte("12345"))
	if err := comp.AddComponent(a); !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("AddComponent() err = %v, want ErrCapacityExceeded", err)
	}
}

func TestCompositeBufferReleaseReleasesComponentsOnce(t *testing.T) {
	alloc := NewHeapAllocator(0)
	comp, err := alloc.Composite(1024)
	if err != nil {
		t.Fatal(err)
	}
	a, _ := alloc.Heap(8, 8)
	if err := comp.AddComponent(a); err != nil {
		t.Fatal(err)
	}
	// a now has refcount 2 (1 from allocation, 1 from AddComponent's retain).
	if a.Refs() != 2 {
		t.Fatalf("a.Refs() = %d, want 2", a.Refs())
	}
	if _, err := a.Release(1); err != nil {
		t.Fatal(err)
	}
	if ok, err := comp.Release(1); err != nil || !ok {
		t.Fatalf("comp.Release(1) = (%v, %v), want (true, nil)", ok, err)
	}
	if a.Refs() != 0 {
		t.Fatalf("a.Refs() = %d after composite release, want 0", a.Refs())
	}
}
