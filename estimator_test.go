package nettle

import "testing"

func TestDefaultEstimatorSizesBufferByReadableBytesPlusOverhead(t *testing.T) {
	alloc := NewHeapAllocator(0)
	buf, err := alloc.Heap(16, 16)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := buf.Write([]byte("12345")); err != nil {
		t.Fatal(err)
	}

	e := defaultMessageSizeEstimator{}
	if got := e.EstimateSize(buf); got != 5+entryOverhead {
		t.Fatalf("EstimateSize(buffer) = %d, want readable bytes plus the %d-byte entry overhead", got, entryOverhead)
	}
}

func TestDefaultEstimatorChargesFixedOverheadForUnknownMessages(t *testing.T) {
	e := defaultMessageSizeEstimator{}
	if got := e.EstimateSize("some string"); got != entryOverhead {
		t.Fatalf("EstimateSize(string) = %d, want %d", got, entryOverhead)
	}
	if got := e.EstimateSize(struct{}{}); got != entryOverhead {
		t.Fatalf("EstimateSize(struct) = %d, want %d", got, entryOverhead)
	}
}
