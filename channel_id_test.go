package nettle

import (
	"encoding/binary"
	"testing"
)

func TestNewChannelIDIsNonZero(t *testing.T) {
	id := NewChannelID()
	if id.IsZero() {
		t.Fatal("a freshly allocated ChannelID should never be the zero value")
	}
}

func TestNewChannelIDIsUnique(t *testing.T) {
	const n = 1000
	seen := make(map[ChannelID]bool, n)
	for i := 0; i < n; i++ {
		id := NewChannelID()
		if seen[id] {
			t.Fatalf("duplicate ChannelID generated after %d allocations", i)
		}
		seen[id] = true
	}
}

func TestChannelIDShortIsPrefixOfLong(t *testing.T) {
	id := NewChannelID()
	long := id.String()
	short := id.Short()
	if len(short) != 16 {
		t.Fatalf("Short() length = %d, want 16 hex chars (8 bytes)", len(short))
	}
	if long[:16] != short {
		t.Fatalf("Short() = %q is not a prefix of String() = %q", short, long)
	}
	if len(long) != 32 {
		t.Fatalf("String() length = %d, want 32 hex chars (16 bytes)", len(long))
	}
}

func TestChannelIDSequenceIncrements(t *testing.T) {
	a := NewChannelID()
	b := NewChannelID()
	// Bytes 12:16 carry the per-process sequence counter; two IDs minted
	// back to back must differ there even if every other field collided
	// (same millisecond, same random word).
	aSeq := binary.BigEndian.Uint32(a[12:16])
	bSeq := binary.BigEndian.Uint32(b[12:16])
	if bSeq <= aSeq {
		t.Fatalf("sequence did not advance between consecutive allocations: %d then %d", aSeq, bSeq)
	}
}

func TestChannelIDZeroValueIsZero(t *testing.T) {
	var id ChannelID
	if !id.IsZero() {
		t.Fatal("the zero ChannelID value should report IsZero() == true")
	}
}
