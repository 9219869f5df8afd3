package nettle

import (
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math/bits"
	"net"
	"os"
	"sync/atomic"
	"time"
)

// ChannelID is a 128-bit process-wide-unique channel identifier (§6),
// composed from six ingredients: a 48-bit machine id, a 16-bit pid, the
// wall-clock milliseconds, a monotonic nanosecond reading, a 32-bit
// random word, and a per-process 32-bit sequence number. Six components
// exceed 128 bits laid side by side, so the three entropy sources —
// wall clock, monotonic clock, random word — are folded into one 32-bit
// word, while the fields that carry the uniqueness guarantees (machine,
// pid, sequence) keep dedicated bytes:
//
//	[0:6]   machine id
//	[6:8]   pid
//	[8:12]  wall-ms XOR rotated mono-ns XOR random word
//	[12:16] per-process sequence
//
// Uniqueness within a process comes from the sequence, across processes
// from machine+pid, and across pid reuse / machine-id collisions from the
// folded entropy word. Grounded on loop.go's loopIDCounter pattern,
// extended from a bare atomic counter to this collision-resistant layout.
type ChannelID [16]byte

var channelIDSeq atomic.Uint32

// processStart anchors the monotonic-nanosecond component: time.Since on
// a time.Time taken at init carries the monotonic clock reading, immune
// to wall-clock adjustment.
var processStart = time.Now()

var machineID = func() [6]byte {
	var id [6]byte
	ifaces, err := net.Interfaces()
	if err == nil {
		for _, ifc := range ifaces {
			if len(ifc.HardwareAddr) >= 6 {
				copy(id[:], ifc.HardwareAddr[:6])
				return id
			}
		}
	}
	_, _ = rand.Read(id[:])
	return id
}()

// NewChannelID allocates a fresh ChannelID. Safe for concurrent use.
func NewChannelID() ChannelID {
	var id ChannelID
	copy(id[0:6], machineID[:])
	binary.BigEndian.PutUint16(id[6:8], uint16(os.Getpid()))

	now := time.Now()
	wallMs := uint32(now.UnixMilli())
	monoNs := uint32(now.Sub(processStart).Nanoseconds())
	var rnd [4]byte
	_, _ = rand.Read(rnd[:])
	randWord := binary.BigEndian.Uint32(rnd[:])
	// Rotate the nanosecond reading so its fast-moving low bits land on
	// the millisecond word's slow-moving high bits before folding.
	binary.BigEndian.PutUint32(id[8:12], wallMs^bits.RotateLeft32(monoNs, 16)^randWord)

	binary.BigEndian.PutUint32(id[12:16], channelIDSeq.Add(1))
	return id
}

// String returns the long-form hex representation of id.
func (id ChannelID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 bytes of id as hex, for log lines where the
// full 128 bits is unnecessary noise.
func (id ChannelID) Short() string {
	return hex.EncodeToString(id[:8])
}

// IsZero reports whether id is the zero value (never assigned by
// NewChannelID).
func (id ChannelID) IsZero() bool {
	return id == ChannelID{}
}

func (id ChannelID) GoString() string {
	return fmt.Sprintf("ChannelID(%s)", id.Short())
}
