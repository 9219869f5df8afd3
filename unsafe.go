package nettle

import (
	"context"
	"net"
)

// Unsafe is the hidden I/O-primitives contract between a Channel and its
// transport backend (§6, §9). It is intentionally unexported: handler
// code interacts with a Channel only through its Pipeline; only the
// channel implementation and its platform-specific transport may call
// Unsafe methods directly. Keeping this as a small interface (rather than
// a concrete struct per transport) is what lets TCP, in-process pipe, and
// test transports share one Channel/Pipeline/OutboundBuffer stack.
type channelUnsafe interface {
	// localAddress, remoteAddress report the bound/connected endpoints,
	// or nil if not applicable/not yet known.
	localAddress() net.Addr
	remoteAddress() net.Addr

	// register binds the channel to its executor's selector, transitioning
	// Unregistered -> Registered.
	register() error

	// bind attaches a local address (server/listener channels).
	bind(local net.Addr) error

	// connect initiates an outbound connection; completion is signaled via
	// the returned Future, not a blocking return.
	connect(ctx context.Context, remote net.Addr) Future

	// accept is called by a server channel's read path to hand off an
	// incoming connection as a new child Channel.
	accept() (*Channel, error)

	// read performs one readv/recv attempt, sized by the channel's
	// RecvByteBufAllocatorHandle, and fires inbound pipeline events for
	// whatever it produces.
	read() error

	// writev hands a gathered run of readable slices (from
	// OutboundBuffer.NioBuffers) to the OS in one vectored write and
	// returns how many bytes actually left. The transport must not touch
	// the buffers' cursors; OutboundBuffer.RemoveBytes owns that
	// bookkeeping. Returning (0, nil) means the socket buffer is full;
	// the caller must wait for writability before retrying.
	writev(bufs net.Buffers) (int64, error)

	// closeForcibly tears down the underlying fd/resource immediately,
	// regardless of pending writes. Safe to call from any goroutine.
	closeForcibly() error

	// shutdownInput, shutdownOutput half-close a duplex transport.
	shutdownInput() error
	shutdownOutput() error
}
