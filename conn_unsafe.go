package nettle

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// connUnsafe adapts a standard library net.Conn to the channelUnsafe
// contract (§6, §9): it is the concrete transport this module ships,
// letting Channel/Pipeline/OutboundBuffer work over real TCP, Unix
// sockets, or an in-process net.Pipe without any platform-specific
// poller plumbing. The lower-level epoll/kqueue/IOCP pollers in poller.go
// remain wired through Executor.RegisterFD for a future raw-socket
// backend; this adapter instead dedicates one goroutine per channel to a
// blocking Read loop and forwards everything it produces back onto the
// channel's executor via Execute, preserving the single-goroutine
// confinement every other component in this package assumes.
//
// Grounded on other_examples' matcha duplexPipeline, whose connReadHandler
// goroutine loops on a blocking read and forwards frames to a channel for
// single-consumer processing; generalized here to forward through
// Executor.Execute instead of a raw Go channel, since that is this
// module's thread-confinement primitive.
type connUnsafe struct {
	conn    net.Conn
	ch      *Channel
	dialer  *net.Dialer
	dialNet string

	mu      sync.Mutex
	reading bool
	closed  atomic.Bool
}

// NewConnChannel constructs a Channel backed by an already-connected
// net.Conn (e.g. from net.Dial or net.Pipe). Bind is not supported by this
// transport; dial a new conn and call NewConnChannel again for each peer.
func NewConnChannel(executor *Executor, conn net.Conn, opts ...ChannelOption) (*Channel, error) {
	u := &connUnsafe{conn: conn}
	ch, err := NewChannel(executor, u, ChannelMetadata{HasDisconnect: true}, nil, opts...)
	if err != nil {
		return nil, err
	}
	u.ch = ch
	return ch, nil
}

// NewDialChannel constructs a Channel that dials network/address lazily,
// the first time Connect is called, honoring CONNECT_TIMEOUT_MILLIS (§6)
// via the context deadline Channel.unsafeConnect attaches. Unlike
// NewConnChannel, no net.Conn exists yet at construction time.
func NewDialChannel(executor *Executor, network string, opts ...ChannelOption) (*Channel, error) {
	u := &connUnsafe{dialer: &net.Dialer{}, dialNet: network}
	ch, err := NewChannel(executor, u, ChannelMetadata{HasDisconnect: true}, nil, opts...)
	if err != nil {
		return nil, err
	}
	u.ch = ch
	return ch, nil
}

func (u *connUnsafe) localAddress() net.Addr {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.LocalAddr()
}

func (u *connUnsafe) remoteAddress() net.Addr {
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.RemoteAddr()
}

func (u *connUnsafe) register() error { return nil }

func (u *connUnsafe) bind(net.Addr) error {
	return &ProtocolError{Op: "bind", Message: "a conn-backed channel's local address is fixed by its net.Conn"}
}

// connect is a no-op success if this connUnsafe already wraps a connected
// net.Conn (the NewConnChannel path). Otherwise (NewDialChannel) it dials
// remote using ctx's deadline, so a context.DeadlineExceeded here is what
// Channel.unsafeConnect turns into a [TimeoutError].
func (u *connUnsafe) connect(ctx context.Context, remote net.Addr) Future {
	if u.conn != nil {
		return SucceededFuture(u.ch.executor, nil)
	}
	if u.dialer == nil {
		return FailedFuture(u.ch.executor, &ProtocolError{Op: "connect", Message: "connUnsafe has no dialer configured; use NewDialChannel"})
	}
	p := NewPromise(u.ch.executor)
	go func() {
		conn, err := u.dialer.DialContext(ctx, u.dialNet, remote.String())
		if err != nil {
			p.TryFailure(&IOError{Op: "connect", Cause: err})
			return
		}
		u.mu.Lock()
		u.conn = conn
		u.mu.Unlock()
		p.TrySuccess(nil)
	}()
	return p
}

func (u *connUnsafe) accept() (*Channel, error) {
	return nil, &ProtocolError{Op: "accept", Message: "connUnsafe has no listen backlog"}
}

// read lazily starts the background reader goroutine on first call and is
// otherwise a no-op: the goroutine itself decides, via
// RecvByteBufAllocatorHandle.ContinueReading, how many reads to issue
// before yielding, and restarts automatically when AUTO_READ is enabled.
func (u *connUnsafe) read() error {
	u.mu.Lock()
	if u.reading || u.closed.Load() {
		u.mu.Unlock()
		return nil
	}
	u.reading = true
	u.mu.Unlock()
	go u.readLoop()
	return nil
}

func (u *connUnsafe) readLoop() {
	ch := u.ch
	handle := ch.recvHandle
	for {
		if u.closed.Load() {
			return
		}
		handle.Reset(ch.config)
		for {
			buf, err := handle.Allocate(ch.config.allocator)
			if err != nil {
				u.stopReading()
				return
			}
			scratch := make([]byte, buf.WritableBytes())
			n, rerr := u.conn.Read(scratch)
			if n > 0 {
				_, _ = buf.Write(scratch[:n])
				handle.LastBytesRead(n)
				msg := buf
				_ = ch.executor.Execute(func() { ch.pipeline.FireChannelRead(msg) })
			} else {
				_, _ = buf.Release(1)
			}
			if rerr != nil {
				handle.LastBytesRead(-1)
				u.closed.Store(true)
				_ = ch.executor.Execute(func() {
					ch.pipeline.FireChannelReadComplete()
					_ = ch.unsafeClose(NewPromise(ch.executor))
				})
				return
			}
			if !handle.ContinueReading() {
				break
			}
		}
		_ = ch.executor.Execute(func() { ch.pipeline.FireChannelReadComplete() })
		if !ch.config.autoRead {
			u.stopReading()
			return
		}
	}
}

func (u *connUnsafe) stopReading() {
	u.mu.Lock()
	u.reading = false
	u.mu.Unlock()
}

// writev hands a gathered run of readable slices to the connection in one
// vectored write: net.Buffers.WriteTo uses writev on transports that
// support it and falls back to sequential writes otherwise. A net.Conn
// either writes everything or returns an error; Go's contract has no
// "socket buffer full, try later" signal like a non-blocking raw fd
// would, so this adapter never returns (0, nil) for a still-open
// connection. Cursor advancement is left to the caller's RemoveBytes.
func (u *connUnsafe) writev(bufs net.Buffers) (int64, error) {
	if len(bufs) == 0 {
		return 0, nil
	}
	n, err := bufs.WriteTo(u.conn)
	if err != nil {
		return n, &IOError{Op: "write", Cause: err}
	}
	return n, nil
}

func (u *connUnsafe) closeForcibly() error {
	u.closed.Store(true)
	u.mu.Lock()
	conn := u.conn
	u.mu.Unlock()
	if conn == nil {
		// A dial-path channel whose connect never succeeded has nothing to
		// tear down.
		return nil
	}
	return conn.Close()
}

func (u *connUnsafe) shutdownInput() error {
	if c, ok := u.conn.(interface{ CloseRead() error }); ok {
		return c.CloseRead()
	}
	return nil
}

func (u *connUnsafe) shutdownOutput() error {
	if c, ok := u.conn.(interface{ CloseWrite() error }); ok {
		return c.CloseWrite()
	}
	return nil
}

var _ channelUnsafe = (*connUnsafe)(nil)
