package nettle

import (
	"context"
	"net"
)

// ChannelMetadata carries capability flags a transport backend declares at
// construction time (§4.4, §6): whether Disconnect is meaningful for this
// channel type (a TCP peer supports it; a connectionless or already-closed
// relationship may not).
type ChannelMetadata struct {
	HasDisconnect bool
}

// Channel is a single open connection or listener, bound to exactly one
// Executor for its entire lifetime (§4.1, §4.4, §6): its Pipeline, its
// OutboundBuffer, and its lifecycle state transitions are only ever
// touched from that executor's own goroutine. Grounded on loop.go's
// single-owner-goroutine discipline, generalized from "tasks queued on a
// Loop" to "a network endpoint whose every event is a task on a Loop".
type Channel struct {
	id       ChannelID
	parent   *Channel
	executor *Executor
	config   *channelConfig
	attrs    *AttributeMap
	metadata ChannelMetadata

	pipeline *Pipeline
	outbound *OutboundBuffer
	unsafe   channelUnsafe

	recvHandle RecvByteBufAllocatorHandle

	state       *channelState
	closeFuture Promise

	localAddr  net.Addr
	remoteAddr net.Addr
}

// NewChannel constructs a Channel bound to executor, backed by the given
// channelUnsafe transport, with parent set for channels accepted from a
// listener (nil for a root channel).
func NewChannel(executor *Executor, unsafe channelUnsafe, metadata ChannelMetadata, parent *Channel, opts ...ChannelOption) (*Channel, error) {
	cfg, err := resolveChannelOptions(opts)
	if err != nil {
		return nil, err
	}
	ch := &Channel{
		id:       NewChannelID(),
		parent:   parent,
		executor: executor,
		config:   cfg,
		attrs:    &AttributeMap{},
		metadata: metadata,
		unsafe:   unsafe,
		state:    newChannelState(),
	}
	ch.closeFuture = NewPromise(executor)
	ch.pipeline = newPipeline(ch)
	ch.outbound = newOutboundBuffer(ch)
	ch.recvHandle = cfg.rcvAllocator.NewHandle()
	return ch, nil
}

// ID returns the channel's process-wide-unique identity.
func (ch *Channel) ID() ChannelID { return ch.id }

// Parent returns the listener channel this channel was accepted from, or
// nil for a root channel.
func (ch *Channel) Parent() *Channel { return ch.parent }

// Executor returns the single executor this channel, its pipeline, and its
// outbound buffer are confined to.
func (ch *Channel) Executor() *Executor { return ch.executor }

// Pipeline returns the channel's handler chain.
func (ch *Channel) Pipeline() *Pipeline { return ch.pipeline }

// Attributes returns the channel's concurrent key/value store.
func (ch *Channel) Attributes() *AttributeMap { return ch.attrs }

// Metadata returns the capability flags this channel's transport declared.
func (ch *Channel) Metadata() ChannelMetadata { return ch.metadata }

// State returns the current §4.4 lifecycle state.
func (ch *Channel) State() ChannelState { return ch.state.Load() }

// IsActive reports whether the channel is open and eligible for I/O.
func (ch *Channel) IsActive() bool { return ch.state.IsActive() }

// IsOpen reports whether the channel has not yet reached the terminal
// Closed state.
func (ch *Channel) IsOpen() bool { return ch.state.Load() != StateClosed }

// IsWritable reports the outbound buffer's current writability (§4.6).
func (ch *Channel) IsWritable() bool { return ch.outbound.IsWritable() }

// LocalAddr returns the transport's local endpoint, if known.
func (ch *Channel) LocalAddr() net.Addr {
	if ch.localAddr != nil {
		return ch.localAddr
	}
	return ch.unsafe.localAddress()
}

// RemoteAddr returns the transport's remote endpoint, if known.
func (ch *Channel) RemoteAddr() net.Addr {
	if ch.remoteAddr != nil {
		return ch.remoteAddr
	}
	return ch.unsafe.remoteAddress()
}

// CloseFuture returns a Future that completes once the channel reaches the
// Closed state, however that came about.
func (ch *Channel) CloseFuture() Future { return ch.closeFuture }

// Register binds the channel to its executor, transitioning
// Unregistered -> Registered and firing ChannelRegistered.
func (ch *Channel) Register() Future {
	p := NewPromise(ch.executor)
	trampoline(ch.executor, func() {
		if err := ch.unsafe.register(); err != nil {
			p.TryFailure(err)
			return
		}
		if ch.state.TryTransition(StateRegistered) {
			ch.pipeline.FireChannelRegistered()
		}
		p.TrySuccess(nil)
	})
	return p
}

// Bind attaches local and fires ChannelActive once registered.
func (ch *Channel) Bind(local net.Addr) Future { return ch.pipeline.Bind(local) }

// Connect initiates an outbound connection.
func (ch *Channel) Connect(ctx context.Context, remote net.Addr) Future {
	return ch.pipeline.Connect(ctx, remote)
}

// Disconnect moves an active channel to Inactive without releasing its
// underlying resources (only meaningful when Metadata().HasDisconnect).
func (ch *Channel) Disconnect() Future { return ch.pipeline.Disconnect() }

// Close tears the channel down, moving it through Inactive (if currently
// Active) to the terminal Closed state.
func (ch *Channel) Close() Future { return ch.pipeline.Close() }

// Deregister detaches the channel from its executor without closing it.
func (ch *Channel) Deregister() Future { return ch.pipeline.Deregister() }

// Read requests one more read-loop iteration through the pipeline.
func (ch *Channel) Read() *Channel {
	ch.pipeline.Read()
	return ch
}

// Write queues msg on the outbound buffer without flushing.
func (ch *Channel) Write(msg any) Future { return ch.pipeline.Write(msg) }

// WriteAndFlush queues msg and immediately flushes.
func (ch *Channel) WriteAndFlush(msg any) Future { return ch.pipeline.WriteAndFlush(msg) }

// Flush drains the outbound buffer's unflushed run to the transport.
func (ch *Channel) Flush() *Channel {
	ch.pipeline.Flush()
	return ch
}

// --- unsafeXxx: called only by pipelineHead, already running on executor ---

func (ch *Channel) unsafeBind(local net.Addr, promise Promise) error {
	if err := ch.unsafe.bind(local); err != nil {
		return err
	}
	ch.localAddr = local
	if ch.state.Load() == StateRegistered {
		if ch.state.TryTransition(StateActive) {
			ch.pipeline.FireChannelActive()
			if ch.config.autoRead {
				ch.pipeline.Read()
			}
		}
	}
	promise.TrySuccess(nil)
	return nil
}

func (ch *Channel) unsafeConnect(remote net.Addr, promise Promise) error {
	ctx := context.Background()
	cancel := func() {}
	if ch.config.connectTimeout > 0 {
		var c context.CancelFunc
		ctx, c = context.WithTimeout(ctx, ch.config.connectTimeout)
		cancel = c
	}
	f := ch.unsafe.connect(ctx, remote)
	f.AddListener(func(done Future) {
		cancel()
		switch {
		case done.IsSuccess():
			ch.remoteAddr = remote
			if ch.state.TryTransition(StateActive) {
				ch.pipeline.FireChannelActive()
				if ch.config.autoRead {
					ch.pipeline.Read()
				}
			}
			promise.TrySuccess(nil)
		case done.IsCancelled():
			promise.Cancel(false)
		default:
			cause := done.Cause()
			if ctx.Err() == context.DeadlineExceeded {
				cause = &TimeoutError{Op: "connect", Cause: cause}
				// §5: a connect timeout forces the channel closed.
				_ = ch.unsafeClose(NewPromise(ch.executor))
			}
			promise.TryFailure(cause)
		}
	})
	return nil
}

func (ch *Channel) unsafeClose(promise Promise) error {
	cur := ch.state.Load()
	if cur == StateClosed {
		promise.TrySuccess(nil)
		return nil
	}
	ch.outbound.Close(ErrClosedResource)
	_ = ch.unsafe.closeForcibly()
	if cur == StateActive {
		if ch.state.TryTransition(StateInactive) {
			ch.pipeline.FireChannelInactive()
		}
	}
	ch.state.TryTransition(StateClosed)
	ch.closeFuture.TrySuccess(nil)
	promise.TrySuccess(nil)
	return nil
}

func (ch *Channel) unsafeDeregister(promise Promise) error {
	if ch.state.TryTransition(StateUnregistered) {
		ch.pipeline.FireChannelUnregistered()
	}
	promise.TrySuccess(nil)
	return nil
}

func (ch *Channel) unsafeBeginRead() error {
	if ch.state.Load() != StateActive {
		return nil
	}
	return ch.unsafe.read()
}

func (ch *Channel) unsafeWrite(msg any, promise Promise) error {
	if ch.state.Load() == StateClosed {
		releaseOutboundMessage(msg)
		return ErrClosedResource
	}
	size := ch.config.sizeEstimator.EstimateSize(msg)
	return ch.outbound.AddMessage(msg, size, promise)
}

func (ch *Channel) unsafeFlush() error {
	ch.outbound.AddFlush()
	return ch.doWrite()
}

// Per-iteration gather limits for doWrite's vectored writes. 64 slices is
// more than one syscall's worth of useful coalescing; 1 MiB bounds how
// long a single writev can occupy the executor.
const (
	maxGatherSlices = 64
	maxGatherBytes  = 1 << 20
)

// doWrite drains up to config.writeSpinCount gathered writes per call,
// matching §6's WRITE_SPIN_COUNT: a write loop that never yields back to
// the executor would starve every other channel sharing it. Consecutive
// Buffer entries are coalesced into one vectored write via NioBuffers;
// RemoveBytes then consumes whole entries and partially advances the one
// a short write landed inside.
func (ch *Channel) doWrite() error {
	if ch.state.Load() != StateActive {
		return nil
	}
	for i := 0; i < ch.config.writeSpinCount; i++ {
		msg, ok := ch.outbound.Current()
		if !ok {
			return nil
		}
		if _, isBuf := msg.(Buffer); !isBuf {
			// Non-Buffer messages reaching Unsafe mean no encoder handler
			// converted them; nothing to write, so drop it rather than
			// stalling the flush loop forever.
			ch.outbound.Remove()
			continue
		}
		vecs := ch.outbound.NioBuffers(maxGatherSlices, maxGatherBytes)
		if len(vecs) == 0 {
			// Flushed head is a Buffer with nothing readable; complete it.
			ch.outbound.Remove()
			continue
		}
		n, err := ch.unsafe.writev(vecs)
		if err != nil {
			ch.outbound.FailFlushed(err)
			ch.pipeline.FireExceptionCaught(err)
			return err
		}
		if n == 0 {
			return nil
		}
		ch.outbound.RemoveBytes(n)
	}
	return ch.executor.Execute(func() { _ = ch.doWrite() })
}
