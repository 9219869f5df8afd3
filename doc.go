// Package nettle is an asynchronous, event-driven networking toolkit: a
// library for building servers and clients that multiplex many connections
// over a small pool of single-threaded cooperative executors.
//
// # Architecture
//
// A [Channel] is a nexus to one transport endpoint. It owns a [Pipeline] of
// handlers, an [OutboundBuffer] staging pending writes, and an unexported
// Unsafe implementation supplying the low-level I/O primitives. Every
// mutation of a Channel's pipeline or outbound buffer happens on the single
// [Executor] the Channel is bound to for its lifetime.
//
//	           ┌─────────────────────────────────┐
//	bytes  ──▶ │ Channel (transport endpoint)    │ ◀── user writes
//	           │   ├─ Unsafe (I/O primitives)    │
//	           │   ├─ OutboundBuffer             │
//	           │   └─ Pipeline  ◀── user reads   │
//	           └──────────┬──────────────────────┘
//	                      │ inbound event
//	           ┌──────────▼──────────┐
//	           │ Handler₀ ↔ Handler₁ │ … ↔ Tail   (doubly linked)
//	           └──────────┬──────────┘
//	                      │ outbound request
//	                      ▼
//	           OutboundBuffer.AddMessage → AddFlush → NioBuffers → writev
//
// # Reference counting
//
// Messages that implement [ReferenceCounted] (including every [Buffer])
// carry an atomic count seeded at 1. Retain and Release adjust it; reaching
// zero deallocates exactly once. A message handed to
// [HandlerContext.FireChannelRead] transfers ownership to the next handler;
// a message handed to [HandlerContext.Write] transfers ownership to the
// outbound buffer until its [Promise] completes.
//
// # Platform support
//
// I/O readiness is multiplexed using platform-native mechanisms:
//   - Linux: epoll
//   - Darwin/BSD: kqueue
//   - Windows: IOCP
//
// # Thread safety
//
// [Executor.Execute] and [Executor.Schedule] are safe from any goroutine.
// Reference counts, the outbound buffer's writability bits and pending-byte
// counter, the attribute map, and the channel pool are all safe for
// concurrent use. Everything else reachable from a Channel — its pipeline
// structure, its outbound buffer's linked list, its lifecycle state — is
// single-writer from the bound executor and must not be touched from any
// other goroutine; [Executor.InEventLoop] lets handlers assert this.
//
// # Usage
//
//	exec, err := nettle.NewExecutor()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Close()
//
//	conn, err := net.Dial("tcp", "example.com:80")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch, err := nettle.NewConnChannel(exec, conn)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	ch.Pipeline().AddLast("echo", echoHandler{})
//	ch.Register()
//
//	if err := exec.Run(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	type echoHandler struct{ nettle.InboundHandlerAdapter }
//
//	func (echoHandler) ChannelRead(ctx *nettle.HandlerContext, msg any) error {
//	    ctx.Write(msg, nil)
//	    return nil
//	}
//
// # Error types
//
// The package distinguishes the error taxonomy a transport core needs:
// invalid reference count ([ErrInvalidRefCount]), capacity exceeded
// ([ErrCapacityExceeded]), operating on a closed resource
// ([ErrClosedResource]), cancellation ([ErrCancelled]), timeouts
// ([TimeoutError]), I/O failure ([IOError]), and protocol/state violations
// ([ErrProtocolViolation]). Reference-count mistakes always return errors
// from [Retain]/[Release] rather than panicking silently — they indicate a
// programmer error, not a transport condition.
package nettle
