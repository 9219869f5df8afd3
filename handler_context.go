package nettle

import "net"

// HandlerContext is one node of the pipeline's doubly-linked chain (§3,
// §4.5): exactly one context exists per (pipeline, handler) insertion.
// Contexts never outlive their pipeline (§9): they are owned exclusively
// by the Pipeline that created them and hold raw prev/next pointers
// rather than participating in reference counting, since the intrusive
// cycle they form has a single, well-defined owner.
type HandlerContext struct {
	name     string
	handler  Handler
	inbound  InboundHandler
	outbound OutboundHandler
	pipeline *Pipeline
	executor *Executor
	prev     *HandlerContext
	next     *HandlerContext
	removed  bool
}

func newHandlerContext(name string, h Handler, pipeline *Pipeline, executor *Executor) *HandlerContext {
	ctx := &HandlerContext{name: name, handler: h, pipeline: pipeline, executor: executor}
	ctx.inbound, _ = h.(InboundHandler)
	ctx.outbound, _ = h.(OutboundHandler)
	return ctx
}

// Name returns the context's pipeline-unique name.
func (ctx *HandlerContext) Name() string { return ctx.name }

// Handler returns the handler this context wraps.
func (ctx *HandlerContext) Handler() Handler { return ctx.handler }

// Pipeline returns the owning pipeline.
func (ctx *HandlerContext) Pipeline() *Pipeline { return ctx.pipeline }

// Channel returns the channel that owns this context's pipeline.
func (ctx *HandlerContext) Channel() *Channel { return ctx.pipeline.channel }

// Executor returns the executor this context's callbacks run on: the
// channel's executor unless the context was added with an override.
func (ctx *HandlerContext) Executor() *Executor { return ctx.executor }

func trampoline(executor *Executor, fn func()) {
	if executor != nil && !executor.InEventLoop() {
		if err := executor.Execute(fn); err != nil {
			// Executor already terminated: run inline rather than drop
			// the event silently, matching the "never silently swallow an
			// event" posture of the rest of the pipeline.
			fn()
		}
		return
	}
	fn()
}

// --- inbound propagation (Head -> Tail, §9 Glossary) ---

func (ctx *HandlerContext) findNextInbound() *HandlerContext {
	c := ctx.next
	for c != nil && c.inbound == nil {
		c = c.next
	}
	return c
}

func (ctx *HandlerContext) findPrevOutbound() *HandlerContext {
	c := ctx.prev
	for c != nil && c.outbound == nil {
		c = c.prev
	}
	return c
}

func (ctx *HandlerContext) FireChannelRegistered() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelRegistered(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelUnregistered() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelUnregistered(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelActive() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelActive(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelInactive() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelInactive(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelRead(msg any) *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelRead(next, msg) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelReadComplete() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelReadComplete(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireChannelWritabilityChanged() *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.ChannelWritabilityChanged(next) })
	}
	return ctx
}

func (ctx *HandlerContext) FireUserEventTriggered(event any) *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeInbound(next, func() error { return next.inbound.UserEventTriggered(next, event) })
	}
	return ctx
}

// FireExceptionCaught fires exceptionCaught on the next inbound context
// (§4.5, §7): a handler callback's returned error is re-fired here rather
// than propagating the original event further.
func (ctx *HandlerContext) FireExceptionCaught(cause error) *HandlerContext {
	if next := ctx.findNextInbound(); next != nil {
		invokeExceptionCaught(next, cause)
	}
	return ctx
}

// invokeInbound runs fn on ctx's executor (trampolining if necessary),
// catching both panics and returned errors and re-firing them as
// exceptionCaught on the next inbound context (§4.5, §7) instead of
// letting the triggering event continue to propagate.
func invokeInbound(ctx *HandlerContext, fn func() error) {
	trampoline(ctx.executor, func() {
		var cause error
		func() {
			defer func() {
				if r := recover(); r != nil {
					cause = PanicError{Value: r}
				}
			}()
			cause = fn()
		}()
		if cause != nil {
			ctx.FireExceptionCaught(cause)
		}
	})
}

// invokeExceptionCaught runs ExceptionCaught on ctx. A panic or error
// from ExceptionCaught itself is logged and swallowed (§4.5, §7): there
// is no further context to re-fire it on.
func invokeExceptionCaught(ctx *HandlerContext, cause error) {
	trampoline(ctx.executor, func() {
		defer func() {
			if r := recover(); r != nil {
				internalLogger().Error("panic in ExceptionCaught", PanicError{Value: r})
			}
		}()
		if err := ctx.inbound.ExceptionCaught(ctx, cause); err != nil {
			internalLogger().Error("error returned from ExceptionCaught", err)
		}
	})
}

// --- outbound propagation (invoking context -> Head, §9 Glossary) ---

func (ctx *HandlerContext) Bind(local net.Addr, promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Bind(prev, local, promise) })
	return nil
}

func (ctx *HandlerContext) Connect(remote, local net.Addr, promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Connect(prev, remote, local, promise) })
	return nil
}

func (ctx *HandlerContext) Disconnect(promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Disconnect(prev, promise) })
	return nil
}

func (ctx *HandlerContext) Close(promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Close(prev, promise) })
	return nil
}

func (ctx *HandlerContext) Deregister(promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Deregister(prev, promise) })
	return nil
}

func (ctx *HandlerContext) Read() error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundVoid(prev, func() error { return prev.outbound.Read(prev) })
	return nil
}

func (ctx *HandlerContext) Write(msg any, promise Promise) error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		if rc, ok := msg.(ReferenceCounted); ok {
			_, _ = rc.Release(1)
		}
		if promise != nil {
			promise.TryFailure(ErrClosedResource)
		}
		return ErrClosedResource
	}
	invokeOutboundPromise(prev, promise, func() error { return prev.outbound.Write(prev, msg, promise) })
	return nil
}

func (ctx *HandlerContext) Flush() error {
	prev := ctx.findPrevOutbound()
	if prev == nil {
		return ErrClosedResource
	}
	invokeOutboundVoid(prev, func() error { return prev.outbound.Flush(prev) })
	return nil
}

// WriteAndFlush is the common Write-then-Flush convenience.
func (ctx *HandlerContext) WriteAndFlush(msg any, promise Promise) error {
	if err := ctx.Write(msg, promise); err != nil {
		return err
	}
	return ctx.Flush()
}

// invokeOutboundPromise runs fn on prev's executor. A returned error or
// panic fails promise (§7): outbound failures complete the promise, they
// are never re-raised as a pipeline event.
func invokeOutboundPromise(prev *HandlerContext, promise Promise, fn func() error) {
	trampoline(prev.executor, func() {
		var cause error
		func() {
			defer func() {
				if r := recover(); r != nil {
					cause = PanicError{Value: r}
				}
			}()
			cause = fn()
		}()
		if cause != nil && promise != nil {
			promise.TryFailure(cause)
		}
	})
}

// invokeOutboundVoid is for Read/Flush, which carry no promise; a
// failure is reported as exceptionCaught on the pipeline instead.
func invokeOutboundVoid(prev *HandlerContext, fn func() error) {
	trampoline(prev.executor, func() {
		var cause error
		func() {
			defer func() {
				if r := recover(); r != nil {
					cause = PanicError{Value: r}
				}
			}()
			cause = fn()
		}()
		if cause != nil {
			prev.pipeline.FireExceptionCaught(cause)
		}
	})
}
