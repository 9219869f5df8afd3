package nettle

import "net"

// Handler is the base capability every pipeline entry implements (§4.5,
// §9). A concrete handler additionally implements [InboundHandler] and/or
// [OutboundHandler] to opt into the corresponding event direction; a
// "duplex" handler, in the source's terms, is simply one that implements
// both. HandlerAdded/HandlerRemoved fire once each, on the executor, when
// the context enters or leaves the pipeline.
type Handler interface {
	HandlerAdded(ctx *HandlerContext) error
	HandlerRemoved(ctx *HandlerContext) error
}

// InboundHandler reacts to events flowing Head toward Tail (§9 Glossary).
type InboundHandler interface {
	Handler

	ChannelRegistered(ctx *HandlerContext) error
	ChannelUnregistered(ctx *HandlerContext) error
	ChannelActive(ctx *HandlerContext) error
	ChannelInactive(ctx *HandlerContext) error
	ChannelRead(ctx *HandlerContext, msg any) error
	ChannelReadComplete(ctx *HandlerContext) error
	ChannelWritabilityChanged(ctx *HandlerContext) error
	UserEventTriggered(ctx *HandlerContext, event any) error
	ExceptionCaught(ctx *HandlerContext, cause error) error
}

// OutboundHandler reacts to requests flowing the invoking context toward
// Head. Unlike InboundHandler, a failure here completes promise and does
// not propagate as a pipeline event (§7).
type OutboundHandler interface {
	Handler

	Bind(ctx *HandlerContext, local net.Addr, promise Promise) error
	Connect(ctx *HandlerContext, remote, local net.Addr, promise Promise) error
	Disconnect(ctx *HandlerContext, promise Promise) error
	Close(ctx *HandlerContext, promise Promise) error
	Deregister(ctx *HandlerContext, promise Promise) error
	Read(ctx *HandlerContext) error
	Write(ctx *HandlerContext, msg any, promise Promise) error
	Flush(ctx *HandlerContext) error
}

// Sharable marks a handler as safe to add under multiple contexts (even
// across pipelines) concurrently. A handler that does not implement
// Sharable may only ever belong to one HandlerContext at a time;
// Pipeline.AddX returns ErrProtocolViolation if it is already installed
// elsewhere. Grounded on the source's @Sharable annotation, re-expressed
// per §9 as a capability interface rather than a reflection-based tag.
type Sharable interface {
	Sharable() bool
}

// InboundHandlerAdapter gives every inbound callback a default
// implementation that simply propagates the event further down the
// pipeline (the source's ChannelInboundHandlerAdapter). Embed it in a
// concrete handler and override only the methods of interest.
type InboundHandlerAdapter struct{}

func (InboundHandlerAdapter) HandlerAdded(*HandlerContext) error   { return nil }
func (InboundHandlerAdapter) HandlerRemoved(*HandlerContext) error { return nil }

func (InboundHandlerAdapter) ChannelRegistered(ctx *HandlerContext) error {
	ctx.FireChannelRegistered()
	return nil
}

func (InboundHandlerAdapter) ChannelUnregistered(ctx *HandlerContext) error {
	ctx.FireChannelUnregistered()
	return nil
}

func (InboundHandlerAdapter) ChannelActive(ctx *HandlerContext) error {
	ctx.FireChannelActive()
	return nil
}

func (InboundHandlerAdapter) ChannelInactive(ctx *HandlerContext) error {
	ctx.FireChannelInactive()
	return nil
}

func (InboundHandlerAdapter) ChannelRead(ctx *HandlerContext, msg any) error {
	ctx.FireChannelRead(msg)
	return nil
}

func (InboundHandlerAdapter) ChannelReadComplete(ctx *HandlerContext) error {
	ctx.FireChannelReadComplete()
	return nil
}

func (InboundHandlerAdapter) ChannelWritabilityChanged(ctx *HandlerContext) error {
	ctx.FireChannelWritabilityChanged()
	return nil
}

func (InboundHandlerAdapter) UserEventTriggered(ctx *HandlerContext, event any) error {
	ctx.FireUserEventTriggered(event)
	return nil
}

func (InboundHandlerAdapter) ExceptionCaught(ctx *HandlerContext, cause error) error {
	ctx.FireExceptionCaught(cause)
	return nil
}

// AutoReleaseInboundHandler wraps ChannelRead so the message is released
// (if reference-counted) after the embedding handler's own ChannelRead
// returns, unless the handler already consumed it via an extra Retain.
// Grounded on §4.5's "message auto-release base handler variant".
// Embed this instead of InboundHandlerAdapter and implement Read instead
// of ChannelRead.
type AutoReleaseInboundHandler struct {
	InboundHandlerAdapter
	// Read is invoked by ChannelRead with a reference the embedder must
	// not release itself; the adapter releases it afterward. To keep the
	// message, the embedder should Retain(1) before returning.
	Read func(ctx *HandlerContext, msg any) error
}

func (h AutoReleaseInboundHandler) ChannelRead(ctx *HandlerContext, msg any) error {
	var err error
	if h.Read != nil {
		err = h.Read(ctx, msg)
	}
	if rc, ok := msg.(ReferenceCounted); ok {
		_, _ = rc.Release(1)
	}
	return err
}

// OutboundHandlerAdapter gives every outbound callback a default
// implementation that forwards the request further toward Head (the
// source's ChannelOutboundHandlerAdapter).
type OutboundHandlerAdapter struct{}

func (OutboundHandlerAdapter) HandlerAdded(*HandlerContext) error   { return nil }
func (OutboundHandlerAdapter) HandlerRemoved(*HandlerContext) error { return nil }

func (OutboundHandlerAdapter) Bind(ctx *HandlerContext, local net.Addr, promise Promise) error {
	return ctx.Bind(local, promise)
}

func (OutboundHandlerAdapter) Connect(ctx *HandlerContext, remote, local net.Addr, promise Promise) error {
	return ctx.Connect(remote, local, promise)
}

func (OutboundHandlerAdapter) Disconnect(ctx *HandlerContext, promise Promise) error {
	return ctx.Disconnect(promise)
}

func (OutboundHandlerAdapter) Close(ctx *HandlerContext, promise Promise) error {
	return ctx.Close(promise)
}

func (OutboundHandlerAdapter) Deregister(ctx *HandlerContext, promise Promise) error {
	return ctx.Deregister(promise)
}

func (OutboundHandlerAdapter) Read(ctx *HandlerContext) error {
	return ctx.Read()
}

func (OutboundHandlerAdapter) Write(ctx *HandlerContext, msg any, promise Promise) error {
	return ctx.Write(msg, promise)
}

func (OutboundHandlerAdapter) Flush(ctx *HandlerContext) error {
	return ctx.Flush()
}
