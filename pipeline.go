package nettle

import (
	"context"
	"fmt"
	"net"
	"sync"
)

// Pipeline is the per-channel doubly-linked chain of handlers bracketed
// by a synthetic Head and Tail (§3, §4.5). Head forwards outbound
// requests to the channel's low-level I/O; Tail drops unconsumed inbound
// events (releasing reference-counted messages, with a leak-detector
// hint) and is the default exception sink.
//
// Grounded on other_examples' matcha duplexPipeline (the clearest
// Netty-shaped reference in the retrieval pack) for the general
// head/tail chain-of-responsibility shape, generalized from its
// goroutine-per-direction design to this module's single-executor
// trampolining model (§9).
type Pipeline struct {
	mu      sync.Mutex
	channel *Channel
	head    *HandlerContext
	tail    *HandlerContext
	byName  map[string]*HandlerContext
}

func newPipeline(ch *Channel) *Pipeline {
	p := &Pipeline{channel: ch, byName: make(map[string]*HandlerContext)}
	head := newHandlerContext("<head>", &pipelineHead{channel: ch}, p, ch.executor)
	tail := newHandlerContext("<tail>", &pipelineTail{}, p, ch.executor)
	head.next = tail
	tail.prev = head
	p.head = head
	p.tail = tail
	p.byName[head.name] = head
	p.byName[tail.name] = tail
	return p
}

// Channel returns the owning channel.
func (p *Pipeline) Channel() *Channel { return p.channel }

func (p *Pipeline) nameFor(h Handler, requested string) (string, error) {
	if requested != "" {
		if _, exists := p.byName[requested]; exists {
			return "", fmt.Errorf("nettle: handler name %q already in use: %w", requested, ErrProtocolViolation)
		}
		return requested, nil
	}
	base := fmt.Sprintf("%T", h)
	name := base
	for i := 0; ; i++ {
		if _, exists := p.byName[name]; !exists {
			return name, nil
		}
		name = fmt.Sprintf("%s#%d", base, i)
	}
}

// checkSharable enforces §9's Sharable contract: a non-Sharable handler
// may be present in at most one context across this pipeline at a time.
func (p *Pipeline) checkSharable(h Handler) error {
	if s, ok := h.(Sharable); ok && s.Sharable() {
		return nil
	}
	for _, ctx := range p.byName {
		if ctx.handler == h {
			return fmt.Errorf("nettle: handler already added and not Sharable: %w", ErrProtocolViolation)
		}
	}
	return nil
}

// AddLast appends h immediately before Tail. name may be empty to derive
// one from the handler's type.
func (p *Pipeline) AddLast(name string, h Handler) (*HandlerContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkSharable(h); err != nil {
		return nil, err
	}
	resolved, err := p.nameFor(h, name)
	if err != nil {
		return nil, err
	}
	ctx := newHandlerContext(resolved, h, p, p.channel.executor)
	p.linkBefore(p.tail, ctx)
	p.byName[resolved] = ctx
	p.callHandlerAdded(ctx)
	return ctx, nil
}

// AddFirst inserts h immediately after Head.
func (p *Pipeline) AddFirst(name string, h Handler) (*HandlerContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.checkSharable(h); err != nil {
		return nil, err
	}
	resolved, err := p.nameFor(h, name)
	if err != nil {
		return nil, err
	}
	ctx := newHandlerContext(resolved, h, p, p.channel.executor)
	p.linkAfter(p.head, ctx)
	p.byName[resolved] = ctx
	p.callHandlerAdded(ctx)
	return ctx, nil
}

// AddBefore inserts h immediately before the context named baseName.
func (p *Pipeline) AddBefore(baseName, name string, h Handler) (*HandlerContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base, ok := p.byName[baseName]
	if !ok {
		return nil, fmt.Errorf("nettle: no handler named %q: %w", baseName, ErrProtocolViolation)
	}
	if err := p.checkSharable(h); err != nil {
		return nil, err
	}
	resolved, err := p.nameFor(h, name)
	if err != nil {
		return nil, err
	}
	ctx := newHandlerContext(resolved, h, p, p.channel.executor)
	p.linkBefore(base, ctx)
	p.byName[resolved] = ctx
	p.callHandlerAdded(ctx)
	return ctx, nil
}

// AddAfter inserts h immediately after the context named baseName.
func (p *Pipeline) AddAfter(baseName, name string, h Handler) (*HandlerContext, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	base, ok := p.byName[baseName]
	if !ok {
		return nil, fmt.Errorf("nettle: no handler named %q: %w", baseName, ErrProtocolViolation)
	}
	if err := p.checkSharable(h); err != nil {
		return nil, err
	}
	resolved, err := p.nameFor(h, name)
	if err != nil {
		return nil, err
	}
	ctx := newHandlerContext(resolved, h, p, p.channel.executor)
	p.linkAfter(base, ctx)
	p.byName[resolved] = ctx
	p.callHandlerAdded(ctx)
	return ctx, nil
}

// Remove detaches the context named name from the pipeline. Dynamic
// mutation during event propagation is safe (§4.5): in-flight fire calls
// captured their next/prev context before this unlink takes effect, so a
// removed handler observes no further events after HandlerRemoved.
func (p *Pipeline) Remove(name string) error {
	p.mu.Lock()
	ctx, ok := p.byName[name]
	if !ok || ctx == p.head || ctx == p.tail {
		p.mu.Unlock()
		return fmt.Errorf("nettle: no removable handler named %q: %w", name, ErrProtocolViolation)
	}
	p.unlink(ctx)
	delete(p.byName, name)
	p.mu.Unlock()
	p.callHandlerRemoved(ctx)
	return nil
}

// RemoveHandler detaches the (single) context wrapping h, keyed by handler
// reference instead of name.
func (p *Pipeline) RemoveHandler(h Handler) error {
	p.mu.Lock()
	var found *HandlerContext
	for _, ctx := range p.byName {
		if ctx.handler == h && ctx != p.head && ctx != p.tail {
			found = ctx
			break
		}
	}
	if found == nil {
		p.mu.Unlock()
		return fmt.Errorf("nettle: handler not present in pipeline: %w", ErrProtocolViolation)
	}
	p.unlink(found)
	delete(p.byName, found.name)
	p.mu.Unlock()
	p.callHandlerRemoved(found)
	return nil
}

// Replace swaps the handler at name for newHandler, keeping the same
// position. The old handler's HandlerRemoved and the new handler's
// HandlerAdded both fire.
func (p *Pipeline) Replace(name, newName string, newHandler Handler) (*HandlerContext, error) {
	p.mu.Lock()
	old, ok := p.byName[name]
	if !ok || old == p.head || old == p.tail {
		p.mu.Unlock()
		return nil, fmt.Errorf("nettle: no replaceable handler named %q: %w", name, ErrProtocolViolation)
	}
	if err := p.checkSharable(newHandler); err != nil {
		p.mu.Unlock()
		return nil, err
	}
	resolved := newName
	if resolved == "" {
		resolved = name
	}
	if resolved != name {
		if _, exists := p.byName[resolved]; exists {
			p.mu.Unlock()
			return nil, fmt.Errorf("nettle: handler name %q already in use: %w", resolved, ErrProtocolViolation)
		}
	}
	ctx := newHandlerContext(resolved, newHandler, p, p.channel.executor)
	ctx.prev, ctx.next = old.prev, old.next
	ctx.prev.next = ctx
	ctx.next.prev = ctx
	delete(p.byName, name)
	p.byName[resolved] = ctx
	p.mu.Unlock()
	p.callHandlerRemoved(old)
	p.callHandlerAdded(ctx)
	return ctx, nil
}

// Get returns the context named name, if present.
func (p *Pipeline) Get(name string) (*HandlerContext, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ctx, ok := p.byName[name]
	return ctx, ok
}

func (p *Pipeline) linkBefore(mark, ctx *HandlerContext) {
	ctx.prev = mark.prev
	ctx.next = mark
	mark.prev.next = ctx
	mark.prev = ctx
}

func (p *Pipeline) linkAfter(mark, ctx *HandlerContext) {
	ctx.prev = mark
	ctx.next = mark.next
	mark.next.prev = ctx
	mark.next = ctx
}

func (p *Pipeline) unlink(ctx *HandlerContext) {
	ctx.prev.next = ctx.next
	ctx.next.prev = ctx.prev
	ctx.removed = true
}

func (p *Pipeline) callHandlerAdded(ctx *HandlerContext) {
	trampoline(ctx.executor, func() {
		defer func() {
			if r := recover(); r != nil {
				internalLogger().Error("panic in HandlerAdded", PanicError{Value: r})
			}
		}()
		if err := ctx.handler.HandlerAdded(ctx); err != nil {
			internalLogger().Error("error returned from HandlerAdded", err)
		}
	})
}

func (p *Pipeline) callHandlerRemoved(ctx *HandlerContext) {
	trampoline(ctx.executor, func() {
		defer func() {
			if r := recover(); r != nil {
				internalLogger().Error("panic in HandlerRemoved", PanicError{Value: r})
			}
		}()
		if err := ctx.handler.HandlerRemoved(ctx); err != nil {
			internalLogger().Error("error returned from HandlerRemoved", err)
		}
	})
}

// --- pipeline-level entry points: inbound events start at Head ---

func (p *Pipeline) FireChannelRegistered() *Pipeline     { p.head.FireChannelRegistered(); return p }
func (p *Pipeline) FireChannelUnregistered() *Pipeline   { p.head.FireChannelUnregistered(); return p }
func (p *Pipeline) FireChannelActive() *Pipeline         { p.head.FireChannelActive(); return p }
func (p *Pipeline) FireChannelInactive() *Pipeline       { p.head.FireChannelInactive(); return p }
func (p *Pipeline) FireChannelRead(msg any) *Pipeline    { p.head.FireChannelRead(msg); return p }
func (p *Pipeline) FireChannelReadComplete() *Pipeline   { p.head.FireChannelReadComplete(); return p }
func (p *Pipeline) FireUserEventTriggered(e any) *Pipeline {
	p.head.FireUserEventTriggered(e)
	return p
}
func (p *Pipeline) FireChannelWritabilityChanged() *Pipeline {
	p.head.FireChannelWritabilityChanged()
	return p
}
func (p *Pipeline) FireExceptionCaught(cause error) *Pipeline {
	p.head.FireExceptionCaught(cause)
	return p
}

// --- pipeline-level entry points: outbound requests start at Tail ---

func (p *Pipeline) Bind(local net.Addr) Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Bind(local, promise)
	return promise
}

func (p *Pipeline) Connect(ctx context.Context, remote net.Addr) Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Connect(remote, nil, promise)
	return promise
}

func (p *Pipeline) Disconnect() Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Disconnect(promise)
	return promise
}

func (p *Pipeline) Close() Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Close(promise)
	return promise
}

func (p *Pipeline) Deregister() Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Deregister(promise)
	return promise
}

func (p *Pipeline) Read() *Pipeline {
	_ = p.tail.Read()
	return p
}

func (p *Pipeline) Write(msg any) Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.Write(msg, promise)
	return promise
}

func (p *Pipeline) WriteAndFlush(msg any) Future {
	promise := NewPromise(p.channel.executor)
	_ = p.tail.WriteAndFlush(msg, promise)
	return promise
}

func (p *Pipeline) Flush() *Pipeline {
	_ = p.tail.Flush()
	return p
}

// pipelineHead is the synthetic outbound terminus: it hands every
// outbound request to the channel's Unsafe I/O primitives (§3, §4.5).
type pipelineHead struct {
	OutboundHandlerAdapter
	channel *Channel
}

func (h *pipelineHead) Bind(_ *HandlerContext, local net.Addr, promise Promise) error {
	return h.channel.unsafeBind(local, promise)
}

func (h *pipelineHead) Connect(_ *HandlerContext, remote, local net.Addr, promise Promise) error {
	return h.channel.unsafeConnect(remote, promise)
}

func (h *pipelineHead) Disconnect(_ *HandlerContext, promise Promise) error {
	return h.channel.unsafeClose(promise)
}

func (h *pipelineHead) Close(_ *HandlerContext, promise Promise) error {
	return h.channel.unsafeClose(promise)
}

func (h *pipelineHead) Deregister(_ *HandlerContext, promise Promise) error {
	return h.channel.unsafeDeregister(promise)
}

func (h *pipelineHead) Read(*HandlerContext) error {
	return h.channel.unsafeBeginRead()
}

func (h *pipelineHead) Write(_ *HandlerContext, msg any, promise Promise) error {
	return h.channel.unsafeWrite(msg, promise)
}

func (h *pipelineHead) Flush(*HandlerContext) error {
	return h.channel.unsafeFlush()
}

// pipelineTail is the synthetic inbound terminus: any inbound message
// that survives to here is unconsumed and is released with a
// leak-detector hint (§4.5); unhandled exceptions are logged, never
// re-thrown.
type pipelineTail struct {
	InboundHandlerAdapter
}

func (pipelineTail) ChannelRead(ctx *HandlerContext, msg any) error {
	if rc, ok := msg.(ReferenceCounted); ok {
		rc.Touch("pipeline tail: message reached end of pipeline unconsumed")
		_, _ = rc.Release(1)
	}
	return nil
}

func (pipelineTail) ExceptionCaught(ctx *HandlerContext, cause error) error {
	internalLogger().Error("unhandled exception reached pipeline tail", cause)
	return nil
}
