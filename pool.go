package nettle

import (
	"context"
	"net"
	"sync"
)

// ChannelPoolHandler observes acquire/release lifecycle events for
// channels managed by a ChannelPool (§4.8's pooling supplement), mirroring
// the Handler.HandlerAdded/HandlerRemoved shape elsewhere in this package.
type ChannelPoolHandler interface {
	// ChannelCreated is called once, right after a new pooled channel is
	// connected.
	ChannelCreated(ch *Channel) error
	// ChannelAcquired is called every time a channel is handed out by Get.
	ChannelAcquired(ch *Channel) error
	// ChannelReleased is called every time a channel is returned via Put.
	ChannelReleased(ch *Channel) error
}

// NopChannelPoolHandler is a ChannelPoolHandler whose callbacks all
// succeed and do nothing, for callers with no pooling side effects to run.
type NopChannelPoolHandler struct{}

func (NopChannelPoolHandler) ChannelCreated(*Channel) error  { return nil }
func (NopChannelPoolHandler) ChannelAcquired(*Channel) error { return nil }
func (NopChannelPoolHandler) ChannelReleased(*Channel) error { return nil }

// ChannelHealthChecker decides whether a pooled channel is still fit to
// hand out. The default simply checks IsActive.
type ChannelHealthChecker interface {
	IsHealthy(ch *Channel) bool
}

type activeHealthChecker struct{}

func (activeHealthChecker) IsHealthy(ch *Channel) bool { return ch.IsActive() }

// channelPoolKey is the attribute under which an acquired channel records
// the pool it came from. Set on acquire, detached on release, so handler
// code holding only the channel can still route it home.
var channelPoolKey = NewAttributeKey[*ChannelPool]("nettle.channel-pool")

// PoolOf returns the ChannelPool ch is currently checked out of, if any.
func PoolOf(ch *Channel) (*ChannelPool, bool) {
	return Get(ch.Attributes(), channelPoolKey)
}

// ChannelPool is a capacity-bounded LIFO pool of channels connected to
// one remote address (§4.8's pooling supplement). Idle channels sit on a
// mutex-guarded stack: Release pushes at the tail and Acquire pops from
// the tail, so the most recently used connection — the one most likely
// still warm in the peer's caches and least likely to have idled out —
// goes back out first. The LIFO double-ended-queue discipline follows
// ygrebnov-workers/pool/fixed.go's bounded-reuse design, reshaped from
// its three-channel scheme into the deque the acquire/release contract
// names; the capacity bounds the idle stack, and a Release that finds it
// full closes the channel and fails.
type ChannelPool struct {
	executor *Executor
	dial     func(ctx context.Context) (net.Conn, error)
	opts     []ChannelOption
	handler  ChannelPoolHandler
	checker  ChannelHealthChecker

	mu       sync.Mutex
	idle     []*Channel // LIFO: push and pop at the tail
	capacity int
	closed   bool
}

// NewChannelPool creates a pool holding at most capacity idle channels,
// each dialed via dial and wrapped with NewConnChannel(executor, conn,
// opts...).
func NewChannelPool(executor *Executor, capacity int, dial func(ctx context.Context) (net.Conn, error), opts ...ChannelOption) *ChannelPool {
	return &ChannelPool{
		executor: executor,
		dial:     dial,
		opts:     opts,
		handler:  NopChannelPoolHandler{},
		checker:  activeHealthChecker{},
		idle:     make([]*Channel, 0, capacity),
		capacity: capacity,
	}
}

// SetHandler installs a ChannelPoolHandler. Must be called before the
// first Acquire.
func (p *ChannelPool) SetHandler(h ChannelPoolHandler) {
	if h == nil {
		h = NopChannelPoolHandler{}
	}
	p.handler = h
}

// SetHealthChecker installs a ChannelHealthChecker. Must be called before
// the first Acquire.
func (p *ChannelPool) SetHealthChecker(c ChannelHealthChecker) {
	if c == nil {
		c = activeHealthChecker{}
	}
	p.checker = c
}

// Acquire pops the most recently released idle channel, bootstrapping a
// fresh one via the configured dialer when the stack is empty. An idle
// channel that fails its health check is closed and the next candidate
// tried, so a stack full of dead connections degrades into a plain dial
// rather than an error.
func (p *ChannelPool) Acquire(ctx context.Context) (*Channel, error) {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, ErrClosedResource
		}
		var ch *Channel
		if n := len(p.idle); n > 0 {
			ch = p.idle[n-1]
			p.idle[n-1] = nil
			p.idle = p.idle[:n-1]
		}
		p.mu.Unlock()

		if ch == nil {
			created, err := p.create(ctx)
			if err != nil {
				return nil, err
			}
			ch = created
		} else if !p.checker.IsHealthy(ch) {
			_ = ch.Close()
			continue
		}

		Set(ch.Attributes(), channelPoolKey, p)
		if err := p.handler.ChannelAcquired(ch); err != nil {
			Remove(ch.Attributes(), channelPoolKey)
			return nil, err
		}
		return ch, nil
	}
}

// create dials a fresh connection and brings the resulting channel all the
// way to Active, since Acquire hands callers an immediately usable channel
// rather than one still sitting in Unregistered (§4.4: Connect only moves
// Registered -> Active, so Register must run first).
func (p *ChannelPool) create(ctx context.Context) (*Channel, error) {
	conn, err := p.dial(ctx)
	if err != nil {
		return nil, err
	}
	ch, err := NewConnChannel(p.executor, conn, p.opts...)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Register().Sync(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.Connect(ctx, conn.RemoteAddr()).Sync(); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := p.handler.ChannelCreated(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return ch, nil
}

// Release returns ch to the pool for reuse. The pool attribute is
// detached unconditionally: once released, the channel is no longer
// "checked out" of anything. A release that cannot be honored — pool
// closed, channel unhealthy, or the idle stack already at capacity —
// closes the channel and reports why.
func (p *ChannelPool) Release(ch *Channel) error {
	Remove(ch.Attributes(), channelPoolKey)

	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		_ = ch.Close()
		return ErrClosedResource
	}
	if !p.checker.IsHealthy(ch) {
		_ = ch.Close()
		return ErrClosedResource
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		_ = ch.Close()
		return ErrClosedResource
	}
	if len(p.idle) >= p.capacity {
		p.mu.Unlock()
		_ = ch.Close()
		return ErrCapacityExceeded
	}
	p.idle = append(p.idle, ch)
	p.mu.Unlock()

	if err := p.handler.ChannelReleased(ch); err != nil {
		// The handler vetoed the release after the fact: pull the channel
		// back off the stack (it is still the tail unless a racing Acquire
		// already took it) and close it.
		p.mu.Lock()
		for i := len(p.idle) - 1; i >= 0; i-- {
			if p.idle[i] == ch {
				p.idle = append(p.idle[:i], p.idle[i+1:]...)
				break
			}
		}
		p.mu.Unlock()
		_ = ch.Close()
		return err
	}
	return nil
}

// Close closes every channel currently idle in the pool and marks it
// closed; channels already acquired and not yet released are closed as
// Release is called on them.
func (p *ChannelPool) Close() error {
	p.mu.Lock()
	p.closed = true
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()
	for _, ch := range idle {
		_ = ch.Close()
	}
	return nil
}

// ChannelPoolMap manages one ChannelPool per remote address, creating
// pools lazily and only once per address under concurrent access.
type ChannelPoolMap struct {
	executor *Executor
	capacity int
	dial     func(ctx context.Context, addr string) (net.Conn, error)
	opts     []ChannelOption

	mu    sync.Mutex
	pools map[string]*ChannelPool
}

// NewChannelPoolMap creates a registry of per-address pools, each created
// lazily via GetOrCreate.
func NewChannelPoolMap(executor *Executor, capacity int, dial func(ctx context.Context, addr string) (net.Conn, error), opts ...ChannelOption) *ChannelPoolMap {
	return &ChannelPoolMap{
		executor: executor,
		capacity: capacity,
		dial:     dial,
		opts:     opts,
		pools:    make(map[string]*ChannelPool),
	}
}

// GetOrCreate returns the existing pool for addr, or atomically creates
// one if this is the first request for that address.
func (m *ChannelPoolMap) GetOrCreate(addr string) *ChannelPool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pools[addr]; ok {
		return p
	}
	p := NewChannelPool(m.executor, m.capacity, func(ctx context.Context) (net.Conn, error) {
		return m.dial(ctx, addr)
	}, m.opts...)
	m.pools[addr] = p
	return p
}

// Remove closes and forgets the pool registered for addr, if any.
func (m *ChannelPoolMap) Remove(addr string) {
	m.mu.Lock()
	p, ok := m.pools[addr]
	if ok {
		delete(m.pools, addr)
	}
	m.mu.Unlock()
	if ok {
		_ = p.Close()
	}
}

// Close closes every pool currently registered.
func (m *ChannelPoolMap) Close() error {
	m.mu.Lock()
	pools := make([]*ChannelPool, 0, len(m.pools))
	for _, p := range m.pools {
		pools = append(pools, p)
	}
	m.pools = make(map[string]*ChannelPool)
	m.mu.Unlock()
	for _, p := range pools {
		_ = p.Close()
	}
	return nil
}
