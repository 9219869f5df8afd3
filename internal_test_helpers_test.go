package nettle

import (
	"context"
	"net"
	"testing"
)

// stubUnsafe is a channelUnsafe double for tests that exercise Channel,
// Pipeline, OutboundBuffer, Group, or ChannelPool behavior without a real
// socket. Every method is overridable via the function fields so a test can
// script exactly the failure or success it wants to observe.
type stubUnsafe struct {
	ch *Channel

	onRegister       func() error
	onBind           func(net.Addr) error
	onConnect        func(ch *Channel) Future
	onAccept         func() (*Channel, error)
	onRead           func() error
	onWritev         func(net.Buffers) (int64, error)
	onCloseForcibly  func() error
	writeCalls       int
	closeForciblyRan bool
}

func (u *stubUnsafe) localAddress() net.Addr  { return nil }
func (u *stubUnsafe) remoteAddress() net.Addr { return nil }

func (u *stubUnsafe) register() error {
	if u.onRegister != nil {
		return u.onRegister()
	}
	return nil
}

func (u *stubUnsafe) bind(local net.Addr) error {
	if u.onBind != nil {
		return u.onBind(local)
	}
	return nil
}

func (u *stubUnsafe) connect(ctx context.Context, remote net.Addr) Future {
	if u.onConnect != nil {
		return u.onConnect(u.ch)
	}
	return SucceededFuture(u.ch.executor, nil)
}

func (u *stubUnsafe) accept() (*Channel, error) {
	if u.onAccept != nil {
		return u.onAccept()
	}
	return nil, ErrProtocolViolation
}

func (u *stubUnsafe) read() error {
	if u.onRead != nil {
		return u.onRead()
	}
	return nil
}

func (u *stubUnsafe) writev(bufs net.Buffers) (int64, error) {
	u.writeCalls++
	if u.onWritev != nil {
		return u.onWritev(bufs)
	}
	var n int64
	for _, b := range bufs {
		n += int64(len(b))
	}
	return n, nil
}

func (u *stubUnsafe) closeForcibly() error {
	u.closeForciblyRan = true
	if u.onCloseForcibly != nil {
		return u.onCloseForcibly()
	}
	return nil
}

func (u *stubUnsafe) shutdownInput() error  { return nil }
func (u *stubUnsafe) shutdownOutput() error { return nil }

var _ channelUnsafe = (*stubUnsafe)(nil)

// newTestChannel builds a Channel backed by a fresh stubUnsafe, either bound
// to executor (pass one running via Run for tests that need real
// trampolining) or nil (listener callbacks then run inline on the calling
// goroutine, sufficient for single-threaded assertions).
func newTestChannel(t *testing.T, executor *Executor, opts ...ChannelOption) (*Channel, *stubUnsafe) {
	t.Helper()
	u := &stubUnsafe{}
	ch, err := NewChannel(executor, u, ChannelMetadata{HasDisconnect: true}, nil, opts...)
	if err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	u.ch = ch
	return ch, u
}
