package nettle

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inboundCollector copies every Buffer it reads into a Go channel and
// releases the original, so the test goroutine can assert on payloads
// without touching pipeline-owned memory.
type inboundCollector struct {
	InboundHandlerAdapter
	payloads chan []byte
}

func (h *inboundCollector) ChannelRead(ctx *HandlerContext, msg any) error {
	if buf, ok := msg.(Buffer); ok {
		data := make([]byte, buf.ReadableBytes())
		buf.Read(data)
		_, _ = buf.Release(1)
		h.payloads <- data
		return nil
	}
	ctx.FireChannelRead(msg)
	return nil
}

// TestConnChannelEndToEnd drives a conn-backed channel over an in-process
// net.Pipe: inbound bytes surface as pipeline ChannelRead events, and an
// outbound WriteAndFlush reaches the peer.
func TestConnChannelEndToEnd(t *testing.T) {
	exec := startTestExecutor(t)

	client, server := net.Pipe()
	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	ch, err := NewConnChannel(exec, client)
	require.NoError(t, err)

	collector := &inboundCollector{payloads: make(chan []byte, 8)}
	_, err = ch.Pipeline().AddLast("collector", collector)
	require.NoError(t, err)

	require.NoError(t, ch.Register().Sync())
	require.NoError(t, ch.Connect(context.Background(), nil).Sync())
	require.True(t, ch.IsActive())

	// Inbound: peer -> pipeline.
	go func() { _, _ = server.Write([]byte("ping")) }()
	select {
	case got := <-collector.payloads:
		assert.Equal(t, "ping", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("inbound payload never reached the pipeline")
	}

	// Outbound: pipeline -> peer. net.Pipe writes rendezvous with reads,
	// so drain the server side concurrently.
	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 16)
		n, err := server.Read(buf)
		if err == nil {
			received <- buf[:n]
		}
	}()

	out, err := ch.config.allocator.IO(16, 16)
	require.NoError(t, err)
	_, err = out.Write([]byte("pong"))
	require.NoError(t, err)
	require.NoError(t, ch.WriteAndFlush(out).Sync())

	select {
	case got := <-received:
		assert.Equal(t, "pong", string(got))
	case <-time.After(5 * time.Second):
		t.Fatal("outbound payload never reached the peer")
	}

	require.NoError(t, ch.Close().Sync())
	assert.False(t, ch.IsOpen())
}

// TestConnChannelPeerCloseDeactivates verifies the read loop folds an EOF
// from the peer into the channel lifecycle: the channel leaves Active and
// its close future completes.
func TestConnChannelPeerCloseDeactivates(t *testing.T) {
	exec := startTestExecutor(t)

	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close() })

	ch, err := NewConnChannel(exec, client)
	require.NoError(t, err)
	require.NoError(t, ch.Register().Sync())
	require.NoError(t, ch.Connect(context.Background(), nil).Sync())

	closed := make(chan struct{})
	ch.CloseFuture().AddListener(func(Future) { close(closed) })

	_ = server.Close()

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("peer close did not complete the channel's close future")
	}
	assert.False(t, ch.IsActive())
}

func TestDialChannelConnectFailureSurfacesIOError(t *testing.T) {
	exec := startTestExecutor(t)

	ch, err := NewDialChannel(exec, "tcp", WithConnectTimeout(500*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, ch.Register().Sync())

	// Loopback port 1: nothing listens there.
	addr := &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}
	err = ch.Connect(context.Background(), addr).Sync()
	require.Error(t, err, "connecting to a dead port must fail")
	var ioErr *IOError
	require.ErrorAs(t, err, &ioErr)
}
