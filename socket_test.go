package fsock

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// loopbackAddr returns a tcp:// address on a loopback port that was free a
// moment ago. Bind rejects port 0, so the tests cannot ask it for an
// ephemeral port directly.
func loopbackAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return "tcp://" + addr
}

func fastConfig() *Config {
	cfg := DefaultConfig()
	cfg.PollDeadline = 50 * time.Millisecond
	return cfg
}

func waitEvent(t *testing.T, ch <-chan Event, timeout time.Duration) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(timeout):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func TestBindInvalidAddressNeverStartsAcceptor(t *testing.T) {
	_, err := Bind("not-a-scheme://host:1", fastConfig())
	require.Error(t, err)
	require.ErrorIs(t, err, ErrInvalidAddress)
}

func TestConnectInvalidAddressNeverStartsTasks(t *testing.T) {
	_, err := Connect("tcp://127.0.0.1", fastConfig())
	require.Error(t, err)
}

func TestBindUnixSchemeUnsupported(t *testing.T) {
	_, err := Bind("unix:///tmp/fsock-test.sock", fastConfig())
	require.ErrorIs(t, err, ErrUnsupported)
}

// TestEchoRoundTrip realizes scenario S1: bind, connect, exchange a frame in
// each direction, and observe the NewConnection/Frame events on each side.
func TestEchoRoundTrip(t *testing.T) {
	ln, err := Bind(loopbackAddr(t), fastConfig())
	require.NoError(t, err)
	defer ln.Free()

	addr := "tcp://" + ln.listener.Addr().String()
	client, err := Connect(addr, fastConfig())
	require.NoError(t, err)
	defer client.Free()

	ev := waitEvent(t, ln.Events(), 2*time.Second)
	require.Equal(t, KindNewConnection, ev.Kind)
	server := ev.Conn
	defer server.Free()

	require.NoError(t, client.Send(NewFrame([]byte("ping"))))
	frameEv := waitEvent(t, server.Events(), 2*time.Second)
	require.Equal(t, KindFrame, frameEv.Kind)
	require.Equal(t, "ping", string(frameEv.Frame.Payload()))

	require.NoError(t, server.SendBytes([]byte("pong-extra"), 4))
	reply := waitEvent(t, client.Events(), 2*time.Second)
	require.Equal(t, KindFrame, reply.Kind)
	require.Equal(t, "pong", string(reply.Frame.Payload()))
}

// TestBurstOrderingIsFIFO realizes scenario S3: many frames sent back-to-back
// arrive in the same order, byte-identical.
func TestBurstOrderingIsFIFO(t *testing.T) {
	ln, err := Bind(loopbackAddr(t), fastConfig())
	require.NoError(t, err)
	defer ln.Free()

	addr := "tcp://" + ln.listener.Addr().String()
	client, err := Connect(addr, fastConfig())
	require.NoError(t, err)
	defer client.Free()

	ev := waitEvent(t, ln.Events(), 2*time.Second)
	server := ev.Conn
	defer server.Free()

	const n = 200
	for i := 0; i < n; i++ {
		require.NoError(t, client.Send(NewFrame([]byte{byte(i), byte(i >> 8)})))
	}

	for i := 0; i < n; i++ {
		frameEv := waitEvent(t, server.Events(), 2*time.Second)
		require.Equal(t, KindFrame, frameEv.Kind)
		payload := frameEv.Frame.Payload()
		require.Equal(t, byte(i), payload[0])
		require.Equal(t, byte(i>>8), payload[1])
	}
}

// TestPeerCloseEmitsExactlyOneClose realizes scenario S2: when one side goes
// away, the other observes at most one Close event, and no Frame events
// follow it.
func TestPeerCloseEmitsExactlyOneClose(t *testing.T) {
	ln, err := Bind(loopbackAddr(t), fastConfig())
	require.NoError(t, err)
	defer ln.Free()

	addr := "tcp://" + ln.listener.Addr().String()
	client, err := Connect(addr, fastConfig())
	require.NoError(t, err)

	ev := waitEvent(t, ln.Events(), 2*time.Second)
	server := ev.Conn
	defer server.Free()

	client.Free() // peer goes away without sending Close itself

	closeEv := waitEvent(t, server.Events(), 2*time.Second)
	require.Equal(t, KindClose, closeEv.Kind)
	require.Same(t, server, closeEv.Conn)
	require.True(t, server.IsDead())

	select {
	case extra := <-server.Events():
		t.Fatalf("unexpected second event after Close: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

// TestLocalTeardownDoesNotEmitClose: an application-initiated Free() on a
// still-active socket marks it dead without a spurious Close event, per
// spec.md §3 invariant 3 and the teardown path in §4.1/§4.3.
func TestLocalTeardownDoesNotEmitClose(t *testing.T) {
	ln, err := Bind(loopbackAddr(t), fastConfig())
	require.NoError(t, err)
	defer ln.Free()

	addr := "tcp://" + ln.listener.Addr().String()
	client, err := Connect(addr, fastConfig())
	require.NoError(t, err)

	ev := waitEvent(t, ln.Events(), 2*time.Second)
	server := ev.Conn

	require.False(t, server.IsDead())
	server.Free()
	require.True(t, server.IsDead())

	select {
	case unexpected := <-server.Events():
		t.Fatalf("unexpected event on self-torn-down socket: %+v", unexpected)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSendOnDeadSocketReturnsErrClosed(t *testing.T) {
	s := newSocket(kindConnected, fastConfig())
	s.teardown()
	err := s.Send(NewFrame([]byte("x")))
	require.ErrorIs(t, err, ErrClosed)
}

func TestSendOnListenerReturnsErrUnsupported(t *testing.T) {
	s := newSocket(kindListener, fastConfig())
	err := s.Send(NewFrame([]byte("x")))
	require.ErrorIs(t, err, ErrUnsupported)
}

// TestSendBytesEquivalentToNewFrameThenSend realizes spec.md §8 property 8.
func TestSendBytesEquivalentToNewFrameThenSend(t *testing.T) {
	cfg := fastConfig()
	cfg.MaxQueueDepth = 10

	a := newSocket(kindConnected, cfg)
	b := newSocket(kindConnected, cfg)

	buf := []byte("payload-with-trailer-bytes")
	require.NoError(t, a.SendBytes(buf, 7))
	require.NoError(t, b.Send(NewFrame(buf[:7])))

	require.Equal(t, a.queue.items[0], b.queue.items[0])
}

func TestBackpressureReturnsErrQueueFullWithoutDropping(t *testing.T) {
	// spec.md §9 open-question resolution: a bounded queue fails closed
	// (ErrQueueFull) instead of silently dropping or blocking.
	cfg := fastConfig()
	cfg.MaxQueueDepth = 2

	s := newSocket(kindConnected, cfg)
	require.NoError(t, s.Send(NewFrame([]byte("1"))))
	require.NoError(t, s.Send(NewFrame([]byte("2"))))
	err := s.Send(NewFrame([]byte("3")))
	require.ErrorIs(t, err, ErrQueueFull)
	require.Len(t, s.queue.items, 2)
}
