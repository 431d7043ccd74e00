package fsock

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// scriptedListener is a minimal net.Listener+acceptDeadliner fake used to
// drive acceptLoop through a non-timeout accept error followed by a real
// connection, without depending on actual OS socket timing.
type scriptedListener struct {
	mu      sync.Mutex
	results []acceptResult
	idx     int
	addr    net.Addr
}

type acceptResult struct {
	conn net.Conn
	err  error
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.idx >= len(l.results) {
		return nil, timeoutError{}
	}
	r := l.results[l.idx]
	l.idx++
	return r.conn, r.err
}

func (l *scriptedListener) Close() error                  { return nil }
func (l *scriptedListener) Addr() net.Addr                { return l.addr }
func (l *scriptedListener) SetDeadline(_ time.Time) error { return nil }

func TestAcceptLoopContinuesPastNonTimeoutErrorThenAccepts(t *testing.T) {
	local, remote := net.Pipe()
	t.Cleanup(func() { _ = local.Close(); _ = remote.Close() })

	fl := &scriptedListener{
		addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999},
		results: []acceptResult{
			{err: errors.New("accept: resource temporarily unavailable (not a timeout)")},
			{conn: local},
		},
	}

	s := newSocket(kindListener, fastConfig())
	s.listener = fl
	go s.acceptLoop()

	ev := waitEvent(t, s.Events(), 2*time.Second)
	require.Equal(t, KindNewConnection, ev.Kind)
	require.NotNil(t, ev.Conn)
	defer ev.Conn.Free()

	s.teardown()
}

func TestAcceptLoopExitsSilentlyOnLocalTeardown(t *testing.T) {
	fl := &scriptedListener{addr: &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 9999}}

	s := newSocket(kindListener, fastConfig())
	s.listener = fl
	finished := make(chan struct{})
	go func() {
		s.acceptLoop()
		close(finished)
	}()

	time.Sleep(20 * time.Millisecond)
	s.teardown()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("acceptLoop did not exit after local teardown")
	}
}
