package fsock

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// socketKind distinguishes a listening Socket from a connected one
// (spec.md §3 Socket.kind).
type socketKind int

const (
	kindListener socketKind = iota
	kindConnected
)

// Socket is the single handle an application holds for either a listening
// endpoint or one connected peer (spec.md §2, §3). Grounded structurally on
// SagerNet-smux's Session (session.go: conn, config, lifecycle channels,
// queue/parser state grouped by concern) and, for the exact operation set,
// on original_source/fmill.c's struct fmill_sock.
type Socket struct {
	kind socketKind
	cfg  *Config
	log  logger

	listener net.Listener // kindListener only
	conn     net.Conn     // kindConnected only

	parser inboundParser // kindConnected only
	queue  *outboundQueue // kindConnected only

	active    atomic.Bool
	closeOnce sync.Once

	// closePending is set by the Sender (via requestClose) when it observes
	// a non-recoverable write outcome. Only the Framer goroutine ever runs
	// closeProtocol's event send (see framerLoop's checkClosePending), so a
	// Frame send the Framer already has in flight on events always completes
	// before Close — see requestClose for why this hand-off exists.
	closePending atomic.Bool

	// done is closed exactly once, by whichever path clears active first
	// (a natural Close or a local teardown), so a Sender parked on the
	// outbound trigger wakes up instead of blocking forever (spec.md §3
	// invariant 5; see queue.go's park).
	done     chan struct{}
	doneOnce sync.Once

	events chan Event
}

func newSocket(kind socketKind, cfg *Config) *Socket {
	cfg = cfg.orDefault()
	s := &Socket{
		kind:   kind,
		cfg:    cfg,
		log:    newLogger(cfg.Logger),
		done:   make(chan struct{}),
		events: make(chan Event),
	}
	if kind == kindConnected {
		s.queue = newOutboundQueue(cfg.MaxQueueDepth)
	}
	s.active.Store(true)
	return s
}

// Bind creates a listening Socket bound to addr ("tcp://host:port"; a
// "unix://path" address is recognized but returns ErrUnsupported, spec.md
// §4.1). Spawns the Acceptor task. Grounded on
// original_source/fmill.c's fmill_sock_bind.
func Bind(addr string, cfg *Config) (*Socket, error) {
	pa, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if pa.kind == transportUnix {
		return nil, ErrUnsupported
	}

	cfg = cfg.orDefault()
	lc := net.ListenConfig{Control: controlReuseAddr}
	ln, err := lc.Listen(context.Background(), "tcp", pa.dialString())
	if err != nil {
		return nil, err
	}

	s := newSocket(kindListener, cfg)
	s.listener = ln
	go s.acceptLoop()
	return s, nil
}

// Connect establishes a connected Socket to addr. Spawns the Inbound Framer
// and Outbound Sender tasks. Grounded on
// original_source/fmill.c's fmill_sock_connect.
func Connect(addr string, cfg *Config) (*Socket, error) {
	pa, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	if pa.kind == transportUnix {
		return nil, ErrUnsupported
	}

	cfg = cfg.orDefault()
	conn, err := net.Dial("tcp", pa.dialString())
	if err != nil {
		return nil, err
	}

	s := newSocket(kindConnected, cfg)
	s.conn = conn
	go s.framerLoop()
	go s.senderLoop()
	return s, nil
}

// newAcceptedSocket wraps an already-accepted net.Conn as a connected
// Socket and spawns its tasks, mirroring the Acceptor's per-connection
// construction in fmill.c's tcpacceptor.
func newAcceptedSocket(conn net.Conn, cfg *Config) *Socket {
	s := newSocket(kindConnected, cfg)
	s.conn = conn
	go s.framerLoop()
	go s.senderLoop()
	return s
}

// Send transfers ownership of an already-built frame to the outbound queue
// (spec.md §4.2, §6 send). Never blocks on I/O; it sends on the trigger
// channel at most once, exactly if it wakes a parked Sender, and that send
// does not block because the trigger is buffered by one.
func (s *Socket) Send(f Frame) error {
	if s.kind != kindConnected {
		return ErrUnsupported
	}
	if s.IsDead() {
		return ErrClosed
	}
	return s.queue.push(encodeFrame(f))
}

// SendBytes builds a frame from buf[:length] via the codec and enqueues it
// (spec.md §4.2, §6 send_bytes; equivalent to NewFrame(buf[:length]) then
// Send, per spec.md §8 property 8). A length outside buf's bounds is a
// codec error, not a panic: the original treats size as caller-supplied and
// authoritative, but a Go caller's slicing mistake here should fail closed.
func (s *Socket) SendBytes(buf []byte, length int) error {
	if length < 0 || length > len(buf) {
		return &CodecError{Op: "send_bytes", Err: errInvalidLength}
	}
	return s.Send(NewFrame(buf[:length]))
}

// Events returns the receive end of this Socket's event channel (spec.md
// §6 events). A listener's channel carries only KindNewConnection events; a
// connected socket's channel carries KindFrame events followed by at most
// one terminal KindClose event. A local teardown through Free emits no
// KindClose.
func (s *Socket) Events() <-chan Event {
	return s.events
}

// RemoteAddr returns the address of the connected peer, or nil for a
// listening socket or one that failed to connect.
func (s *Socket) RemoteAddr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.RemoteAddr()
}

// LocalAddr returns the address this Socket is bound or connected from, or
// nil if neither an OS listener nor connection has been established.
func (s *Socket) LocalAddr() net.Addr {
	if s.listener != nil {
		return s.listener.Addr()
	}
	if s.conn != nil {
		return s.conn.LocalAddr()
	}
	return nil
}

// IsDead reports whether this Socket has transitioned to dead, i.e. its
// active flag has been cleared: either by the Close protocol, which then
// emits Close, or by a local teardown through Free, which emits no event
// (spec.md §6 is_dead).
func (s *Socket) IsDead() bool {
	return !s.active.Load()
}

// Free releases this Socket's resources. The application may call Free on a
// still-active connected socket to tear it down locally (no peer close, no
// read/write failure); teardown marks the socket inactive first so both I/O
// tasks observe active==false within one readiness-poll period (spec.md
// §4.1, §5) without a spurious Close event being emitted for a teardown the
// application itself initiated (spec.md §3 invariant 3, §6 free).
func (s *Socket) Free() {
	s.teardown()
	if s.kind == kindListener {
		if s.listener != nil {
			_ = s.listener.Close()
		}
		return
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
}

// closeProtocol is invoked exactly once per connected socket (spec.md §4.6).
// Go's sync.Once gives the same idempotence guarantee the original's
// single-threaded check-then-set relied on, without needing the
// single-thread assumption (see REDESIGN FLAG R1 for why that assumption
// does not otherwise hold).
//
// Only the Framer goroutine may call this: it is the sole emitter of
// KindFrame events on this socket, so a Close it sends is necessarily
// ordered after any Frame send it already has in flight (spec.md §5 "Close
// is the last event", §8 property 2). framerTerminate calls it directly for
// a Framer-observed failure; for a Sender-observed failure, senderTerminate
// defers to requestClose below instead of calling this itself.
func (s *Socket) closeProtocol() {
	s.closeOnce.Do(func() {
		s.active.Store(false)
		s.signalDone()
		s.events <- Event{Kind: KindClose, Conn: s}
	})
}

// signalDone wakes a Sender parked on the outbound trigger. Idempotent and
// safe to call from both closeProtocol and teardown, whichever runs first.
func (s *Socket) signalDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

// requestClose is how the Sender asks the Framer to run closeProtocol after
// observing a non-recoverable write outcome. It never emits Close itself —
// doing so would let Close race a Frame the Framer is still delivering, since
// the two run as independent goroutines (the gap R1/R2 open relative to the
// single-threaded original). Setting closePending is enough: the Framer
// checks it on every loop iteration (see framer.go's checkClosePending) and
// runs the real closeProtocol itself once it does, so ordering against its
// own Frame sends is preserved. Nudging the read deadline interrupts a
// blocked Read immediately instead of waiting out the full poll deadline.
func (s *Socket) requestClose() {
	s.closePending.Store(true)
	if s.conn != nil {
		_ = s.conn.SetReadDeadline(time.Now())
	}
}

// teardown marks a socket inactive without emitting Close, used when the
// application tears the socket down locally rather than the peer or a
// write/read failure driving the transition. This keeps Close's "at most
// once, and only for a non-recoverable I/O outcome or peer close" contract
// intact (spec.md §3 invariant 3) for the local-teardown path, which per
// spec.md §4.1 the core does not itself emit an event for.
func (s *Socket) teardown() {
	s.active.Store(false)
	s.signalDone()
}
