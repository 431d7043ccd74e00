package fsock

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// acceptDeadliner is satisfied by net.TCPListener (via SetDeadline) and lets
// acceptLoop apply the same bounded-wait pattern the rest of the engine
// uses, instead of blocking on Accept forever.
type acceptDeadliner interface {
	SetDeadline(time.Time) error
}

// acceptLoop is the Acceptor task (spec.md §4.5), listener-only. Grounded
// on original_source/fmill.c's tcpacceptor coroutine (accept-with-deadline
// loop, wrap as connected socket, spawn framer+sender, emit event) and on
// the accept-loop shape in
// _examples/other_examples/..._timewasted-go-server__listener.go.go for the
// "wrap net.Listener, continue silently past accept failures" idiom.
func (s *Socket) acceptLoop() {
	s.log.debug("acceptor starting", zap.Stringer("local", safeLocalAddr(s.listener)))

	for {
		if !s.active.Load() {
			s.log.debug("acceptor complete")
			return
		}

		if d, ok := s.listener.(acceptDeadliner); ok {
			_ = d.SetDeadline(time.Now().Add(s.cfg.PollDeadline))
		}

		conn, err := s.listener.Accept()
		if err != nil {
			if isTimeout(err) {
				continue
			}
			if !s.active.Load() {
				return
			}
			// Accept failures are silent to the application; the Acceptor
			// continues (spec.md §4.5, §7), but the failure itself is worth
			// surfacing to an operator.
			s.log.error("accept error, continuing", zap.Error(err))
			continue
		}

		child := newAcceptedSocket(conn, s.cfg)
		s.events <- Event{Kind: KindNewConnection, Conn: child}
	}
}

func safeLocalAddr(ln net.Listener) fmtStringer {
	if ln == nil {
		return fmtStringer{"<nil>"}
	}
	if a := ln.Addr(); a != nil {
		return fmtStringer{a.String()}
	}
	return fmtStringer{"<unknown>"}
}
