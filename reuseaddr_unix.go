//go:build unix

package fsock

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// controlReuseAddr sets SO_REUSEADDR on the listening socket before bind,
// so a restarted listener can immediately reclaim a port still draining
// TIME_WAIT connections. Grounded on the golang.org/x/sys/unix raw-syscall
// style used throughout SeleniaProject-Orizon's asyncio package (a direct
// dependency of that repo's go.mod) and on
// malbeclabs-doublezero's uping sender, which drives socket options through
// unix.SetsockoptInt the same way.
func controlReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	if err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	}); err != nil {
		return err
	}
	return sockErr
}
