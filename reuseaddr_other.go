//go:build !unix

package fsock

import "syscall"

// controlReuseAddr is a no-op on platforms without SO_REUSEADDR semantics
// matching the unix build (see reuseaddr_unix.go).
func controlReuseAddr(_, _ string, _ syscall.RawConn) error { return nil }
