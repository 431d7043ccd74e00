package fsock

import (
	"strconv"
	"strings"
)

// transport identifies the resolved scheme of a parsed address.
type transport int

const (
	transportTCP transport = iota
	transportUnix
)

// parsedAddr is the result of parsing the tcp://host:port / unix://path
// grammar from spec.md §6, following original_source/fmill.c's
// fmill_parse_addr byte-for-byte in behavior: scheme-prefix stripping, a
// mandatory trailing ":port" for tcp with port > 0, and unix paths accepted
// but flagged unsupported by the caller.
type parsedAddr struct {
	kind transport
	host string // tcp: host only, no port
	port int    // tcp: > 0
	path string // unix: full path
}

const (
	tcpScheme  = "tcp://"
	unixScheme = "unix://"
)

// parseAddr parses addr against the grammar: "tcp://<host>:<port>" with
// port > 0, or "unix://<path>". Any other scheme, or a tcp address missing
// a valid trailing port, is ErrInvalidAddress.
func parseAddr(addr string) (parsedAddr, error) {
	switch {
	case strings.HasPrefix(addr, tcpScheme):
		rest := addr[len(tcpScheme):]
		i := strings.LastIndexByte(rest, ':')
		if i < 0 || i == len(rest)-1 {
			return parsedAddr{}, &AddrError{Addr: addr, Reason: "missing host:port"}
		}
		host := rest[:i]
		portStr := rest[i+1:]
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return parsedAddr{}, &AddrError{Addr: addr, Reason: "port must be > 0"}
		}
		if host == "" {
			return parsedAddr{}, &AddrError{Addr: addr, Reason: "missing host"}
		}
		return parsedAddr{kind: transportTCP, host: host, port: port}, nil

	case strings.HasPrefix(addr, unixScheme):
		path := addr[len(unixScheme):]
		if path == "" {
			return parsedAddr{}, &AddrError{Addr: addr, Reason: "missing path"}
		}
		return parsedAddr{kind: transportUnix, path: path}, nil

	default:
		return parsedAddr{}, &AddrError{Addr: addr, Reason: "unrecognized scheme (want tcp:// or unix://)"}
	}
}

func (p parsedAddr) dialString() string {
	return p.host + ":" + strconv.Itoa(p.port)
}
