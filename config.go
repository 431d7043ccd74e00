package fsock

import (
	"time"

	"go.uber.org/zap"
)

// Config holds the tunables spec.md §4 hardcodes as literal constants.
// Mirrors SagerNet-smux's session.go Config-injected-into-Session shape
// (s.config.MaxFrameSize, config.MaxReceiveBuffer, config.KeepAliveInterval),
// generalized here so every magic number in the distilled spec is an
// overridable field instead of a literal sprinkled through the code.
type Config struct {
	// ReadBufferSize is the size of each inbound read buffer (spec.md §4.3:
	// "a TCP-MTU-friendly size", 1400 bytes).
	ReadBufferSize int

	// MaxReadAttempts is how many consecutive reads the Inbound Framer
	// performs per wake before yielding back to WaitReadable (spec.md §4.3: 5).
	MaxReadAttempts int

	// MaxWriteAttempts is how many consecutive vectored writes the Outbound
	// Sender performs per wake before yielding back to WaitWritable
	// (spec.md §4.4: 5).
	MaxWriteAttempts int

	// MaxVectoredSlices bounds how many I/O slices are rendered from the
	// outbound queue per write (spec.md §4.4, §5: 512).
	MaxVectoredSlices int

	// PollDeadline is the readiness-poll / accept deadline applied to each
	// wait (spec.md §4.3, §4.4, §4.5: 10s). It doubles as the liveness tick
	// that bounds how quickly a cleared active flag is observed (spec.md §5).
	PollDeadline time.Duration

	// MaxQueueDepth bounds the outbound queue. Zero means unbounded, matching
	// spec.md §4.2's default; a positive value turns Send/SendBytes into a
	// possibly-failing call returning ErrQueueFull, per the open design
	// question in spec.md §9.
	MaxQueueDepth int

	// MaxFrameSize bounds a single inbound frame's declared length; zero
	// disables the check. Guards against a corrupt length prefix causing an
	// unbounded allocation.
	MaxFrameSize int

	// Logger receives structured diagnostics (parse errors, task lifecycle,
	// non-timeout accept errors). Nil disables logging entirely.
	Logger *zap.Logger
}

// DefaultConfig returns the constants spec.md §4 specifies literally, plus a
// 1 MiB MaxFrameSize bound on inbound frames.
func DefaultConfig() *Config {
	return &Config{
		ReadBufferSize:    1400,
		MaxReadAttempts:   5,
		MaxWriteAttempts:  5,
		MaxVectoredSlices: 512,
		PollDeadline:      10 * time.Second,
		MaxQueueDepth:     0,
		MaxFrameSize:      1 << 20,
	}
}

func (c *Config) orDefault() *Config {
	if c != nil {
		return c
	}
	return DefaultConfig()
}
