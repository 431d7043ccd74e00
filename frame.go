package fsock

import (
	"encoding/binary"
	"sync"
)

// headerSize is the length of the frame's length-prefix header: a 4-byte
// big-endian byte count of the payload that follows. spec.md treats the
// frame codec as an external collaborator specified only by the contract in
// §6 (parse/render_iovs/written); this is this module's concrete
// realization of that contract.
const headerSize = 4

// Frame is an opaque, length-delimited byte payload — the unit of
// application-level message (spec.md §3, GLOSSARY).
type Frame struct {
	data []byte
}

// NewFrame builds a Frame by copying b. Mirrors fmill_send2's
// frm_frame_set_data (original_source/fmill.c): build-from-bytes is a
// distinct, explicit step from enqueuing it.
func NewFrame(b []byte) Frame {
	cp := make([]byte, len(b))
	copy(cp, b)
	return Frame{data: cp}
}

// Payload returns the frame's byte payload. The slice is the Frame's own
// storage, not a copy.
func (f Frame) Payload() []byte { return f.data }

// readBufPool pools the fixed-size inbound read buffers the Framer uses
// (spec.md §4.3: 1400-byte TCP-MTU-friendly buffers). Grounded on
// VineBalloon-kcp-go's sess.go xmitBuf sync.Pool and, by name only (not
// retrieved in full), SagerNet-smux's own defaultAllocator.
type readBufPool struct {
	size int
	pool sync.Pool
}

func newReadBufPool(size int) *readBufPool {
	p := &readBufPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

func (p *readBufPool) get() []byte {
	b := p.pool.Get().(*[]byte)
	return (*b)[:p.size]
}

func (p *readBufPool) put(b []byte) {
	if cap(b) != p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}

// inboundParser implements the parser.parse / parser.in_frames half of the
// codec contract (spec.md §6): it accumulates bytes across reads and drains
// a FIFO of completed frames in wire order. A partial header or payload at
// the end of a read is carried over to the next call.
type inboundParser struct {
	carry   []byte
	frames  []Frame
	scratch [headerSize]byte
}

// parse feeds n bytes from buf into the parser, appending any newly
// completed frames to the internal FIFO in wire order. It never returns an
// error for a merely-incomplete frame (that is normal mid-stream state); it
// returns a *CodecError only for a frame whose declared length is
// nonsensical (here: exceeds maxFrameSize), matching spec.md §4.3's
// "log it and continue, bytes discarded, connection stays open" leniency —
// the caller (framer.go) is responsible for not closing the connection on
// this error.
func (p *inboundParser) parse(buf []byte, n int, maxFrameSize int) error {
	p.carry = append(p.carry, buf[:n]...)

	for {
		if len(p.carry) < headerSize {
			return nil
		}
		length := binary.BigEndian.Uint32(p.carry[:headerSize])
		if maxFrameSize > 0 && int(length) > maxFrameSize {
			// Discard the malformed carry-over entirely; there is no way to
			// resynchronize with a corrupt length prefix.
			p.carry = p.carry[:0]
			return &CodecError{Op: "parse", Err: errFrameTooLarge}
		}
		total := headerSize + int(length)
		if len(p.carry) < total {
			return nil
		}
		payload := make([]byte, length)
		copy(payload, p.carry[headerSize:total])
		p.frames = append(p.frames, Frame{data: payload})
		p.carry = p.carry[total:]
	}
}

// drain removes and returns all frames completed so far, in FIFO (wire)
// order, mirroring fmill.c's while-loop over parser.in_frames.
func (p *inboundParser) drain() []Frame {
	if len(p.frames) == 0 {
		return nil
	}
	out := p.frames
	p.frames = nil
	return out
}

var errFrameTooLarge = errTooLarge{}

type errTooLarge struct{}

func (errTooLarge) Error() string { return "frame length exceeds configured maximum" }

var errInvalidLength = errBadLength{}

type errBadLength struct{}

func (errBadLength) Error() string { return "length out of range for the given buffer" }
