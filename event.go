package fsock

// Kind discriminates the variants of Event (spec.md §3 Event).
type Kind int

const (
	// KindNewConnection: a listener accepted a peer; Conn is the newly
	// accepted Socket and ownership transfers to the receiver.
	KindNewConnection Kind = iota
	// KindFrame: an inbound frame; the receiver takes ownership of Frame.
	KindFrame
	// KindClose: this connected socket has transitioned to dead; Conn
	// equals the Socket the application already holds (an identity tag).
	KindClose
)

func (k Kind) String() string {
	switch k {
	case KindNewConnection:
		return "new_connection"
	case KindFrame:
		return "frame"
	case KindClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is the discriminated value delivered on a Socket's event channel
// (spec.md §3). Exactly one of Conn/Frame is meaningful depending on Kind:
// KindNewConnection populates Conn, KindFrame populates Frame, KindClose
// populates Conn as an identity tag back to the socket it was read from.
type Event struct {
	Kind  Kind
	Conn  *Socket
	Frame Frame
}
