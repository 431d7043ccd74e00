// Package fsock implements a message-framed socket abstraction over TCP.
//
// A Socket is the single handle an application holds. A listening Socket
// accepts connections and hands them to the application as new connected
// Sockets; a connected Socket exchanges discrete, length-delimited frames
// with its peer. Each connected Socket multiplexes an inbound framer and an
// outbound sender behind one event channel, so the application only ever
// has to range over Events() to learn about new connections, inbound
// frames, and peer disconnection.
package fsock
