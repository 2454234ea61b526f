// Package relay implements the real-time event relay: the multicast
// transport, the wire codec, the listener daemon bridging peer instances
// into the process, and the broadcaster that fans events out to every
// connected stream session.
package relay

import "fmt"

// Kind identifies the variant of a relayed event.
type Kind string

const (
	// KindChat is a plain text chat message.
	KindChat Kind = "chat"
	// KindImage is a notification that an image was posted; the payload is
	// a filename resolvable by the file store, never raw bytes.
	KindImage Kind = "image"
)

// Valid reports whether k is one of the known event kinds.
func (k Kind) Valid() bool {
	return k == KindChat || k == KindImage
}

// Event is the unit of relay. Events are immutable after creation and are
// shared read-only between the broadcaster and every subscriber.
type Event struct {
	Kind    Kind
	Author  string
	Payload string

	// Origin is the network address of the peer instance that produced the
	// event. It is set by the listener daemon from the datagram's source
	// address and is empty for locally-originated events.
	Origin string
}

// ValidationError reports a malformed publish request. It is surfaced to
// the caller as a client error and never reaches the broadcaster.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DecodeError reports a datagram that could not be decoded into an Event.
// Receivers drop the datagram and continue.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode: %s: %v", e.Reason, e.Err)
	}
	return "decode: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// TransportError reports a socket-level multicast failure. On the send path
// it means "could not replicate to peers" and is non-fatal; on the receive
// path it triggers the listener daemon's recovery logic.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
