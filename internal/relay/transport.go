package relay

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/ipv4"
)

// maxDatagramSize bounds a single multicast payload; events are small JSON
// envelopes, never bulk data.
const maxDatagramSize = 2048

// multicastTTL keeps datagrams on the local network segment.
const multicastTTL = 1

// Sender emits one encoded event to the peer group, fire-and-forget.
type Sender interface {
	Send(payload []byte) error
}

// Receiver blocks for the next datagram from the peer group.
type Receiver interface {
	Receive() (payload []byte, src net.Addr, err error)
	Close() error
}

// Multicast is the UDP multicast transport shared by the ingress send path
// and the listener daemon's receive path.
type Multicast struct {
	group *net.UDPAddr
}

// NewMulticast validates the group address and returns a transport bound to
// it. The address must be an IPv4 multicast group.
func NewMulticast(group string, port int) (*Multicast, error) {
	ip := net.ParseIP(group)
	if ip == nil || ip.To4() == nil {
		return nil, &TransportError{Op: "join", Err: fmt.Errorf("invalid group address %q", group)}
	}
	if !ip.IsMulticast() {
		return nil, &TransportError{Op: "join", Err: fmt.Errorf("%s is not a multicast address", group)}
	}
	return &Multicast{group: &net.UDPAddr{IP: ip.To4(), Port: port}}, nil
}

// Group returns the group address the transport is bound to.
func (m *Multicast) Group() string { return m.group.String() }

// Join binds the group port on all interfaces and joins the multicast group,
// returning the receive handle owned by the listener daemon. Opened once per
// process.
func (m *Multicast) Join() (Receiver, error) {
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", m.group.Port))
	if err != nil {
		return nil, &TransportError{Op: "join", Err: err}
	}

	pc := ipv4.NewPacketConn(conn)
	joined := 0
	ifaces, _ := net.Interfaces()
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagMulticast == 0 {
			continue
		}
		if err := pc.JoinGroup(ifi, m.group); err == nil {
			joined++
		}
	}
	if joined == 0 {
		// Fall back to the system default interface.
		if err := pc.JoinGroup(nil, m.group); err != nil {
			_ = conn.Close()
			return nil, &TransportError{Op: "join", Err: err}
		}
	}

	return &groupConn{pc: pc, conn: conn}, nil
}

// Send opens a short-lived socket, transmits one hop-limited datagram to the
// group, and closes. Delivery is best-effort; a returned error means "could
// not replicate to peers" and must not fail the local publish path.
func (m *Multicast) Send(payload []byte) error {
	conn, err := net.DialUDP("udp4", nil, m.group)
	if err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	defer conn.Close()

	if err := ipv4.NewPacketConn(conn).SetMulticastTTL(multicastTTL); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	if _, err := conn.Write(payload); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

type groupConn struct {
	pc   *ipv4.PacketConn
	conn net.PacketConn
	buf  [maxDatagramSize]byte
}

// Receive blocks until a datagram arrives. Only the listener daemon calls
// this, so the scratch buffer needs no locking.
func (g *groupConn) Receive() ([]byte, net.Addr, error) {
	n, _, src, err := g.pc.ReadFrom(g.buf[:])
	if err != nil {
		return nil, nil, &TransportError{Op: "receive", Err: err}
	}
	payload := make([]byte, n)
	copy(payload, g.buf[:n])
	return payload, src, nil
}

func (g *groupConn) Close() error {
	return g.conn.Close()
}

// isClosedConn reports whether a receive error means the handle itself is
// gone, which the listener daemon treats as unrecoverable.
func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
