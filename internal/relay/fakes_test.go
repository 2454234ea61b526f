package relay_test

import (
	"net"
	"sync"

	"github.com/openlan/campuschat/internal/relay"
)

type fakeDatagram struct {
	payload []byte
	src     net.Addr
	err     error
}

// fakeReceiver feeds scripted datagrams (or errors) to a listener under
// test. Closing it makes Receive return net.ErrClosed like a real socket.
type fakeReceiver struct {
	ch        chan fakeDatagram
	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeReceiver() *fakeReceiver {
	return &fakeReceiver{
		ch:     make(chan fakeDatagram, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeReceiver) deliver(payload []byte, host string) {
	f.ch <- fakeDatagram{payload: payload, src: &net.UDPAddr{IP: net.ParseIP(host), Port: 5007}}
}

func (f *fakeReceiver) fail(err error) {
	f.ch <- fakeDatagram{err: err}
}

func (f *fakeReceiver) Receive() ([]byte, net.Addr, error) {
	select {
	case d := <-f.ch:
		if d.err != nil {
			return nil, nil, &relay.TransportError{Op: "receive", Err: d.err}
		}
		return d.payload, d.src, nil
	case <-f.closed:
		return nil, nil, &relay.TransportError{Op: "receive", Err: net.ErrClosed}
	}
}

func (f *fakeReceiver) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

type fakeJoiner struct {
	recv relay.Receiver
	err  error
}

func (f *fakeJoiner) Join() (relay.Receiver, error) {
	return f.recv, f.err
}

// fakeSender records everything the ingress path replicates to peers.
type fakeSender struct {
	mu   sync.Mutex
	sent [][]byte
	err  error
}

func (f *fakeSender) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, append([]byte(nil), payload...))
	return nil
}

func (f *fakeSender) payloads() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]byte, len(f.sent))
	copy(out, f.sent)
	return out
}
