package relay

import (
	"errors"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultListenerBackoff is the pause after a recoverable receive failure
// before the daemon retries the same handle.
const DefaultListenerBackoff = time.Second

// Joiner opens the process's single multicast receive handle. Satisfied by
// *Multicast; tests substitute in-memory transports.
type Joiner interface {
	Join() (Receiver, error)
}

// Listener is the background daemon bridging the multicast group into the
// broadcaster. Exactly one exists per process; it owns the receive handle
// for the process lifetime.
type Listener struct {
	transport   Joiner
	broadcaster *Broadcaster
	backoff     time.Duration
	log         *slog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
	stopping  atomic.Bool
	recv      Receiver
	stop      chan struct{}
	done      chan struct{}
	fatal     chan error
}

// NewListener wires a listener daemon to the given transport and
// broadcaster. Start must be called before events flow.
func NewListener(t Joiner, b *Broadcaster, backoff time.Duration, log *slog.Logger) *Listener {
	if backoff <= 0 {
		backoff = DefaultListenerBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Listener{
		transport:   t,
		broadcaster: b,
		backoff:     backoff,
		log:         log,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		fatal:       make(chan error, 1),
	}
}

// Start acquires the receive handle and launches the run loop. Calling
// Start again is a no-op; the first call's join error, if any, is returned
// on every call.
func (l *Listener) Start() error {
	var startErr error
	l.startOnce.Do(func() {
		recv, err := l.transport.Join()
		if err != nil {
			startErr = err
			close(l.done)
			return
		}
		l.recv = recv
		l.log.Info("multicast listener started")
		go l.run()
	})
	if startErr != nil {
		return startErr
	}
	if l.recv == nil {
		return errors.New("listener failed to start")
	}
	return nil
}

// Err reports an unrecoverable transport failure. The daemon cannot
// silently stop listening: process supervision must watch this channel and
// treat a value as an outage.
func (l *Listener) Err() <-chan error {
	return l.fatal
}

// Stop tears down the receive handle and waits for the run loop to exit.
// Stopping a listener that was never started consumes its lifecycle: a
// later Start fails instead of launching.
func (l *Listener) Stop() {
	l.stopOnce.Do(func() {
		l.stopping.Store(true)
		close(l.stop)
		l.startOnce.Do(func() { close(l.done) })
		if l.recv != nil {
			_ = l.recv.Close()
		}
	})
	<-l.done
}

func (l *Listener) run() {
	defer close(l.done)

	for {
		payload, src, err := l.recv.Receive()
		if err != nil {
			if l.stopping.Load() {
				return
			}
			if isClosedConn(err) {
				// The handle itself is gone; nothing to retry on.
				l.log.Error("multicast receive handle lost", "error", err)
				l.fatal <- err
				return
			}
			l.log.Error("multicast receive failed, backing off", "error", err, "backoff", l.backoff)
			select {
			case <-time.After(l.backoff):
				continue
			case <-l.stop:
				return
			}
		}

		ev, err := Decode(payload)
		if err != nil {
			l.log.Warn("dropping malformed datagram", "source", addrHost(src), "error", err)
			continue
		}

		ev.Origin = addrHost(src)
		l.broadcaster.Publish(ev)
	}
}

// addrHost extracts the peer's IP from a datagram source address.
func addrHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
