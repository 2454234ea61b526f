package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"
)

// DefaultInboxCapacity sizes each subscriber's bounded inbox for typical
// chat burst rates.
const DefaultInboxCapacity = 64

// Subscriber is one live stream session's registration with the
// Broadcaster. The broadcaster is the only writer into the inbox; the
// owning session is the only reader.
type Subscriber struct {
	id    uint64
	inbox chan Event
}

// Events returns the subscriber's inbox. The channel is closed when the
// subscriber is unsubscribed or the broadcaster shuts down.
func (s *Subscriber) Events() <-chan Event { return s.inbox }

// Broadcaster is the process-wide fan-out hub. Every published event is
// delivered to every currently-registered subscriber; all publishes are
// serialized through one mutex so every subscriber observes a single
// consistent global order.
type Broadcaster struct {
	mu       sync.Mutex
	subs     map[*Subscriber]struct{}
	closed   bool
	capacity int
	nextID   atomic.Uint64
	dropped  atomic.Uint64
	log      *slog.Logger
}

// NewBroadcaster creates a broadcaster whose subscribers get a bounded
// inbox of the given capacity. A capacity of zero or less falls back to
// DefaultInboxCapacity.
func NewBroadcaster(capacity int, log *slog.Logger) *Broadcaster {
	if capacity <= 0 {
		capacity = DefaultInboxCapacity
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broadcaster{
		subs:     make(map[*Subscriber]struct{}),
		capacity: capacity,
		log:      log,
	}
}

// Subscribe registers a new subscriber with an empty inbox and returns its
// handle. A subscriber created after the broadcaster closed receives an
// already-closed inbox so its session exits immediately.
func (b *Broadcaster) Subscribe() *Subscriber {
	s := &Subscriber{
		id:    b.nextID.Add(1),
		inbox: make(chan Event, b.capacity),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(s.inbox)
		return s
	}
	b.subs[s] = struct{}{}
	b.log.Debug("subscriber registered", "subscriber", s.id, "total", len(b.subs))
	return s
}

// Unsubscribe removes a subscriber and closes its inbox, discarding any
// undelivered events. Safe to call more than once.
func (b *Broadcaster) Unsubscribe(s *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subs[s]; !ok {
		return
	}
	delete(b.subs, s)
	close(s.inbox)
	b.log.Debug("subscriber unregistered", "subscriber", s.id, "total", len(b.subs))
}

// Publish delivers ev to every registered subscriber. A subscriber whose
// inbox is full has the event dropped for it alone; publish never blocks
// and never slows delivery to healthy subscribers.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for s := range b.subs {
		select {
		case s.inbox <- ev:
		default:
			b.dropped.Add(1)
			b.log.Warn("inbox full, dropping event for slow subscriber",
				"subscriber", s.id, "kind", ev.Kind, "author", ev.Author)
		}
	}
}

// Close stops accepting subscriptions and closes every inbox, unblocking
// all sessions waiting on their next event.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		close(s.inbox)
	}
	b.subs = make(map[*Subscriber]struct{})
}

// SubscriberCount returns the number of currently-registered subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the total number of per-subscriber backpressure drops
// since the broadcaster was created.
func (b *Broadcaster) Dropped() uint64 {
	return b.dropped.Load()
}
