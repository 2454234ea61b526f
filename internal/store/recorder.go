package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/openlan/campuschat/internal/relay"
)

// insertTimeout bounds each recorded insert so a wedged database can never
// back up into the recorder goroutine for long.
const insertTimeout = 5 * time.Second

// Recorder persists relayed events. It subscribes to the broadcaster like
// any stream session, so the relay treats it as just another bounded-inbox
// consumer: if the database stalls, events are dropped for the recorder
// alone and the relay is unaffected.
type Recorder struct {
	broadcaster *relay.Broadcaster
	messages    *Messages
	log         *slog.Logger

	sub  *relay.Subscriber
	done chan struct{}
}

func NewRecorder(b *relay.Broadcaster, messages *Messages, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		broadcaster: b,
		messages:    messages,
		log:         log,
		done:        make(chan struct{}),
	}
}

// Start registers the recorder's subscription and begins consuming.
func (r *Recorder) Start() {
	r.sub = r.broadcaster.Subscribe()
	go r.run()
}

// Stop deregisters the subscription and waits for the consumer to drain.
func (r *Recorder) Stop() {
	r.broadcaster.Unsubscribe(r.sub)
	<-r.done
}

func (r *Recorder) run() {
	defer close(r.done)

	for ev := range r.sub.Events() {
		ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
		err := r.messages.Insert(ctx, &Message{
			Kind:    string(ev.Kind),
			Author:  ev.Author,
			Payload: ev.Payload,
			Origin:  ev.Origin,
		})
		cancel()
		if err != nil {
			r.log.Warn("recorder: dropping event", "kind", ev.Kind, "error", err)
		}
	}
}
