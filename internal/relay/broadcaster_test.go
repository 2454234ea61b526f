package relay_test

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlan/campuschat/internal/relay"
)

func receiveOne(t *testing.T, s *relay.Subscriber) relay.Event {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		require.True(t, ok, "inbox closed before event arrived")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return relay.Event{}
	}
}

func assertNoEvent(t *testing.T, s *relay.Subscriber) {
	t.Helper()
	select {
	case ev, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected event delivered: %+v", ev)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

// Every registered subscriber with inbox headroom receives exactly one copy
// of each published event.
func TestBroadcasterFanOutCompleteness(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()

	subs := make([]*relay.Subscriber, 5)
	for i := range subs {
		subs[i] = b.Subscribe()
	}

	ev := relay.Event{Kind: relay.KindChat, Author: "alice", Payload: "hi"}
	b.Publish(ev)

	for i, s := range subs {
		got := receiveOne(t, s)
		assert.Equal(t, ev, got, "subscriber %d", i)
		assertNoEvent(t, s)
	}
}

// Non-overlapping publishes are observed in publish order by every
// subscriber.
func TestBroadcasterOrderPreservation(t *testing.T) {
	b := relay.NewBroadcaster(16, nil)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(relay.Event{Kind: relay.KindChat, Author: "bob", Payload: fmt.Sprintf("msg-%d", i)})
	}

	for _, s := range []*relay.Subscriber{s1, s2} {
		for i := 0; i < 10; i++ {
			got := receiveOne(t, s)
			assert.Equal(t, fmt.Sprintf("msg-%d", i), got.Payload)
		}
	}
}

// A subscriber registered after an event was published never receives it.
func TestBroadcasterNoReplay(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()

	early := b.Subscribe()
	b.Publish(relay.Event{Kind: relay.KindChat, Author: "alice", Payload: "before"})

	late := b.Subscribe()
	assertNoEvent(t, late)

	got := receiveOne(t, early)
	assert.Equal(t, "before", got.Payload)
}

// Filling one subscriber's inbox must not block the publisher or starve a
// healthy subscriber.
func TestBroadcasterBackpressureIsolation(t *testing.T) {
	const capacity = 4
	b := relay.NewBroadcaster(capacity, nil)
	defer b.Close()

	stalled := b.Subscribe()
	healthy := b.Subscribe()

	for i := 0; i < capacity; i++ {
		b.Publish(relay.Event{Kind: relay.KindChat, Author: "bob", Payload: fmt.Sprintf("fill-%d", i)})
		receiveOne(t, healthy)
	}

	// The stalled inbox is now full; this publish must return promptly and
	// still reach the healthy subscriber.
	done := make(chan struct{})
	go func() {
		b.Publish(relay.Event{Kind: relay.KindChat, Author: "bob", Payload: "overflow"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full inbox")
	}

	got := receiveOne(t, healthy)
	assert.Equal(t, "overflow", got.Payload)

	// The stalled subscriber sees only the events that fit.
	for i := 0; i < capacity; i++ {
		got := receiveOne(t, stalled)
		assert.Equal(t, fmt.Sprintf("fill-%d", i), got.Payload)
	}
	assertNoEvent(t, stalled)

	assert.Equal(t, uint64(1), b.Dropped())
}

// Unsubscribed subscribers stop receiving; re-subscribing starts fresh with
// no history.
func TestBroadcasterSubscribeUnsubscribeScenario(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()

	s1 := b.Subscribe()
	s2 := b.Subscribe()

	b.Publish(relay.Event{Kind: relay.KindChat, Author: "bob", Payload: "hello"})
	assert.Equal(t, "hello", receiveOne(t, s1).Payload)
	assert.Equal(t, "hello", receiveOne(t, s2).Payload)

	b.Unsubscribe(s1)
	b.Publish(relay.Event{Kind: relay.KindChat, Author: "bob", Payload: "bye"})
	assert.Equal(t, "bye", receiveOne(t, s2).Payload)

	s1again := b.Subscribe()
	assertNoEvent(t, s1again)
	assert.Equal(t, 2, b.SubscriberCount())
}

func TestBroadcasterUnsubscribeIdempotent(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()

	s := b.Subscribe()
	b.Unsubscribe(s)
	b.Unsubscribe(s)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroadcasterSubscribeAfterClose(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	b.Close()

	s := b.Subscribe()
	_, ok := <-s.Events()
	assert.False(t, ok, "inbox of a post-close subscriber must be closed")
}

// Concurrent subscribes, unsubscribes, and publishes must not corrupt the
// registry.
func TestBroadcasterConcurrentOperations(t *testing.T) {
	b := relay.NewBroadcaster(32, nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s := b.Subscribe()
				b.Publish(relay.Event{Kind: relay.KindChat, Author: "x", Payload: "y"})
				b.Unsubscribe(s)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, b.SubscriberCount())
}
