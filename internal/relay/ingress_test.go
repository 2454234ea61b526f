package relay_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlan/campuschat/internal/relay"
)

// Local publish reaches existing subscribers synchronously, without a
// multicast round trip.
func TestIngressLocalEcho(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()
	sub := b.Subscribe()

	ing := relay.NewIngress(b, nil, nil)
	require.NoError(t, ing.PublishLocal(relay.KindChat, "alice", "hi"))

	got := receiveOne(t, sub)
	assert.Equal(t, relay.KindChat, got.Kind)
	assert.Equal(t, "alice", got.Author)
	assert.Equal(t, "hi", got.Payload)
	assert.Empty(t, got.Origin, "locally-originated events carry no origin address")
}

func TestIngressReplicatesToPeers(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()

	sender := &fakeSender{}
	ing := relay.NewIngress(b, sender, nil)
	require.NoError(t, ing.PublishLocal(relay.KindImage, "bob", "photo.png"))

	sent := sender.payloads()
	require.Len(t, sent, 1)
	ev, err := relay.Decode(sent[0])
	require.NoError(t, err)
	assert.Equal(t, relay.KindImage, ev.Kind)
	assert.Equal(t, "photo.png", ev.Payload)
}

// A transport failure on the echo path never fails the publish: local
// delivery already happened.
func TestIngressToleratesSendFailure(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()
	sub := b.Subscribe()

	sender := &fakeSender{err: &relay.TransportError{Op: "send", Err: errors.New("network unreachable")}}
	ing := relay.NewIngress(b, sender, nil)
	require.NoError(t, ing.PublishLocal(relay.KindChat, "alice", "hi"))

	got := receiveOne(t, sub)
	assert.Equal(t, "hi", got.Payload)
}

func TestIngressValidation(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()
	sub := b.Subscribe()

	ing := relay.NewIngress(b, nil, nil)

	cases := []struct {
		name    string
		kind    relay.Kind
		payload string
	}{
		{"unknown kind", relay.Kind("poke"), "hi"},
		{"empty kind", relay.Kind(""), "hi"},
		{"empty payload", relay.KindChat, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := ing.PublishLocal(tc.kind, "alice", tc.payload)
			require.Error(t, err)
			var vErr *relay.ValidationError
			assert.ErrorAs(t, err, &vErr)
		})
	}

	// Nothing invalid may reach the broadcaster.
	assertNoEvent(t, sub)
}

func TestIngressDefaultsAnonymousAuthor(t *testing.T) {
	b := relay.NewBroadcaster(8, nil)
	defer b.Close()
	sub := b.Subscribe()

	ing := relay.NewIngress(b, nil, nil)
	require.NoError(t, ing.PublishLocal(relay.KindChat, "", "hello"))
	assert.Equal(t, "Anon", receiveOne(t, sub).Author)
}
