package integration

import (
	"net/http"
	"testing"

	"github.com/openlan/campuschat/internal/server"
	"github.com/openlan/campuschat/test/testhelpers"
)

// Every connected stream client receives every event, not a round-robin
// share of them.
func TestFanOutToMultipleStreamClients(t *testing.T) {
	stack := testhelpers.NewStack(t, server.ChatServerOptions{})

	const numClients = 5
	clients := make([]*testhelpers.StreamClient, numClients)
	for i := range clients {
		clients[i] = testhelpers.OpenStream(t, stack.Server.URL)
	}

	resp := testhelpers.PublishChat(t, stack.Server.URL, "bob", "hello everyone")
	testhelpers.AssertStatusCode(t, resp, http.StatusOK)

	for i, client := range clients {
		_, payload := client.NextEvent(t)
		if payload["text"] != "hello everyone" {
			t.Errorf("client %d got unexpected payload: %v", i, payload)
		}
	}
}

// A departed client stops receiving; the rest continue; a reconnecting
// client gets no replay of what it missed.
func TestDepartedClientDoesNotReceive(t *testing.T) {
	stack := testhelpers.NewStack(t, server.ChatServerOptions{})

	s1 := testhelpers.OpenStream(t, stack.Server.URL)
	s2 := testhelpers.OpenStream(t, stack.Server.URL)

	testhelpers.PublishChat(t, stack.Server.URL, "bob", "hello")
	s1.NextEvent(t)
	s2.NextEvent(t)

	s1.Close()
	waitForSubscribers(t, stack, 1)

	testhelpers.PublishChat(t, stack.Server.URL, "bob", "bye")
	_, payload := s2.NextEvent(t)
	if payload["text"] != "bye" {
		t.Errorf("remaining client got unexpected payload: %v", payload)
	}

	// Reconnecting starts fresh: the next event is sequence 1 and there is
	// no replay of "bye".
	s3 := testhelpers.OpenStream(t, stack.Server.URL)
	testhelpers.PublishChat(t, stack.Server.URL, "bob", "fresh start")
	id, payload := s3.NextEvent(t)
	if id != "1" {
		t.Errorf("reconnected client expected sequence 1, got %s", id)
	}
	if payload["text"] != "fresh start" {
		t.Errorf("reconnected client got unexpected payload: %v", payload)
	}
}
