package server_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openlan/campuschat/internal/relay"
	"github.com/openlan/campuschat/internal/server"
)

type testStack struct {
	broadcaster *relay.Broadcaster
	chat        *server.ChatServer
	ts          *httptest.Server
}

func newTestStack(t *testing.T, opts server.ChatServerOptions) *testStack {
	t.Helper()
	b := relay.NewBroadcaster(8, nil)
	ing := relay.NewIngress(b, nil, nil)
	chat := server.NewChatServer(b, ing, opts)
	ts := httptest.NewServer(chat.Routes())
	t.Cleanup(func() {
		ts.Close()
		b.Close()
	})
	return &testStack{broadcaster: b, chat: chat, ts: ts}
}

// openStream connects to the SSE endpoint and returns a line reader over it.
func openStream(t *testing.T, stack *testStack) (*bufio.Reader, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, stack.ts.URL+"/chat/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		resp.Body.Close()
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	return bufio.NewReader(resp.Body), cancel
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.line
	case <-time.After(2 * time.Second):
		t.Fatal("timed out reading stream line")
		return ""
	}
}

func TestStreamSendsConnectedCommentFirst(t *testing.T) {
	stack := newTestStack(t, server.ChatServerOptions{})
	r, _ := openStream(t, stack)

	assert.Equal(t, ": connected\n", readLine(t, r))
	assert.Equal(t, "\n", readLine(t, r))
}

func TestStreamDeliversEventsWithSequence(t *testing.T) {
	stack := newTestStack(t, server.ChatServerOptions{})
	r, _ := openStream(t, stack)

	// Consume the connect preamble.
	readLine(t, r)
	readLine(t, r)

	// The subscription is live once the preamble has been flushed.
	stack.broadcaster.Publish(relay.Event{Kind: relay.KindChat, Author: "alice", Payload: "first"})
	stack.broadcaster.Publish(relay.Event{Kind: relay.KindChat, Author: "alice", Payload: "second"})

	assert.Equal(t, "id: 1\n", readLine(t, r))
	assert.Contains(t, readLine(t, r), `"text":"first"`)
	assert.Equal(t, "\n", readLine(t, r))

	assert.Equal(t, "id: 2\n", readLine(t, r))
	assert.Contains(t, readLine(t, r), `"text":"second"`)
	assert.Equal(t, "\n", readLine(t, r))
}

func TestStreamSequenceIsPerConnection(t *testing.T) {
	stack := newTestStack(t, server.ChatServerOptions{})

	r1, _ := openStream(t, stack)
	readLine(t, r1)
	readLine(t, r1)

	stack.broadcaster.Publish(relay.Event{Kind: relay.KindChat, Author: "a", Payload: "one"})
	assert.Equal(t, "id: 1\n", readLine(t, r1))
	readLine(t, r1)
	readLine(t, r1)

	// A second connection starts its own sequence at 1 and sees no history.
	r2, _ := openStream(t, stack)
	readLine(t, r2)
	readLine(t, r2)

	stack.broadcaster.Publish(relay.Event{Kind: relay.KindChat, Author: "a", Payload: "two"})
	assert.Equal(t, "id: 1\n", readLine(t, r2))
	assert.Contains(t, readLine(t, r2), `"text":"two"`)

	assert.Equal(t, "id: 2\n", readLine(t, r1))
}

func TestStreamUnsubscribesOnDisconnect(t *testing.T) {
	stack := newTestStack(t, server.ChatServerOptions{})
	r, cancel := openStream(t, stack)
	readLine(t, r)
	readLine(t, r)

	require.Eventually(t, func() bool {
		return stack.broadcaster.SubscriberCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()

	assert.Eventually(t, func() bool {
		return stack.broadcaster.SubscriberCount() == 0
	}, 2*time.Second, 10*time.Millisecond, "disconnect must deregister the subscriber")
}

func TestStreamEndsOnBroadcasterClose(t *testing.T) {
	stack := newTestStack(t, server.ChatServerOptions{})
	req, err := http.NewRequest(http.MethodGet, stack.ts.URL+"/chat/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	readLine(t, r)
	readLine(t, r)

	stack.broadcaster.Close()

	done := make(chan struct{})
	go func() {
		// The body ends once the session loop exits.
		for {
			if _, err := r.ReadString('\n'); err != nil {
				close(done)
				return
			}
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after broadcaster shutdown")
	}
}
