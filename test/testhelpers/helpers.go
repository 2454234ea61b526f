// Package testhelpers provides common utilities and helper functions for
// testing the campuschat relay.
//
// This package contains reusable test utilities that are shared across the
// integration tests: building a full relay stack over an httptest server,
// consuming the SSE stream, connecting WebSocket clients, and asserting
// response properties.
package testhelpers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/openlan/campuschat/internal/relay"
	"github.com/openlan/campuschat/internal/server"
)

// Stack is a fully wired relay instance behind an httptest server. The
// multicast transport is replaced with LoopSender so tests need no network.
type Stack struct {
	Broadcaster *relay.Broadcaster
	Ingress     *relay.Ingress
	Server      *httptest.Server
	Sent        *LoopSender
}

// LoopSender records peer-replication payloads instead of emitting
// datagrams.
type LoopSender struct {
	ch chan []byte
}

func (l *LoopSender) Send(payload []byte) error {
	select {
	case l.ch <- append([]byte(nil), payload...):
	default:
	}
	return nil
}

// Next returns the next replicated payload, or fails the test after a
// timeout.
func (l *LoopSender) Next(t *testing.T) []byte {
	t.Helper()
	select {
	case p := <-l.ch:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("no payload was replicated to peers")
		return nil
	}
}

// NewStack builds a relay stack with the given options and registers
// cleanup on the test.
func NewStack(t *testing.T, opts server.ChatServerOptions) *Stack {
	t.Helper()

	sent := &LoopSender{ch: make(chan []byte, 16)}
	b := relay.NewBroadcaster(16, nil)
	ing := relay.NewIngress(b, sent, nil)
	chat := server.NewChatServer(b, ing, opts)
	ts := httptest.NewServer(chat.Routes())

	t.Cleanup(func() {
		ts.Close()
		b.Close()
	})
	return &Stack{Broadcaster: b, Ingress: ing, Server: ts, Sent: sent}
}

// StreamClient consumes the SSE endpoint line by line.
type StreamClient struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

// OpenStream connects to /chat/stream and consumes the connect preamble,
// so the subscription is guaranteed live when it returns.
func OpenStream(t *testing.T, baseURL string) *StreamClient {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/chat/stream", nil)
	if err != nil {
		cancel()
		t.Fatalf("creating stream request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("connecting to stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		cancel()
		t.Fatalf("stream returned status %d", resp.StatusCode)
	}

	sc := &StreamClient{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(sc.Close)

	if line := sc.readLine(t); line != ": connected" {
		t.Fatalf("expected connect comment, got %q", line)
	}
	sc.readLine(t) // frame terminator
	return sc
}

func (sc *StreamClient) readLine(t *testing.T) string {
	t.Helper()
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := sc.reader.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		if res.err != nil {
			t.Fatalf("reading stream: %v", res.err)
		}
		return strings.TrimSuffix(res.line, "\n")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out reading stream")
		return ""
	}
}

// NextEvent reads one framed event, skipping keepalive comments, and
// returns its sequence id line and decoded data payload.
func (sc *StreamClient) NextEvent(t *testing.T) (string, map[string]any) {
	t.Helper()
	for {
		line := sc.readLine(t)
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, "id: ") {
			t.Fatalf("expected id line, got %q", line)
		}
		id := strings.TrimPrefix(line, "id: ")

		dataLine := sc.readLine(t)
		data, ok := strings.CutPrefix(dataLine, "data: ")
		if !ok {
			t.Fatalf("expected data line, got %q", dataLine)
		}
		sc.readLine(t) // frame terminator

		var payload map[string]any
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			t.Fatalf("decoding event payload: %v", err)
		}
		return id, payload
	}
}

// Close tears the stream connection down.
func (sc *StreamClient) Close() {
	sc.cancel()
	_ = sc.resp.Body.Close()
}

// PublishChat posts one chat event to /chat/send and returns the response.
func PublishChat(t *testing.T, baseURL, author, payload string) *http.Response {
	t.Helper()
	return PostJSON(t, baseURL+"/chat/send", map[string]string{
		"kind": "chat", "author": author, "payload": payload,
	})
}

// PostJSON posts a JSON body and returns the response.
func PostJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshaling request body: %v", err)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(payload))
	if err != nil {
		t.Fatalf("posting to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// ConnectWebSocket creates a WebSocket connection to the stack's /ws
// endpoint with an allowed origin header.
func ConnectWebSocket(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("connecting websocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReadWebSocketEvent reads one JSON event frame from the connection.
func ReadWebSocketEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var payload map[string]any
	if err := conn.ReadJSON(&payload); err != nil {
		t.Fatalf("reading websocket event: %v", err)
	}
	return payload
}
