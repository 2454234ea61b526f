// Package server implements the SSE stream session: one subscriber per
// connection, framed server-push delivery, and exactly-once deregistration.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/openlan/campuschat/internal/relay"
)

// keepaliveInterval is how often comment frames are sent so clients and
// intermediaries can tell an idle stream from a dead one.
const keepaliveInterval = 15 * time.Second

// StreamHandler serves the long-lived event stream. Each connection gets
// its own broadcaster subscription and a per-connection sequence number
// starting at 1. A comment frame is sent first so the client can confirm
// liveness before any event arrives.
func (s *ChatServer) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	sub := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if _, err := fmt.Fprint(w, ": connected\n\n"); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	var seq uint64
	for {
		select {
		case <-ctx.Done():
			return
		case ev, open := <-sub.Events():
			if !open {
				// Broadcaster shut down; end the stream.
				return
			}
			payload, err := relay.EncodeClient(ev)
			if err != nil {
				s.log.Error("encoding event for stream", "error", err)
				continue
			}
			seq++
			if _, err := fmt.Fprintf(w, "id: %d\ndata: %s\n\n", seq, payload); err != nil {
				// A single write failure is the terminal signal for this session.
				return
			}
			flusher.Flush()
		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
