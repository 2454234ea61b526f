// Package server exposes the HTTP handlers for publishing events, serving
// uploaded images, message history, and the built-in test page.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openlan/campuschat/internal/files"
	"github.com/openlan/campuschat/internal/relay"
)

// maxPublishBody caps publish request bodies; events are small JSON
// envelopes, never raw image bytes.
const maxPublishBody = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// HealthHandler provides a simple health check endpoint that returns
// server status and the current subscriber count.
func (s *ChatServer) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.broadcaster.SubscriberCount(),
	})
}

type publishRequest struct {
	Kind    string `json:"kind"`
	Author  string `json:"author"`
	Payload string `json:"payload"`
}

// SendHandler accepts a locally-originated event and hands it to the
// ingress API: local subscribers see it synchronously, peers via a
// best-effort multicast echo.
func (s *ChatServer) SendHandler(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if err := s.ingress.PublishLocal(relay.Kind(req.Kind), req.Author, req.Payload); err != nil {
		var vErr *relay.ValidationError
		if errors.As(err, &vErr) {
			writeError(w, http.StatusBadRequest, vErr.Error())
			return
		}
		s.log.Error("publish failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not publish")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type uploadRequest struct {
	Author   string `json:"author"`
	ImageB64 string `json:"image_b64"`
}

// UploadImageHandler stores a base64 data-URI image and publishes an image
// event referencing the stored filename. The relay only ever carries the
// reference.
func (s *ChatServer) UploadImageHandler(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "image storage not configured")
		return
	}

	cfg := currentConfig()
	r.Body = http.MaxBytesReader(w, r.Body, cfg.MaxUploadBytes*2)
	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ImageB64 == "" {
		writeError(w, http.StatusBadRequest, "missing image_b64 field")
		return
	}

	filename, err := s.images.SaveDataURI(req.ImageB64)
	if err != nil {
		switch {
		case errors.Is(err, files.ErrBadEncoding), errors.Is(err, files.ErrUnsupportedType):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, files.ErrTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		default:
			s.log.Error("storing uploaded image", "error", err)
			writeError(w, http.StatusInternalServerError, "could not store image")
		}
		return
	}

	if err := s.ingress.PublishLocal(relay.KindImage, req.Author, filename); err != nil {
		s.log.Error("publishing image notification", "filename", filename, "error", err)
		writeError(w, http.StatusInternalServerError, "could not publish notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "filename": filename})
}

// ImageHandler serves a previously uploaded image by filename.
func (s *ChatServer) ImageHandler(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "image storage not configured")
		return
	}

	path, err := s.images.Path(r.PathValue("filename"))
	if err != nil {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	http.ServeFile(w, r, path)
}

// HistoryHandler returns recent recorded messages, newest first. History
// comes from the persistence collaborator; the relay itself keeps none.
func (s *ChatServer) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.messages == nil {
		writeError(w, http.StatusServiceUnavailable, "message log not configured")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	msgs, err := s.messages.Recent(r.Context(), limit)
	if err != nil {
		s.log.Error("loading message history", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// TimeHandler reports the server's current date and time.
func (s *ChatServer) TimeHandler(w http.ResponseWriter, _ *http.Request) {
	now := time.Now()
	writeJSON(w, http.StatusOK, map[string]string{
		"date": now.Format("2006-01-02"),
		"time": now.Format("15:04:05"),
		"iso":  now.Format(time.RFC3339),
	})
}

// TestPageHandler serves an HTML page for exercising the relay by hand:
// it subscribes to the SSE stream and posts to the publish endpoint.
func (s *ChatServer) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		s.log.Error("writing test page", "error", err)
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>CampusChat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { width: 300px; padding: 5px; margin-right: 10px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
    </style>
</head>
<body>
    <h1>CampusChat Relay Test</h1>
    <div>
        <input type="text" id="author" placeholder="Your name" value="tester">
        <input type="text" id="message" placeholder="Type a message...">
        <button onclick="send()">Send</button>
    </div>
    <div id="events"></div>
    <script>
        const events = document.getElementById('events');
        function log(text) {
            const el = document.createElement('div');
            el.textContent = text;
            events.appendChild(el);
            events.scrollTop = events.scrollHeight;
        }

        const stream = new EventSource('/chat/stream');
        stream.onmessage = function(e) {
            const ev = JSON.parse(e.data);
            if (ev.type === 'image') {
                log('[' + e.lastEventId + '] ' + ev.user + ' posted image ' + ev.filename);
            } else {
                log('[' + e.lastEventId + '] ' + ev.user + ': ' + ev.text);
            }
        };
        stream.onerror = function() { log('stream error'); };

        function send() {
            const message = document.getElementById('message');
            fetch('/chat/send', {
                method: 'POST',
                headers: {'Content-Type': 'application/json'},
                body: JSON.stringify({
                    kind: 'chat',
                    author: document.getElementById('author').value,
                    payload: message.value
                })
            });
            message.value = '';
        }
        document.getElementById('message').addEventListener('keypress', function(e) {
            if (e.key === 'Enter') send();
        });
    </script>
</body>
</html>`
