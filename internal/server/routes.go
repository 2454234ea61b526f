// Package server wires HTTP handlers into a ServeMux for the chat relay
// application via routing helpers.
package server

import "net/http"

// Routes configures and returns an HTTP ServeMux with all application
// routes: health check, publish and stream endpoints, image upload and
// serving, accounts, and the built-in test page.
func (s *ChatServer) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.HealthHandler)
	mux.HandleFunc("GET /healthz", s.HealthHandler)

	mux.HandleFunc("POST /chat/send", s.SendHandler)
	mux.HandleFunc("GET /chat/stream", s.StreamHandler)
	mux.HandleFunc("POST /chat/upload_image", s.UploadImageHandler)
	mux.HandleFunc("GET /chat/temp_images/{filename}", s.ImageHandler)
	mux.HandleFunc("GET /chat/history", s.HistoryHandler)

	mux.HandleFunc("GET /ws", s.WebSocketHandler)

	mux.HandleFunc("POST /auth/register", s.RegisterHandler)
	mux.HandleFunc("POST /auth/login", s.LoginHandler)
	mux.HandleFunc("POST /auth/logout", s.LogoutHandler)
	mux.HandleFunc("POST /auth/profile_image", s.ProfileImageHandler)

	mux.HandleFunc("GET /time", s.TimeHandler)
	mux.HandleFunc("GET /test", s.TestPageHandler)
	return mux
}
