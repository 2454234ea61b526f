// Package server implements the account routes. They exist alongside the
// relay, not inside it: the stream and publish endpoints never consult a
// session.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/openlan/campuschat/internal/files"
	"github.com/openlan/campuschat/internal/store"
)

const minPasswordLength = 8

type registerRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID           int64  `json:"id"`
	FullName     string `json:"full_name"`
	Email        string `json:"email"`
	ProfileImage string `json:"profile_image,omitempty"`
}

func toUserResponse(u *store.User) userResponse {
	return userResponse{
		ID:           u.ID,
		FullName:     u.FullName,
		Email:        u.Email,
		ProfileImage: u.ProfileImage,
	}
}

// RegisterHandler creates a new account.
func (s *ChatServer) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if s.users == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}

	var req registerRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	switch {
	case req.FullName == "":
		writeError(w, http.StatusBadRequest, "full_name is required")
		return
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	case len(req.Password) < minPasswordLength:
		writeError(w, http.StatusBadRequest, "password must be at least 8 characters")
		return
	}

	user, err := s.users.Register(r.Context(), req.FullName, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			writeError(w, http.StatusConflict, "email already registered")
			return
		}
		s.log.Error("registering user", "error", err)
		writeError(w, http.StatusInternalServerError, "could not register")
		return
	}

	writeJSON(w, http.StatusCreated, toUserResponse(user))
}

// LoginHandler authenticates and issues an opaque session token.
func (s *ChatServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if s.users == nil || s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}

	var req loginRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxPublishBody)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	user, err := s.users.Authenticate(r.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		if errors.Is(err, store.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		s.log.Error("authenticating user", "error", err)
		writeError(w, http.StatusInternalServerError, "could not log in")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"token": s.sessions.Issue(user.ID),
		"user":  toUserResponse(user),
	})
}

// bearerUser resolves the request's bearer token to a user ID.
func (s *ChatServer) bearerUser(r *http.Request) (int64, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return 0, false
	}
	return s.sessions.Lookup(token)
}

// ProfileImageHandler stores a new profile picture for the authenticated
// account and returns the updated user.
func (s *ChatServer) ProfileImageHandler(w http.ResponseWriter, r *http.Request) {
	if s.users == nil || s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}
	if s.images == nil {
		writeError(w, http.StatusServiceUnavailable, "image storage not configured")
		return
	}

	userID, ok := s.bearerUser(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "a valid session token is required")
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
			s.log.Error("storing profile image", "error", err)
			writeError(w, http.StatusInternalServerError, "could not store image")
		}
		return
	}

	if err := s.users.SetProfileImage(r.Context(), userID, filename); err != nil {
		s.log.Error("updating profile image", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not update profile")
		return
	}

	user, err := s.users.ByID(r.Context(), userID)
	if err != nil {
		s.log.Error("loading updated user", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "could not load profile")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

// LogoutHandler revokes the bearer token, if one was presented.
func (s *ChatServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeError(w, http.StatusServiceUnavailable, "accounts not configured")
		return
	}

	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		s.sessions.Revoke(token)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
