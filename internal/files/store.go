// Package files stores uploaded chat images on disk under random names.
// Image bytes never transit the relay; events carry only the filename this
// package hands back.
package files

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrBadEncoding is returned for payloads that are not valid
	// base64-encoded data URIs.
	ErrBadEncoding = errors.New("invalid base64 image data")
	// ErrUnsupportedType is returned for non-image data URIs.
	ErrUnsupportedType = errors.New("unsupported image type")
	// ErrTooLarge is returned when the decoded image exceeds the store's cap.
	ErrTooLarge = errors.New("image exceeds maximum size")
	// ErrNotFound is returned when a requested image does not exist.
	ErrNotFound = errors.New("image not found")
)

// Store is a flat directory of uploaded images.
type Store struct {
	dir      string
	maxBytes int64
}

// New creates the upload directory if needed and returns a store over it.
func New(dir string, maxBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("files: create upload dir: %w", err)
	}
	return &Store{dir: dir, maxBytes: maxBytes}, nil
}

// SaveDataURI decodes a browser-style data URI ("data:image/png;base64,...")
// and writes it under a random filename, which it returns.
func (s *Store) SaveDataURI(dataURI string) (string, error) {
	header, encoded, ok := strings.Cut(dataURI, ",")
	if !ok {
		return "", ErrBadEncoding
	}

	ext, err := extensionFromHeader(header)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrBadEncoding
	}
	if s.maxBytes > 0 && int64(len(data)) > s.maxBytes {
		return "", ErrTooLarge
	}

	filename := uuid.NewString() + "." + ext
	if err := os.WriteFile(filepath.Join(s.dir, filename), data, 0o644); err != nil {
		return "", fmt.Errorf("files: write image: %w", err)
	}
	return filename, nil
}

// Path resolves a stored filename to its on-disk path, rejecting anything
// that would escape the upload directory.
func (s *Store) Path(filename string) (string, error) {
	if filename == "" || filename != filepath.Base(filename) || strings.HasPrefix(filename, ".") {
		return "", ErrNotFound
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); err != nil {
		return "", ErrNotFound
	}
	return path, nil
}

// extensionFromHeader extracts the image extension from a data URI header
// such as "data:image/png;base64".
func extensionFromHeader(header string) (string, error) {
	mediaType := strings.TrimPrefix(header, "data:")
	if idx := strings.Index(mediaType, ";"); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	subtype, ok := strings.CutPrefix(mediaType, "image/")
	if !ok || subtype == "" {
		return "", ErrUnsupportedType
	}
	switch subtype {
	case "png", "jpeg", "jpg", "gif", "webp":
		return subtype, nil
	default:
		return "", ErrUnsupportedType
	}
}
