// Package server implements the HTTP surface of the campuschat relay.
//
// The implementation is organized into specialized files for configuration,
// the publish and stream handlers, WebSocket clients, accounts, and HTTP
// server construction to keep the codebase maintainable and testable as
// the project grows.
package server
