// Package server holds the shared handler dependencies that wire the relay
// core to its HTTP surface.
package server

import (
	"log/slog"

	"github.com/openlan/campuschat/internal/files"
	"github.com/openlan/campuschat/internal/relay"
	"github.com/openlan/campuschat/internal/store"
)

// ChatServer holds the handlers' shared dependencies. The relay pieces are
// required; the storage collaborators may be nil, in which case the
// corresponding routes respond 503.
type ChatServer struct {
	broadcaster *relay.Broadcaster
	ingress     *relay.Ingress
	users       *store.Users
	messages    *store.Messages
	sessions    *store.Sessions
	images      *files.Store
	log         *slog.Logger
}

// ChatServerOptions carries the optional collaborators.
type ChatServerOptions struct {
	Users    *store.Users
	Messages *store.Messages
	Sessions *store.Sessions
	Images   *files.Store
	Logger   *slog.Logger
}

// NewChatServer builds the handler set over a running broadcaster and
// ingress.
func NewChatServer(b *relay.Broadcaster, ing *relay.Ingress, opts ChatServerOptions) *ChatServer {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &ChatServer{
		broadcaster: b,
		ingress:     ing,
		users:       opts.Users,
		messages:    opts.Messages,
		sessions:    opts.Sessions,
		images:      opts.Images,
		log:         log,
	}
}
