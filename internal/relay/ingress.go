package relay

import "log/slog"

// anonAuthor stands in when a publish request carries no display identity.
const anonAuthor = "Anon"

// Ingress accepts locally-originated events, delivers them to this
// instance's subscribers, and echoes them to peer instances over the
// multicast transport.
type Ingress struct {
	broadcaster *Broadcaster
	sender      Sender
	log         *slog.Logger
}

// NewIngress wires the local publish path. sender may be nil, in which case
// events are delivered locally only.
func NewIngress(b *Broadcaster, sender Sender, log *slog.Logger) *Ingress {
	if log == nil {
		log = slog.Default()
	}
	return &Ingress{broadcaster: b, sender: sender, log: log}
}

// PublishLocal validates and publishes one event. Local subscribers observe
// the event before the call returns; replication to peers is best-effort
// and a transport failure there does not fail the publish.
func (i *Ingress) PublishLocal(kind Kind, author, payload string) error {
	if !kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be \"chat\" or \"image\""}
	}
	if payload == "" {
		return &ValidationError{Field: "payload", Reason: "must not be empty"}
	}
	if author == "" {
		author = anonAuthor
	}

	ev := Event{Kind: kind, Author: author, Payload: payload}
	i.broadcaster.Publish(ev)

	if i.sender == nil {
		return nil
	}
	wire, err := Encode(ev)
	if err != nil {
		i.log.Error("encoding event for peer replication", "error", err)
		return nil
	}
	if err := i.sender.Send(wire); err != nil {
		i.log.Warn("could not replicate event to peers", "error", err)
	}
	return nil
}
