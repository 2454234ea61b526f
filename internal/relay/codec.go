package relay

import (
	"encoding/json"
	"fmt"
)

// envelope is the JSON wire form of an Event, shared by every instance on
// the multicast group: chat messages carry "text", image notifications
// carry "filename". The origin address is never encoded; receivers derive
// it from the datagram source instead of trusting the wire.
type envelope struct {
	Type     string `json:"type"`
	User     string `json:"user"`
	Text     string `json:"text,omitempty"`
	Filename string `json:"filename,omitempty"`
	SenderIP string `json:"sender_ip,omitempty"`
}

// Encode serializes an Event for transmission to peer instances.
func Encode(ev Event) ([]byte, error) {
	env := envelope{
		Type: string(ev.Kind),
		User: ev.Author,
	}
	switch ev.Kind {
	case KindChat:
		env.Text = ev.Payload
	case KindImage:
		env.Filename = ev.Payload
	default:
		return nil, fmt.Errorf("encode: unknown event kind %q", ev.Kind)
	}
	return json.Marshal(env)
}

// Decode parses a datagram payload into an Event. Malformed bytes or an
// unknown kind yield a *DecodeError; callers drop and log, never abort.
func Decode(data []byte) (Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Event{}, &DecodeError{Reason: "not valid JSON", Err: err}
	}

	ev := Event{Kind: Kind(env.Type), Author: env.User}
	switch ev.Kind {
	case KindChat:
		ev.Payload = env.Text
	case KindImage:
		ev.Payload = env.Filename
	default:
		return Event{}, &DecodeError{Reason: fmt.Sprintf("unknown event type %q", env.Type)}
	}

	if ev.Payload == "" {
		return Event{}, &DecodeError{Reason: "empty payload"}
	}
	return ev, nil
}

// EncodeClient serializes an Event into the client-facing JSON carried by
// stream frames. Unlike the peer wire form it includes the origin address
// so clients can tell local events from relayed ones.
func EncodeClient(ev Event) ([]byte, error) {
	env := envelope{
		Type:     string(ev.Kind),
		User:     ev.Author,
		SenderIP: ev.Origin,
	}
	switch ev.Kind {
	case KindImage:
		env.Filename = ev.Payload
	default:
		env.Text = ev.Payload
	}
	return json.Marshal(env)
}
