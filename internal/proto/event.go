package proto

import (
	"encoding/json"
	"errors"
)

// Event is an outbound gateway notification. Exactly one variant is set; the
// wire encoding is externally tagged: {"<VariantName>": <payload>}.
type Event struct {
	name    string
	payload any
}

// Event variant names as they appear on the wire.
const (
	EventHandshakeStart    = "HandshakeStart"
	EventHandshakeComplete = "HandshakeComplete"
	EventMessageCreate     = "MessageCreate"
	EventChannelCreate     = "ChannelCreate"
	EventGuildCreate       = "GuildCreate"
)

// HandshakeStartEvent announces that the server is ready for a handshake.
func HandshakeStartEvent() Event {
	return Event{name: EventHandshakeStart, payload: struct{}{}}
}

// HandshakeCompleteEvent carries the resolved user back to the session.
func HandshakeCompleteEvent(user User) Event {
	return Event{name: EventHandshakeComplete, payload: handshakeComplete{User: user}}
}

// MessageCreateEvent announces a newly created message to channel members.
func MessageCreateEvent(resp MessageResponse) Event {
	return Event{name: EventMessageCreate, payload: resp}
}

// ChannelCreateEvent announces a newly created channel to its members.
func ChannelCreateEvent(resp ChannelResponse) Event {
	return Event{name: EventChannelCreate, payload: resp}
}

// GuildCreateEvent announces a newly created guild.
func GuildCreateEvent(resp GuildResponse) Event {
	return Event{name: EventGuildCreate, payload: resp}
}

// Name reports which variant the event holds.
func (e Event) Name() string { return e.name }

type handshakeComplete struct {
	User User `json:"user"`
}

// Encode serializes the event to its tagged JSON frame.
func (e Event) Encode() ([]byte, error) {
	if e.name == "" {
		return nil, errors.New("proto: encode of zero Event")
	}
	return json.Marshal(map[string]any{e.name: e.payload})
}

// ReceivedEvent is an inbound gateway message. Handshake is the only variant
// clients may send; everything else arrives through the REST API.
type ReceivedEvent struct {
	Handshake *Handshake `json:"Handshake"`
}

// Handshake carries the bearer token that authenticates a session.
type Handshake struct {
	Token string `json:"token"`
}

// ErrUnknownEvent is returned when an inbound frame decodes to no known variant.
var ErrUnknownEvent = errors.New("proto: unknown inbound event")

// DecodeReceived parses an inbound text frame. Frames that are not valid JSON
// or carry no recognized variant yield an error; callers discard them.
func DecodeReceived(data []byte) (*ReceivedEvent, error) {
	var ev ReceivedEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, err
	}
	if ev.Handshake == nil {
		return nil, ErrUnknownEvent
	}
	return &ev, nil
}
