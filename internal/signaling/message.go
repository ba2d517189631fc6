package signaling

import (
	"encoding/json"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Message defines the structure for all C2S (client to server) and S2C
// (server to client) websocket messages.
type Message struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	ID      string          `json:"id,omitempty"`
	Name    string          `json:"name,omitempty"`
	Target  string          `json:"target,omitempty"`
	Signal  json.RawMessage `json:"signal,omitempty"`
	Members []room.Member   `json:"members,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Client to server message types.
const (
	MessageTypeJoin   = "join"
	MessageTypeOffer  = "offer"
	MessageTypeAnswer = "answer"
	MessageTypeLeave  = "leave"
)

// Server to client message types.
const (
	MessageTypeWelcome  = "welcome"
	MessageTypeRoster   = "roster"
	MessageTypeAnnounce = "announce"
	MessageTypeAnswered = "answered"
	MessageTypeDeparted = "departed"
	MessageTypeError    = "error"
)

// HasSignal reports whether the message carries a negotiation payload.
func (m *Message) HasSignal() bool {
	return len(m.Signal) > 0 && string(m.Signal) != "null"
}
