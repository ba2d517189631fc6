package webrtc

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/keiu-jiyu/VideoChat/internal/peer"
)

// ControlLabel names the data channel the initiator opens for session
// control messages.
const ControlLabel = "control"

// Control message types.
const (
	MessageTypeMediaState = "media_state"
)

// Message represents all control data channel messages
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// MediaStatePayload tells the remote which of our tracks are enabled.
type MediaStatePayload struct {
	Video bool `msgpack:"video"`
	Audio bool `msgpack:"audio"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload
func NewMessage(t string, payload any) (Message, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}

	return Message{
		Type:    t,
		Payload: b,
	}, nil
}

// EncodeMediaState builds the wire form of a media_state message.
func EncodeMediaState(state peer.MediaState) ([]byte, error) {
	msg, err := NewMessage(MessageTypeMediaState, MediaStatePayload{Video: state.Video, Audio: state.Audio})
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// ParseMessage decodes one control channel message.
func ParseMessage(data []byte) (Message, error) {
	var msg Message
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Message{}, WrapError("parse control message", ErrBadSignal, err.Error())
	}
	return msg, nil
}

// DecodeMediaState extracts the state from a media_state message.
func DecodeMediaState(msg Message) (peer.MediaState, error) {
	var p MediaStatePayload
	if err := msg.DecodePayload(&p); err != nil {
		return peer.MediaState{}, WrapError("decode media state", ErrBadSignal, err.Error())
	}
	return peer.MediaState{Video: p.Video, Audio: p.Audio}, nil
}
