package peer

import (
	"encoding/json"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Transport is the media-transport capability behind one session. The
// session forwards negotiation payloads into it verbatim and relays the
// payloads it emits.
type Transport interface {
	// Start begins negotiation. An initiator's transport emits its offer
	// through TransportEvents.OnSignal.
	Start() error

	// Signal applies one inbound negotiation payload.
	Signal(payload json.RawMessage) error

	// SendMediaState tells the remote which local tracks are enabled.
	SendMediaState(state MediaState) error

	// Close releases the media handle.
	Close() error
}

// TransportEvents are the callbacks a Transport raises. They may be called
// from any goroutine, including synchronously from Start or Signal.
type TransportEvents struct {
	OnSignal     func(payload json.RawMessage)
	OnConnected  func()
	OnFailed     func(err error)
	OnMediaState func(state MediaState)
}

// TransportFactory creates the transport for a new session.
type TransportFactory interface {
	NewTransport(remote room.Member, role Role, events TransportEvents) (Transport, error)
}

// TransportFactoryFunc adapts a function to TransportFactory.
type TransportFactoryFunc func(remote room.Member, role Role, events TransportEvents) (Transport, error)

func (f TransportFactoryFunc) NewTransport(remote room.Member, role Role, events TransportEvents) (Transport, error) {
	return f(remote, role, events)
}

// MediaState says which tracks of a participant are enabled.
type MediaState struct {
	Video bool `msgpack:"video"`
	Audio bool `msgpack:"audio"`
}

// Signaler carries outbound negotiation payloads to the relay.
type Signaler interface {
	Offer(targetID string, signal json.RawMessage) error
	Answer(targetID string, signal json.RawMessage) error
}

// MediaSource is the participant's local audio/video source, shared by every
// session.
type MediaSource interface {
	SetVideoEnabled(enabled bool)
	SetAudioEnabled(enabled bool)
	VideoEnabled() bool
	AudioEnabled() bool
	Close() error
}
