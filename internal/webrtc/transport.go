package webrtc

import (
	"encoding/json"
	"log/slog"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/keiu-jiyu/VideoChat/internal/media"
	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Transport is a pion peer connection to one remote. It trickles candidates
// and keeps a msgpack control channel for media state.
type Transport struct {
	remote room.Member
	role   peer.Role
	pc     *pion.PeerConnection
	events peer.TransportEvents
	local  LocalMedia
	sink   *media.Sink
	log    *slog.Logger

	remoteCandidates candidateQueue
	localSignals     outbox

	mu      sync.Mutex
	control *pion.DataChannel
	closed  bool
}

func newTransport(remote room.Member, role peer.Role, pc *pion.PeerConnection, events peer.TransportEvents, local LocalMedia, sink *media.Sink, logger *slog.Logger) *Transport {
	return &Transport{
		remote: remote,
		role:   role,
		pc:     pc,
		events: events,
		local:  local,
		sink:   sink,
		log:    logger.With("component", "webrtc", "remote", remote.ID),
	}
}

func (t *Transport) bind() {
	t.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		payload, err := EncodeCandidate(c.ToJSON())
		if err != nil {
			t.log.Debug("encode candidate", "err", err)
			return
		}
		if !t.localSignals.hold(payload) {
			t.events.OnSignal(payload)
		}
	})

	t.pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		t.log.Debug("connection state", "state", state.String())
		switch state {
		case pion.PeerConnectionStateConnected:
			t.events.OnConnected()
		case pion.PeerConnectionStateFailed:
			if !t.isClosed() {
				t.events.OnFailed(WrapError("connect", ErrConnectionFailed, state.String()))
			}
		}
	})

	t.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		if t.sink == nil {
			return
		}
		t.sink.Consume(t.remote.ID, track, t.pc)
	})

	if t.role == peer.Responder {
		t.pc.OnDataChannel(func(dc *pion.DataChannel) {
			if dc.Label() != ControlLabel {
				t.log.Debug("ignoring data channel", "label", dc.Label())
				return
			}
			t.bindControl(dc)
		})
	}
}

func (t *Transport) bindControl(dc *pion.DataChannel) {
	t.mu.Lock()
	t.control = dc
	t.mu.Unlock()

	dc.OnOpen(func() {
		if t.local == nil {
			return
		}
		state := peer.MediaState{Video: t.local.VideoEnabled(), Audio: t.local.AudioEnabled()}
		if err := t.SendMediaState(state); err != nil {
			t.log.Debug("send initial media state", "err", err)
		}
	})

	dc.OnMessage(func(msg pion.DataChannelMessage) {
		message, err := ParseMessage(msg.Data)
		if err != nil {
			t.log.Debug("control message", "err", err)
			return
		}
		switch message.Type {
		case MessageTypeMediaState:
			state, err := DecodeMediaState(message)
			if err != nil {
				t.log.Debug("control message", "err", err)
				return
			}
			t.events.OnMediaState(state)
		default:
			t.log.Debug("unknown control message", "type", message.Type)
		}
	})
}

// Start implements peer.Transport. The initiator opens the control channel
// and emits its offer; the responder waits for one.
func (t *Transport) Start() error {
	if t.role != peer.Initiator {
		return nil
	}

	ordered := true
	dc, err := t.pc.CreateDataChannel(ControlLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return NewError("create data channel", err)
	}
	t.bindControl(dc)

	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return NewError("create offer", err)
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return NewError("set local description", err)
	}
	return t.emitDescription(*t.pc.LocalDescription())
}

// Signal implements peer.Transport.
func (t *Transport) Signal(payload json.RawMessage) error {
	if t.isClosed() {
		return ErrTransportClosed
	}
	sig, err := DecodeSignal(payload)
	if err != nil {
		return err
	}

	switch sig.Type {
	case SignalOffer:
		if t.role != peer.Responder {
			return WrapError("handle signal", ErrUnexpectedSignal, "offer to initiator")
		}
		return t.fatal(t.answer(sig.Description()))
	case SignalAnswer:
		if t.role != peer.Initiator {
			return WrapError("handle signal", ErrUnexpectedSignal, "answer to responder")
		}
		if err := t.pc.SetRemoteDescription(sig.Description()); err != nil {
			return t.fatal(NewError("set remote description", err))
		}
		t.flushRemoteCandidates()
		return nil
	default:
		if t.remoteCandidates.push(*sig.Candidate) {
			return nil
		}
		if err := t.pc.AddICECandidate(*sig.Candidate); err != nil {
			return NewError("add ICE candidate", err)
		}
		return nil
	}
}

func (t *Transport) answer(offer pion.SessionDescription) error {
	if err := t.pc.SetRemoteDescription(offer); err != nil {
		return NewError("set remote description", err)
	}
	t.flushRemoteCandidates()

	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return NewError("create answer", err)
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return NewError("set local description", err)
	}
	return t.emitDescription(*t.pc.LocalDescription())
}

// fatal reports a description failure to the session, which closes it.
func (t *Transport) fatal(err error) error {
	if err != nil {
		t.events.OnFailed(err)
	}
	return err
}

func (t *Transport) emitDescription(desc pion.SessionDescription) error {
	payload, err := EncodeDescription(desc)
	if err != nil {
		return NewError("encode description", err)
	}
	t.events.OnSignal(payload)
	for _, held := range t.localSignals.flush() {
		t.events.OnSignal(held)
	}
	return nil
}

func (t *Transport) flushRemoteCandidates() {
	for _, c := range t.remoteCandidates.release() {
		if err := t.pc.AddICECandidate(c); err != nil {
			t.log.Debug("add queued candidate", "err", err)
		}
	}
}

// SendMediaState implements peer.Transport. Before the control channel opens
// the call is a no-op; the channel sends the current state when it opens.
func (t *Transport) SendMediaState(state peer.MediaState) error {
	t.mu.Lock()
	dc := t.control
	closed := t.closed
	t.mu.Unlock()

	if closed {
		return ErrTransportClosed
	}
	if dc == nil || dc.ReadyState() != pion.DataChannelStateOpen {
		return nil
	}

	data, err := EncodeMediaState(state)
	if err != nil {
		return NewError("encode media state", err)
	}
	if err := dc.Send(data); err != nil {
		return NewError("send media state", err)
	}
	return nil
}

// Close implements peer.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	if t.sink != nil {
		t.sink.Forget(t.remote.ID)
	}
	if err := t.pc.Close(); err != nil {
		return NewError("close peer connection", err)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
