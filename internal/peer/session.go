package peer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Session is the negotiation state machine for one remote participant.
type Session struct {
	RemoteID   string
	RemoteName string
	Role       Role

	log     *slog.Logger
	emit    func(s *Session, payload json.RawMessage)
	changed func()

	// inbound serializes Start and Signal so payloads reach the transport in
	// arrival order. Transport callbacks never take it.
	inbound sync.Mutex

	mu          sync.Mutex
	state       State
	transport   Transport
	remoteMedia MediaState
	cause       error
}

// SessionInfo is a point-in-time view of a Session.
type SessionInfo struct {
	RemoteID    string
	RemoteName  string
	Role        Role
	State       State
	RemoteMedia MediaState
	Err         error
}

func newSession(remote room.Member, role Role, logger *slog.Logger, emit func(*Session, json.RawMessage), changed func()) *Session {
	if changed == nil {
		changed = func() {}
	}
	return &Session{
		RemoteID:    remote.ID,
		RemoteName:  remote.Name,
		Role:        role,
		log:         logger.With("remote", remote.ID, "role", role.String()),
		emit:        emit,
		changed:     changed,
		state:       StateCreated,
		remoteMedia: MediaState{Video: true, Audio: true},
	}
}

// events returns the callbacks the session's transport raises.
func (s *Session) events() TransportEvents {
	return TransportEvents{
		OnSignal:     s.onSignal,
		OnConnected:  s.onConnected,
		OnFailed:     s.onFailed,
		OnMediaState: s.onMediaState,
	}
}

// attach binds t to the session. A session destroyed while its transport
// was being built closes t instead and reports false.
func (s *Session) attach(t Transport) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		if err := t.Close(); err != nil {
			s.log.Debug("close transport", "err", err)
		}
		return false
	}
	s.transport = t
	s.mu.Unlock()
	return true
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot of the session.
func (s *Session) Info() SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionInfo{
		RemoteID:    s.RemoteID,
		RemoteName:  s.RemoteName,
		Role:        s.Role,
		State:       s.state,
		RemoteMedia: s.remoteMedia,
		Err:         s.cause,
	}
}

// fire applies a non-terminal transition and returns the transport to act on.
func (s *Session) fire(ev Event) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return nil, ErrSessionClosed
	}
	next, err := Next(s.state, ev)
	if err != nil {
		return nil, err
	}
	s.state = next
	return s.transport, nil
}

// Start moves the session to Negotiating and starts its transport.
func (s *Session) Start() error {
	s.inbound.Lock()
	defer s.inbound.Unlock()

	t, err := s.fire(EventStart)
	if err != nil {
		return err
	}
	s.changed()

	if t == nil {
		return ErrSessionClosed
	}
	if err := t.Start(); err != nil {
		s.onFailed(err)
		return NewError("start", s.RemoteID, err)
	}
	return nil
}

// Signal forwards one inbound negotiation payload to the transport.
func (s *Session) Signal(payload json.RawMessage) error {
	s.inbound.Lock()
	defer s.inbound.Unlock()

	t, err := s.fire(EventSignal)
	if err != nil {
		return err
	}
	if t == nil {
		return ErrSessionClosed
	}
	if err := t.Signal(payload); err != nil {
		return NewError("apply signal", s.RemoteID, err)
	}
	return nil
}

// SendMediaState pushes the local media state to the remote.
func (s *Session) SendMediaState(state MediaState) error {
	s.mu.Lock()
	t := s.transport
	closed := s.state == StateClosed
	s.mu.Unlock()

	if closed || t == nil {
		return ErrSessionClosed
	}
	return t.SendMediaState(state)
}

// Destroy closes the session and releases its transport. Only the first call
// does anything; it reports whether this call closed the session.
func (s *Session) Destroy() bool {
	return s.terminate(EventDestroy, nil)
}

func (s *Session) terminate(ev Event, cause error) bool {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return false
	}
	if _, err := Next(s.state, ev); err != nil {
		s.mu.Unlock()
		return false
	}
	s.state = StateClosed
	s.cause = cause
	t := s.transport
	s.transport = nil
	s.mu.Unlock()

	if t != nil {
		if err := t.Close(); err != nil {
			s.log.Debug("close transport", "err", err)
		}
	}
	s.changed()
	return true
}

func (s *Session) onSignal(payload json.RawMessage) {
	if s.State() == StateClosed {
		return
	}
	s.emit(s, payload)
}

func (s *Session) onConnected() {
	if _, err := s.fire(EventConnected); err != nil {
		if !errors.Is(err, ErrSessionClosed) {
			s.log.Debug("ignoring connected event", "err", err)
		}
		return
	}
	s.log.Info("peer connected", "name", s.RemoteName)
	s.changed()
}

func (s *Session) onFailed(err error) {
	cause := WrapError("negotiate", s.RemoteID, ErrNegotiation, errString(err))
	if s.terminate(EventFailed, cause) {
		s.log.Warn("negotiation failed", "err", err)
	}
}

func (s *Session) onMediaState(state MediaState) {
	s.mu.Lock()
	s.remoteMedia = state
	s.mu.Unlock()
	s.changed()
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
