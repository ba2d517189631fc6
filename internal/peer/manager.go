package peer

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Config holds the collaborators of a Manager.
type Config struct {
	// Factory creates the media transport for each new session.
	Factory TransportFactory

	// Signaler carries outbound payloads to the relay.
	Signaler Signaler

	// Source is the local media shared by every session. It is closed by
	// Manager.Close. May be nil.
	Source MediaSource

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// OnChange, if set, is called after any session is created, changes
	// state or is removed.
	OnChange func()
}

// Manager owns one participant's sessions, keyed by remote participant ID,
// and turns relay events into session creation and teardown.
type Manager struct {
	factory  TransportFactory
	signaler Signaler
	source   MediaSource
	log      *slog.Logger
	onChange func()

	mu       sync.Mutex
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager with no sessions.
func NewManager(cfg Config) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	onChange := cfg.OnChange
	if onChange == nil {
		onChange = func() {}
	}
	return &Manager{
		factory:  cfg.Factory,
		signaler: cfg.Signaler,
		source:   cfg.Source,
		log:      logger,
		onChange: onChange,
		sessions: make(map[string]*Session),
	}
}

// HandleRoster creates an initiator session toward every member already in
// the room we just joined and starts it.
func (m *Manager) HandleRoster(members []room.Member) {
	for _, member := range members {
		s, created := m.getOrCreate(member, Initiator)
		if !created {
			continue
		}
		if err := s.Start(); err != nil {
			m.log.Warn("start session", "remote", member.ID, "err", err)
		}
	}
}

// HandleAnnounce handles a remote that announced itself, with or without a
// negotiation payload. A remote we already hold a session for is never
// duplicated; its payload is fed to the existing session.
func (m *Manager) HandleAnnounce(id, name string, signal json.RawMessage) {
	s, created := m.getOrCreate(room.Member{ID: id, Name: name}, Responder)
	if s == nil {
		return
	}
	if created {
		if err := s.Start(); err != nil {
			m.log.Warn("start session", "remote", id, "err", err)
			return
		}
	}
	if len(signal) == 0 {
		return
	}
	if err := s.Signal(signal); err != nil {
		m.log.Warn("apply offer", "remote", id, "err", err)
	}
}

// HandleAnswered feeds a responder's payload to our initiator session. An
// answer for a session we no longer hold is stale and ignored.
func (m *Manager) HandleAnswered(id, name string, signal json.RawMessage) {
	s := m.Session(id)
	if s == nil || s.Role != Initiator {
		m.log.Debug("ignoring stale answer", "remote", id)
		return
	}
	if err := s.Signal(signal); err != nil {
		m.log.Warn("apply answer", "remote", id, "err", err)
	}
}

// HandleDeparted destroys the session for a remote that left. Repeated
// departures are no-ops.
func (m *Manager) HandleDeparted(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if !ok {
		return
	}
	s.Destroy()
	m.log.Info("peer departed", "remote", id, "name", s.RemoteName)
	m.onChange()
}

// Close destroys every session and releases the local media source. It does
// not depend on any further relay event and is safe to call more than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Destroy()
	}

	var err error
	if m.source != nil {
		err = m.source.Close()
	}
	m.onChange()
	return err
}

// Session returns the session for remote id, or nil.
func (m *Manager) Session(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id]
}

// Len returns the number of sessions held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Snapshot returns every session ordered by remote name, then ID.
func (m *Manager) Snapshot() []SessionInfo {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	infos := make([]SessionInfo, len(sessions))
	for i, s := range sessions {
		infos[i] = s.Info()
	}
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].RemoteName != infos[j].RemoteName {
			return infos[i].RemoteName < infos[j].RemoteName
		}
		return infos[i].RemoteID < infos[j].RemoteID
	})
	return infos
}

// MediaState returns the local source's current state.
func (m *Manager) MediaState() MediaState {
	if m.source == nil {
		return MediaState{}
	}
	return MediaState{Video: m.source.VideoEnabled(), Audio: m.source.AudioEnabled()}
}

// SetVideoEnabled toggles the shared local video track and tells every
// remote. Nothing is renegotiated.
func (m *Manager) SetVideoEnabled(enabled bool) {
	if m.source == nil {
		return
	}
	m.source.SetVideoEnabled(enabled)
	m.broadcastMediaState()
}

// SetAudioEnabled toggles the shared local audio track and tells every
// remote.
func (m *Manager) SetAudioEnabled(enabled bool) {
	if m.source == nil {
		return
	}
	m.source.SetAudioEnabled(enabled)
	m.broadcastMediaState()
}

func (m *Manager) broadcastMediaState() {
	state := m.MediaState()

	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		if err := s.SendMediaState(state); err != nil && !errors.Is(err, ErrSessionClosed) {
			m.log.Debug("send media state", "remote", s.RemoteID, "err", err)
		}
	}
	m.onChange()
}

// getOrCreate returns the session for remote, creating one with role if
// none exists. It returns nil once the manager is closed.
func (m *Manager) getOrCreate(remote room.Member, role Role) (*Session, bool) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, false
	}
	if s, ok := m.sessions[remote.ID]; ok {
		m.mu.Unlock()
		return s, false
	}
	s := newSession(remote, role, m.log, m.emit, m.onChange)
	m.sessions[remote.ID] = s
	m.mu.Unlock()

	t, err := m.factory.NewTransport(remote, role, s.events())
	if err != nil {
		s.onFailed(err)
		m.log.Warn("create transport", "remote", remote.ID, "err", err)
		return s, false
	}
	if !s.attach(t) {
		// Close or a departure won the race with the factory.
		return s, false
	}

	m.log.Info("session created", "remote", remote.ID, "name", remote.Name, "role", role.String())
	m.onChange()
	return s, true
}

func (m *Manager) emit(s *Session, payload json.RawMessage) {
	var err error
	if s.Role == Initiator {
		err = m.signaler.Offer(s.RemoteID, payload)
	} else {
		err = m.signaler.Answer(s.RemoteID, payload)
	}
	if err != nil {
		m.log.Warn("send signal", "remote", s.RemoteID, "err", err)
	}
}
