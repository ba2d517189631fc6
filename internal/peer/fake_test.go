package peer

import (
	"encoding/json"
	"sync"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// fakeTransport records what the session feeds it and lets tests raise
// transport events by hand.
type fakeTransport struct {
	remote room.Member
	role   Role
	events TransportEvents

	mu       sync.Mutex
	started  int
	signals  []string
	states   []MediaState
	closes   int
	startErr error
}

func (f *fakeTransport) Start() error {
	f.mu.Lock()
	f.started++
	err := f.startErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if f.role == Initiator {
		f.events.OnSignal(json.RawMessage(`{"type":"offer"}`))
	}
	return nil
}

func (f *fakeTransport) Signal(payload json.RawMessage) error {
	f.mu.Lock()
	f.signals = append(f.signals, string(payload))
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) SendMediaState(state MediaState) error {
	f.mu.Lock()
	f.states = append(f.states, state)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closes++
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

func (f *fakeTransport) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.signals...)
}

type fakeFactory struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	err        error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{transports: make(map[string]*fakeTransport)}
}

func (f *fakeFactory) NewTransport(remote room.Member, role Role, events TransportEvents) (Transport, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := &fakeTransport{remote: remote, role: role, events: events}
	f.transports[remote.ID] = t
	return t, nil
}

func (f *fakeFactory) get(id string) *fakeTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.transports[id]
}

type sent struct {
	kind   string
	target string
	signal string
}

type fakeSignaler struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeSignaler) Offer(target string, signal json.RawMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{"offer", target, string(signal)})
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) Answer(target string, signal json.RawMessage) error {
	f.mu.Lock()
	f.sent = append(f.sent, sent{"answer", target, string(signal)})
	f.mu.Unlock()
	return nil
}

func (f *fakeSignaler) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeSource struct {
	mu           sync.Mutex
	video, audio bool
	closes       int
}

func (f *fakeSource) SetVideoEnabled(v bool) { f.mu.Lock(); f.video = v; f.mu.Unlock() }
func (f *fakeSource) SetAudioEnabled(v bool) { f.mu.Lock(); f.audio = v; f.mu.Unlock() }
func (f *fakeSource) VideoEnabled() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.video }
func (f *fakeSource) AudioEnabled() bool     { f.mu.Lock(); defer f.mu.Unlock(); return f.audio }
func (f *fakeSource) Close() error           { f.mu.Lock(); f.closes++; f.mu.Unlock(); return nil }
