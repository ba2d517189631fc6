package ui

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
)

type fakeMesh struct {
	mu       sync.Mutex
	sessions []peer.SessionInfo
	state    peer.MediaState
}

func (f *fakeMesh) Snapshot() []peer.SessionInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]peer.SessionInfo(nil), f.sessions...)
}

func (f *fakeMesh) MediaState() peer.MediaState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeMesh) SetVideoEnabled(enabled bool) {
	f.mu.Lock()
	f.state.Video = enabled
	f.mu.Unlock()
}

func (f *fakeMesh) SetAudioEnabled(enabled bool) {
	f.mu.Lock()
	f.state.Audio = enabled
	f.mu.Unlock()
}

func key(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{1536, "1.50 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		if got := FormatSize(tt.in); got != tt.want {
			t.Errorf("FormatSize(%d)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{42 * time.Second, "42s"},
		{3*time.Minute + 5*time.Second, "3m 5s"},
		{2*time.Hour + time.Minute + 9*time.Second, "2h 1m 9s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v)=%q want %q", tt.in, got, tt.want)
		}
	}
}

func TestRoomsView(t *testing.T) {
	if got := RoomsView(nil); !strings.Contains(got, "No active rooms") {
		t.Fatalf("empty view=%q", got)
	}

	out := RoomsView([]room.Info{
		{ID: "standup", Members: []room.Member{{ID: "a", Name: "alice"}, {ID: "b", Name: "bob"}}},
		{ID: "retro", Members: []room.Member{{ID: "c", Name: "carol"}}},
	})
	for _, want := range []string{"Room", "Members", "standup", "alice, bob", "retro", "carol"} {
		if !strings.Contains(out, want) {
			t.Errorf("rooms view missing %q:\n%s", want, out)
		}
	}
}

func TestCallSummaryView(t *testing.T) {
	sessions := []peer.SessionInfo{
		{RemoteID: "a", RemoteName: "alice", Role: peer.Initiator, State: peer.StateConnected},
		{RemoteID: "b", RemoteName: "bob", Role: peer.Responder, State: peer.StateClosed},
	}
	stats := func(id string) (uint64, uint64) {
		if id == "a" {
			return 10, 2048
		}
		return 0, 0
	}

	// go-pretty upper-cases headers and footers.
	out := strings.ToLower(CallSummaryView("standup", 65*time.Second, sessions, stats))
	for _, want := range []string{"standup", "1m 5s", "alice", "initiator", "connected", "bob", "responder", "closed", "2.00 kb", "2 peers"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestNotifierCoalesces(t *testing.T) {
	n := NewNotifier()
	n.Notify()
	n.Notify()
	n.Notify()

	select {
	case <-n.C():
	default:
		t.Fatal("expected a pending notification")
	}
	select {
	case <-n.C():
		t.Fatal("notifications were not coalesced")
	default:
	}
}

func TestRoomModelToggles(t *testing.T) {
	mesh := &fakeMesh{state: peer.MediaState{Video: true, Audio: true}}
	m := NewRoomModel("standup", "alice", mesh, nil, nil)

	m.Update(key('v'))
	if got := mesh.MediaState(); got.Video || !got.Audio {
		t.Fatalf("after v: %+v", got)
	}
	m.Update(key('m'))
	if got := mesh.MediaState(); got.Video || got.Audio {
		t.Fatalf("after m: %+v", got)
	}
	m.Update(key('v'))
	if got := mesh.MediaState(); !got.Video {
		t.Fatalf("video not re-enabled: %+v", got)
	}
}

func TestRoomModelQuit(t *testing.T) {
	for _, msg := range []tea.KeyMsg{key('q'), {Type: tea.KeyCtrlC}} {
		m := NewRoomModel("standup", "alice", &fakeMesh{}, nil, nil)
		_, cmd := m.Update(msg)
		if !m.Quitting() {
			t.Fatalf("%s did not quit", msg)
		}
		if cmd == nil {
			t.Fatalf("%s returned no command", msg)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Fatalf("%s did not return tea.Quit", msg)
		}
		if m.View() != "" {
			t.Fatal("view rendered after quit")
		}
	}
}

func TestRoomModelRefreshesOnChange(t *testing.T) {
	mesh := &fakeMesh{state: peer.MediaState{Video: true}}
	changes := make(chan struct{}, 1)
	m := NewRoomModel("standup", "alice", mesh, func(string) (uint64, uint64) { return 3, 4096 }, changes)

	if !strings.Contains(m.View(), "Waiting for others") {
		t.Fatalf("empty room view:\n%s", m.View())
	}

	mesh.mu.Lock()
	mesh.sessions = []peer.SessionInfo{
		{RemoteID: "b", RemoteName: "bob", Role: peer.Initiator, State: peer.StateConnected, RemoteMedia: peer.MediaState{Video: true}},
		{RemoteID: "c", RemoteName: "carol", Role: peer.Responder, State: peer.StateClosed, Err: errors.New("ice failed")},
	}
	mesh.mu.Unlock()

	changes <- struct{}{}
	msg := m.waitForChange()()
	if _, ok := msg.(changedMsg); !ok {
		t.Fatalf("waitForChange returned %T", msg)
	}
	_, cmd := m.Update(msg)
	if cmd == nil {
		t.Fatal("change handling did not re-arm the listener")
	}

	view := m.View()
	for _, want := range []string{"standup", "bob", "connected", "4.00 KB", "carol", "ice failed"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Contains(view, "Waiting for others") {
		t.Error("waiting banner shown with peers present")
	}
}

func TestWaitForChangeStopsOnClose(t *testing.T) {
	changes := make(chan struct{})
	m := NewRoomModel("r", "n", &fakeMesh{}, nil, changes)
	close(changes)
	if msg := m.waitForChange()(); msg != nil {
		t.Fatalf("closed channel produced %T", msg)
	}
}
