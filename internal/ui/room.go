package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/keiu-jiyu/VideoChat/internal/peer"
)

const refreshInterval = 500 * time.Millisecond

// Mesh is what the room view observes and controls.
type Mesh interface {
	Snapshot() []peer.SessionInfo
	MediaState() peer.MediaState
	SetVideoEnabled(enabled bool)
	SetAudioEnabled(enabled bool)
}

// Notifier turns mesh change callbacks into wake-ups for the view. Bursts
// collapse into one.
type Notifier struct {
	ch chan struct{}
}

func NewNotifier() *Notifier {
	return &Notifier{ch: make(chan struct{}, 1)}
}

// Notify never blocks.
func (n *Notifier) Notify() {
	select {
	case n.ch <- struct{}{}:
	default:
	}
}

// C returns the wake-up channel.
func (n *Notifier) C() <-chan struct{} {
	return n.ch
}

type changedMsg struct{}
type refreshMsg time.Time

// RoomModel is the live terminal view of one participant's mesh.
type RoomModel struct {
	roomID  string
	name    string
	mesh    Mesh
	stats   StatsFunc
	changes <-chan struct{}

	spinner  spinner.Model
	sessions []peer.SessionInfo
	local    peer.MediaState
	started  time.Time
	quitting bool
}

// NewRoomModel creates the view. stats and changes may be nil.
func NewRoomModel(roomID, name string, mesh Mesh, stats StatsFunc, changes <-chan struct{}) *RoomModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	m := &RoomModel{
		roomID:  roomID,
		name:    name,
		mesh:    mesh,
		stats:   stats,
		changes: changes,
		spinner: s,
		started: time.Now(),
	}
	m.refresh()
	return m
}

func (m *RoomModel) refresh() {
	m.sessions = m.mesh.Snapshot()
	m.local = m.mesh.MediaState()
}

func (m *RoomModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForChange(), refreshTick())
}

func (m *RoomModel) waitForChange() tea.Cmd {
	if m.changes == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-m.changes; !ok {
			return nil
		}
		return changedMsg{}
	}
}

func refreshTick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m *RoomModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "v":
			m.mesh.SetVideoEnabled(!m.local.Video)
			m.refresh()
		case "m":
			m.mesh.SetAudioEnabled(!m.local.Audio)
			m.refresh()
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case changedMsg:
		m.refresh()
		return m, m.waitForChange()

	case refreshMsg:
		if m.quitting {
			return m, nil
		}
		m.refresh()
		return m, refreshTick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// Quitting reports whether the user asked to leave.
func (m *RoomModel) Quitting() bool {
	return m.quitting
}

func (m *RoomModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.roomID)))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("%s %s %s  %s video %s  %s audio %s  %s\n\n",
		IconPeer, BoldStyle.Render(m.name), BadgeStyle.Render("you"),
		IconVideo, mediaLabel(m.local.Video),
		IconAudio, mediaLabel(m.local.Audio),
		MutedStyle.Render(FormatDuration(time.Since(m.started))),
	))

	if len(m.sessions) == 0 {
		b.WriteString(fmt.Sprintf("%s Waiting for others to join...\n", m.spinner.View()))
	}
	for _, s := range m.sessions {
		b.WriteString(m.sessionLine(s))
		b.WriteString("\n")
	}

	b.WriteString(FooterStyle.Render("v video · m mute · q leave"))
	return b.String()
}

func (m *RoomModel) sessionLine(s peer.SessionInfo) string {
	var icon string
	var nameStyle lipgloss.Style
	switch s.State {
	case peer.StateConnected:
		icon, nameStyle = IconConnect, SuccessStyle
	case peer.StateClosed:
		icon, nameStyle = IconError, ErrorStyle
	default:
		icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
	}

	line := fmt.Sprintf("  %s %s %s %s",
		icon,
		nameStyle.Width(20).Render(truncate(s.RemoteName, 18)),
		MutedStyle.Width(10).Render(s.Role.String()),
		MutedStyle.Width(12).Render(s.State.String()),
	)

	switch s.State {
	case peer.StateConnected:
		line += fmt.Sprintf(" %s %s %s %s", IconVideo, mediaLabel(s.RemoteMedia.Video), IconAudio, mediaLabel(s.RemoteMedia.Audio))
		if m.stats != nil {
			_, bytes := m.stats(s.RemoteID)
			line += " " + MutedStyle.Render(FormatSize(bytes))
		}
	case peer.StateClosed:
		if s.Err != nil {
			line += " " + ErrorStyle.Render(truncate(s.Err.Error(), 48))
		}
	}
	return line
}

func mediaLabel(on bool) string {
	if on {
		return SuccessStyle.Render(onOff(on))
	}
	return MutedStyle.Render(onOff(on))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// RunRoom runs the live view until the user quits or done closes.
func RunRoom(model *RoomModel, done <-chan struct{}) error {
	p := tea.NewProgram(model)
	exited := make(chan struct{})
	defer close(exited)
	go func() {
		select {
		case <-done:
			p.Quit()
		case <-exited:
		}
	}()
	_, err := p.Run()
	return err
}
