package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/keiu-jiyu/VideoChat/internal/peer"
	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// StatsFunc reports media received from a remote participant.
type StatsFunc func(remoteID string) (packets, bytes uint64)

// RoomsView renders the relay's room listing.
func RoomsView(rooms []room.Info) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	rows := make([][]string, 0, len(rooms))
	for _, r := range rooms {
		names := make([]string, len(r.Members))
		for i, m := range r.Members {
			names[i] = m.Name
		}
		rows = append(rows, []string{r.ID, fmt.Sprintf("%d", len(r.Members)), strings.Join(names, ", ")})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("Room", "Members", "Names").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RenderRooms prints the room listing to stdout.
func RenderRooms(rooms []room.Info) {
	fmt.Println(RoomsView(rooms))
}

// CallSummaryView renders the per-peer summary printed when leaving a room.
func CallSummaryView(roomID string, elapsed time.Duration, sessions []peer.SessionInfo, stats StatsFunc) string {
	t := prettytable.NewWriter()
	t.SetStyle(prettytable.StyleRounded)
	t.SetTitle(fmt.Sprintf("Call summary: %s (%s)", roomID, FormatDuration(elapsed)))
	t.AppendHeader(prettytable.Row{"Peer", "Role", "State", "Packets", "Received"})

	var totalPackets, totalBytes uint64
	for _, s := range sessions {
		var packets, bytes uint64
		if stats != nil {
			packets, bytes = stats(s.RemoteID)
		}
		totalPackets += packets
		totalBytes += bytes
		t.AppendRow(prettytable.Row{s.RemoteName, s.Role.String(), s.State.String(), packets, FormatSize(bytes)})
	}
	t.AppendFooter(prettytable.Row{fmt.Sprintf("%d peers", len(sessions)), "", "", totalPackets, FormatSize(totalBytes)})
	return t.Render()
}

// RenderCallSummary prints the call summary to stdout.
func RenderCallSummary(roomID string, elapsed time.Duration, sessions []peer.SessionInfo, stats StatsFunc) {
	fmt.Println(CallSummaryView(roomID, elapsed, sessions, stats))
}

// JoinedView is the banner shown once the relay accepted the join.
func JoinedView(roomID, name string, others int) string {
	content := fmt.Sprintf("%s Joined room %s as %s\n\n%s %d other participant(s) present",
		IconRoom, BoldStyle.Foreground(Primary).Render(roomID), BoldStyle.Render(name),
		IconPeer, others,
	)
	return RoomBoxStyle.Render(content)
}
