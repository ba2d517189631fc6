package cmd

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/server"
	"github.com/keiu-jiyu/VideoChat/internal/signaling"
	"github.com/prometheus/client_golang/prometheus"
)

func TestFetchRooms(t *testing.T) {
	rooms := room.NewRegistry()
	if _, err := rooms.Join("standup", room.Member{ID: "a", Name: "alice"}, nil); err != nil {
		t.Fatalf("Join: %v", err)
	}
	reg := prometheus.NewRegistry()
	relay := signaling.NewRelay(rooms, signaling.NewMetrics(reg, rooms), slog.Default())
	srv := httptest.NewServer(server.NewMux(relay, reg, slog.Default()))
	defer srv.Close()

	got, err := fetchRooms(context.Background(), srv.URL+"/rooms")
	if err != nil {
		t.Fatalf("fetchRooms: %v", err)
	}
	if len(got) != 1 || got[0].ID != "standup" || len(got[0].Members) != 1 || got[0].Members[0].Name != "alice" {
		t.Fatalf("rooms=%+v", got)
	}
}

func TestFetchRoomsBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := fetchRooms(context.Background(), srv.URL+"/rooms")
	if err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("err=%v", err)
	}
}

func TestCommandsRegistered(t *testing.T) {
	for _, name := range []string{"relay", "join", "rooms"} {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered: %v", name, err)
		}
	}
}

func TestDefaultName(t *testing.T) {
	if defaultName() == "" {
		t.Fatal("empty default name")
	}
}
