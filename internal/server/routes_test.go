package server_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/keiu-jiyu/VideoChat/internal/room"
	"github.com/keiu-jiyu/VideoChat/internal/server"
	"github.com/keiu-jiyu/VideoChat/internal/signaling"
)

type event struct {
	kind   string
	id     string
	name   string
	signal string
}

// recorder is a signaling.Mesh that records every room event.
type recorder struct {
	events chan event
}

func newRecorder() *recorder {
	return &recorder{events: make(chan event, 32)}
}

func (r *recorder) HandleRoster(members []room.Member) {
	for _, m := range members {
		r.events <- event{kind: "roster", id: m.ID, name: m.Name}
	}
}

func (r *recorder) HandleAnnounce(id, name string, signal json.RawMessage) {
	r.events <- event{kind: "announce", id: id, name: name, signal: string(signal)}
}

func (r *recorder) HandleAnswered(id, name string, signal json.RawMessage) {
	r.events <- event{kind: "answered", id: id, name: name, signal: string(signal)}
}

func (r *recorder) HandleDeparted(id string) {
	r.events <- event{kind: "departed", id: id}
}

func (r *recorder) next(t *testing.T) event {
	t.Helper()
	select {
	case ev := <-r.events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for a room event")
		return event{}
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *signaling.Relay, *prometheus.Registry) {
	t.Helper()
	rooms := room.NewRegistry()
	reg := prometheus.NewRegistry()
	relay := signaling.NewRelay(rooms, signaling.NewMetrics(reg, rooms), slog.Default())
	srv := httptest.NewServer(server.NewMux(relay, reg, slog.Default()))
	t.Cleanup(srv.Close)
	return srv, relay, reg
}

type participant struct {
	client  *signaling.Client
	handler *signaling.Handler
	mesh    *recorder
	id      string
}

func dial(t *testing.T, srv *httptest.Server) *participant {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	client := signaling.NewClient(url)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(client.Close)

	mesh := newRecorder()
	handler := signaling.NewHandler(client, mesh, slog.Default())
	go handler.Start()

	p := &participant{client: client, handler: handler, mesh: mesh}
	select {
	case p.id = <-handler.Welcome:
	case <-time.After(5 * time.Second):
		t.Fatalf("no welcome")
	}
	if p.id == "" || client.ID() != p.id {
		t.Fatalf("welcome id=%q client id=%q", p.id, client.ID())
	}
	return p
}

func (p *participant) join(t *testing.T, roomID, name string) []room.Member {
	t.Helper()
	if err := p.client.Join(roomID, name); err != nil {
		t.Fatalf("Join: %v", err)
	}
	select {
	case members := <-p.handler.Joined:
		return members
	case msg := <-p.handler.Error:
		t.Fatalf("join rejected: %s", msg)
	case <-time.After(5 * time.Second):
		t.Fatalf("no roster")
	}
	return nil
}

func TestSignalingRoundTrip(t *testing.T) {
	srv, relay, _ := newTestServer(t)
	a := dial(t, srv)
	b := dial(t, srv)

	if members := a.join(t, "r1", "Alice"); len(members) != 0 {
		t.Fatalf("first roster=%+v", members)
	}
	members := b.join(t, "r1", "Bob")
	if len(members) != 1 || members[0].ID != a.id || members[0].Name != "Alice" {
		t.Fatalf("b roster=%+v", members)
	}
	if ev := b.mesh.next(t); ev.kind != "roster" || ev.id != a.id {
		t.Fatalf("b mesh got %+v", ev)
	}
	if ev := a.mesh.next(t); ev.kind != "announce" || ev.id != b.id || ev.name != "Bob" || ev.signal != "" {
		t.Fatalf("a mesh got %+v, want bare announce", ev)
	}

	offer := `{"type":"offer","sdp":"v=0"}`
	if err := b.client.Offer(a.id, json.RawMessage(offer)); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	if ev := a.mesh.next(t); ev.kind != "announce" || ev.id != b.id || ev.name != "Bob" || ev.signal != offer {
		t.Fatalf("a mesh got %+v, want announce with offer", ev)
	}

	answer := `{"type":"answer","sdp":"v=0"}`
	if err := a.client.Answer(b.id, json.RawMessage(answer)); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	if ev := b.mesh.next(t); ev.kind != "answered" || ev.id != a.id || ev.name != "Alice" || ev.signal != answer {
		t.Fatalf("b mesh got %+v, want answered", ev)
	}

	b.client.Close()
	if ev := a.mesh.next(t); ev.kind != "departed" || ev.id != b.id {
		t.Fatalf("a mesh got %+v, want departed", ev)
	}

	if err := a.client.Leave(); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	deadline := time.Now().Add(5 * time.Second)
	for relay.Rooms().Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("room not deleted")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receivedCount(t *testing.T, reg *prometheus.Registry, msgType string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() != "meshroom_relay_received_messages_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "type" && l.GetValue() == msgType {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestLeaveBeforeCloseIsDelivered(t *testing.T) {
	srv, relay, reg := newTestServer(t)

	for i := 1; i <= 10; i++ {
		a := dial(t, srv)
		a.join(t, "r1", "Alice")
		if err := a.client.Leave(); err != nil {
			t.Fatalf("Leave: %v", err)
		}
		a.client.Close()

		deadline := time.Now().Add(5 * time.Second)
		for receivedCount(t, reg, signaling.MessageTypeLeave) != float64(i) || relay.Rooms().Len() != 0 {
			if time.Now().After(deadline) {
				t.Fatalf("round %d: leave count=%v rooms=%d", i, receivedCount(t, reg, signaling.MessageTypeLeave), relay.Rooms().Len())
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

func TestProtocolErrorKeepsConnection(t *testing.T) {
	srv, _, _ := newTestServer(t)
	a := dial(t, srv)

	if err := a.client.Offer("nobody", json.RawMessage(`{"type":"offer"}`)); err != nil {
		t.Fatalf("Offer: %v", err)
	}
	select {
	case msg := <-a.handler.Error:
		if !strings.Contains(msg, "join a room first") {
			t.Fatalf("error=%q", msg)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("no error message")
	}

	a.join(t, "r1", "Alice")
}

func TestHealthRoomsAndMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	a := dial(t, srv)
	a.join(t, "lobby", "Alice")

	get := func(path string) (int, string) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatalf("read %s: %v", path, err)
		}
		return resp.StatusCode, string(body)
	}

	if code, _ := get("/health"); code != http.StatusOK {
		t.Fatalf("/health=%d", code)
	}

	code, body := get("/rooms")
	if code != http.StatusOK {
		t.Fatalf("/rooms=%d", code)
	}
	var rooms []room.Info
	if err := json.Unmarshal([]byte(body), &rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].ID != "lobby" || len(rooms[0].Members) != 1 || rooms[0].Members[0].Name != "Alice" {
		t.Fatalf("rooms=%+v", rooms)
	}

	code, body = get("/metrics")
	if code != http.StatusOK {
		t.Fatalf("/metrics=%d", code)
	}
	for _, want := range []string{"meshroom_relay_rooms 1", "meshroom_relay_members 1", "meshroom_relay_connections 1"} {
		if !strings.Contains(body, want) {
			t.Fatalf("/metrics missing %q", want)
		}
	}
}
