package signaling

import (
	"encoding/json"
	"log/slog"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Mesh receives the room events a participant reacts to.
type Mesh interface {
	HandleRoster(members []room.Member)
	HandleAnnounce(id, name string, signal json.RawMessage)
	HandleAnswered(id, name string, signal json.RawMessage)
	HandleDeparted(id string)
}

// Handler routes incoming relay messages. Room events go to the Mesh in the
// order the relay sent them; the join handshake is surfaced on channels.
type Handler struct {
	client *Client
	mesh   Mesh
	log    *slog.Logger
	routes map[string]func(*Message)

	Welcome chan string
	Joined  chan []room.Member
	Error   chan string
}

// NewHandler creates a new message handler.
func NewHandler(client *Client, mesh Mesh, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		client:  client,
		mesh:    mesh,
		log:     logger,
		Welcome: make(chan string, 1),
		Joined:  make(chan []room.Member, 1),
		Error:   make(chan string, 1),
	}
	h.routes = map[string]func(*Message){
		MessageTypeWelcome:  h.handleWelcome,
		MessageTypeRoster:   h.handleRoster,
		MessageTypeAnnounce: h.handleAnnounce,
		MessageTypeAnswered: h.handleAnswered,
		MessageTypeDeparted: h.handleDeparted,
		MessageTypeError:    h.handleError,
	}
	return h
}

// Start begins listening to incoming messages and routing them. It returns
// when the connection closes.
func (h *Handler) Start() {
	for msg := range h.client.Incoming() {
		route, ok := h.routes[msg.Type]
		if !ok {
			h.log.Debug("ignoring unknown relay message", "type", msg.Type)
			continue
		}
		route(msg)
	}
}

func (h *Handler) handleWelcome(msg *Message) {
	h.client.setID(msg.ID)
	notify(h.Welcome, msg.ID)
}

func (h *Handler) handleRoster(msg *Message) {
	h.mesh.HandleRoster(msg.Members)
	notify(h.Joined, msg.Members)
}

func (h *Handler) handleAnnounce(msg *Message) {
	var signal json.RawMessage
	if msg.HasSignal() {
		signal = msg.Signal
	}
	h.mesh.HandleAnnounce(msg.ID, msg.Name, signal)
}

func (h *Handler) handleAnswered(msg *Message) {
	if !msg.HasSignal() {
		h.log.Debug("answered without signal", "from", msg.ID)
		return
	}
	h.mesh.HandleAnswered(msg.ID, msg.Name, msg.Signal)
}

func (h *Handler) handleDeparted(msg *Message) {
	h.mesh.HandleDeparted(msg.ID)
}

func (h *Handler) handleError(msg *Message) {
	h.log.Warn("relay rejected message", "error", msg.Error)
	notify(h.Error, msg.Error)
}

// notify never blocks the routing loop; late events nobody waits for are
// dropped.
func notify[T any](ch chan T, v T) {
	select {
	case ch <- v:
	default:
	}
}
