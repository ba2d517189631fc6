package signaling

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/keiu-jiyu/VideoChat/internal/room"
)

// Peer is the relay's handle on one connected participant.
type Peer interface {
	// ID returns the participant ID assigned at connect time.
	ID() string

	// Send queues msg for delivery. It must not block. ErrClosed and
	// ErrQueueFull mean the message was dropped.
	Send(msg *Message) error
}

// Relay is the routing layer between participants. It keeps no room state of
// its own: membership lives in the room.Registry, and every fan-out is queued
// from inside the registry's per-room critical section so recipients observe
// a room's events in the order the room changed.
type Relay struct {
	rooms   *room.Registry
	metrics *Metrics
	log     *slog.Logger

	mu    sync.RWMutex
	peers map[string]Peer

	handlers map[string]func(Peer, *Message) error
}

// NewRelay creates a Relay over rooms. metrics may be nil.
func NewRelay(rooms *room.Registry, metrics *Metrics, logger *slog.Logger) *Relay {
	if metrics == nil {
		metrics = NewMetrics(nil, nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	r := &Relay{
		rooms:   rooms,
		metrics: metrics,
		log:     logger,
		peers:   make(map[string]Peer),
	}
	r.handlers = map[string]func(Peer, *Message) error{
		MessageTypeJoin:   r.handleJoin,
		MessageTypeOffer:  r.handleOffer,
		MessageTypeAnswer: r.handleAnswer,
		MessageTypeLeave:  r.handleLeave,
	}
	return r
}

// Rooms returns the registry the relay routes over.
func (r *Relay) Rooms() *room.Registry {
	return r.rooms
}

// Register makes p reachable for unicast delivery and greets it with its ID.
func (r *Relay) Register(p Peer) {
	r.mu.Lock()
	r.peers[p.ID()] = p
	r.mu.Unlock()

	r.metrics.Connections.Inc()
	r.log.Debug("participant connected", "id", p.ID())
	r.deliver(p, &Message{Type: MessageTypeWelcome, ID: p.ID()})
}

// Unregister handles a transport-level disconnect: the participant leaves its
// room (if any) and the remaining members are told it departed.
func (r *Relay) Unregister(p Peer) {
	r.leave(p)

	r.mu.Lock()
	if current, ok := r.peers[p.ID()]; ok && current == p {
		delete(r.peers, p.ID())
		r.metrics.Connections.Dec()
	}
	r.mu.Unlock()

	r.log.Debug("participant disconnected", "id", p.ID())
}

// Handle processes one inbound message from p. Protocol errors are logged,
// counted and reported back to p; they never close the connection.
func (r *Relay) Handle(p Peer, msg *Message) error {
	handler, ok := r.handlers[msg.Type]
	if !ok {
		r.metrics.Received.WithLabelValues(receivedTypeUnknown).Inc()
		return r.reject(p, protocolError(truncateType(msg.Type), "unknown message type"))
	}
	r.metrics.Received.WithLabelValues(msg.Type).Inc()

	err := handler(p, msg)
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return r.reject(p, perr)
	}
	return err
}

// Reject reports a protocol error for a message that could not be decoded.
func (r *Relay) Reject(p Peer, reason string) error {
	return r.reject(p, protocolError("", reason))
}

func (r *Relay) reject(p Peer, perr *ProtocolError) error {
	r.metrics.Dropped.WithLabelValues(DropReasonProtocol).Inc()
	r.log.Warn("dropping event", "id", p.ID(), "err", perr)
	r.deliver(p, &Message{Type: MessageTypeError, Error: perr.Error()})
	return perr
}

func (r *Relay) handleJoin(p Peer, msg *Message) error {
	if msg.RoomID == "" {
		return protocolError(msg.Type, "room_id is required")
	}
	if msg.Name == "" {
		return protocolError(msg.Type, "name is required")
	}

	me := room.Member{ID: p.ID(), Name: msg.Name}
	_, err := r.rooms.Join(msg.RoomID, me, func(snapshot []room.Member) {
		r.deliver(p, &Message{Type: MessageTypeRoster, RoomID: msg.RoomID, Members: snapshot})

		announce := &Message{Type: MessageTypeAnnounce, ID: me.ID, Name: me.Name}
		for _, m := range snapshot {
			r.deliverTo(m.ID, announce)
		}
	})
	if errors.Is(err, room.ErrAlreadyJoined) {
		return protocolError(msg.Type, "already in a room")
	}
	if err != nil {
		return protocolError(msg.Type, err.Error())
	}

	r.log.Info("participant joined", "id", me.ID, "name", me.Name, "room", msg.RoomID)
	return nil
}

// handleOffer reuses the announce channel so the target learns about the
// caller and receives its payload in one message.
func (r *Relay) handleOffer(p Peer, msg *Message) error {
	return r.route(p, msg, MessageTypeAnnounce)
}

func (r *Relay) handleAnswer(p Peer, msg *Message) error {
	return r.route(p, msg, MessageTypeAnswered)
}

func (r *Relay) route(p Peer, msg *Message, outType string) error {
	if msg.Target == "" {
		return protocolError(msg.Type, "target is required")
	}
	if !msg.HasSignal() {
		return protocolError(msg.Type, "signal is required")
	}

	out := &Message{Type: outType, ID: p.ID(), Name: msg.Name, Signal: msg.Signal}
	err := r.rooms.Route(p.ID(), msg.Target, func(target room.Member) {
		r.deliverTo(target.ID, out)
	})
	switch {
	case errors.Is(err, room.ErrNotInRoom):
		return protocolError(msg.Type, "join a room first")
	case errors.Is(err, room.ErrRoutingMiss):
		// The target left between send and processing. Its departure reaches
		// the sender separately, so the stale message is dropped quietly.
		r.metrics.Dropped.WithLabelValues(DropReasonRoutingMiss).Inc()
		r.log.Debug("routing miss", "from", p.ID(), "target", msg.Target, "type", msg.Type)
		return nil
	}
	return err
}

func (r *Relay) handleLeave(p Peer, msg *Message) error {
	if !r.leave(p) {
		r.log.Debug("leave without room", "id", p.ID())
	}
	return nil
}

func (r *Relay) leave(p Peer) bool {
	departed := &Message{Type: MessageTypeDeparted, ID: p.ID()}
	roomID, remaining, ok := r.rooms.Leave(p.ID(), func(members []room.Member) {
		for _, m := range members {
			r.deliverTo(m.ID, departed)
		}
	})
	if !ok {
		return false
	}

	if remaining == 0 {
		r.log.Info("room deleted", "room", roomID)
	} else {
		r.log.Info("participant left", "id", p.ID(), "room", roomID, "remaining", remaining)
	}
	return true
}

func (r *Relay) deliverTo(id string, msg *Message) {
	r.mu.RLock()
	p, ok := r.peers[id]
	r.mu.RUnlock()

	if !ok {
		r.metrics.Dropped.WithLabelValues(DropReasonRoutingMiss).Inc()
		return
	}
	r.deliver(p, msg)
}

func (r *Relay) deliver(p Peer, msg *Message) {
	switch err := p.Send(msg); {
	case errors.Is(err, ErrClosed):
		r.metrics.Dropped.WithLabelValues(DropReasonClosed).Inc()
		r.log.Debug("connection closed, message dropped", "id", p.ID(), "type", msg.Type)
		return
	case err != nil:
		r.metrics.Dropped.WithLabelValues(DropReasonQueueFull).Inc()
		r.log.Warn("outbound queue full, message dropped", "id", p.ID(), "type", msg.Type)
		return
	}
	r.metrics.Delivered.WithLabelValues(msg.Type).Inc()
}

// truncateType bounds a client-supplied type echoed back in error messages.
func truncateType(t string) string {
	const max = 32
	if len(t) > max {
		return t[:max] + "..."
	}
	return t
}
