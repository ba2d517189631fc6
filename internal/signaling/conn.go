package signaling

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. SDP with many candidates fits.
	maxMessageSize = 64 * 1024

	// Outbound messages buffered per connection before the relay starts
	// dropping.
	sendQueueSize = 256
)

// Conn is the relay side of one participant's websocket.
type Conn struct {
	id    string
	relay *Relay
	ws    *websocket.Conn
	log   *slog.Logger

	// send is a buffered channel for all outbound messages. The relay writes
	// to it and WritePump drains it to the websocket.
	send chan *Message

	done      chan struct{}
	closeOnce sync.Once
}

// NewConn wraps ws for participant id. Call Start to register it and run its
// pumps.
func NewConn(id string, relay *Relay, ws *websocket.Conn, logger *slog.Logger) *Conn {
	return &Conn{
		id:    id,
		relay: relay,
		ws:    ws,
		log:   logger.With("id", id),
		send:  make(chan *Message, sendQueueSize),
		done:  make(chan struct{}),
	}
}

// ID implements Peer.
func (c *Conn) ID() string {
	return c.id
}

// Send implements Peer. It never blocks.
func (c *Conn) Send(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start registers the connection with the relay and starts its read and
// write pumps. The relay's welcome message is queued before either pump
// runs, so it is always the first message the participant sees.
func (c *Conn) Start() {
	c.relay.Register(c)
	go c.WritePump()
	go c.ReadPump()
}

func (c *Conn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// ReadPump pumps messages from the websocket connection to the relay.
//
// The application runs ReadPump in a per-connection goroutine. The
// application ensures that there is at most one reader on a connection by
// executing all reads from this goroutine.
func (c *Conn) ReadPump() {
	// A disconnect is a leave.
	defer func() {
		c.relay.Unregister(c)
		c.close()
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket read failed", "err", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.relay.Reject(c, "malformed message")
			continue
		}

		c.relay.Handle(c, &msg)
	}
}

// WritePump pumps messages from the relay to the websocket connection.
//
// A goroutine running WritePump is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(message); err != nil {
				c.log.Debug("websocket write failed", "err", err)
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
