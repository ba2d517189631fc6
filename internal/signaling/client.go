package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/keiu-jiyu/VideoChat/internal/netutil"
)

const (
	clientIncomingSize = 64
	clientOutgoingSize = 64
	handshakeTimeout   = 10 * time.Second
)

// Client manages a participant's WebSocket connection to the relay.
type Client struct {
	conn      *websocket.Conn
	serverURL string
	incoming  chan *Message
	outgoing  chan *Message
	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	id   string
	name string
}

// NewClient creates a new signaling client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		incoming:  make(chan *Message, clientIncomingSize),
		outgoing:  make(chan *Message, clientOutgoingSize),
		done:      make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection to the relay.
func (c *Client) Connect(ctx context.Context) error {
	u, err := url.Parse(c.serverURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}

	dialer := websocket.Dialer{
		NetDialContext:   netutil.DialContext,
		HandshakeTimeout: handshakeTimeout,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	c.conn = conn
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// The relay pings us; answer and extend the deadline.
	c.conn.SetPingHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	go c.readPump()
	go c.writePump()

	return nil
}

// readPump reads messages from the WebSocket connection.
func (c *Client) readPump() {
	defer func() {
		c.shutdown()
		close(c.incoming)
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}
		c.incoming <- &msg
	}
}

// writePump writes messages to the WebSocket connection.
func (c *Client) writePump() {
	defer c.conn.Close()

	for {
		select {
		case message := <-c.outgoing:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(message); err != nil {
				c.shutdown()
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.flush()
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// flush writes whatever is still queued, so a Leave sent right before Close
// reaches the relay.
func (c *Client) flush() {
	for {
		select {
		case message := <-c.outgoing:
			if err := c.conn.WriteJSON(message); err != nil {
				return
			}
		default:
			return
		}
	}
}

// SendMessage queues a message for the relay. It returns ErrClosed once the
// connection is gone.
func (c *Client) SendMessage(msg *Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outgoing <- msg:
		return nil
	case <-c.done:
		return ErrClosed
	}
}

// Incoming returns the channel for receiving messages. It is closed when
// the connection ends.
func (c *Client) Incoming() <-chan *Message {
	return c.incoming
}

// Done is closed when the connection is shut down from either side.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Join asks the relay to add us to roomID under name.
func (c *Client) Join(roomID, name string) error {
	c.mu.Lock()
	c.name = name
	c.mu.Unlock()
	return c.SendMessage(&Message{Type: MessageTypeJoin, RoomID: roomID, Name: name})
}

// Leave asks the relay to remove us from our room.
func (c *Client) Leave() error {
	return c.SendMessage(&Message{Type: MessageTypeLeave})
}

// Offer sends an initiator-side negotiation payload to target.
func (c *Client) Offer(target string, signal json.RawMessage) error {
	return c.SendMessage(&Message{Type: MessageTypeOffer, Target: target, Name: c.Name(), Signal: signal})
}

// Answer sends a responder-side negotiation payload to target.
func (c *Client) Answer(target string, signal json.RawMessage) error {
	return c.SendMessage(&Message{Type: MessageTypeAnswer, Target: target, Name: c.Name(), Signal: signal})
}

// ID returns the participant ID assigned by the relay, or "" before the
// welcome message arrives.
func (c *Client) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// Name returns the display name used for the last Join.
func (c *Client) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

func (c *Client) setID(id string) {
	c.mu.Lock()
	c.id = id
	c.mu.Unlock()
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.done)
	})
}

// Close closes the WebSocket connection and cleans up resources.
func (c *Client) Close() {
	c.shutdown()
}
