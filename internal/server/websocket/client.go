// Package websocket delivers captured events to viewers over WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/server/broker"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 512
)

// ErrClientClosed is returned by Send after the client was closed.
var ErrClientClosed = errors.New("websocket client closed")

// Frame is the JSON message written for every pushed event.
type Frame struct {
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

// Unsubscriber removes a subscriber from the hub.
type Unsubscriber interface {
	Unsubscribe(broker.Subscriber)
}

// Client is one WebSocket viewer. It implements broker.Subscriber.
type Client struct {
	id     string
	conn   *websocket.Conn
	hub    Unsubscriber
	send   chan events.Event
	logger *zerolog.Logger

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client for conn. Start it with Serve or by running
// both pumps.
func NewClient(id string, conn *websocket.Conn, hub Unsubscriber, logger *zerolog.Logger) *Client {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Client{
		id:     id,
		conn:   conn,
		hub:    hub,
		send:   make(chan events.Event, constants.SubscriberBufferSize),
		logger: logger,
	}
}

// Serve registers a new client for conn with b and starts its pumps.
func Serve(b *broker.Broker, id string, conn *websocket.Conn, logger *zerolog.Logger) *Client {
	c := NewClient(id, conn, b, logger)
	b.Subscribe(c)
	go c.WritePump()
	go c.ReadPump()
	return c
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// Send queues e for the write pump without blocking.
func (c *Client) Send(e events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- e:
		return nil
	default:
		return fmt.Errorf("send queue full (%d pending)", len(c.send))
	}
}

// Close stops the write pump, which sends a close frame and drops the
// connection. Repeated calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// ReadPump drains the connection until it fails, answering pongs. Viewer
// messages are ignored. On exit the client leaves the hub.
func (c *Client) ReadPump() {
	defer func() {
		if c.hub != nil {
			c.hub.Unsubscribe(c)
		}
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn().Err(err).Str("subscriber_id", c.id).Msg("WebSocket read error")
			}
			return
		}
	}
}

// WritePump writes queued events and keep-alive pings to the connection.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case e, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			data, err := json.Marshal(Frame{Event: constants.PushEventName, Data: e})
			if err != nil {
				c.logger.Error().Err(err).Str("event_id", e.ID).Msg("Failed to marshal WebSocket frame")
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug().Err(err).Str("subscriber_id", c.id).Msg("WebSocket write failed")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
