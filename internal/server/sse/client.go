// Package sse delivers captured events to viewers as Server-Sent Events.
package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/server/broker"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// keepAliveInterval spaces comment lines that keep idle proxies from
// dropping the stream.
var keepAliveInterval = constants.SSEKeepAliveInterval

// ErrClientClosed is returned by Send after the client was closed.
var ErrClientClosed = errors.New("sse client closed")

// Hub is the subset of the broker a stream needs.
type Hub interface {
	Subscribe(broker.Subscriber)
	Unsubscribe(broker.Subscriber)
}

// Frame is one Server-Sent Event.
type Frame struct {
	Event string
	ID    string
	Data  any
}

// Client is one SSE viewer. It implements broker.Subscriber.
type Client struct {
	id   string
	send chan events.Event

	mu     sync.Mutex
	closed bool
}

// NewClient creates a client with a bounded send queue.
func NewClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan events.Event, constants.SubscriberBufferSize),
	}
}

// ID returns the client id.
func (c *Client) ID() string {
	return c.id
}

// Send queues e without blocking.
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

// Close ends the stream. Repeated calls are no-ops.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// Stream subscribes a new client to hub and writes its events to w until
// the request ends or the hub closes the client.
func Stream(w http.ResponseWriter, r *http.Request, hub Hub, id string, logger *zerolog.Logger) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	c := NewClient(id)
	hub.Subscribe(c)
	defer hub.Unsubscribe(c)

	if err := writeFrame(w, Frame{
		Event: constants.ConnectedEventName,
		Data: map[string]any{
			"message":   "Connected to event stream",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
	}); err != nil {
		return
	}
	flusher.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()

	for {
		select {
		case e, ok := <-c.send:
			if !ok {
				return
			}
			err := writeFrame(w, Frame{Event: constants.PushEventName, ID: e.ID, Data: e})
			if err != nil {
				logger.Debug().Err(err).Str("subscriber_id", id).Msg("SSE write failed")
				return
			}
			flusher.Flush()

		case <-keepAlive.C:
			if _, err := io.WriteString(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// writeFrame writes f in text/event-stream format.
func writeFrame(w io.Writer, f Frame) error {
	data, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	if f.Event != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", f.Event); err != nil {
			return err
		}
	}
	if f.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", f.ID); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
