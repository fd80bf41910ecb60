package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// State is the connection state of a Stream.
type State int32

// Stream states.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// DefaultMaxAttempts is the number of consecutive failed reconnects a
// stream tolerates before Run gives up.
const DefaultMaxAttempts = 5

// ErrGaveUp is returned by Run after too many failed reconnects.
var ErrGaveUp = errors.New("stream gave up reconnecting")

// pushFrame is the JSON message the relay writes per event.
type pushFrame struct {
	Event string       `json:"event"`
	Data  events.Event `json:"data"`
}

// Stream follows a relay's live events and feeds them to a Merger. On
// every (re)connect it also fetches history, which recovers events missed
// while disconnected.
type Stream struct {
	client      *Client
	merger      *Merger
	dialer      *websocket.Dialer
	minBackoff  time.Duration
	maxBackoff  time.Duration
	maxAttempts int
	onState     func(State)
	logger      *zerolog.Logger
	state       atomic.Int32
}

// StreamOption configures a Stream.
type StreamOption func(*Stream)

// WithBackoff sets the reconnect delay bounds. The delay doubles after
// each failure up to hi.
func WithBackoff(lo, hi time.Duration) StreamOption {
	return func(s *Stream) {
		if lo > 0 {
			s.minBackoff = lo
		}
		if hi >= s.minBackoff {
			s.maxBackoff = hi
		}
	}
}

// WithMaxAttempts bounds consecutive failed reconnects. Zero retries
// forever.
func WithMaxAttempts(n int) StreamOption {
	return func(s *Stream) { s.maxAttempts = n }
}

// WithOnState registers fn to observe connection state changes.
func WithOnState(fn func(State)) StreamOption {
	return func(s *Stream) { s.onState = fn }
}

// WithDialer replaces the WebSocket dialer.
func WithDialer(d *websocket.Dialer) StreamOption {
	return func(s *Stream) {
		if d != nil {
			s.dialer = d
		}
	}
}

// NewStream creates a stream that feeds m.
func (c *Client) NewStream(m *Merger, opts ...StreamOption) *Stream {
	s := &Stream{
		client:      c,
		merger:      m,
		dialer:      websocket.DefaultDialer,
		minBackoff:  constants.RetryBackoff,
		maxBackoff:  constants.MaxRetryBackoff,
		maxAttempts: DefaultMaxAttempts,
		logger:      c.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current connection state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(st State) {
	if State(s.state.Swap(int32(st))) == st {
		return
	}
	if s.onState != nil {
		s.onState(st)
	}
}

// Run connects and follows the stream until ctx is cancelled, reconnecting
// with backoff. It returns nil on cancellation and ErrGaveUp once the
// attempt limit is exhausted.
func (s *Stream) Run(ctx context.Context) error {
	defer s.setState(StateDisconnected)

	backoff := s.minBackoff
	failures := 0
	for {
		connected, err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.setState(StateDisconnected)

		if connected {
			failures = 0
			backoff = s.minBackoff
		}
		failures++
		if s.maxAttempts > 0 && failures > s.maxAttempts {
			return fmt.Errorf("%w after %d attempts: %v", ErrGaveUp, s.maxAttempts, err)
		}

		s.logger.Warn().
			Err(err).
			Int("attempt", failures).
			Dur("backoff", backoff).
			Msg("Stream disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// session runs one connection. It reports whether the dial succeeded and
// the error that ended the connection.
func (s *Stream) session(ctx context.Context) (bool, error) {
	s.setState(StateConnecting)

	url := s.client.StreamURL()
	conn, _, err := s.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return false, errors.WrapAPI(url, 0, err)
	}
	defer func() { _ = conn.Close() }()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			_ = conn.Close()
		case <-stop:
		}
	}()

	s.setState(StateConnected)
	s.logger.Info().Str("url", url).Msg("Stream connected")

	if hist, err := s.client.History(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to fetch history after connect")
	} else {
		added := s.merger.AdoptHistory(hist)
		s.logger.Debug().Int("fetched", len(hist)).Int("added", added).Msg("History synchronized")
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		var f pushFrame
		if err := json.Unmarshal(data, &f); err != nil {
			s.logger.Warn().Err(err).Msg("Ignoring malformed stream frame")
			continue
		}
		if f.Event != constants.PushEventName {
			continue
		}
		s.merger.AddPushed(f.Data)
	}
}
