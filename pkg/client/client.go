// Package client talks to a running relay: it captures events the way an
// instrumented hook does, reads and clears history, and follows the live
// event stream.
package client

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/transport"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// Client is a relay API client.
type Client struct {
	baseURL      *url.URL
	prefix       string
	secret       string
	secretHeader string
	adminKey     string
	httpClient   *http.Client
	timeout      time.Duration
	tracing      bool
	logger       *zerolog.Logger

	ingest *transport.Client
	public *transport.Client
	admin  *transport.Client
}

// Option configures a Client.
type Option func(*Client)

// WithSecret sets the shared ingress secret sent on capture.
func WithSecret(secret string) Option {
	return func(c *Client) { c.secret = secret }
}

// WithSecretHeader overrides the header carrying the secret.
func WithSecretHeader(header string) Option {
	return func(c *Client) {
		if header != "" {
			c.secretHeader = header
		}
	}
}

// WithAdminKey sets the key sent when clearing history.
func WithAdminKey(key string) Option {
	return func(c *Client) { c.adminKey = key }
}

// WithPathPrefix sets the route prefix of the event endpoints. Use "/"
// for a relay serving them at the root.
func WithPathPrefix(prefix string) Option {
	return func(c *Client) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithTracing emits OpenTelemetry client spans for every request.
func WithTracing() Option {
	return func(c *Client) { c.tracing = true }
}

// WithLogger sets the logger used by streams.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the relay at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.NewValidationError("url", baseURL, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("url", baseURL, "scheme must be http or https")
	}
	if u.Host == "" {
		return nil, errors.NewValidationError("url", baseURL, "host is required")
	}

	nop := zerolog.Nop()
	c := &Client{
		baseURL:      u,
		prefix:       constants.DefaultPathPrefix,
		secretHeader: constants.SecretHeader,
		timeout:      constants.DefaultHTTPTimeout,
		logger:       &nop,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.prefix = "/" + strings.Trim(c.prefix, "/")
	if c.prefix == "/" {
		c.prefix = ""
	}

	var topts []transport.Option
	if c.httpClient != nil {
		topts = append(topts, transport.WithHTTPClient(c.httpClient))
	} else {
		topts = append(topts, transport.WithTimeout(c.timeout))
	}
	if c.tracing {
		topts = append(topts, transport.WithTracing())
	}
	c.ingest = transport.New(&transport.HeaderAuth{Header: c.secretHeader, Value: c.secret}, topts...)
	c.public = transport.New(nil, topts...)
	c.admin = transport.New(&transport.HeaderAuth{Header: constants.AdminKeyHeader, Value: c.adminKey}, topts...)
	return c, nil
}

// BaseURL returns the relay base URL.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + c.prefix + path
}

type captureResult struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId"`
}

// Capture sends p to the relay and returns the assigned event id.
func (c *Client) Capture(ctx context.Context, p *events.Payload) (string, error) {
	if p == nil {
		return "", errors.NewValidationError("payload", nil, "payload is required")
	}
	resp, err := c.ingest.Post(ctx, c.endpoint("/capture"), p)
	if err != nil {
		return "", err
	}
	var out captureResult
	if err := transport.DecodeResponse(resp, &out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

type historyResult struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// History returns the relay's retained events, oldest first.
func (c *Client) History(ctx context.Context) ([]events.Event, error) {
	resp, err := c.public.Get(ctx, c.endpoint("/history"))
	if err != nil {
		return nil, err
	}
	var out historyResult
	if err := transport.DecodeResponse(resp, &out); err != nil {
		return nil, err
	}
	if out.Events == nil {
		out.Events = []events.Event{}
	}
	return out.Events, nil
}

// ClearHistory empties the relay's history.
func (c *Client) ClearHistory(ctx context.Context) error {
	resp, err := c.admin.Delete(ctx, c.endpoint("/history"))
	if err != nil {
		return err
	}
	return transport.DecodeResponse(resp, nil)
}

// Health is the relay liveness report.
type Health struct {
	Status      string  `json:"status"`
	Timestamp   string  `json:"timestamp"`
	Uptime      float64 `json:"uptime"`
	Environment string  `json:"environment"`
	Version     string  `json:"version,omitempty"`
}

// Health fetches GET /health.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	resp, err := c.public.Get(ctx, c.baseURL.String()+"/health")
	if err != nil {
		return nil, err
	}
	var out Health
	if err := transport.DecodeResponse(resp, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL returns the WebSocket URL of the live event stream.
func (c *Client) StreamURL() string {
	u := *c.baseURL
	if u.Scheme == "https" {
		u.Scheme = "wss"
	} else {
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + c.prefix + "/ws"
	return u.String()
}
