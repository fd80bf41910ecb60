// Package handlers provides the relay's HTTP request handlers.
package handlers

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/ingress"
	"github.com/agentstation/authrelay/internal/server/broker"
	"github.com/agentstation/authrelay/internal/server/cache"
	"github.com/agentstation/authrelay/pkg/constants"
)

// Info describes the running relay for health reporting.
type Info struct {
	Environment string
	Version     string
	StartedAt   time.Time
}

// Handlers provides access to all HTTP handlers.
type Handlers struct {
	ingress      *ingress.Service
	broker       *broker.Broker
	cache        *cache.Cache
	upgrader     websocket.Upgrader
	secretHeader string
	maxBodyBytes int64
	info         Info
	logger       *zerolog.Logger
	now          func() time.Time

	// historyKey is the cache key of the most recently rendered history.
	historyMu  sync.Mutex
	historyKey string
}

// Option configures Handlers.
type Option func(*Handlers)

// WithSecretHeader changes the header read for the capture secret.
func WithSecretHeader(name string) Option {
	return func(h *Handlers) {
		if name != "" {
			h.secretHeader = name
		}
	}
}

// WithMaxBodyBytes caps capture request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// WithClock overrides the clock used by health reporting.
func WithClock(now func() time.Time) Option {
	return func(h *Handlers) {
		h.now = now
	}
}

// New creates a new Handlers instance.
func New(
	svc *ingress.Service,
	b *broker.Broker,
	c *cache.Cache,
	upgrader websocket.Upgrader,
	info Info,
	logger *zerolog.Logger,
	opts ...Option,
) *Handlers {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if info.StartedAt.IsZero() {
		info.StartedAt = time.Now()
	}
	h := &Handlers{
		ingress:      svc,
		broker:       b,
		cache:        c,
		upgrader:     upgrader,
		secretHeader: constants.SecretHeader,
		maxBodyBytes: constants.MaxBodyBytes,
		info:         info,
		logger:       logger,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
