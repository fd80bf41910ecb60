// Package server wires the relay together: history store, broadcast hub,
// ingress service and the HTTP surface in front of them.
package server

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/cmd/application"
	"github.com/agentstation/authrelay/internal/history"
	"github.com/agentstation/authrelay/internal/ingress"
	"github.com/agentstation/authrelay/internal/server/broker"
	"github.com/agentstation/authrelay/internal/server/cache"
	"github.com/agentstation/authrelay/internal/server/middleware"
)

// Server holds the relay state and dependencies.
type Server struct {
	app       application.Application
	store     *history.Store
	broker    *broker.Broker
	ingress   *ingress.Service
	cache     *cache.Cache
	upgrader  websocket.Upgrader
	logger    *zerolog.Logger
	config    Config
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time

	startOnce sync.Once
	started   atomic.Bool
	handler   http.Handler
}

// New creates a relay server. Nothing runs until Start.
func New(app application.Application, cfg Config) (*Server, error) {
	logger := app.Logger()
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	store := history.New(cfg.HistoryCapacity)
	b := broker.New(logger)

	svc, err := ingress.New(ingress.Config{
		Secret:       cfg.Secret,
		SecretHeader: cfg.SecretHeader,
	}, store, b, logger)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		app:     app,
		store:   store,
		broker:  b,
		ingress: svc,
		cache:   cache.New(cfg.CacheTTL, cfg.CacheTTL*2),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.AllowedOrigins),
		},
		logger:    logger,
		config:    cfg,
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	s.handler = s.setupRouter()

	logger.Debug().
		Int("history_capacity", cfg.HistoryCapacity).
		Str("path_prefix", cfg.PathPrefix).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Server instance created")

	return s, nil
}

// originChecker allows upgrades from allowed browser origins. Requests
// without an Origin header come from non-browser tools and are allowed.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || middleware.IsOriginAllowed(origin, allowed)
	}
}

// Start runs the broadcast hub in the background. Repeated calls are no-ops.
func (s *Server) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go s.broker.Run(s.ctx)
		s.logger.Debug().Msg("Event broker started")
	})
}

// Handler returns the http.Handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Shutdown stops the broker and disconnects every subscriber.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down relay background services")
	s.cancel()

	if !s.started.Load() {
		return nil
	}
	select {
	case <-s.broker.Done():
		s.logger.Info().Msg("Background services shut down")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Background services shutdown timed out")
		return ctx.Err()
	}
}

// Cache returns the response cache.
func (s *Server) Cache() *cache.Cache {
	return s.cache
}

// Broker returns the broadcast hub.
func (s *Server) Broker() *broker.Broker {
	return s.broker
}

// Ingress returns the ingress service.
func (s *Server) Ingress() *ingress.Service {
	return s.ingress
}

// Store returns the history store.
func (s *Server) Store() *history.Store {
	return s.store
}

// Config returns the effective configuration.
func (s *Server) Config() Config {
	return s.config
}

// StartTime returns the server start time for uptime calculations.
func (s *Server) StartTime() time.Time {
	return s.startTime
}
