// Package ingress implements the relay's capture and history operations.
//
// Capture authenticates a webhook call with the shared secret, turns its
// payload into an event, records it and hands it to the broadcast hub.
// Recording and publishing happen under one lock, so every subscriber sees
// events in history order and a history snapshot taken after a push was
// observed always contains the pushed event.
package ingress

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/history"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// Notifier receives every captured event after it has been recorded.
// Publish must not block.
type Notifier interface {
	Publish(events.Event)
}

// Config holds ingress settings.
type Config struct {
	// Secret is the shared value callers present in SecretHeader.
	Secret string

	// SecretHeader names the header carrying the secret (used in errors and logs).
	SecretHeader string
}

// Service is the ingress boundary of the relay.
type Service struct {
	cfg      Config
	store    *history.Store
	notifier Notifier
	logger   *zerolog.Logger
	now      func() time.Time

	// mu orders append+publish across concurrent captures.
	mu sync.Mutex
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the receipt clock used for durations.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates an ingress service. A nil notifier records events without
// broadcasting them.
func New(cfg Config, store *history.Store, notifier Notifier, logger *zerolog.Logger, opts ...Option) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.NewConfigError("ingress", "shared secret must not be empty", nil)
	}
	if store == nil {
		return nil, errors.NewConfigError("ingress", "history store is required", nil)
	}
	if cfg.SecretHeader == "" {
		cfg.SecretHeader = constants.SecretHeader
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	s := &Service{
		cfg:      cfg,
		store:    store,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Authorize checks a presented secret in constant time.
func (s *Service) Authorize(ctx context.Context, presented string) error {
	if presented != "" && secretsEqual(presented, s.cfg.Secret) {
		return nil
	}

	source := SourceFromContext(ctx)
	s.logger.Warn().
		Str("source", source).
		Bool("secret_provided", presented != "").
		Msg("Rejected capture with invalid secret")

	return errors.NewUnauthorizedError(source, s.cfg.SecretHeader, presented != "")
}

// Capture authenticates, validates, records and broadcasts one event.
//
// An unauthorized or invalid call changes nothing. On success the returned
// event is already in history and queued for every subscriber.
func (s *Service) Capture(ctx context.Context, secret string, body []byte) (ev events.Event, err error) {
	if err := s.Authorize(ctx, secret); err != nil {
		return events.Event{}, err
	}

	payload, err := events.DecodePayload(body)
	if err == nil {
		err = events.Validate(payload)
	}
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("source", SourceFromContext(ctx)).
			Msg("Rejected invalid capture payload")
		return events.Event{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			err = errors.NewInternalError("capture", fmt.Errorf("panic: %v", r))
			s.logger.Error().Stack().Err(err).Msg("Capture failed")
			ev = events.Event{}
		}
	}()

	ev = events.Normalize(payload, s.now())
	s.record(ev)

	s.logger.Info().
		Str("event_id", ev.ID).
		Str("event_type", string(ev.Type)).
		Str("method", ev.Request.Method).
		Str("url", ev.Request.URL).
		Msg("Event captured")

	return ev, nil
}

// record appends ev and publishes it while holding mu.
func (s *Service) record(ev events.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store.Append(ev)
	if s.notifier != nil {
		s.notifier.Publish(ev)
	}
}

// History returns the retained events, oldest first.
func (s *Service) History() []events.Event {
	return s.store.Snapshot()
}

// HistorySnapshot returns the retained events and the store version they reflect.
func (s *Service) HistorySnapshot() ([]events.Event, uint64) {
	return s.store.SnapshotVersion()
}

// HistoryVersion returns the current store version.
func (s *Service) HistoryVersion() uint64 {
	return s.store.Version()
}

// ClearHistory empties the history. Subscribers are not notified; viewers
// that reconnect later see the empty history.
func (s *Service) ClearHistory(ctx context.Context) {
	s.mu.Lock()
	before := s.store.Len()
	s.store.Clear()
	s.mu.Unlock()

	s.logger.Info().
		Int("cleared", before).
		Str("source", SourceFromContext(ctx)).
		Msg("Event history cleared")
}

// Store exposes the underlying history store for readiness reporting.
func (s *Service) Store() *history.Store {
	return s.store
}

// secretsEqual compares digests so neither content nor length leaks through timing.
func secretsEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
