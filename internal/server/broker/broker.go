// Package broker fans captured events out to connected push subscribers.
//
// A single Run loop owns the subscriber set. Subscribe, Unsubscribe and
// Publish only enqueue requests for that loop, so none of them block on a
// slow viewer. Each subscriber buffers its own outbound messages; when that
// buffer is full or the connection is gone, the subscriber is dropped and
// closed without affecting anyone else.
package broker

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
)

// Subscriber is one live push connection.
type Subscriber interface {
	// ID uniquely identifies the subscriber for the life of the process.
	ID() string

	// Send queues an event for delivery. It must not block; an error
	// means the subscriber can no longer keep up and will be removed.
	Send(events.Event) error

	// Close releases the connection. The broker calls it exactly once.
	Close() error
}

// Stats reports broker counters.
type Stats struct {
	Subscribers int    `json:"subscribers"`
	Published   uint64 `json:"published"`
	Delivered   uint64 `json:"delivered"`
	Dropped     uint64 `json:"dropped"`
	Evicted     uint64 `json:"evicted"`
}

// membershipChange is a queued Subscribe (join) or Unsubscribe.
type membershipChange struct {
	sub  Subscriber
	join bool
}

// Broker manages the subscriber set and event fan-out.
type Broker struct {
	subscribers map[string]Subscriber
	events      chan events.Event
	membership  chan membershipChange
	done        chan struct{}
	mu          sync.RWMutex
	logger      *zerolog.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	evicted   atomic.Uint64
}

// New creates a broker. Call Run to start delivering.
func New(logger *zerolog.Logger) *Broker {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Broker{
		subscribers: make(map[string]Subscriber),
		events:      make(chan events.Event, constants.ChannelBufferSize),
		// One buffered queue keeps each subscriber's register and
		// unregister in call order, even before Run starts.
		membership: make(chan membershipChange, constants.RegistrationBufferSize),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run processes registrations and events until ctx is cancelled, then
// closes every remaining subscriber. Call it once, in its own goroutine.
func (b *Broker) Run(ctx context.Context) {
	defer close(b.done)

	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for id, sub := range b.subscribers {
				_ = sub.Close()
				delete(b.subscribers, id)
			}
			b.mu.Unlock()
			b.logger.Info().Msg("Event broker shut down")
			return

		case change := <-b.membership:
			if !change.join {
				b.remove(change.sub.ID(), "unsubscribed")
				continue
			}
			b.mu.Lock()
			b.subscribers[change.sub.ID()] = change.sub
			total := len(b.subscribers)
			b.mu.Unlock()
			b.logger.Info().
				Str("subscriber_id", change.sub.ID()).
				Int("total_subscribers", total).
				Msg("Subscriber registered")

		case event := <-b.events:
			b.broadcast(event)
		}
	}
}

// broadcast hands event to every subscriber in turn. Send never blocks,
// so a subscriber's queue receives events in publish order.
func (b *Broker) broadcast(event events.Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers))
	for _, sub := range b.subscribers {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub.Send(event); err != nil {
			derr := errors.NewDeliveryError(sub.ID(), event.ID, err)
			b.logger.Warn().
				Err(derr).
				Str("subscriber_id", sub.ID()).
				Str("event_id", event.ID).
				Msg("Dropping subscriber after failed delivery")
			b.evicted.Add(1)
			b.remove(sub.ID(), "delivery failed")
			continue
		}
		b.delivered.Add(1)
	}

	b.logger.Debug().
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Int("subscribers", len(subs)).
		Msg("Event broadcasted")
}

// remove deletes and closes the subscriber with id, if still registered.
func (b *Broker) remove(id, reason string) {
	b.mu.Lock()
	sub, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	total := len(b.subscribers)
	b.mu.Unlock()

	if !ok {
		return
	}
	_ = sub.Close()
	b.logger.Info().
		Str("subscriber_id", id).
		Str("reason", reason).
		Int("total_subscribers", total).
		Msg("Subscriber unregistered")
}

// Publish queues event for broadcast. It never blocks: if the queue is
// full the event is dropped for push delivery (it is still in history).
func (b *Broker) Publish(event events.Event) {
	b.published.Add(1)

	select {
	case <-b.done:
		b.dropped.Add(1)
		return
	default:
	}

	select {
	case b.events <- event:
	default:
		b.dropped.Add(1)
		b.logger.Warn().
			Str("event_id", event.ID).
			Msg("Event channel full, event dropped")
	}
}

// Subscribe registers sub. No history is replayed; viewers fetch history
// separately. Subscribing after the broker stopped closes sub immediately.
func (b *Broker) Subscribe(sub Subscriber) {
	select {
	case <-b.done:
		_ = sub.Close()
	case b.membership <- membershipChange{sub: sub, join: true}:
	}
}

// Unsubscribe removes and closes sub. It is safe to call more than once
// and after the broker stopped.
func (b *Broker) Unsubscribe(sub Subscriber) {
	select {
	case <-b.done:
	case b.membership <- membershipChange{sub: sub}:
	}
}

// Done is closed when Run returns.
func (b *Broker) Done() <-chan struct{} {
	return b.done
}

// SubscriberCount returns the current number of subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// SubscriberIDs returns the registered subscriber ids, sorted.
func (b *Broker) SubscriberIDs() []string {
	b.mu.RLock()
	ids := make([]string, 0, len(b.subscribers))
	for id := range b.subscribers {
		ids = append(ids, id)
	}
	b.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Stats returns a snapshot of broker counters.
func (b *Broker) Stats() Stats {
	return Stats{
		Subscribers: b.SubscriberCount(),
		Published:   b.published.Load(),
		Delivered:   b.delivered.Load(),
		Dropped:     b.dropped.Load(),
		Evicted:     b.evicted.Load(),
	}
}
