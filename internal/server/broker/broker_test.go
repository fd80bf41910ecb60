package broker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
	"github.com/agentstation/authrelay/pkg/logging"
)

// mockSubscriber records delivered events.
type mockSubscriber struct {
	id     string
	mu     sync.Mutex
	events []events.Event
	closes int
	fail   bool
}

func newMockSubscriber(id string) *mockSubscriber {
	return &mockSubscriber{id: id}
}

func (m *mockSubscriber) ID() string { return m.id }

func (m *mockSubscriber) Send(e events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return fmt.Errorf("send buffer full")
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockSubscriber) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closes++
	return nil
}

func (m *mockSubscriber) received() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, len(m.events))
	for i, e := range m.events {
		ids[i] = e.ID
	}
	return ids
}

func (m *mockSubscriber) closeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes
}

func event(id string) events.Event {
	return events.Event{
		ID:        id,
		Type:      events.TypeVerifyAPI,
		Timestamp: "2025-01-01T00:00:00Z",
		Request:   events.Request{URL: "/verify", Method: "POST"},
	}
}

func startBroker(t *testing.T, logger *zerolog.Logger) (*Broker, context.CancelFunc) {
	t.Helper()
	b := New(logger)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-b.Done()
	})
	return b, cancel
}

func waitForSubscribers(t *testing.T, b *Broker, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return b.SubscriberCount() == n },
		time.Second, 5*time.Millisecond)
}

func TestBroker_New(t *testing.T) {
	b := New(nil)
	require.NotNil(t, b)
	assert.NotNil(t, b.subscribers)
	assert.NotNil(t, b.events)
	assert.Equal(t, 0, b.SubscriberCount())
}

func TestBroker_FanOut(t *testing.T) {
	b, _ := startBroker(t, nil)

	subs := []*mockSubscriber{newMockSubscriber("a"), newMockSubscriber("b"), newMockSubscriber("c")}
	for _, s := range subs {
		b.Subscribe(s)
	}
	waitForSubscribers(t, b, 3)

	b.Publish(event("e1"))

	for _, s := range subs {
		require.Eventually(t, func() bool { return len(s.received()) == 1 },
			time.Second, 5*time.Millisecond)
		assert.Equal(t, []string{"e1"}, s.received())
	}
	assert.Equal(t, []string{"a", "b", "c"}, b.SubscriberIDs())
}

func TestBroker_PerSubscriberOrder(t *testing.T) {
	b, _ := startBroker(t, nil)
	s1 := newMockSubscriber("s1")
	s2 := newMockSubscriber("s2")
	b.Subscribe(s1)
	b.Subscribe(s2)
	waitForSubscribers(t, b, 2)

	var want []string
	for i := 0; i < 100; i++ {
		id := fmt.Sprintf("e%03d", i)
		want = append(want, id)
		b.Publish(event(id))
	}

	for _, s := range []*mockSubscriber{s1, s2} {
		require.Eventually(t, func() bool { return len(s.received()) == len(want) },
			time.Second, 5*time.Millisecond)
		assert.Equal(t, want, s.received())
	}
}

func TestBroker_NoReplay(t *testing.T) {
	b, _ := startBroker(t, nil)
	early := newMockSubscriber("early")
	b.Subscribe(early)
	waitForSubscribers(t, b, 1)

	b.Publish(event("before"))
	require.Eventually(t, func() bool { return len(early.received()) == 1 },
		time.Second, 5*time.Millisecond)

	late := newMockSubscriber("late")
	b.Subscribe(late)
	waitForSubscribers(t, b, 2)

	b.Publish(event("after"))
	require.Eventually(t, func() bool { return len(late.received()) == 1 },
		time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"after"}, late.received())
	assert.Equal(t, []string{"before", "after"}, early.received())
}

func TestBroker_FailingSubscriberIsolated(t *testing.T) {
	tl := logging.NewTestLogger(t)
	b, _ := startBroker(t, tl.Logger)

	good := newMockSubscriber("good")
	bad := newMockSubscriber("bad")
	bad.fail = true
	b.Subscribe(good)
	b.Subscribe(bad)
	waitForSubscribers(t, b, 2)

	b.Publish(event("e1"))
	b.Publish(event("e2"))

	require.Eventually(t, func() bool { return len(good.received()) == 2 },
		time.Second, 5*time.Millisecond)
	waitForSubscribers(t, b, 1)

	assert.Equal(t, []string{"good"}, b.SubscriberIDs())
	assert.Equal(t, 1, bad.closeCount())
	assert.Equal(t, 0, good.closeCount())
	assert.Equal(t, uint64(1), b.Stats().Evicted)
	tl.AssertContains(t, "Dropping subscriber after failed delivery")
}

func TestBroker_Unsubscribe(t *testing.T) {
	b, _ := startBroker(t, nil)
	s := newMockSubscriber("s")
	b.Subscribe(s)
	waitForSubscribers(t, b, 1)

	b.Unsubscribe(s)
	waitForSubscribers(t, b, 0)
	assert.Equal(t, 1, s.closeCount())

	// A second unsubscribe is a no-op.
	b.Unsubscribe(s)
	b.Publish(event("e1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, s.closeCount())
	assert.Empty(t, s.received())
}

func TestBroker_UnsubscribeBeforeRunWins(t *testing.T) {
	for round := 0; round < 50; round++ {
		b := New(nil)
		subs := make([]*mockSubscriber, 8)
		for i := range subs {
			subs[i] = newMockSubscriber(fmt.Sprintf("r%d-s%d", round, i))
			b.Subscribe(subs[i])
			b.Unsubscribe(subs[i])
		}

		ctx, cancel := context.WithCancel(context.Background())
		go b.Run(ctx)

		// Changes apply in call order, so once the sentinel is in, every
		// earlier subscribe and unsubscribe has been applied.
		sentinel := newMockSubscriber("sentinel")
		b.Subscribe(sentinel)
		waitForSubscribers(t, b, 1)
		assert.Equal(t, []string{"sentinel"}, b.SubscriberIDs(), "round %d", round)
		for _, s := range subs {
			assert.Equal(t, 1, s.closeCount(), "round %d subscriber %s", round, s.id)
		}

		cancel()
		<-b.Done()
	}
}

func TestBroker_ShutdownClosesSubscribers(t *testing.T) {
	b := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	go b.Run(ctx)

	s1 := newMockSubscriber("s1")
	s2 := newMockSubscriber("s2")
	b.Subscribe(s1)
	b.Subscribe(s2)
	waitForSubscribers(t, b, 2)

	cancel()
	select {
	case <-b.Done():
	case <-time.After(time.Second):
		t.Fatal("broker did not stop")
	}

	assert.Equal(t, 1, s1.closeCount())
	assert.Equal(t, 1, s2.closeCount())
	assert.Equal(t, 0, b.SubscriberCount())

	// Calls after shutdown return immediately.
	late := newMockSubscriber("late")
	b.Subscribe(late)
	assert.Equal(t, 1, late.closeCount())
	b.Unsubscribe(late)
	b.Publish(event("ignored"))
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}

func TestBroker_PublishNeverBlocks(t *testing.T) {
	// Run is not started, so the queue fills and further events drop.
	tl := logging.NewTestLogger(t)
	b := New(tl.Logger)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			b.Publish(event(fmt.Sprintf("e%d", i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked")
	}

	stats := b.Stats()
	assert.Equal(t, uint64(300), stats.Published)
	assert.Equal(t, uint64(300-cap(b.events)), stats.Dropped)
	tl.AssertContains(t, "Event channel full")
}

func TestBroker_ConcurrentSubscribeAndPublish(t *testing.T) {
	b, _ := startBroker(t, nil)

	var wg sync.WaitGroup
	subs := make([]*mockSubscriber, 20)
	for i := range subs {
		subs[i] = newMockSubscriber(fmt.Sprintf("sub-%02d", i))
		wg.Add(1)
		go func(s *mockSubscriber) {
			defer wg.Done()
			b.Subscribe(s)
		}(subs[i])
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			b.Publish(event(fmt.Sprintf("e%d", i)))
		}(i)
	}
	wg.Wait()
	waitForSubscribers(t, b, 20)

	for i := len(subs) / 2; i < len(subs); i++ {
		b.Unsubscribe(subs[i])
	}
	waitForSubscribers(t, b, 10)
}

func TestDeliveryErrorWrapping(t *testing.T) {
	err := errors.NewDeliveryError("sub", "evt", fmt.Errorf("closed"))
	assert.True(t, errors.IsDeliveryFailed(err))
}
