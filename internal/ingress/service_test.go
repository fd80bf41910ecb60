package ingress

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/internal/history"
	pkgerrors "github.com/agentstation/authrelay/pkg/errors"
	"github.com/agentstation/authrelay/pkg/events"
	"github.com/agentstation/authrelay/pkg/logging"
)

const testSecret = "s3cret"

// recordingNotifier captures published events and, optionally, the history
// visible at publish time.
type recordingNotifier struct {
	mu        sync.Mutex
	published []events.Event
	seen      [][]events.Event
	store     *history.Store
	panicOn   string
}

func (n *recordingNotifier) Publish(e events.Event) {
	if n.panicOn != "" && e.Request.URL == n.panicOn {
		panic("notifier exploded")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.published = append(n.published, e)
	if n.store != nil {
		n.seen = append(n.seen, n.store.Snapshot())
	}
}

func (n *recordingNotifier) list() []events.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]events.Event, len(n.published))
	copy(out, n.published)
	return out
}

func body(url string) []byte {
	return []byte(fmt.Sprintf(`{
		"type": "telephony_hook",
		"timestamp": "2025-01-01T00:00:00Z",
		"request": {"url": %q, "method": "POST", "body": {"to": "+15551234567"}},
		"response": {"status": 200, "body": {"ok": true}}
	}`, url))
}

func newService(t *testing.T, n Notifier, opts ...Option) (*Service, *history.Store, *logging.TestLogger) {
	t.Helper()
	store := history.New(100)
	tl := logging.NewTestLogger(t)
	svc, err := New(Config{Secret: testSecret}, store, n, tl.Logger, opts...)
	require.NoError(t, err)
	return svc, store, tl
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{}, history.New(1), nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Secret: "x"}, nil, nil, nil)
	assert.Error(t, err)

	svc, err := New(Config{Secret: "x"}, history.New(1), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "X-Demo-Secret", svc.cfg.SecretHeader)
}

func TestCapture_Success(t *testing.T) {
	n := &recordingNotifier{}
	received := time.Date(2025, 1, 1, 0, 0, 1, 0, time.UTC)
	svc, store, _ := newService(t, n, WithClock(func() time.Time { return received }))

	ev, err := svc.Capture(context.Background(), testSecret, body("/hook"))
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, events.TypeTelephonyHook, ev.Type)
	require.NotNil(t, ev.Duration)
	assert.Equal(t, int64(1000), *ev.Duration)

	require.Equal(t, 1, store.Len())
	assert.Equal(t, ev.ID, store.Snapshot()[0].ID)

	published := n.list()
	require.Len(t, published, 1)
	assert.Equal(t, ev.ID, published[0].ID)
}

func TestCapture_AuthGate(t *testing.T) {
	tests := []struct {
		name     string
		secret   string
		provided bool
	}{
		{"missing secret", "", false},
		{"wrong secret", "nope", true},
		{"prefix of secret", "s3cre", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			svc, store, tl := newService(t, n)
			ctx := WithSource(context.Background(), "203.0.113.9:4444")

			_, err := svc.Capture(ctx, tt.secret, body("/hook"))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsUnauthorized(err))

			var ue *pkgerrors.UnauthorizedError
			require.ErrorAs(t, err, &ue)
			assert.Equal(t, tt.provided, ue.Provided)
			assert.Equal(t, "203.0.113.9:4444", ue.Source)

			assert.Equal(t, 0, store.Len())
			assert.Empty(t, n.list())

			if tt.secret != "" {
				tl.AssertNotContains(t, tt.secret)
			}
			tl.AssertNotContains(t, testSecret)
		})
	}
}

func TestCapture_AuthBeforeValidation(t *testing.T) {
	svc, _, _ := newService(t, nil)
	_, err := svc.Capture(context.Background(), "wrong", []byte("not json"))
	assert.True(t, pkgerrors.IsUnauthorized(err))
}

func TestCapture_InvalidPayload(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"empty", ``},
		{"wrong type", `{"type":"bogus","timestamp":"2025-01-01T00:00:00Z","request":{"url":"/x","method":"GET"}}`},
		{"missing method", `{"type":"verify_api","timestamp":"2025-01-01T00:00:00Z","request":{"url":"/x"}}`},
		{"bad timestamp", `{"type":"verify_api","timestamp":"soon","request":{"url":"/x","method":"GET"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{}
			svc, store, _ := newService(t, n)

			_, err := svc.Capture(context.Background(), testSecret, []byte(tt.body))
			require.Error(t, err)
			assert.True(t, pkgerrors.IsValidationError(err))
			assert.Equal(t, 0, store.Len())
			assert.Empty(t, n.list())
		})
	}
}

func TestCapture_AppendBeforeBroadcast(t *testing.T) {
	store := history.New(100)
	n := &recordingNotifier{store: store}
	svc, err := New(Config{Secret: testSecret}, store, n, nil)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		ev, err := svc.Capture(context.Background(), testSecret, body(fmt.Sprintf("/hook/%d", i)))
		require.NoError(t, err)

		n.mu.Lock()
		snapshot := n.seen[len(n.seen)-1]
		n.mu.Unlock()

		require.NotEmpty(t, snapshot)
		assert.Equal(t, ev.ID, snapshot[len(snapshot)-1].ID)
	}
}

func TestCapture_BroadcastOrderMatchesHistory(t *testing.T) {
	n := &recordingNotifier{}
	svc, store, _ := newService(t, n)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Capture(context.Background(), testSecret, body(fmt.Sprintf("/hook/%d", i)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	hist := store.Snapshot()
	published := n.list()
	require.Len(t, published, 50)
	require.Len(t, hist, 50)
	for i := range hist {
		assert.Equal(t, hist[i].ID, published[i].ID)
	}
}

func TestCapture_PanicBecomesInternalError(t *testing.T) {
	n := &recordingNotifier{panicOn: "/explode"}
	svc, _, tl := newService(t, n)

	_, err := svc.Capture(context.Background(), testSecret, body("/explode"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsInternal(err))
	tl.AssertContains(t, "Capture failed")

	// The ordering lock was released.
	_, err = svc.Capture(context.Background(), testSecret, body("/fine"))
	assert.NoError(t, err)
}

func TestClearHistory(t *testing.T) {
	n := &recordingNotifier{}
	svc, _, _ := newService(t, n)

	_, err := svc.Capture(context.Background(), testSecret, body("/a"))
	require.NoError(t, err)
	_, v1 := svc.HistorySnapshot()

	svc.ClearHistory(context.Background())
	assert.Empty(t, svc.History())
	assert.Greater(t, svc.HistoryVersion(), v1)

	svc.ClearHistory(context.Background())
	assert.Empty(t, svc.History())

	// Clearing never reaches subscribers.
	assert.Len(t, n.list(), 1)
}

func TestSourceContext(t *testing.T) {
	assert.Empty(t, SourceFromContext(context.Background()))
	ctx := WithSource(context.Background(), "127.0.0.1:1")
	assert.Equal(t, "127.0.0.1:1", SourceFromContext(ctx))
}
