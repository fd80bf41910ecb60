package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/pkg/events"
)

func event(i int) events.Event {
	return events.Event{
		ID:        fmt.Sprintf("evt-%d", i),
		Type:      events.TypeTelephonyHook,
		Timestamp: "2025-01-01T00:00:00Z",
		Request:   events.Request{URL: "/hook", Method: "POST"},
	}
}

func ids(list []events.Event) []string {
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}

func TestNew(t *testing.T) {
	assert.Equal(t, 100, New(0).Capacity())
	assert.Equal(t, 100, New(-5).Capacity())
	assert.Equal(t, 7, New(7).Capacity())
	assert.Equal(t, 0, New(7).Len())
}

func TestStore_BoundedEviction(t *testing.T) {
	s := New(100)
	for i := 1; i <= 150; i++ {
		s.Append(event(i))
	}

	snap := s.Snapshot()
	require.Len(t, snap, 100)
	assert.Equal(t, "evt-51", snap[0].ID)
	assert.Equal(t, "evt-150", snap[99].ID)

	for i, e := range snap {
		assert.Equal(t, fmt.Sprintf("evt-%d", 51+i), e.ID)
	}
}

func TestStore_EvictsExactlyOne(t *testing.T) {
	s := New(3)
	s.Append(event(1))
	s.Append(event(2))
	s.Append(event(3))
	assert.Equal(t, []string{"evt-1", "evt-2", "evt-3"}, ids(s.Snapshot()))

	s.Append(event(4))
	assert.Equal(t, []string{"evt-2", "evt-3", "evt-4"}, ids(s.Snapshot()))
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := New(5)
	s.Append(event(1))

	snap := s.Snapshot()
	snap[0].ID = "mutated"
	snap = append(snap, event(99))

	assert.Equal(t, []string{"evt-1"}, ids(s.Snapshot()))
	assert.Len(t, snap, 2)
}

func TestStore_ClearIdempotent(t *testing.T) {
	s := New(5)
	s.Append(event(1))
	s.Append(event(2))

	s.Clear()
	assert.Empty(t, s.Snapshot())
	s.Clear()
	assert.Empty(t, s.Snapshot())
	assert.Equal(t, 0, s.Len())

	s.Append(event(3))
	assert.Equal(t, []string{"evt-3"}, ids(s.Snapshot()))
}

func TestStore_Version(t *testing.T) {
	s := New(2)
	_, v0 := s.SnapshotVersion()

	s.Append(event(1))
	list, v1 := s.SnapshotVersion()
	assert.Greater(t, v1, v0)
	assert.Len(t, list, 1)

	s.Clear()
	assert.Greater(t, s.Version(), v1)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := New(50)
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s.Append(event(w*1000 + i))
				_ = s.Snapshot()
				if i%37 == 0 {
					s.Clear()
				}
			}
		}(w)
	}
	wg.Wait()

	assert.LessOrEqual(t, s.Len(), 50)
}
