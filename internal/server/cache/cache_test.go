package cache

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_New(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)
	require.NotNil(t, c)
	assert.NotNil(t, c.store)
	assert.Equal(t, 0, c.ItemCount())
}

func TestHistoryKey(t *testing.T) {
	assert.Equal(t, "history:0", HistoryKey(0))
	assert.Equal(t, "history:42", HistoryKey(42))
	assert.NotEqual(t, HistoryKey(1), HistoryKey(2))
}

func TestCache_BasicOperations(t *testing.T) {
	c := New(5*time.Minute, 10*time.Minute)

	c.Set("key1", "value1")
	val, found := c.Get("key1")
	require.True(t, found)
	assert.Equal(t, "value1", val)

	_, found = c.Get("missing")
	assert.False(t, found)

	c.Delete("key1")
	_, found = c.Get("key1")
	assert.False(t, found)
}

func TestCache_GetBytes(t *testing.T) {
	c := New(time.Minute, time.Minute)

	c.Set(HistoryKey(3), []byte(`{"events":[],"count":0}`))
	body, ok := c.GetBytes(HistoryKey(3))
	require.True(t, ok)
	assert.Equal(t, `{"events":[],"count":0}`, string(body))

	c.Set("not-bytes", 12)
	_, ok = c.GetBytes("not-bytes")
	assert.False(t, ok)

	_, ok = c.GetBytes(HistoryKey(4))
	assert.False(t, ok)
}

func TestCache_TTL(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.SetWithTTL("short", "v", 20*time.Millisecond)

	_, found := c.Get("short")
	require.True(t, found)

	time.Sleep(40 * time.Millisecond)
	_, found = c.Get("short")
	assert.False(t, found)
}

func TestCache_ClearAndStats(t *testing.T) {
	c := New(time.Minute, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)

	_, _ = c.Get("a")
	_, _ = c.Get("zzz")

	stats := c.GetStats()
	assert.Equal(t, 2, stats.ItemCount)
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)

	c.Clear()
	assert.Equal(t, 0, c.ItemCount())
}

func TestCache_Concurrent(t *testing.T) {
	c := New(time.Minute, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := HistoryKey(uint64(i % 5))
			c.Set(key, []byte("x"))
			_, _ = c.GetBytes(key)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 5, c.ItemCount())
}
