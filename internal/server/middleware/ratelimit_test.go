package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/pkg/logging"
)

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(3, nil)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Other IPs have their own window.
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.VisitorCount())
}

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(0, nil)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.Equal(t, 0, rl.VisitorCount())
}

func TestRateLimiter_WindowReset(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, nil)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("ip"))
	assert.False(t, rl.Allow("ip"))

	now = now.Add(time.Minute)
	assert.True(t, rl.Allow("ip"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, nil)
	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.9") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(50), allowed.Load())
}

func TestRateLimit_Middleware(t *testing.T) {
	tl := logging.NewTestLogger(t)
	rl := NewRateLimiter(1, tl.Logger)
	h := RateLimit(rl)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/events/capture", nil)
	req.RemoteAddr = "198.51.100.7:5555"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"Rate limit exceeded"}`, w.Body.String())
	tl.AssertContains(t, "198.51.100.7")
}

func resolveIP(t *testing.T, proxies []string, remote, forwarded string) string {
	t.Helper()
	nets, err := ParseTrustedProxies(proxies)
	require.NoError(t, err)

	var got string
	h := RealIP(nets)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = ClientIP(r)
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remote
	if forwarded != "" {
		req.Header.Set("X-Forwarded-For", forwarded)
	}
	h.ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name      string
		proxies   []string
		remote    string
		forwarded string
		want      string
	}{
		{"remote host", nil, "192.0.2.1:1234", "", "192.0.2.1"},
		{"forwarded ignored without trusted proxies", nil, "192.0.2.1:1234", "203.0.113.5", "192.0.2.1"},
		{"forwarded ignored from untrusted peer", []string{"10.0.0.0/8"}, "192.0.2.1:1234", "203.0.113.5", "192.0.2.1"},
		{"trusted peer", []string{"10.0.0.1"}, "10.0.0.1:443", "203.0.113.5", "203.0.113.5"},
		{"spoofed leftmost hop skipped", []string{"10.0.0.0/8"}, "10.0.0.2:443", "1.2.3.4, 203.0.113.5, 10.0.0.9", "203.0.113.5"},
		{"all hops trusted", []string{"10.0.0.0/8"}, "10.0.0.2:443", "10.0.0.7, 10.0.0.9", "10.0.0.7"},
		{"not a host port", nil, "not-a-hostport", "", "not-a-hostport"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveIP(t, tt.proxies, tt.remote, tt.forwarded))
		})
	}
}

func TestClientIP_WithoutRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.5")
	assert.Equal(t, "192.0.2.1", ClientIP(req))
}

func TestRateLimit_ForwardedHeaderCannotEvadeLimit(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	h := Chain(RealIP(nil), RateLimit(rl))(okHandler())

	for i, forwarded := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodPost, "/api/events/capture", nil)
		req.RemoteAddr = "198.51.100.7:5555"
		req.Header.Set("X-Forwarded-For", forwarded)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		want := http.StatusOK
		if i > 0 {
			want = http.StatusTooManyRequests
		}
		assert.Equal(t, want, w.Code, "request %d", i)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	nets, err := ParseTrustedProxies([]string{"10.0.0.1", " 172.16.0.0/12 ", "", "::1"})
	require.NoError(t, err)
	require.Len(t, nets, 3)
	assert.Equal(t, "10.0.0.1/32", nets[0].String())
	assert.Equal(t, "::1/128", nets[2].String())

	_, err = ParseTrustedProxies([]string{"proxy.internal"})
	assert.Error(t, err)
	_, err = ParseTrustedProxies([]string{"10.0.0.0/99"})
	assert.Error(t, err)
}
