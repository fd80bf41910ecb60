package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/server/response"
)

// RateLimiter implements fixed-window rate limiting per client IP.
// Idle visitors expire from the underlying cache.
type RateLimiter struct {
	visitors *gocache.Cache
	limit    int           // requests per interval
	interval time.Duration // window length
	now      func() time.Time
	logger   *zerolog.Logger
}

// visitor tracks rate limit state for a single IP.
type visitor struct {
	mu        sync.Mutex
	tokens    int
	lastReset time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per minute per IP.
func NewRateLimiter(limit int, logger *zerolog.Logger) *RateLimiter {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RateLimiter{
		visitors: gocache.New(10*time.Minute, 5*time.Minute),
		limit:    limit,
		interval: time.Minute,
		now:      time.Now,
		logger:   logger,
	}
}

// visitorFor returns or creates the visitor for ip.
func (rl *RateLimiter) visitorFor(ip string) *visitor {
	if v, ok := rl.visitors.Get(ip); ok {
		return v.(*visitor)
	}

	v := &visitor{tokens: rl.limit, lastReset: rl.now()}
	if err := rl.visitors.Add(ip, v, gocache.DefaultExpiration); err != nil {
		// Lost the race; use the stored visitor.
		if existing, ok := rl.visitors.Get(ip); ok {
			return existing.(*visitor)
		}
	}
	return v
}

// Allow reports whether a request from ip fits the current window.
func (rl *RateLimiter) Allow(ip string) bool {
	if rl.limit <= 0 {
		return true
	}

	v := rl.visitorFor(ip)
	v.mu.Lock()
	defer v.mu.Unlock()

	if now := rl.now(); now.Sub(v.lastReset) >= rl.interval {
		v.tokens = rl.limit
		v.lastReset = now
	}
	if v.tokens > 0 {
		v.tokens--
		return true
	}
	return false
}

// VisitorCount returns the number of tracked IPs.
func (rl *RateLimiter) VisitorCount() int {
	return rl.visitors.ItemCount()
}

// RateLimit rejects requests over the per-IP limit with 429.
func RateLimit(rl *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !rl.Allow(ip) {
				rl.logger.Warn().
					Str("ip", ip).
					Str("path", r.URL.Path).
					Msg("Rate limit exceeded")
				w.Header().Set("Retry-After", "60")
				response.RateLimited(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientIPKey struct{}

// ClientIP returns the caller address resolved by RealIP, or the remote
// host when RealIP did not run.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ParseTrustedProxies parses IPs and CIDR ranges. A bare IP covers only
// itself.
func ParseTrustedProxies(entries []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 8 * net.IPv6len
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

func trusted(proxies []*net.IPNet, addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range proxies {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// RealIP resolves the caller address used for rate limiting and logging.
// X-Forwarded-For is honored only when the direct peer is a trusted proxy;
// the client is then the rightmost hop that is not itself trusted.
func RealIP(proxies []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteHost(r)
			if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" && trusted(proxies, ip) {
				hops := strings.Split(forwarded, ",")
				for i := len(hops) - 1; i >= 0; i-- {
					hop := strings.TrimSpace(hops[i])
					if hop == "" {
						continue
					}
					ip = hop
					if !trusted(proxies, hop) {
						break
					}
				}
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip)))
		})
	}
}
