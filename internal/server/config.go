package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/authrelay/internal/server/middleware"
	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	// Server settings
	Host string
	Port int

	// API settings
	PathPrefix   string
	SecretHeader string
	MaxBodyBytes int64

	// Shared secret for capture calls
	Secret string

	// AdminKey protects DELETE /history when set
	AdminKey string

	// Allowed browser origins for CORS and WebSocket upgrades
	AllowedOrigins []string

	// TrustedProxies lists IPs or CIDRs whose X-Forwarded-For is honored.
	// Empty means client addresses come from the connection only.
	TrustedProxies []string

	// Relay state
	HistoryCapacity int
	Environment     string

	// Performance settings
	RateLimit int // Requests per minute per IP (0 to disable)
	CacheTTL  time.Duration

	// HTTP timeouts
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Trace wraps the handler with OpenTelemetry HTTP instrumentation
	Trace bool
}

// DefaultConfig returns a Config with the relay's defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "",
		Port:            constants.DefaultPort,
		PathPrefix:      constants.DefaultPathPrefix,
		SecretHeader:    constants.SecretHeader,
		MaxBodyBytes:    constants.MaxBodyBytes,
		Secret:          constants.DefaultSecret,
		AllowedOrigins:  []string{constants.DefaultAllowedOrigin},
		HistoryCapacity: constants.DefaultHistoryCapacity,
		Environment:     constants.DefaultEnvironment,
		RateLimit:       constants.DefaultRateLimit,
		CacheTTL:        constants.CacheTTL,
		ReadTimeout:     constants.ReadTimeout,
		WriteTimeout:    constants.WriteTimeout,
		IdleTimeout:     constants.IdleTimeout,
	}
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// UsingDefaultSecret reports whether the well-known development secret is in use.
func (c Config) UsingDefaultSecret() bool {
	return c.Secret == constants.DefaultSecret
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PathPrefix == "" {
		c.PathPrefix = d.PathPrefix
	}
	c.PathPrefix = "/" + strings.Trim(c.PathPrefix, "/")
	if c.SecretHeader == "" {
		c.SecretHeader = d.SecretHeader
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = d.MaxBodyBytes
	}
	if c.HistoryCapacity <= 0 {
		c.HistoryCapacity = d.HistoryCapacity
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
	if c.AllowedOrigins == nil {
		c.AllowedOrigins = d.AllowedOrigins
	}
	return c
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return errors.NewConfigError("server", fmt.Sprintf("invalid port %d", c.Port), nil)
	}
	if c.Secret == "" {
		return errors.NewConfigError("server", "demo secret must not be empty", nil)
	}
	if c.RateLimit < 0 {
		return errors.NewConfigError("server", "rate limit must not be negative", nil)
	}
	if _, err := middleware.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return errors.NewConfigError("server", err.Error(), err)
	}
	if c.PathPrefix == "/" {
		return errors.NewConfigError("server", "path prefix must not be the root", nil)
	}
	return nil
}
