// Package constants provides shared constants used throughout the relay.
// This includes timeouts, limits, header names, file permissions, and other
// values that must agree between the server, the client and the CLI.
package constants

import "time"

// Timeout constants define various timeout durations used in the application
const (
	// DefaultHTTPTimeout is the standard timeout for client requests to the relay
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultTimeout is the standard timeout for general operations
	DefaultTimeout = 10 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the HTTP server
	ShutdownTimeout = 30 * time.Second

	// ReadTimeout is the default HTTP server read timeout
	ReadTimeout = 10 * time.Second

	// WriteTimeout is the default HTTP server write timeout.
	// Zero keeps long-lived push streams (SSE) open.
	WriteTimeout = 0

	// IdleTimeout is the default HTTP server idle timeout
	IdleTimeout = 120 * time.Second

	// RetryBackoff is the base backoff duration for stream reconnects
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration for stream reconnects
	MaxRetryBackoff = 5 * time.Second

	// SSEKeepAliveInterval is how often an idle SSE stream receives a comment line
	SSEKeepAliveInterval = 30 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644

	// SecureFilePermissions is for session files that may hold phone numbers (rw-------)
	SecureFilePermissions = 0600
)

// Limit constants define various limits and capacities
const (
	// DefaultHistoryCapacity is the number of events retained by the history store
	DefaultHistoryCapacity = 100

	// MaxBodyBytes caps the size of a capture request body (1 MiB)
	MaxBodyBytes = 1 << 20

	// ChannelBufferSize is the buffer size for the broker publish queue
	ChannelBufferSize = 256

	// SubscriberBufferSize is the per-subscriber outbound queue size
	SubscriberBufferSize = 256

	// RegistrationBufferSize buffers subscribe/unsubscribe requests so
	// callers never block on a broker that has not started yet
	RegistrationBufferSize = 16
)

// Rate limiting constants
const (
	// DefaultRateLimit is the default requests per minute per IP (0 disables)
	DefaultRateLimit = 0
)

// Cache constants
const (
	// CacheTTL is the default time-to-live for cached history encodings
	CacheTTL = 5 * time.Minute

	// CacheCleanupInterval is how often to clean expired cache entries
	CacheCleanupInterval = 10 * time.Minute
)

// Default values
const (
	// DefaultPort is the relay listen port
	DefaultPort = 3001

	// DefaultAllowedOrigin is the development viewer origin
	DefaultAllowedOrigin = "http://localhost:5173"

	// DefaultSecret is the placeholder shared secret; the server warns when it is in use
	DefaultSecret = "default-secret"

	// DefaultEnvironment is the default deployment environment
	DefaultEnvironment = "development"

	// DefaultPathPrefix is the route prefix for event endpoints
	DefaultPathPrefix = "/api/events"

	// DefaultRelayURL is where the CLI client looks for a relay
	DefaultRelayURL = "http://localhost:3001"

	// DefaultSessionFile is where the watch command keeps local synthetic events
	DefaultSessionFile = ".authrelay-session.json"
)

// Header names
const (
	// SecretHeader carries the shared ingress secret
	SecretHeader = "X-Demo-Secret"

	// AdminKeyHeader carries the optional key guarding history deletion
	AdminKeyHeader = "X-Admin-Key"

	// RequestIDHeader carries the per-request correlation id
	RequestIDHeader = "X-Request-ID"
)

// Push channel names
const (
	// PushEventName tags every broadcast message
	PushEventName = "api-event"

	// ConnectedEventName is the first SSE event on a new stream
	ConnectedEventName = "connected"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatMillis is the ISO 8601 format with millisecond precision
	TimeFormatMillis = "2006-01-02T15:04:05.000Z07:00"

	// TimeFormatHuman is a human-readable time format
	TimeFormatHuman = "15:04:05.000"
)

// Error messages returned in HTTP bodies
const (
	// ErrMsgUnauthorized is returned when the shared secret is missing or wrong
	ErrMsgUnauthorized = "Unauthorized"

	// ErrMsgInvalidPayload is returned when a captured payload fails validation
	ErrMsgInvalidPayload = "Invalid payload"

	// ErrMsgInternal is returned for unexpected failures
	ErrMsgInternal = "Internal server error"

	// ErrMsgNotFound is returned for unknown routes
	ErrMsgNotFound = "Not found"

	// ErrMsgRateLimited is returned when the per-IP limit is exceeded
	ErrMsgRateLimited = "Rate limit exceeded"

	// ErrMsgPayloadTooLarge is returned when the capture body exceeds MaxBodyBytes
	ErrMsgPayloadTooLarge = "Payload too large"
)
