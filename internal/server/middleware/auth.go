package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/agentstation/authrelay/internal/server/response"
	"github.com/agentstation/authrelay/pkg/constants"
)

// AuthConfig protects administrative routes with a static key.
type AuthConfig struct {
	// Key is the expected value. An empty key disables the check.
	Key string

	// HeaderName carries the key. "Authorization: Bearer <key>" is also accepted.
	HeaderName string
}

// DefaultAuthConfig returns a disabled admin auth configuration.
func DefaultAuthConfig() AuthConfig {
	return AuthConfig{
		HeaderName: constants.AdminKeyHeader,
	}
}

// Enabled reports whether a key is configured.
func (c AuthConfig) Enabled() bool {
	return c.Key != ""
}

// Auth rejects requests without the configured admin key.
func Auth(config AuthConfig, logger *zerolog.Logger) func(http.Handler) http.Handler {
	if config.HeaderName == "" {
		config.HeaderName = constants.AdminKeyHeader
	}
	want := sha256.Sum256([]byte(config.Key))

	return func(next http.Handler) http.Handler {
		if !config.Enabled() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r, config.HeaderName)
			got := sha256.Sum256([]byte(key))

			if key == "" || subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				logger.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Bool("key_provided", key != "").
					Msg("Admin authentication failed")
				response.Unauthorized(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// extractKey reads the key from the named header, then from Authorization.
func extractKey(r *http.Request, header string) string {
	if key := r.Header.Get(header); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return auth
}
