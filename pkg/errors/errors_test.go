package errors_test

import (
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/agentstation/authrelay/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := pkgerrors.New("test error")
	assert.NotNil(t, err)
	assert.Equal(t, "test error", err.Error())
}

func TestValidationError(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Field:   "request.url",
			Message: "must be a non-empty string",
		}
		assert.Equal(t, "validation failed for field request.url: must be a non-empty string", err.Error())
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidInput))
		assert.True(t, errors.Is(err, pkgerrors.ErrInvalidPayload))
	})

	t.Run("without field", func(t *testing.T) {
		err := &pkgerrors.ValidationError{
			Message: "payload is empty",
		}
		assert.Equal(t, "validation failed: payload is empty", err.Error())
		assert.True(t, pkgerrors.IsValidationError(err))
	})

	t.Run("wrapped", func(t *testing.T) {
		base := pkgerrors.NewValidationError("type", "bogus", "unsupported event type")
		wrapped := fmt.Errorf("capture: %w", base)
		assert.True(t, pkgerrors.IsValidationError(wrapped))

		var ve *pkgerrors.ValidationError
		require.True(t, errors.As(wrapped, &ve))
		assert.Equal(t, "type", ve.Field)
	})
}

func TestUnauthorizedError(t *testing.T) {
	t.Run("missing secret", func(t *testing.T) {
		err := pkgerrors.NewUnauthorizedError("10.0.0.1:5555", "X-Demo-Secret", false)
		assert.Equal(t, "unauthorized request from 10.0.0.1:5555: missing secret in X-Demo-Secret", err.Error())
		assert.True(t, pkgerrors.IsUnauthorized(err))
	})

	t.Run("mismatched secret", func(t *testing.T) {
		err := pkgerrors.NewUnauthorizedError("", "X-Demo-Secret", true)
		assert.Equal(t, "unauthorized: secret mismatch in X-Demo-Secret", err.Error())
		assert.False(t, pkgerrors.IsValidationError(err))
	})
}

func TestInternalError(t *testing.T) {
	base := errors.New("boom")
	err := pkgerrors.NewInternalError("capture", base)

	assert.Contains(t, err.Error(), "capture")
	assert.Contains(t, err.Error(), "boom")
	assert.True(t, pkgerrors.IsInternal(err))
	assert.Equal(t, base, errors.Unwrap(err))
}

func TestDeliveryError(t *testing.T) {
	t.Run("with event", func(t *testing.T) {
		err := pkgerrors.NewDeliveryError("ws-1", "evt-1", errors.New("queue full"))
		assert.Equal(t, "delivery of event evt-1 to subscriber ws-1 failed: queue full", err.Error())
		assert.True(t, pkgerrors.IsDeliveryFailed(err))
	})

	t.Run("without event", func(t *testing.T) {
		err := pkgerrors.NewDeliveryError("sse-2", "", errors.New("closed"))
		assert.Equal(t, "delivery to subscriber sse-2 failed: closed", err.Error())
	})
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		target error
	}{
		{"unauthorized", 401, pkgerrors.ErrUnauthorized},
		{"bad request", 400, pkgerrors.ErrInvalidInput},
		{"not found", 404, pkgerrors.ErrNotFound},
		{"rate limited", 429, pkgerrors.ErrRateLimited},
		{"server error", 503, pkgerrors.ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pkgerrors.NewAPIError("/api/events/capture", tt.status, "failed")
			assert.True(t, errors.Is(err, tt.target))
			assert.Contains(t, err.Error(), fmt.Sprintf("status %d", tt.status))
		})
	}

	t.Run("no status", func(t *testing.T) {
		err := &pkgerrors.APIError{Endpoint: "/health", Message: "connection refused"}
		assert.Equal(t, "API error from /health: connection refused", err.Error())
		assert.False(t, errors.Is(err, pkgerrors.ErrUnavailable))
	})
}

func TestConfigError(t *testing.T) {
	base := errors.New("out of range")
	err := pkgerrors.NewConfigError("server", "invalid port", base)
	assert.Equal(t, "configuration error in server: invalid port", err.Error())
	assert.Equal(t, base, errors.Unwrap(err))

	bare := &pkgerrors.ConfigError{Message: "missing secret"}
	assert.Equal(t, "configuration error: missing secret", bare.Error())
}

func TestWrapHelpers(t *testing.T) {
	t.Run("nil passthrough", func(t *testing.T) {
		assert.NoError(t, pkgerrors.WrapValidation("field", nil))
		assert.NoError(t, pkgerrors.WrapIO("read", "/tmp/x", nil))
		assert.NoError(t, pkgerrors.WrapResource("load", "config", "", nil))
		assert.NoError(t, pkgerrors.WrapParse("json", "", nil))
		assert.NoError(t, pkgerrors.WrapAPI("/health", 500, nil))
	})

	t.Run("wrap io", func(t *testing.T) {
		base := errors.New("permission denied")
		err := pkgerrors.WrapIO("write", "/tmp/session.json", base)

		var ioErr *pkgerrors.IOError
		require.True(t, errors.As(err, &ioErr))
		assert.Equal(t, "write", ioErr.Operation)
		assert.Equal(t, "/tmp/session.json", ioErr.Path)
		assert.ErrorIs(t, err, base)
	})

	t.Run("wrap parse", func(t *testing.T) {
		base := errors.New("unexpected end of JSON input")
		err := pkgerrors.WrapParse("json", "session.json", base)
		assert.Equal(t, "parse error in json file session.json: unexpected end of JSON input", err.Error())
	})

	t.Run("wrap api", func(t *testing.T) {
		err := pkgerrors.WrapAPI("/api/events/history", 502, errors.New("bad gateway"))
		assert.True(t, errors.Is(err, pkgerrors.ErrUnavailable))
	})

	t.Run("wrap resource", func(t *testing.T) {
		err := pkgerrors.WrapResource("dial", "stream", "ws://localhost:3001", errors.New("refused"))
		assert.Equal(t, "failed to dial stream ws://localhost:3001: refused", err.Error())
	})
}

func TestTimeoutError(t *testing.T) {
	err := pkgerrors.NewTimeoutError("stream connect", "5s", "relay did not answer")
	assert.Equal(t, "operation stream connect timed out after 5s: relay did not answer", err.Error())
	assert.True(t, pkgerrors.IsTimeout(err))
	assert.False(t, pkgerrors.IsTimeout(pkgerrors.NewInternalError("x", nil)))

	short := pkgerrors.NewTimeoutError("history", "", "deadline exceeded")
	assert.Equal(t, "operation history timed out: deadline exceeded", short.Error())
}
