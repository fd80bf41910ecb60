package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/agentstation/authrelay/pkg/logging"
)

func TestInitTracer(t *testing.T) {
	prev := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	var out bytes.Buffer
	tl := logging.NewTestLogger(t)

	shutdown, err := InitTracer("authrelay-test", "v0.0.1", &out, tl.Logger)
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "capture")
	span.End()

	require.NoError(t, shutdown(context.Background()))

	assert.Contains(t, out.String(), `"Name": "capture"`)
	assert.Contains(t, out.String(), "authrelay-test")
	tl.AssertContains(t, "OpenTelemetry tracing enabled")
}
