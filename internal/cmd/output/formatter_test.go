package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/pkg/events"
)

func sample() []events.Event {
	return []events.Event{{
		ID:        "evt-1",
		Type:      events.TypeVerifyAPI,
		Timestamp: "2025-01-01T00:00:00Z",
		Request:   events.Request{URL: "https://verify.example.com/v2", Method: "POST"},
		Response:  &events.Response{Status: 201},
	}}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"table", "JSON", "yaml", "wide", ""} {
		_, err := ParseFormat(s)
		assert.NoError(t, err, s)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestDetectFormat_Explicit(t *testing.T) {
	assert.Equal(t, FormatYAML, DetectFormat("YAML"))
}

func TestEvents_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Events(&buf, sample(), FormatJSON))

	var out []events.Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "evt-1", out[0].ID)

	buf.Reset()
	require.NoError(t, Events(&buf, nil, FormatJSON))
	assert.Equal(t, "[]", strings.TrimSpace(buf.String()))
}

func TestEvents_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Events(&buf, sample(), FormatYAML))
	assert.Contains(t, buf.String(), "id: evt-1")
	assert.Contains(t, buf.String(), "type: verify_api")
}

func TestEvents_Table(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Events(&buf, sample(), FormatTable))
	out := strings.ToUpper(buf.String())
	assert.Contains(t, out, "VERIFY API")
	assert.Contains(t, out, "201")

	buf.Reset()
	require.NoError(t, Events(&buf, nil, FormatTable))
	assert.Equal(t, "No events.\n", buf.String())
}

func TestEvent_Line(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Event(&buf, sample()[0], FormatTable))
	assert.Contains(t, buf.String(), "Verify API")
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))
}

func TestTableFormatter_Struct(t *testing.T) {
	type health struct {
		Status      string `json:"status"`
		Environment string `json:"environment,omitempty"`
	}
	var buf bytes.Buffer
	require.NoError(t, NewFormatter(FormatTable).Format(&buf, &health{Status: "ok", Environment: "test"}))
	out := strings.ToUpper(buf.String())
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "ENVIRONMENT")
	assert.Contains(t, buf.String(), "ok")
}
