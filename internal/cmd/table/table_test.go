package table

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstation/authrelay/internal/utils/ptr"
	"github.com/agentstation/authrelay/pkg/events"
)

func TestEventsToTableData(t *testing.T) {
	list := []events.Event{
		{
			ID:        "a",
			Type:      events.TypeTelephonyHook,
			Timestamp: "2025-01-01T00:00:00Z",
			Duration:  ptr.Int64(1500),
			Request:   events.Request{URL: "https://hook.example.com", Method: "POST"},
			Response:  &events.Response{Status: 200},
			Metadata:  events.Metadata{events.MetaPhoneNumber: "+15550001111"},
		},
		{
			ID:        "b",
			Type:      events.TypeWidgetInit,
			Timestamp: "not a time",
			Request:   events.Request{URL: "http://localhost:5173", Method: "INIT"},
			Metadata:  events.Metadata{events.MetaSynthetic: true, events.MetaSource: "frontend"},
		},
	}

	narrow := EventsToTableData(list, false)
	assert.Len(t, narrow.Headers, 6)
	require.Len(t, narrow.Rows, 2)
	assert.Equal(t, []string{"Telephony Hook", "POST", "✓ 200", "1.5s", "backend"}, narrow.Rows[0][1:])
	assert.Equal(t, []string{"not a time", "Widget Init *", "INIT", "-", "-", "frontend"}, narrow.Rows[1])

	wide := EventsToTableData(list, true)
	assert.Len(t, wide.Headers, 9)
	assert.Len(t, wide.ColumnAlignment, 9)
	assert.Equal(t, "+15550001111", wide.Rows[0][7])
	assert.Equal(t, "-", wide.Rows[1][7])
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "✗ 503", FormatStatus(&events.Response{Status: 503}))

	assert.Equal(t, "-250ms", FormatDuration(events.Event{Duration: ptr.Int64(-250)}))

	assert.Equal(t, "abc", Truncate("abc", 5))
	assert.Equal(t, "ab...", Truncate("abcdefgh", 5))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
}
