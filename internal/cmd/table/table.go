// Package table converts relay events into rows for tabular output.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/authrelay/internal/cmd/emoji"
	"github.com/agentstation/authrelay/pkg/events"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data represents table formatting data to avoid import cycles.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

// EventsToTableData converts events to table format. Wide output adds the
// request URL, phone number and description.
func EventsToTableData(list []events.Event, wide bool) Data {
	headers := []string{"Time", "Type", "Method", "Status", "Duration", "Source"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignLeft}
	if wide {
		headers = append(headers, "URL", "Phone", "Description")
		align = append(align, AlignLeft, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(list))
	for _, e := range list {
		row := []string{
			FormatTime(e),
			FormatType(e),
			e.Request.Method,
			FormatStatus(e.Response),
			FormatDuration(e),
			FormatSource(e),
		}
		if wide {
			row = append(row,
				Truncate(e.Request.URL, 60),
				orDash(e.Metadata.PhoneNumber()),
				orDash(Truncate(e.Metadata.Description(), 50)),
			)
		}
		rows = append(rows, row)
	}

	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// FormatTime renders the event time in local wall-clock form, or the raw
// timestamp when it does not parse.
func FormatTime(e events.Event) string {
	t := e.Time()
	if t.IsZero() {
		return orDash(e.Timestamp)
	}
	return t.Local().Format("15:04:05.000")
}

// FormatType renders the event type label, marking synthetic events.
func FormatType(e events.Event) string {
	label := e.Type.Label()
	if e.Metadata.Synthetic() {
		label += " *"
	}
	return label
}

// FormatStatus renders the response status with a pass/fail mark.
func FormatStatus(r *events.Response) string {
	if r == nil {
		return "-"
	}
	mark := emoji.Success
	if r.Status >= 400 {
		mark = emoji.Error
	}
	return mark + " " + strconv.Itoa(r.Status)
}

// FormatDuration renders the recorded duration.
func FormatDuration(e events.Event) string {
	ms, ok := e.DurationMillis()
	if !ok {
		return "-"
	}
	d := time.Duration(ms) * time.Millisecond
	if d < time.Second && d > -time.Second {
		return fmt.Sprintf("%dms", ms)
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

// FormatSource renders where the event came from.
func FormatSource(e events.Event) string {
	if s := e.Metadata.Source(); s != "" {
		return s
	}
	if e.Type.IsSynthetic() {
		return events.SourceFrontend
	}
	return events.SourceBackend
}

// Truncate shortens s to at most n runes, ending in an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return strings.TrimSpace(string(r[:n-3])) + "..."
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
