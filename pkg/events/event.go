// Package events defines the canonical relay event and the rules for turning
// an inbound webhook payload into one.
//
// A payload arrives as JSON, is decoded with DecodePayload, checked with
// Validate and converted with Normalize. The resulting Event is immutable:
// nothing in the relay modifies an Event after Normalize returns it, so
// copies of the struct may share maps and body values safely.
package events

import (
	"slices"
	"strings"
	"time"
)

// Type identifies the kind of API call an event describes.
type Type string

// Server-originated types accepted at ingress.
const (
	TypeTelephonyHook Type = "telephony_hook"
	TypeVerifyAPI     Type = "verify_api"
	TypeEventHook     Type = "event_hook"
)

// Client-only synthetic types produced by viewers. Ingress rejects them.
const (
	TypeWidgetInit    Type = "widget_init"
	TypeOAuthRedirect Type = "oauth_redirect"
	TypeOAuthCallback Type = "oauth_callback"
	TypeTokenExchange Type = "token_exchange"
	TypeAuthSuccess   Type = "auth_success"
)

// ServerTypes returns the types accepted at ingress.
func ServerTypes() []Type {
	return []Type{TypeTelephonyHook, TypeVerifyAPI, TypeEventHook}
}

// SyntheticTypes returns the client-only types.
func SyntheticTypes() []Type {
	return []Type{TypeWidgetInit, TypeOAuthRedirect, TypeOAuthCallback, TypeTokenExchange, TypeAuthSuccess}
}

// IsServerType reports whether t may be captured by the relay.
func (t Type) IsServerType() bool {
	return slices.Contains(ServerTypes(), t)
}

// IsSynthetic reports whether t is a client-only type.
func (t Type) IsSynthetic() bool {
	return slices.Contains(SyntheticTypes(), t)
}

// String implements fmt.Stringer.
func (t Type) String() string {
	return string(t)
}

// Label returns a short human label for CLI output.
func (t Type) Label() string {
	switch t {
	case TypeTelephonyHook:
		return "Telephony Hook"
	case TypeVerifyAPI:
		return "Verify API"
	case TypeEventHook:
		return "Event Hook"
	case TypeWidgetInit:
		return "Widget Init"
	case TypeOAuthRedirect:
		return "OAuth Redirect"
	case TypeOAuthCallback:
		return "OAuth Callback"
	case TypeTokenExchange:
		return "Token Exchange"
	case TypeAuthSuccess:
		return "Auth Success"
	}
	return strings.ReplaceAll(string(t), "_", " ")
}

// Request describes the outbound call the event records.
type Request struct {
	URL     string         `json:"url" yaml:"url"`
	Method  string         `json:"method" yaml:"method"`
	Headers map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any            `json:"body" yaml:"body"`
}

// Response describes the reply to the recorded call.
type Response struct {
	Status  int            `json:"status" yaml:"status"`
	Headers map[string]any `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    any            `json:"body" yaml:"body"`
}

// Event is the canonical, normalized record of one instrumented API call.
type Event struct {
	ID        string    `json:"id" yaml:"id"`
	Type      Type      `json:"type" yaml:"type"`
	Timestamp string    `json:"timestamp" yaml:"timestamp"`
	Duration  *int64    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Request   Request   `json:"request" yaml:"request"`
	Response  *Response `json:"response,omitempty" yaml:"response,omitempty"`
	Metadata  Metadata  `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Time parses the event timestamp. The zero time is returned when the
// timestamp cannot be parsed, which only happens for client-built events.
func (e Event) Time() time.Time {
	t, err := ParseTimestamp(e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// DurationMillis returns the duration and whether one was recorded.
func (e Event) DurationMillis() (int64, bool) {
	if e.Duration == nil {
		return 0, false
	}
	return *e.Duration, true
}

// ParseTimestamp parses an RFC 3339 instant with or without fractional seconds.
func ParseTimestamp(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(s))
}

// SortByTimestamp orders events by timestamp ascending. The sort is stable,
// so events sharing an instant keep their relative order. Unparseable
// timestamps sort first.
func SortByTimestamp(list []Event) {
	slices.SortStableFunc(list, func(a, b Event) int {
		return a.Time().Compare(b.Time())
	})
}
