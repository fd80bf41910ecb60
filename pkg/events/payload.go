package events

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentstation/authrelay/internal/utils/ptr"
	"github.com/agentstation/authrelay/pkg/errors"
)

// Payload is the caller-supplied shape of a capture request. Pointer fields
// distinguish an absent field from an empty one.
type Payload struct {
	Type      *string         `json:"type"`
	Timestamp *string         `json:"timestamp"`
	Request   *RequestPayload `json:"request"`
	Response  *Response       `json:"response,omitempty"`
	Metadata  Metadata        `json:"metadata,omitempty"`
}

// RequestPayload is the caller-supplied request descriptor.
type RequestPayload struct {
	URL     *string        `json:"url"`
	Method  *string        `json:"method"`
	Headers map[string]any `json:"headers,omitempty"`
	Body    any            `json:"body"`
}

// newID generates event ids. Tests may replace it.
var newID = uuid.NewString

// DecodePayload decodes a JSON capture body. Malformed JSON, an empty body
// and fields of the wrong JSON type are all reported as validation errors.
func DecodePayload(data []byte) (*Payload, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, errors.NewValidationError("payload", nil, "body is empty")
	}

	var p *Payload
	if err := json.Unmarshal(data, &p); err != nil {
		var typeErr *json.UnmarshalTypeError
		if stderrors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "payload"
			}
			return nil, errors.NewValidationError(field, nil, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
		}
		return nil, errors.NewValidationError("payload", nil, "malformed JSON: "+err.Error())
	}
	if p == nil {
		return nil, errors.NewValidationError("payload", nil, "payload is null")
	}
	return p, nil
}

// Validate checks a payload against the ingress rules. It returns nil when
// the payload is acceptable and a *errors.ValidationError naming the first
// failing field otherwise.
func Validate(p *Payload) error {
	if p == nil {
		return errors.NewValidationError("payload", nil, "payload is missing")
	}

	if p.Type == nil || *p.Type == "" {
		return errors.NewValidationError("type", nil, "is required")
	}
	if !Type(*p.Type).IsServerType() {
		return errors.NewValidationError("type", *p.Type, "unsupported event type")
	}

	if p.Timestamp == nil || strings.TrimSpace(*p.Timestamp) == "" {
		return errors.NewValidationError("timestamp", nil, "is required")
	}
	if _, err := ParseTimestamp(*p.Timestamp); err != nil {
		return errors.NewValidationError("timestamp", *p.Timestamp, "must be an RFC 3339 instant")
	}

	if p.Request == nil {
		return errors.NewValidationError("request", nil, "is required")
	}
	if p.Request.URL == nil || *p.Request.URL == "" {
		return errors.NewValidationError("request.url", nil, "must be a non-empty string")
	}
	if p.Request.Method == nil || *p.Request.Method == "" {
		return errors.NewValidationError("request.method", nil, "must be a non-empty string")
	}

	return nil
}

// IsValid reports whether Validate accepts p.
func IsValid(p *Payload) bool {
	return Validate(p) == nil
}

// Normalize converts a validated payload into an Event received at
// receivedAt. The caller must have validated p.
//
// When a response is present, duration is receivedAt minus the caller's
// timestamp in milliseconds. The two clocks belong to different hosts, so
// the value includes any skew between them and may be negative.
func Normalize(p *Payload, receivedAt time.Time) Event {
	e := Event{
		ID:        newID(),
		Type:      Type(ptr.Deref(p.Type, "")),
		Timestamp: ptr.Deref(p.Timestamp, ""),
		Response:  p.Response,
		Metadata:  p.Metadata,
	}

	if p.Request != nil {
		e.Request = Request{
			URL:     ptr.Deref(p.Request.URL, ""),
			Method:  ptr.Deref(p.Request.Method, ""),
			Headers: p.Request.Headers,
			Body:    p.Request.Body,
		}
	}

	if p.Response != nil {
		if ts, err := ParseTimestamp(e.Timestamp); err == nil {
			e.Duration = ptr.Int64(receivedAt.Sub(ts).Milliseconds())
		}
	}

	return e
}

// Parse runs DecodePayload, Validate and Normalize in sequence.
func Parse(data []byte, receivedAt time.Time) (Event, error) {
	p, err := DecodePayload(data)
	if err != nil {
		return Event{}, err
	}
	if err := Validate(p); err != nil {
		return Event{}, err
	}
	return Normalize(p, receivedAt), nil
}

// NewPayload builds a payload for a capture request timestamped at ts.
func NewPayload(t Type, ts time.Time, req Request, resp *Response, meta Metadata) *Payload {
	return &Payload{
		Type:      ptr.String(string(t)),
		Timestamp: ptr.String(ts.UTC().Format(time.RFC3339Nano)),
		Request: &RequestPayload{
			URL:     ptr.String(req.URL),
			Method:  ptr.String(req.Method),
			Headers: req.Headers,
			Body:    req.Body,
		},
		Response: resp,
		Metadata: meta,
	}
}
