// Package response provides the relay's JSON response helpers.
//
// Success bodies are written as-is. Failures use a single flat shape,
// {"error": "<message>"}, and never carry internal detail.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/agentstation/authrelay/pkg/constants"
	"github.com/agentstation/authrelay/pkg/errors"
)

// Error is the body of every failed request.
type Error struct {
	Error string `json:"error"`
}

// CaptureResult is the body of a successful capture.
type CaptureResult struct {
	Success bool   `json:"success"`
	EventID string `json:"eventId"`
}

// Result is the body of a successful mutation without a payload.
type Result struct {
	Success bool `json:"success"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encoding errors are ignored as headers are already sent (best effort)
	_ = json.NewEncoder(w).Encode(v)
}

// Raw writes pre-encoded JSON with the given status code.
func Raw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// OK writes v with 200 status.
func OK(w http.ResponseWriter, v any) {
	JSON(w, http.StatusOK, v)
}

// Fail writes an error body with the given status.
func Fail(w http.ResponseWriter, status int, message string) {
	JSON(w, status, Error{Error: message})
}

// BadRequest writes a 400 error response.
func BadRequest(w http.ResponseWriter) {
	Fail(w, http.StatusBadRequest, constants.ErrMsgInvalidPayload)
}

// Unauthorized writes a 401 error response.
func Unauthorized(w http.ResponseWriter) {
	Fail(w, http.StatusUnauthorized, constants.ErrMsgUnauthorized)
}

// NotFound writes a 404 error response.
func NotFound(w http.ResponseWriter) {
	Fail(w, http.StatusNotFound, constants.ErrMsgNotFound)
}

// MethodNotAllowed writes a 405 error response and the Allow header.
func MethodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	Fail(w, http.StatusMethodNotAllowed, "Method not allowed")
}

// PayloadTooLarge writes a 413 error response.
func PayloadTooLarge(w http.ResponseWriter) {
	Fail(w, http.StatusRequestEntityTooLarge, constants.ErrMsgPayloadTooLarge)
}

// RateLimited writes a 429 error response.
func RateLimited(w http.ResponseWriter) {
	Fail(w, http.StatusTooManyRequests, constants.ErrMsgRateLimited)
}

// InternalError writes a 500 error response. The cause is never exposed.
func InternalError(w http.ResponseWriter) {
	Fail(w, http.StatusInternalServerError, constants.ErrMsgInternal)
}

// ServiceUnavailable writes a 503 error response.
func ServiceUnavailable(w http.ResponseWriter, message string) {
	Fail(w, http.StatusServiceUnavailable, message)
}

// StatusFor returns the HTTP status a typed error maps to.
func StatusFor(err error) int {
	switch {
	case errors.IsUnauthorized(err):
		return http.StatusUnauthorized
	case errors.IsValidationError(err):
		return http.StatusBadRequest
	case errors.IsNotFound(err):
		return http.StatusNotFound
	case errors.IsRateLimited(err):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// ErrorFromType maps typed errors to the matching error response.
func ErrorFromType(w http.ResponseWriter, err error) {
	switch StatusFor(err) {
	case http.StatusUnauthorized:
		Unauthorized(w)
	case http.StatusBadRequest:
		BadRequest(w)
	case http.StatusNotFound:
		NotFound(w)
	case http.StatusTooManyRequests:
		RateLimited(w)
	default:
		InternalError(w)
	}
}
