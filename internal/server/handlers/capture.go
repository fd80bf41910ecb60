package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/agentstation/authrelay/internal/ingress"
	"github.com/agentstation/authrelay/internal/server/cache"
	"github.com/agentstation/authrelay/internal/server/middleware"
	"github.com/agentstation/authrelay/internal/server/response"
	"github.com/agentstation/authrelay/pkg/events"
	"github.com/agentstation/authrelay/pkg/logging"
)

// HistoryResponse is the body of GET /history.
type HistoryResponse struct {
	Events []events.Event `json:"events"`
	Count  int            `json:"count"`
}

// HandleCapture handles POST {prefix}/capture.
//
// The secret is checked before the body is read, so unauthorized callers
// get 401 regardless of what they sent.
func (h *Handlers) HandleCapture(w http.ResponseWriter, r *http.Request) {
	ctx := ingress.WithSource(r.Context(), middleware.ClientIP(r))
	secret := r.Header.Get(h.secretHeader)

	if err := h.ingress.Authorize(ctx, secret); err != nil {
		response.ErrorFromType(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logging.FromContext(r.Context()).Warn().
				Int64("limit", tooLarge.Limit).
				Msg("Capture body too large")
			response.PayloadTooLarge(w)
			return
		}
		response.BadRequest(w)
		return
	}

	ev, err := h.ingress.Capture(ctx, secret, body)
	if err != nil {
		response.ErrorFromType(w, err)
		return
	}

	response.OK(w, response.CaptureResult{Success: true, EventID: ev.ID})
}

// HandleHistory handles GET {prefix}/history. The encoded body is cached
// per history version, so repeated polling between captures is free.
func (h *Handlers) HandleHistory(w http.ResponseWriter, r *http.Request) {
	list, version := h.ingress.HistorySnapshot()
	key := cache.HistoryKey(version)

	if body, ok := h.cache.GetBytes(key); ok {
		w.Header().Set("X-Cache", "HIT")
		response.Raw(w, http.StatusOK, body)
		return
	}

	if list == nil {
		list = []events.Event{}
	}
	body, err := json.Marshal(HistoryResponse{Events: list, Count: len(list)})
	if err != nil {
		logging.FromContext(r.Context()).Error().Err(err).Msg("Failed to encode history")
		response.InternalError(w)
		return
	}

	h.historyMu.Lock()
	if h.historyKey != "" && h.historyKey != key {
		h.cache.Delete(h.historyKey)
	}
	h.historyKey = key
	h.historyMu.Unlock()
	h.cache.Set(key, body)

	w.Header().Set("X-Cache", "MISS")
	response.Raw(w, http.StatusOK, body)
}

// HandleClearHistory handles DELETE {prefix}/history.
func (h *Handlers) HandleClearHistory(w http.ResponseWriter, r *http.Request) {
	ctx := ingress.WithSource(r.Context(), middleware.ClientIP(r))
	h.ingress.ClearHistory(ctx)
	h.cache.Clear()

	response.OK(w, response.Result{Success: true})
}
