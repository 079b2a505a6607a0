package router

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxRequestBodySize caps RPC payloads (1MB).
const maxRequestBodySize = 1 << 20

// HTTPHandler exposes the dispatcher over plain HTTP for one-shot callers.
type HTTPHandler struct {
	dispatcher *Dispatcher
}

// NewHTTPHandler creates the HTTP transport for the dispatcher.
func NewHTTPHandler(dispatcher *Dispatcher) *HTTPHandler {
	return &HTTPHandler{dispatcher: dispatcher}
}

// RegisterRoutes registers the RPC endpoint.
func (h *HTTPHandler) RegisterRoutes(r chi.Router) {
	r.Post("/rpc", h.HandleRPC)
}

// HandleRPC decodes one request, dispatches it, and writes the result after
// the operation has resolved. Transport-level problems (bad JSON, oversized
// body) are the only conditions that produce non-200 statuses; operation
// failures travel inside the normalized error payload.
func (h *HTTPHandler) HandleRPC(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResult{Error: "request body too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, ErrorResult{Error: "invalid request body"})
		return
	}

	slog.Debug("rpc request",
		"type", req.Type,
		"request_id", chiMiddleware.GetReqID(r.Context()),
	)

	result := h.dispatcher.Dispatch(r.Context(), req)
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode rpc response", "error", err)
	}
}
