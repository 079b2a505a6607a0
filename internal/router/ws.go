package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Envelope correlates a request with its response over the persistent
// channel: the surface assigns an ID, the worker echoes it back. Multiple
// requests may be in flight at once and responses land in completion order.
type Envelope struct {
	ID string `json:"id"`
	Request
}

// ResponseEnvelope carries a dispatch result back to the surface.
type ResponseEnvelope struct {
	ID     string `json:"id"`
	Result any    `json:"result"`
}

// WSHandler exposes the dispatcher over WebSocket for long-lived UI surfaces
// (popup, injected panel). Each connection is one surface.
type WSHandler struct {
	dispatcher     *Dispatcher
	allowedOrigins []string
}

// NewWSHandler creates the WebSocket transport for the dispatcher.
func NewWSHandler(dispatcher *Dispatcher, allowedOrigins []string) *WSHandler {
	return &WSHandler{dispatcher: dispatcher, allowedOrigins: allowedOrigins}
}

// ServeHTTP accepts a surface connection and serves its request stream until
// the surface disconnects.
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := uuid.NewString()

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns(),
	})
	if err != nil {
		slog.Error("failed to accept surface connection", "error", err, "client_id", clientID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "surface disconnected"); closeErr != nil {
			slog.Debug("surface close error", "error", closeErr, "client_id", clientID)
		}
	}()

	slog.Info("surface connected", "client_id", clientID, "ip", r.RemoteAddr)

	ctx := r.Context()
	var writeMu sync.Mutex
	var wg sync.WaitGroup

	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, context.Canceled) {
				slog.Info("surface disconnected", "client_id", clientID)
			} else {
				slog.Warn("surface read failed", "error", err, "client_id", clientID)
			}
			break
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			h.send(ctx, ws, &writeMu, ResponseEnvelope{Result: ErrorResult{Error: "invalid request payload"}})
			continue
		}

		// Dispatch each message independently so a slow backend call does
		// not block the next request from the same surface; the envelope ID
		// keeps responses correlated.
		wg.Add(1)
		go func(env Envelope) {
			defer wg.Done()
			result := h.dispatcher.Dispatch(ctx, env.Request)
			h.send(ctx, ws, &writeMu, ResponseEnvelope{ID: env.ID, Result: result})
		}(env)
	}

	wg.Wait()
}

func (h *WSHandler) send(ctx context.Context, ws *websocket.Conn, mu *sync.Mutex, resp ResponseEnvelope) {
	payload, err := json.Marshal(resp)
	if err != nil {
		slog.Warn("failed to encode surface response", "error", err)
		return
	}

	mu.Lock()
	defer mu.Unlock()
	if err := ws.Write(ctx, websocket.MessageText, payload); err != nil {
		slog.Debug("surface write failed", "error", err)
	}
}

func (h *WSHandler) originPatterns() []string {
	if len(h.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return h.allowedOrigins
}
