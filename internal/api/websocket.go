package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/darktomcat119/Health-AI-MVP/internal/chat"
	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
)

// wsError is sent in place of a turn that failed.
type wsError struct {
	Type  string `json:"type"`
	Code  string `json:"code"`
	Error string `json:"error"`
}

// HandleWebSocket handles GET /api/v1/chat/ws. Each client message is a
// ChatRequest; each turn is answered with the same events as the SSE
// endpoint. The session id sticks to the connection once assigned.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "conversation ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr)
		}
	}()
	ws.SetReadLimit(h.opts.MaxBodySize)

	ctx := r.Context()
	sessionID := ""
	for {
		var req ChatRequest
		if err := wsjson.Read(ctx, ws, &req); err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}
		if req.SessionID == "" {
			req.SessionID = sessionID
		}

		res, err := h.svc.ProcessTurnStream(ctx, chat.TurnRequest{SessionID: req.SessionID, Message: req.UserMessage},
			func(ev chat.StreamEvent) error {
				return wsjson.Write(ctx, ws, ev.Data)
			})
		if res != nil {
			sessionID = res.SessionID
		}
		if err == nil {
			continue
		}
		if res != nil {
			// The turn was committed but the client went away mid-stream.
			slog.Warn("WebSocket stream interrupted", "error", err, "session_id", sessionID)
			return
		}

		if errors.Is(err, domain.ErrSessionExpired) {
			sessionID = ""
		}
		status, code, msg := classify(err)
		if status == http.StatusInternalServerError {
			slog.Error("websocket turn failed", "error", err, "session_id", req.SessionID)
		}
		if writeErr := wsjson.Write(ctx, ws, wsError{Type: "error", Code: code, Error: msg}); writeErr != nil {
			slog.Debug("Failed to send websocket error", "error", writeErr)
			return
		}
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.opts.IsDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.opts.AllowedOrigin == "*" || h.opts.AllowedOrigin == "" {
		return true
	}
	if origin == h.opts.AllowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.opts.AllowedOrigin)
	return false
}

