package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/darktomcat119/Health-AI-MVP/internal/chat"
	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// ChatRequest is the body of the chat and stream endpoints.
type ChatRequest struct {
	SessionID   string `json:"session_id,omitempty"`
	UserMessage string `json:"user_message"`
}

// MessageEntry is one message of a history response.
type MessageEntry struct {
	Role      domain.Role `json:"role"`
	Content   string      `json:"content"`
	RiskScore *int        `json:"risk_score"`
	Timestamp time.Time   `json:"timestamp"`
}

// HistoryResponse is the body of the history endpoint.
type HistoryResponse struct {
	SessionID       string         `json:"session_id"`
	History         []MessageEntry `json:"history"`
	MessageCount    int            `json:"message_count"`
	CumulativeRisk  int            `json:"cumulative_risk"`
	TriageActivated bool           `json:"triage_activated"`
	HumanHandoff    bool           `json:"human_handoff"`
	CreatedAt       time.Time      `json:"created_at"`
}

// HandoffResponse is the body of the handoff endpoint.
type HandoffResponse struct {
	SessionID           string                    `json:"session_id"`
	HandoffStatus       string                    `json:"handoff_status"`
	ProfessionalContext *chat.ProfessionalContext `json:"professional_context"`
}

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	Version        string `json:"version"`
	ActiveSessions int    `json:"active_sessions"`
}

func (h *Handler) decodeChatRequest(w http.ResponseWriter, r *http.Request) (chat.TurnRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, CodeInvalidMessage, "request body too large")
			return chat.TurnRequest{}, false
		}
		Error(w, http.StatusBadRequest, CodeInvalidMessage, "invalid request body")
		return chat.TurnRequest{}, false
	}
	return chat.TurnRequest{SessionID: req.SessionID, Message: req.UserMessage}, true
}

// HandleChat handles POST /api/v1/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	res, err := h.svc.ProcessTurn(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}

// HandleStream handles POST /api/v1/chat/stream. Validation and session
// errors are plain JSON responses; once the turn is committed the reply is
// streamed as server-sent events.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeChatRequest(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		Error(w, http.StatusInternalServerError, CodeInternal, "streaming not supported")
		return
	}

	res, err := h.svc.ProcessTurn(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	err = chat.EmitTurn(r.Context(), res, func(ev chat.StreamEvent) error {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return fmt.Errorf("marshal %s event: %w", ev.Type, err)
		}
		if err := writeSSE(w, ev.Type, string(data)); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	})
	if err != nil {
		slog.Warn("chat stream interrupted",
			"session_id", res.SessionID,
			"request_id", chiMiddleware.GetReqID(r.Context()),
			"error", err,
		)
	}
}

// HandleHistory handles GET /api/v1/chat/{sessionID}/history.
func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.History(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	history := make([]MessageEntry, 0, len(s.Messages))
	for _, m := range s.Messages {
		history = append(history, MessageEntry{
			Role:      m.Role,
			Content:   m.Content,
			RiskScore: m.RiskScore,
			Timestamp: m.Timestamp,
		})
	}
	JSON(w, http.StatusOK, HistoryResponse{
		SessionID:       s.ID,
		History:         history,
		MessageCount:    s.MessageCount(),
		CumulativeRisk:  s.CumulativeRisk,
		TriageActivated: s.TriageActivated,
		HumanHandoff:    s.HumanHandoff,
		CreatedAt:       s.CreatedAt,
	})
}

// HandleHandoff handles POST /api/v1/chat/{sessionID}/handoff.
func (h *Handler) HandleHandoff(w http.ResponseWriter, r *http.Request) {
	pc, err := h.svc.Handoff(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, HandoffResponse{
		SessionID:           pc.SessionID,
		HandoffStatus:       "initiated",
		ProfessionalContext: pc,
	})
}

// HandleHealth handles GET /api/v1/health.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ActiveSessions(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, HealthResponse{
		Status:         "healthy",
		Service:        h.opts.AppName,
		Version:        h.opts.Version,
		ActiveSessions: n,
	})
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
