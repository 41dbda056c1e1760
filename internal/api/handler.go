// Package api provides the HTTP handlers of the chat service.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/darktomcat119/Health-AI-MVP/internal/chat"
	"github.com/darktomcat119/Health-AI-MVP/internal/domain"
	"github.com/go-chi/chi/v5"
)

// Error codes returned in the "code" field of error bodies.
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeSessionExpired  = "SESSION_EXPIRED"
	CodeInvalidMessage  = "INVALID_MESSAGE"
	CodeInternal        = "INTERNAL_ERROR"
	CodeRateLimited     = "RATE_LIMITED"
)

const defaultMaxRequestBodySize = 64 << 10

// Options configure a Handler.
type Options struct {
	AppName       string
	Version       string
	AllowedOrigin string
	IsDev         bool
	MaxBodySize   int64
}

// Handler serves the chat API.
type Handler struct {
	svc  *chat.Service
	opts Options
}

// NewHandler creates a Handler for svc.
func NewHandler(svc *chat.Service, opts Options) *Handler {
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxRequestBodySize
	}
	return &Handler{svc: svc, opts: opts}
}

// RegisterRoutes mounts the API under r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Route("/chat", func(r chi.Router) {
		r.Post("/", h.HandleChat)
		r.Post("/stream", h.HandleStream)
		r.Get("/ws", h.HandleWebSocket)
		r.Get("/{sessionID}/history", h.HandleHistory)
		r.Post("/{sessionID}/handoff", h.HandleHandoff)
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorResponse{Error: message, Code: code})
}

// classify maps a service error to a status, code and client-safe message.
// Internal failures are opaque.
func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidMessage):
		return http.StatusBadRequest, CodeInvalidMessage, invalidMessageText(err)
	case errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound, CodeSessionNotFound, "session not found"
	case errors.Is(err, domain.ErrSessionExpired):
		return http.StatusGone, CodeSessionExpired, "session expired, start a new conversation"
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

func invalidMessageText(err error) string {
	var de *domain.Error
	if errors.As(err, &de) {
		return de.Err.Error()
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"session_id", domain.SessionIDOf(err),
			"error", err,
		)
	}
	Error(w, status, code, msg)
}
