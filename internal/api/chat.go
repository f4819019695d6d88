package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/resolver"
	"github.com/medigenius/medigenius/internal/session"
)

// maxChatBodySize bounds the request body; questions are short.
const maxChatBodySize = 64 << 10

// Resolver answers one question. Satisfied by *resolver.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, req resolver.Request) (*resolver.Response, error)
}

type chatHandler struct {
	resolver Resolver
	logger   *slog.Logger
}

type chatRequest struct {
	SessionID uuid.UUID `json:"session_id"`
	Message   string    `json:"message"`
}

// send handles POST /api/v1/chat. A terminal composition failure maps to
// 502: the caller gets a generic failure outcome and no turn is stored.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	body := http.MaxBytesReader(w, r.Body, maxChatBodySize)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if errors.As(err, new(*http.MaxBytesError)) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		return
	}
	if req.SessionID == uuid.Nil {
		WriteError(w, http.StatusBadRequest, "session_required", "session_id is required", h.logger)
		return
	}

	resp, err := h.resolver.Resolve(r.Context(), resolver.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
	})
	switch {
	case err == nil:
		WriteJSON(w, http.StatusOK, resp)
	case errors.Is(err, resolver.ErrAborted):
		h.logger.Error("turn aborted", "session_id", req.SessionID, "error", err)
		WriteError(w, http.StatusBadGateway, "composition_unavailable", "answer generation failed", h.logger)
	case errors.Is(err, session.ErrNotFound):
		WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
	case errors.Is(err, context.Canceled) || errors.Is(err, io.EOF):
		// Client went away; nothing useful to write.
		h.logger.Debug("request cancelled", "session_id", req.SessionID)
	default:
		h.logger.Error("resolve failed", "session_id", req.SessionID, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}
