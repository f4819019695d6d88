package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/session"
)

const (
	defaultSessionPageSize = 20
	maxSessionPageSize     = 100
)

// SessionStore is the persistence surface the handlers need. Satisfied by
// *session.Store.
type SessionStore interface {
	CreateSession(ctx context.Context, title string) (*session.Session, error)
	GetSession(ctx context.Context, id uuid.UUID) (*session.Session, error)
	ListSessions(ctx context.Context, limit, offset int) ([]*session.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
	Messages(ctx context.Context, id uuid.UUID) ([]session.Message, error)
}

type sessionHandler struct {
	store  SessionStore
	logger *slog.Logger
}

type createSessionRequest struct {
	Title string `json:"title"`
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_json", "invalid request body", h.logger)
		return
	}

	sess, err := h.store.CreateSession(r.Context(), req.Title)
	if err != nil {
		h.logger.Error("create session failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusCreated, sess)
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultSessionPageSize)
	if limit < 1 || limit > maxSessionPageSize {
		limit = defaultSessionPageSize
	}
	offset := queryInt(r, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	sessions, err := h.store.ListSessions(r.Context(), limit, offset)
	if err != nil {
		h.logger.Error("list sessions failed", "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	if sessions == nil {
		sessions = []*session.Session{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	sess, err := h.store.GetSession(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("get session failed", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, sess)
}

func (h *sessionHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	if _, err := h.store.GetSession(r.Context(), id); errors.Is(err, session.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
		return
	} else if err != nil {
		h.logger.Error("get session failed", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}

	messages, err := h.store.Messages(r.Context(), id)
	if err != nil {
		h.logger.Error("get messages failed", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	if messages == nil {
		messages = []session.Message{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathSessionID(w, r, h.logger)
	if !ok {
		return
	}

	err := h.store.DeleteSession(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		WriteError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
		return
	}
	if err != nil {
		h.logger.Error("delete session failed", "session_id", id, "error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathSessionID(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_session_id", "session id must be a UUID", logger)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
