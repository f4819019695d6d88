package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/resolver"
	"github.com/medigenius/medigenius/internal/session"
)

// mockResolver replays a canned response or error and records the request.
type mockResolver struct {
	resp    *resolver.Response
	err     error
	lastReq resolver.Request
	calls   int
}

func (m *mockResolver) Resolve(_ context.Context, req resolver.Request) (*resolver.Response, error) {
	m.calls++
	m.lastReq = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func newTestChatHandler(r Resolver) *chatHandler {
	return &chatHandler{
		resolver: r,
		logger:   slog.New(slog.DiscardHandler),
	}
}

func chatBody(t *testing.T, sessionID uuid.UUID, message string) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]string{
		"session_id": sessionID.String(),
		"message":    message,
	})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	return bytes.NewReader(body)
}

func TestChatSend(t *testing.T) {
	sessionID := uuid.New()
	mr := &mockResolver{resp: &resolver.Response{
		Text:       "Regular screening is recommended from age 45.",
		Provenance: resolver.ProvenanceKnowledgeBase,
		Timestamp:  time.Now(),
	}}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, sessionID, "when should I get screened?"))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("send() status = %d, want %d\nbody: %s", w.Code, http.StatusOK, w.Body.String())
	}
	if mr.lastReq.SessionID != sessionID {
		t.Errorf("send() session = %s, want %s", mr.lastReq.SessionID, sessionID)
	}

	var resp struct {
		Text       string `json:"text"`
		Provenance string `json:"provenance"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Text != mr.resp.Text {
		t.Errorf("send() text = %q, want %q", resp.Text, mr.resp.Text)
	}
	if resp.Provenance != "knowledge_base" {
		t.Errorf("send() provenance = %q, want %q", resp.Provenance, "knowledge_base")
	}
}

func TestChatSend_Aborted(t *testing.T) {
	mr := &mockResolver{err: resolver.ErrAborted}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, uuid.New(), "hello"))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("send(aborted) status = %d, want %d", w.Code, http.StatusBadGateway)
	}

	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if resp.Error.Code != "composition_unavailable" {
		t.Errorf("send(aborted) code = %q, want %q", resp.Error.Code, "composition_unavailable")
	}
}

func TestChatSend_WrappedAborted(t *testing.T) {
	// The pipeline wraps ErrAborted around the composer's cause.
	mr := &mockResolver{err: errors.Join(resolver.ErrAborted, errors.New("model overloaded"))}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, uuid.New(), "hello"))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusBadGateway {
		t.Errorf("send(wrapped aborted) status = %d, want %d", w.Code, http.StatusBadGateway)
	}
}

func TestChatSend_SessionNotFound(t *testing.T) {
	mr := &mockResolver{err: session.ErrNotFound}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, uuid.New(), "hello"))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusNotFound {
		t.Errorf("send(unknown session) status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestChatSend_MissingSessionID(t *testing.T) {
	mr := &mockResolver{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"message":"hello"}`))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("send(no session) status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if mr.calls != 0 {
		t.Errorf("send(no session) resolver called %d times, want 0", mr.calls)
	}
}

func TestChatSend_InvalidJSON(t *testing.T) {
	mr := &mockResolver{}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{not json`))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusBadRequest {
		t.Errorf("send(bad json) status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if mr.calls != 0 {
		t.Errorf("send(bad json) resolver called %d times, want 0", mr.calls)
	}
}

func TestChatSend_BodyTooLarge(t *testing.T) {
	mr := &mockResolver{}
	huge := strings.Repeat("a", maxChatBodySize+1)
	body, _ := json.Marshal(map[string]string{
		"session_id": uuid.NewString(),
		"message":    huge,
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("send(huge body) status = %d, want %d", w.Code, http.StatusRequestEntityTooLarge)
	}
}

func TestChatSend_InternalError(t *testing.T) {
	mr := &mockResolver{err: errors.New("pool exhausted")}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, uuid.New(), "hello"))

	newTestChatHandler(mr).send(w, r)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("send(internal) status = %d, want %d", w.Code, http.StatusInternalServerError)
	}

	// The wire error stays generic.
	if strings.Contains(w.Body.String(), "pool exhausted") {
		t.Errorf("send(internal) leaked internal error detail: %s", w.Body.String())
	}
}

func TestChatSend_ClientGone(t *testing.T) {
	mr := &mockResolver{err: context.Canceled}

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/chat", chatBody(t, uuid.New(), "hello"))

	newTestChatHandler(mr).send(w, r)

	// Nothing written; the recorder keeps its default 200 with empty body.
	if w.Body.Len() != 0 {
		t.Errorf("send(cancelled) wrote body %q, want empty", w.Body.String())
	}
}
