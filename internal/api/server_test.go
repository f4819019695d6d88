package api

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/medigenius/medigenius/internal/resolver"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(ServerConfig{
		Logger: slog.New(slog.DiscardHandler),
		Resolver: &mockResolver{resp: &resolver.Response{
			Text:       "answer",
			Provenance: resolver.ProvenanceGeneral,
			Timestamp:  time.Now(),
		}},
		SessionStore: newMockSessionStore(),
		CORSOrigins:  []string{"https://app.example.com"},
		RateBurst:    1000,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}
	return srv
}

func TestNewServer_Validation(t *testing.T) {
	if _, err := NewServer(ServerConfig{SessionStore: newMockSessionStore()}); err == nil {
		t.Error("NewServer() without resolver should fail")
	}
	if _, err := NewServer(ServerConfig{Resolver: &mockResolver{}}); err == nil {
		t.Error("NewServer() without session store should fail")
	}
}

func TestServerRoutes(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"health", http.MethodGet, "/health", "", http.StatusOK},
		{"ready without pool", http.MethodGet, "/ready", "", http.StatusOK},
		{"chat", http.MethodPost, "/api/v1/chat", `{"session_id":"` + uuid.NewString() + `","message":"hi"}`, http.StatusOK},
		{"chat wrong method", http.MethodGet, "/api/v1/chat", "", http.StatusMethodNotAllowed},
		{"create session", http.MethodPost, "/api/v1/sessions", `{"title":"t"}`, http.StatusCreated},
		{"list sessions", http.MethodGet, "/api/v1/sessions", "", http.StatusOK},
		{"get invalid id", http.MethodGet, "/api/v1/sessions/nope", "", http.StatusBadRequest},
		{"unknown route", http.MethodGet, "/api/v1/nothing", "", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r *http.Request
			if tt.body != "" {
				r = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
				r.Header.Set("Content-Type", "application/json")
			} else {
				r = httptest.NewRequest(tt.method, tt.path, nil)
			}
			r.RemoteAddr = "192.0.2.50:1000"

			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, r)

			if w.Code != tt.want {
				t.Errorf("%s %s status = %d, want %d\nbody: %s", tt.method, tt.path, w.Code, tt.want, w.Body.String())
			}
		})
	}
}

func TestServerMiddlewareStack(t *testing.T) {
	srv := newTestServer(t)

	r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
	r.RemoteAddr = "192.0.2.51:1000"
	r.Header.Set("Origin", "https://app.example.com")

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)

	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID from middleware stack")
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("Allow-Origin = %q, want configured origin", got)
	}
	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers on API routes")
	}
}

func TestServerHealthSkipsMiddleware(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("health status = %d, want %d", w.Code, http.StatusOK)
	}
	// Probes bypass the request stack, so no request id is assigned.
	if w.Header().Get("X-Request-ID") != "" {
		t.Error("health probe should not pass through the middleware stack")
	}
}

func TestServerRateLimit(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Logger:       slog.New(slog.DiscardHandler),
		Resolver:     &mockResolver{},
		SessionStore: newMockSessionStore(),
		RateBurst:    2,
	})
	if err != nil {
		t.Fatal(err)
	}

	var last int
	for range 5 {
		r := httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil)
		r.RemoteAddr = "192.0.2.99:1000"
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, r)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("status after burst = %d, want %d", last, http.StatusTooManyRequests)
	}
}
