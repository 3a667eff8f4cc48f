package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"github.com/hitoshi/clubcal/internal/model"
)

// newChainRouter はアプリケーションと同じ順序でミドルウェアを積んだルーターを返す。
func newChainRouter(t *testing.T, logs *bytes.Buffer) http.Handler {
	t.Helper()

	rl := NewRateLimiter(RateLimiterConfig{
		GeneralRate:      rate.Limit(1),
		GeneralBurst:     2,
		GroupCreateRate:  rate.Limit(1),
		GroupCreateBurst: 1,
		CleanupInterval:  time.Minute,
	})
	t.Cleanup(rl.Stop)

	logger := slog.New(slog.NewJSONHandler(logs, nil))
	csrf := CSRFConfig{}

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewLoggingMiddleware(logger))
	r.Use(NewCORSMiddleware([]string{"http://localhost:3000"}))
	r.Get("/api/csrf-token", NewCSRFTokenHandler(csrf).ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(NewSessionMiddleware(validSessionRepo()))
		r.Use(NewCSRFMiddleware(csrf))
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/groups/mine", func(w http.ResponseWriter, r *http.Request) {
			identity, _ := IdentityFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"identity": identity})
		})
		r.With(rl.GroupCreateMiddleware()).Post("/api/groups", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		})
		r.Get("/api/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		})
	})
	return r
}

func TestMiddlewareChain_CookieSessionRequiresCSRF(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	tests := []struct {
		name       string
		withCSRF   bool
		wantStatus int
	}{
		{"without csrf", false, http.StatusForbidden},
		{"with csrf", true, http.StatusCreated},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/groups", nil)
			req.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
			if tt.withCSRF {
				req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "chain-token"})
				req.Header.Set(csrfHeaderName, "chain-token")
			}
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestMiddlewareChain_BearerSession(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	req := httptest.NewRequest(http.MethodGet, "/api/groups/mine", nil)
	req.Header.Set("Authorization", "Bearer valid-session-id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["identity"] != "alice@example.com" {
		t.Errorf("identity = %q, want %q", body["identity"], "alice@example.com")
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(logs.Bytes(), &entry); err != nil {
		t.Fatalf("failed to parse access log: %v", err)
	}
	if entry["identity"] != "alice@example.com" {
		t.Errorf("logged identity = %v, want %q", entry["identity"], "alice@example.com")
	}
}

func TestMiddlewareChain_GroupCreateLimitedBeforeGeneral(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	want := []int{http.StatusCreated, http.StatusTooManyRequests}
	for i, status := range want {
		req := httptest.NewRequest(http.MethodPost, "/api/groups", nil)
		req.Header.Set("Authorization", "Bearer valid-session-id")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != status {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, status)
		}
	}
}

func TestMiddlewareChain_NoSession_Returns401(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/groups/mine", nil))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeUnauthorized {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeUnauthorized)
	}
}

func TestMiddlewareChain_PanicRecovered(t *testing.T) {
	var logs bytes.Buffer
	router := newChainRouter(t, &logs)

	req := httptest.NewRequest(http.MethodGet, "/api/panic", nil)
	req.Header.Set("Authorization", "Bearer valid-session-id")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
}
