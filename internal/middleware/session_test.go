package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/clubcal/internal/model"
)

// --- モック定義 ---

type mockSessionRepository struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionRepository) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func validSessionRepo() *mockSessionRepository {
	return &mockSessionRepository{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id == "valid-session-id" {
				return &model.Session{
					ID:        "valid-session-id",
					Email:     "alice@example.com",
					ExpiresAt: time.Now().Add(time.Hour),
				}, nil
			}
			return nil, nil
		},
	}
}

// --- テスト ---

func TestSessionMiddleware_InjectsIdentity(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
	}{
		{
			name: "cookie",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_id", Value: "valid-session-id"})
			},
		},
		{
			name: "bearer",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer valid-session-id")
			},
		},
		{
			name: "bearer takes precedence over cookie",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer valid-session-id")
				r.AddCookie(&http.Cookie{Name: "session_id", Value: "stale"})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := NewSessionMiddleware(validSessionRepo())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				identity, err := IdentityFromContext(r.Context())
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				captured = identity
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
			}
			if captured != "alice@example.com" {
				t.Errorf("identity = %q, want %q", captured, "alice@example.com")
			}
		})
	}
}

func TestSessionMiddleware_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		repo    *mockSessionRepository
		prepare func(r *http.Request)
	}{
		{
			name:    "no credentials",
			repo:    validSessionRepo(),
			prepare: func(r *http.Request) {},
		},
		{
			name: "empty cookie",
			repo: validSessionRepo(),
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_id", Value: ""})
			},
		},
		{
			name: "empty bearer",
			repo: validSessionRepo(),
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer   ")
			},
		},
		{
			name: "unknown or expired session",
			repo: validSessionRepo(),
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "session_id", Value: "expired-session"})
			},
		},
		{
			name: "repository error",
			repo: &mockSessionRepository{
				findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
					return nil, context.DeadlineExceeded
				},
			},
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer some-session")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewSessionMiddleware(tt.repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler should not be called")
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/events", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()

			handler.ServeHTTP(w, req)

			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
			}
		})
	}
}

func TestSessionIDFromRequest_NonBearerAuthorizationFallsBackToCookie(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "cookie-session"})

	if got := SessionIDFromRequest(req); got != "cookie-session" {
		t.Errorf("SessionIDFromRequest() = %q, want %q", got, "cookie-session")
	}
}

func TestIdentityFromContext_NoValue_ReturnsError(t *testing.T) {
	if _, err := IdentityFromContext(context.Background()); err == nil {
		t.Error("expected error for missing identity in context")
	}
}

func TestIdentityFromContext_ValidValue(t *testing.T) {
	ctx := ContextWithIdentity(context.Background(), "bob@example.com")
	identity, err := IdentityFromContext(ctx)
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if identity != "bob@example.com" {
		t.Errorf("identity = %q, want %q", identity, "bob@example.com")
	}
}
