package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func authedHandler(t *testing.T, wantUserID int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := GetUserIDFromContext(r.Context())
		if !ok {
			t.Fatalf("user id missing from context")
		}
		if userID != wantUserID {
			t.Fatalf("user id = %d, want %d", userID, wantUserID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	auth := NewAuthMiddleware("secret")

	token, err := auth.IssueToken(42, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Middleware(authedHandler(t, 42)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	auth := NewAuthMiddleware("secret")
	other := NewAuthMiddleware("other-secret")

	foreign, err := other.IssueToken(42, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	expired, err := auth.IssueToken(42, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	tests := []struct {
		name   string
		header string
	}{
		{name: "no header", header: ""},
		{name: "not bearer", header: "Basic abc"},
		{name: "garbage token", header: "Bearer not.a.jwt"},
		{name: "wrong signature", header: "Bearer " + foreign},
		{name: "expired", header: "Bearer " + expired},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			called := false
			auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			})).ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", rec.Code)
			}
			if called {
				t.Fatalf("handler must not be called")
			}
		})
	}
}

func TestOptional_PassesThroughAnonymous(t *testing.T) {
	auth := NewAuthMiddleware("secret")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	auth.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetUserIDFromContext(r.Context()); ok {
			t.Fatalf("anonymous request must not carry a user id")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestOptional_AttachesUserWhenTokenValid(t *testing.T) {
	auth := NewAuthMiddleware("secret")

	token, err := auth.IssueToken(7, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	auth.Optional(authedHandler(t, 7)).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}
