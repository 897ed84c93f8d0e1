package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/api/internal/platform/credentials"
)

type stubTokenVerifier struct {
	userID   string
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyToken(token string) (string, error) {
	s.received = token
	if s.err != nil {
		return "", s.err
	}
	return s.userID, nil
}

func TestRequire_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{userID: "user-123"}
	authn := NewAuthenticator(verifier)

	handlerCalled := false
	handler := authn.Require()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UserID != "user-123" {
			t.Fatalf("unexpected user id: %s", identity.UserID)
		}
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !handlerCalled {
		t.Fatalf("expected handler to be called, status %d", rec.Code)
	}
	if verifier.received != "valid-token" {
		t.Fatalf("expected token to be forwarded, got %q", verifier.received)
	}
}

func TestRequire_MissingToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{userID: "user-123"})
	handler := authn.Require()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assertAuthError(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestOptional_PassesAnonymousRequests(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{userID: "user-123"})

	called := false
	handler := authn.Optional()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if _, ok := IdentityFromContext(r.Context()); ok {
			t.Fatalf("expected no identity")
		}
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if !called {
		t.Fatalf("expected anonymous request to pass")
	}
}

func TestOptional_RejectsMalformedHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{userID: "user-123"})
	handler := authn.Optional()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler must not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assertAuthError(t, rec, http.StatusUnauthorized, "unauthenticated")
}

func TestVerificationErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code string
	}{
		{"expired", credentials.ErrTokenExpired, "token_expired"},
		{"invalid", credentials.ErrTokenInvalid, "invalid_token"},
		{"other", errors.New("boom"), "invalid_token"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			authn := NewAuthenticator(&stubTokenVerifier{err: tc.err})
			handler := authn.Optional()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
				t.Fatalf("handler must not run")
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer token")
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			assertAuthError(t, rec, http.StatusUnauthorized, tc.code)
		})
	}
}

func TestSameUser(t *testing.T) {
	router := chi.NewRouter()
	router.With(SameUser("userID")).Get("/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	serve := func(userID string, identity *Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/users/"+userID, nil)
		if identity != nil {
			req = req.WithContext(WithIdentity(context.Background(), identity))
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	if rec := serve("u1", nil); rec.Code != http.StatusNoContent {
		t.Fatalf("anonymous request: expected 204, got %d", rec.Code)
	}
	if rec := serve("u1", &Identity{UserID: "u1"}); rec.Code != http.StatusNoContent {
		t.Fatalf("own resource: expected 204, got %d", rec.Code)
	}
	assertAuthError(t, serve("u1", &Identity{UserID: "u2"}), http.StatusForbidden, "forbidden")
}

func TestExtractBearerToken(t *testing.T) {
	cases := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"bearer  abc ": {"abc", true},
		"Bearer":       {"", false},
		"Token abc":    {"", false},
		"":             {"", false},
	}
	for header, want := range cases {
		token, ok := extractBearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("extractBearerToken(%q) = %q, %v", header, token, ok)
		}
	}
}

func assertAuthError(t *testing.T, rec *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d", status, rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
}
