package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/gemvault/api/internal/platform/credentials"
)

// Identity is the caller a verified bearer token belongs to.
type Identity struct {
	UserID string
}

type identityKey struct{}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFromContext returns the identity attached by the middleware, if any.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, _ := ctx.Value(identityKey{}).(*Identity)
	return identity, identity != nil
}

// TokenVerifier resolves a bearer token to the user id it was issued for.
type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

// Authenticator turns bearer tokens into request identities.
type Authenticator struct {
	verifier TokenVerifier
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier) *Authenticator {
	return &Authenticator{verifier: verifier}
}

// Optional attaches the identity when a bearer token is present. Requests without one pass
// through untouched; a present but unusable token is rejected.
func (a *Authenticator) Optional() func(http.Handler) http.Handler {
	return a.middleware(false)
}

// Require rejects requests that do not carry a valid bearer token.
func (a *Authenticator) Require() func(http.Handler) http.Handler {
	return a.middleware(true)
}

func (a *Authenticator) middleware(required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := IdentityFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			tokenStr, ok := extractBearerToken(header)
			if !ok {
				if !required && strings.TrimSpace(header) == "" {
					next.ServeHTTP(w, r)
					return
				}
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "missing bearer token")
				return
			}

			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			userID, err := a.verifier.VerifyToken(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			ctx := WithIdentity(r.Context(), &Identity{UserID: userID})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SameUser forbids an authenticated caller from acting on another user's resources, where the
// target user id is read from the named route parameter. Anonymous requests are left to the
// surrounding middleware.
func SameUser(param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if ok && identity.UserID != chi.URLParam(r, param) {
				respondAuthError(w, http.StatusForbidden, "forbidden", "token does not belong to this user")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, credentials.ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "credential token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "credential token invalid")
	}
}
