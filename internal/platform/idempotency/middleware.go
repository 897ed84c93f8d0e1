package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/gemvault/api/internal/platform/auth"
	"github.com/gemvault/api/internal/platform/httpx"
	"github.com/gemvault/api/internal/platform/requestctx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader marks a response served from the store.
	ReplayHeader = "Idempotent-Replayed"

	maxKeyLength  = 255
	maxBodyLength = 1 << 20
)

type guard struct {
	store Store
	ttl   time.Duration
	clock func() time.Time
	scope func(*http.Request) string
}

// Option customises Middleware.
type Option func(*guard)

// WithTTL sets how long a completed response keeps replaying.
func WithTTL(ttl time.Duration) Option {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// WithScope overrides how keys are partitioned between callers.
func WithScope(scope func(*http.Request) string) Option {
	return func(g *guard) {
		if scope != nil {
			g.scope = scope
		}
	}
}

// Middleware replays the first response for a repeated Idempotency-Key so a retried write runs
// once. Requests without the header pass through untouched. Keys are scoped per caller, so two
// users may pick the same key.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	g := &guard{store: store, ttl: DefaultTTL, clock: time.Now, scope: callerScope}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g.wrap
}

// callerScope prefers the authenticated user, then the {userID} route parameter.
func callerScope(r *http.Request) string {
	if identity, ok := auth.IdentityFromContext(r.Context()); ok && identity.UserID != "" {
		return "user:" + identity.UserID
	}
	if id := chi.URLParam(r, "userID"); id != "" {
		return "user:" + id
	}
	return "anonymous"
}

func (g *guard) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderName))
		if key == "" || isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		ctx := r.Context()
		if len(key) > maxKeyLength {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_idempotency_key", "idempotency key is too long", http.StatusBadRequest))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyLength+1))
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
			return
		}
		if len(body) > maxBodyLength {
			httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		scoped := g.scope(r) + "|" + key
		fingerprint := requestFingerprint(r, body)
		logger := requestctx.Logger(ctx).With(zap.String("idempotencyKey", key))

		res, err := g.store.Reserve(ctx, scoped, fingerprint, g.clock().UTC(), g.ttl)
		switch {
		case errors.Is(err, ErrKeyReused):
			httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_reused", "idempotency key was used for a different request", http.StatusUnprocessableEntity))
			return
		case err != nil:
			logger.Error("idempotency reserve failed", zap.Error(err))
			httpx.WriteError(ctx, w, httpx.NewError("idempotency_unavailable", "unable to check idempotency key", http.StatusServiceUnavailable))
			return
		}

		switch res.State {
		case StateReplay:
			writeReplay(w, res.Response)
			return
		case StateInFlight:
			httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress", "a request with this idempotency key is still running", http.StatusConflict))
			return
		}

		rec := &capture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		g.settle(context.WithoutCancel(ctx), logger, scoped, fingerprint, rec)
	})
}

// settle records a finished response. Server errors release the key so the client may retry.
func (g *guard) settle(ctx context.Context, logger *zap.Logger, key, fingerprint string, rec *capture) {
	if rec.status >= http.StatusInternalServerError {
		if err := g.store.Release(ctx, key); err != nil {
			logger.Warn("idempotency release failed", zap.Error(err))
		}
		return
	}
	resp := Response{Status: rec.status, Header: rec.Header().Clone(), Body: rec.body.Bytes()}
	if err := g.store.Complete(ctx, key, fingerprint, resp, g.clock().UTC(), g.ttl); err != nil {
		logger.Warn("idempotency complete failed", zap.Error(err))
		if err := g.store.Release(ctx, key); err != nil {
			logger.Warn("idempotency release failed", zap.Error(err))
		}
	}
}

func requestFingerprint(r *http.Request, body []byte) string {
	var b strings.Builder
	b.WriteString(r.Method)
	b.WriteByte('|')
	b.WriteString(r.URL.Path)
	b.WriteByte('|')
	b.WriteString(r.Header.Get("Content-Type"))
	b.WriteByte('|')
	b.Write(body)
	return documentID(b.String())
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func writeReplay(w http.ResponseWriter, resp Response) {
	for name, values := range resp.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set(ReplayHeader, "true")
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(resp.Body)
}

// capture tees the response to the client while keeping a copy for the store.
type capture struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *capture) WriteHeader(status int) {
	if !c.wroteHeader {
		c.status = status
		c.wroteHeader = true
	}
	c.ResponseWriter.WriteHeader(status)
}

func (c *capture) Write(b []byte) (int, error) {
	c.wroteHeader = true
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func (c *capture) Unwrap() http.ResponseWriter { return c.ResponseWriter }
