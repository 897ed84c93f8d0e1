package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gemvault/api/internal/platform/auth"
	"github.com/gemvault/api/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("unexpected span id %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote span context")
	}

	for _, header := range []string{"", "nope", "zz/1", "105445aa7843bc8bf206b12000100000/abc", "105445aa7843bc8bf206b12000100000/0"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewareContinuesCloudTrace(t *testing.T) {
	var info requestctx.TraceInfo
	handler := TraceMiddleware("proj")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/42;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if info.TraceID != "105445aa7843bc8bf206b12000100000" || info.ProjectID != "proj" {
		t.Fatalf("unexpected trace info %+v", info)
	}
	if got := rec.Header().Get(cloudTraceHeader); got != "105445aa7843bc8bf206b12000100000/42;o=1" {
		t.Fatalf("unexpected echoed header %q", got)
	}
}

func TestTraceMiddlewarePrefersTraceparent(t *testing.T) {
	var sc trace.SpanContext
	handler := TraceMiddleware("")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc = trace.SpanContextFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if sc.TraceID().String() != "4bf92f3577b34da6a3ce929d0e0e4736" {
		t.Fatalf("expected traceparent to win, got %s", sc.TraceID())
	}
}

func TestRequestLoggerLogsStatusAndUser(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := zap.New(core)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(logger), RequestLoggerMiddleware(nil))
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), &auth.Identity{UserID: "user-7"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}, IdentityRecorder)
	router.Get("/users/{userID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/abc", nil))

	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for 404, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/users/{userID}" || fields["user_id"] != "user-7" || fields["status"] != int64(404) {
		t.Fatalf("unexpected fields %+v", fields)
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "internal_server_error" {
		t.Fatalf("unexpected body %v", body)
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}

func TestEventLoggerUsesRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.InfoLevel)
	requestCore, requestLogs := observer.New(zapcore.InfoLevel)

	logEvent := EventLogger(zap.New(fallbackCore))
	logEvent(context.Background(), "catalog.subcategory.reassign_gap", map[string]any{"error": errors.New("down"), "subcategoryId": "s1"})

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore))
	logEvent(ctx, "order.event.publish.failed", map[string]any{"orderId": "o1"})

	if fallbackLogs.Len() != 1 || requestLogs.Len() != 1 {
		t.Fatalf("expected one entry per logger, got %d/%d", fallbackLogs.Len(), requestLogs.Len())
	}
	gap := fallbackLogs.All()[0]
	if gap.Level != zapcore.WarnLevel || gap.ContextMap()["subcategoryId"] != "s1" {
		t.Fatalf("unexpected gap entry %+v", gap)
	}
	if requestLogs.All()[0].ContextMap()["event"] != "order.event.publish.failed" {
		t.Fatalf("expected event field")
	}
}

func TestClipDropsControlCharacters(t *testing.T) {
	if got := clip("a\x00b\nc", 10); got != "abc" {
		t.Fatalf("expected control characters dropped, got %q", got)
	}
	if got := clip(strings.Repeat("é", 20), 5); got != "ééééé" {
		t.Fatalf("expected rune truncation, got %q", got)
	}
}
