package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/eugenenazirov/k8s-webapp/internal/apperr"
	"github.com/eugenenazirov/k8s-webapp/internal/metrics"
	"github.com/eugenenazirov/k8s-webapp/internal/store"
)

func TestLoggingMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	var called bool
	handler := loggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected status 202, got %d", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	logger := zaptest.NewLogger(t)
	handler := recoveryMiddleware(logger, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after panic, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), internalErrorMessage) {
		t.Fatalf("expected generic message, got %q", rec.Body.String())
	}
}

func TestResponseRecorderWriteHeader(t *testing.T) {
	underlying := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: underlying}
	rec.WriteHeader(http.StatusTeapot)

	if rec.status != http.StatusTeapot {
		t.Fatalf("expected status to be recorded")
	}
	if underlying.Code != http.StatusTeapot {
		t.Fatalf("expected status to propagate to ResponseWriter")
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	router := newTestRouter(t, WithLogging(false))

	rec := serve(t, router, http.MethodGet, "/health", "", "X-Request-ID", "abc-123")
	if got := rec.Header().Get("X-Request-ID"); got != "abc-123" {
		t.Fatalf("expected incoming request id to be echoed, got %q", got)
	}

	rec = serve(t, router, http.MethodGet, "/health", "")
	if got := rec.Header().Get("X-Request-ID"); len(got) != 36 {
		t.Fatalf("expected generated uuid, got %q", got)
	}
}

func TestCORSPreflight(t *testing.T) {
	router := newTestRouter(t, WithLogging(false))

	rec := serve(t, router, http.MethodOptions, "/api/v1/entity", "")
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected CORS headers")
	}
}

func TestWithRateLimiterOptionAppliesLimiter(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}))

	rec := serve(t, router, http.MethodGet, "/api/v1/entity", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block request, got %d", rec.Code)
	}
}

func TestRateLimiterSkipsProbes(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}))

	for _, path := range []string{"/health", "/ready", "/config"} {
		rec := serve(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected %s to bypass the limiter, got %d", path, rec.Code)
		}
	}
}

func TestWithRateLimitDisablesLimiterWhenZero(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimiter(&staticLimiter{allow: false}), WithRateLimit(0, 0))

	rec := serve(t, router, http.MethodGet, "/api/v1/entity", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected limiter to be disabled, got %d", rec.Code)
	}
}

func TestWithRateLimitEnforcesLimit(t *testing.T) {
	router := newTestRouter(t, WithLogging(false), WithRateLimit(1, 1))

	rec := serve(t, router, http.MethodGet, "/api/v1/entity", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected first request to succeed, got %d", rec.Code)
	}

	rec = serve(t, router, http.MethodGet, "/api/v1/entity", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limiter to block second request, got %d", rec.Code)
	}
}

func TestBearerTokenCheck(t *testing.T) {
	secret := []byte("s3cr3t")
	router := newTestRouter(t, WithLogging(false), WithChecks(BearerToken(secret)))

	rec := serve(t, router, http.MethodGet, "/api/v1/entity", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = serve(t, router, http.MethodGet, "/api/v1/entity", "", "Authorization", "Bearer "+signToken(t, []byte("other")))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for foreign signature, got %d", rec.Code)
	}

	rec = serve(t, router, http.MethodGet, "/api/v1/entity", "", "Authorization", "Bearer "+signToken(t, secret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d", rec.Code)
	}

	rec = serve(t, router, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected probes to skip authorization, got %d", rec.Code)
	}
}

func TestAuthorizeClassifiesPlainErrors(t *testing.T) {
	check := func(*http.Request) error { return errors.New("nope") }
	handler := authorizeMiddleware(zaptest.NewLogger(t), []Check{check}, http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not execute when a check fails")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestWriteProblem(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{"not found", apperr.NotFound("missing"), http.StatusNotFound, "missing"},
		{"identifier", apperr.InvalidIdentifier("bad id"), http.StatusNotAcceptable, "bad id"},
		{"response", apperr.Response(http.StatusConflict, "taken", nil), http.StatusConflict, "taken"},
		{"unclassified", errors.New("db exploded"), http.StatusInternalServerError, internalErrorMessage},
		{"declared unavailable", apperr.Response(http.StatusServiceUnavailable, "mongo down", nil), http.StatusServiceUnavailable, internalErrorMessage},
		{"declared bad gateway", apperr.Response(http.StatusBadGateway, "upstream said no", map[string]any{"upstream": "opa"}), http.StatusBadGateway, internalErrorMessage},
		{"missing config", apperr.MissingConfig("DB_URI"), http.StatusInternalServerError, internalErrorMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeProblem(zaptest.NewLogger(t), rec, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)
			if rec.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, rec.Code)
			}
			var body map[string]any
			decodeBody(t, rec, &body)
			if body["message"] != tt.wantMsg {
				t.Fatalf("expected message %q, got %v", tt.wantMsg, body["message"])
			}
			if tt.wantCode >= http.StatusInternalServerError && len(body) != 1 {
				t.Fatalf("expected only the generic message for server errors, got %v", body)
			}
		})
	}

	rec := httptest.NewRecorder()
	writeProblem(zaptest.NewLogger(t), rec, httptest.NewRequest(http.MethodGet, "/", nil),
		apperr.Response(0, "bad", map[string]any{"field": "name"}))
	var body map[string]any
	decodeBody(t, rec, &body)
	if body["field"] != "name" || rec.Code != http.StatusBadRequest {
		t.Fatalf("expected payload to be merged, got %d %v", rec.Code, body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	snap := testSnapshot(t, nil, nil)
	handler := NewHandler(snap, store.NewMemoryStore(), &fakePolicy{}, zaptest.NewLogger(t), WithMetrics(m))
	router := NewRouter(handler, zaptest.NewLogger(t), WithLogging(false))

	serve(t, router, http.MethodPost, "/api/v1/entity", `{"name":"foo"}`)
	serve(t, router, http.MethodGet, "/ready", "")

	rec := serve(t, router, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	out := rec.Body.String()
	for _, want := range []string{
		`http_requests_total{method="POST",route="/api/v1/entity",status="201"} 1`,
		`entities_created_total 1`,
		`readiness_checks_total{status="UP"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics output", want)
		}
	}
}

func TestFaviconServedFromStaticDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, faviconFile), []byte("png"), 0o600); err != nil {
		t.Fatalf("write favicon: %v", err)
	}
	router := newTestRouter(t, WithLogging(false), WithStaticDir(dir))

	rec := serve(t, router, http.MethodGet, "/favicon.ico", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/vnd.microsoft.icon" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func signToken(t *testing.T, secret []byte) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "tester",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	})
	signed, err := token.SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func newTestRouter(t *testing.T, opts ...RouterOption) http.Handler {
	t.Helper()

	handler := newTestHandler(t, testSnapshot(t, nil, nil), nil, nil)
	logger := zaptest.NewLogger(t)
	return NewRouter(handler, logger, opts...)
}
