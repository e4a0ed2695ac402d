package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewRegistersIndependentInstruments(t *testing.T) {
	a := New()
	b := New()

	a.EntitiesCreated.Inc()
	if got := testutil.ToFloat64(a.EntitiesCreated); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
	if got := testutil.ToFloat64(b.EntitiesCreated); got != 0 {
		t.Fatalf("expected registries to be independent, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RequestsTotal.WithLabelValues("/health", http.MethodGet, "200").Inc()
	m.ReadinessChecks.WithLabelValues("UP").Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{"http_requests_total", "readiness_checks_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %s in exposition", want)
		}
	}
}
