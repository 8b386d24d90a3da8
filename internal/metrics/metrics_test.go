package metrics

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestNormalizeRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		// Known exact routes.
		{"/healthz", "/healthz"},
		{"/readyz", "/readyz"},
		{"/metrics", "/metrics"},
		{"/", "/"},
		{"/api/v1/airplanes", "/api/v1/airplanes"},
		{"/api/v1/airplanes/check", "/api/v1/airplanes/check"},
		{"/api/v1/positions", "/api/v1/positions"},
		{"/api/v1/advance", "/api/v1/advance"},
		{"/api/v1/grid", "/api/v1/grid"},
		{"/api/v1/forecast", "/api/v1/forecast"},
		{"/api/v1/history/stats", "/api/v1/history/stats"},
		{"/api/v1/stream/positions", "/api/v1/stream/positions"},
		{"/api/v1/ws/positions", "/api/v1/ws/positions"},

		// Airplane ids collapse to one label.
		{"/api/v1/airplanes/1", "/api/v1/airplanes/{id}"},
		{"/api/v1/airplanes/42", "/api/v1/airplanes/{id}"},
		{"/api/v1/airplanes/abc", "other"},

		// Unknown/bot paths collapse to "other".
		{"/wp-admin", "other"},
		{"/robots.txt", "other"},
		{"/.env", "other"},
		{"/api/v2/something", "other"},
		{"/favicon.ico", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := normalizeRoute(tt.path)
			if got != tt.want {
				t.Errorf("normalizeRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestMetricsCardinality verifies that 100 unique airplane ids produce
// exactly 1 distinct path label, not 100.
func TestMetricsCardinality(t *testing.T) {
	seen := make(map[string]bool)
	for i := 1; i <= 100; i++ {
		seen[normalizeRoute("/api/v1/airplanes/"+strconv.Itoa(i))] = true
	}
	if len(seen) != 1 {
		t.Errorf("expected 1 unique label for parameterized paths, got %d: %v", len(seen), seen)
	}
}

func TestMiddlewareRecordsStatus(t *testing.T) {
	h := Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/v1/airplanes", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusConflict)
	}

	// Domain recorders must not panic on label combinations used elsewhere.
	RecordAdmission(3, time.Millisecond)
	ObserveAdvance(time.Millisecond, 2, 1)
	AddStreamMessage("sse", 128)
	IncStreamConnections("ws", "opened")

	mrec := httptest.NewRecorder()
	Handler().ServeHTTP(mrec, httptest.NewRequest("GET", "/metrics", nil))
	body := mrec.Body.String()
	for _, name := range []string{
		`corridor_http_requests_total{code="409",method="POST",path="/api/v1/airplanes"}`,
		"corridor_admissions_total",
		"corridor_invalid_time_errors_total",
		`corridor_stream_messages_total{transport="sse"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
