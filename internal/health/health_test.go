package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthz(t *testing.T) {
	w := httptest.NewRecorder()
	Healthz(w, httptest.NewRequest("GET", "/healthz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ok\n" {
		t.Errorf("Healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	var rd Readiness

	w := httptest.NewRecorder()
	rd.Readyz(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status before first tick = %d, want 503", w.Code)
	}

	rd.Observe(time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC))
	if !rd.Ready() {
		t.Fatal("Ready() = false after a tick")
	}

	w = httptest.NewRecorder()
	rd.Readyz(w, httptest.NewRequest("GET", "/readyz", nil))
	if w.Code != http.StatusOK || w.Body.String() != "ready\n" {
		t.Errorf("Readyz = %d %q", w.Code, w.Body.String())
	}
}
